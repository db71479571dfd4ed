package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps sessions in a jsonb column. Expired rows are ignored
// on load and removed by Purge.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the sessions table when it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS sessions (
            id         TEXT PRIMARY KEY,
            data       JSONB NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        )
    `
	if _, err := p.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, id string) (*Session, error) {
	query := `
        SELECT data
        FROM sessions
        WHERE id = $1 AND expires_at > NOW()
    `
	var raw []byte
	err := p.db.QueryRow(ctx, query, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (p *PostgresStore) Save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	expires := s.ExpiresAt
	if expires.IsZero() {
		expires = time.Now().Add(24 * time.Hour)
	}

	query := `
        INSERT INTO sessions (id, data, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
    `
	if _, err := p.db.Exec(ctx, query, s.ID, raw, expires); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (p *PostgresStore) Purge(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
