// Package session persists the authenticated state of a client session:
// the user record, the mirrored bearer token and the API cookies.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"taskhub/internal/model"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Session struct {
	ID        string     `json:"id"`
	User      model.User `json:"user"`
	Token     string     `json:"token"`
	Cookies   []Cookie   `json:"cookies"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// New creates a session with a fresh id that expires after ttl.
func New(user model.User, token string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		User:      user,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SetHTTPCookies copies name/value pairs from the API client's jar.
func (s *Session) SetHTTPCookies(cookies []*http.Cookie) {
	s.Cookies = s.Cookies[:0]
	for _, c := range cookies {
		s.Cookies = append(s.Cookies, Cookie{Name: c.Name, Value: c.Value})
	}
}

func (s *Session) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	return out
}

// Store is implemented by every session backend. Load returns ErrNotFound
// for missing and expired sessions alike.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
