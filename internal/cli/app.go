package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"taskhub/internal/session"
	"taskhub/internal/workspace"

	"go.uber.org/zap"
)

var ErrNotLoggedIn = errors.New("not logged in, run `taskctl login` first")

// Options are the persistent flags shared by every command.
type Options struct {
	APIBaseURL string
	DBPath     string
	Timeout    time.Duration
	Verbose    bool
}

// App holds what a single CLI invocation needs: the local session file and
// a registry that rehydrates the stored session.
type App struct {
	registry *workspace.Registry
	store    *session.SQLiteStore
	logger   *zap.Logger
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(ctx context.Context, opts Options, in io.Reader, out io.Writer, logger *zap.Logger) (*App, error) {
	store, err := session.OpenSQLite(ctx, opts.DBPath)
	if err != nil {
		return nil, err
	}
	registry := workspace.NewRegistry(workspace.Config{
		APIBaseURL: opts.APIBaseURL,
		APITimeout: opts.Timeout,
		SessionTTL: 30 * 24 * time.Hour,
	}, store, logger)

	return &App{
		registry: registry,
		store:    store,
		logger:   logger,
		reader:   bufio.NewReader(in),
		out:      out,
	}, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// current rehydrates the newest stored session.
func (a *App) current(ctx context.Context) (*workspace.Workspace, error) {
	sess, err := a.store.Current(ctx)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}
	ws, err := a.registry.Get(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return ws, nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
