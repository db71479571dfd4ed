// Package workspace owns the per-session state stores. Each logged-in session
// gets one Workspace, created on login and torn down on logout.
package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskhub/internal/apiclient"
	"taskhub/internal/events"
	"taskhub/internal/model"
	"taskhub/internal/service/auth"
	"taskhub/internal/service/profile"
	"taskhub/internal/service/tasks"
	"taskhub/internal/session"
	"taskhub/pkg/circuitbreaker"
	"taskhub/pkg/logger"
	"taskhub/pkg/metrics"

	"go.uber.org/zap"
)

type Workspace struct {
	ID      string
	API     *apiclient.Client
	Auth    *auth.Service
	Profile *profile.Service
	Tasks   *tasks.Service
	Bus     *events.Bus
}

// User is the identity the session logged in with, refreshed by profile fetches.
func (w *Workspace) User() model.User {
	u, _ := w.Auth.User()
	return u
}

type Config struct {
	APIBaseURL         string
	APITimeout         time.Duration
	SessionTTL         time.Duration
	MaxAttachmentBytes int64
}

type Registry struct {
	cfg       Config
	store     session.Store
	breaker   *circuitbreaker.CircuitBreaker
	forwarder *events.Forwarder
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.RWMutex
	spaces map[string]*Workspace
}

type Option func(*Registry)

// WithBreaker shares one circuit breaker between every session's API client.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(r *Registry) { r.breaker = cb }
}

// WithForwarder copies every session's task events onto the broker.
func WithForwarder(f *events.Forwarder) Option {
	return func(r *Registry) { r.forwarder = f }
}

func NewRegistry(cfg Config, store session.Store, log *zap.Logger, opts ...Option) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		cfg:    cfg,
		store:  store,
		logger: log,
		now:    time.Now,
		spaces: make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) newClient() (*apiclient.Client, error) {
	var opts []apiclient.Option
	if r.breaker != nil {
		opts = append(opts, apiclient.WithBreaker(r.breaker))
	}
	return apiclient.New(r.cfg.APIBaseURL, r.cfg.APITimeout, r.logger, opts...)
}

// Open logs in and registers a workspace for the new session. The first task
// fetch happens here; its failure is logged and left to the next request.
func (r *Registry) Open(ctx context.Context, email, password string) (*Workspace, *auth.Result, error) {
	api, err := r.newClient()
	if err != nil {
		return nil, nil, err
	}
	authSvc := auth.NewService(api, r.store, r.cfg.SessionTTL, r.logger)
	res, err := authSvc.Login(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	ws := r.assemble(res.SessionID, api, authSvc, res.User)
	r.bind(ctx, ws)
	r.put(ws)
	return ws, res, nil
}

// Get returns the workspace of session id, rehydrating it from the session
// store when this process has not seen it yet. A cached workspace is still
// checked against its expiry and the store, so a session that expired or was
// logged out by another instance is evicted and reported as session.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Workspace, error) {
	r.mu.RLock()
	ws, ok := r.spaces[id]
	r.mu.RUnlock()
	if ok {
		if err := r.check(ctx, ws); err != nil {
			return nil, err
		}
		return ws, nil
	}

	api, err := r.newClient()
	if err != nil {
		return nil, err
	}
	authSvc := auth.NewService(api, r.store, r.cfg.SessionTTL, r.logger)
	if err := authSvc.Restore(ctx, id); err != nil {
		return nil, err
	}
	user, _ := authSvc.User()

	ws = r.assemble(id, api, authSvc, user)

	r.mu.Lock()
	if existing, ok := r.spaces[id]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	n := r.insertLocked(ws)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)

	logger.WithTrace(ctx, r.logger).Debug("Workspace rehydrated", zap.String("session_id", id))
	r.bind(ctx, ws)
	return ws, nil
}

// Close logs the session out and forgets its workspace.
func (r *Registry) Close(ctx context.Context, id string) (string, error) {
	ws, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, auth.ErrSessionExpired) {
			return auth.LoginPath, nil
		}
		return "", err
	}

	redirect := ws.Auth.Logout(ctx)

	r.mu.Lock()
	delete(r.spaces, id)
	n := len(r.spaces)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)
	return redirect, nil
}

// InvalidateOrganization marks the task cache of every workspace in orgID
// stale, except the session the change came from. It returns how many were marked.
func (r *Registry) InvalidateOrganization(orgID, exceptSession string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for id, ws := range r.spaces {
		if id == exceptSession || ws.User().OrganizationID != orgID {
			continue
		}
		ws.Tasks.MarkStale()
		n++
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spaces)
}

// Signup and Organizations run on a throwaway client: neither needs a session.
func (r *Registry) Signup(ctx context.Context, req model.SignupRequest) (auth.SignupResult, error) {
	api, err := r.newClient()
	if err != nil {
		return auth.SignupResult{}, err
	}
	return auth.NewService(api, r.store, r.cfg.SessionTTL, r.logger).Signup(ctx, req)
}

func (r *Registry) Organizations(ctx context.Context) ([]model.Organization, error) {
	api, err := r.newClient()
	if err != nil {
		return nil, err
	}
	return auth.NewService(api, r.store, r.cfg.SessionTTL, r.logger).ListOrganizations(ctx)
}

func (r *Registry) assemble(id string, api *apiclient.Client, authSvc *auth.Service, user model.User) *Workspace {
	log := r.logger.With(zap.String("session_id", id))
	bus := events.NewBus(log)

	prof := profile.NewService(api, user, log, profile.WithUserSink(authSvc.SyncUser))
	taskSvc := tasks.NewService(api, bus, log,
		tasks.WithCounters(prof),
		tasks.WithSessionID(id),
		tasks.WithMaxAttachmentBytes(r.cfg.MaxAttachmentBytes),
	)
	profile.NewRecalculator(prof, taskSvc, log).Attach(bus)
	for _, t := range []events.Type{events.TaskCompleted, events.TaskReopened, events.TaskDeleted} {
		bus.Subscribe(t, r.invalidatePeers)
	}
	if r.forwarder != nil {
		r.forwarder.Attach(bus)
	}

	return &Workspace{
		ID:      id,
		API:     api,
		Auth:    authSvc,
		Profile: prof,
		Tasks:   taskSvc,
		Bus:     bus,
	}
}

// invalidatePeers marks other local sessions of the organization stale.
// Remote gateway instances learn about the change through the forwarder.
func (r *Registry) invalidatePeers(ctx context.Context, evt events.Event) error {
	if n := r.InvalidateOrganization(evt.OrganizationID, evt.SessionID); n > 0 {
		logger.WithTrace(ctx, r.logger).Debug("Marked peer sessions stale",
			zap.String("organization_id", evt.OrganizationID),
			zap.Int("sessions", n),
		)
	}
	return nil
}

func (r *Registry) bind(ctx context.Context, ws *Workspace) {
	if err := ws.Tasks.Bind(ctx, ws.User()); err != nil {
		logger.WithTrace(ctx, r.logger).Warn("Initial task fetch failed",
			zap.String("session_id", ws.ID),
			zap.Error(err),
		)
	}
}

// check evicts ws when its session is over: past its TTL or token exp, or
// gone from the store. Store errors other than ErrNotFound keep the workspace.
func (r *Registry) check(ctx context.Context, ws *Workspace) error {
	if ws.Auth.Expired(r.now()) {
		if err := r.store.Delete(ctx, ws.ID); err != nil {
			logger.WithTrace(ctx, r.logger).Warn("Failed to delete expired session",
				zap.String("session_id", ws.ID), zap.Error(err))
		}
		r.evict(ctx, ws.ID, "expired")
		return session.ErrNotFound
	}

	if _, err := r.store.Load(ctx, ws.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			r.evict(ctx, ws.ID, "gone from store")
		}
		return err
	}
	return nil
}

func (r *Registry) evict(ctx context.Context, id, reason string) {
	r.mu.Lock()
	delete(r.spaces, id)
	n := len(r.spaces)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)

	logger.WithTrace(ctx, r.logger).Debug("Workspace evicted",
		zap.String("session_id", id),
		zap.String("reason", reason),
	)
}

func (r *Registry) put(ws *Workspace) {
	r.mu.Lock()
	n := r.insertLocked(ws)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)
}

// insertLocked registers ws and drops every workspace whose session has
// expired. r.mu must be held.
func (r *Registry) insertLocked(ws *Workspace) int {
	now := r.now()
	for id, other := range r.spaces {
		if other.Auth.Expired(now) {
			delete(r.spaces, id)
		}
	}
	r.spaces[ws.ID] = ws
	return len(r.spaces)
}
