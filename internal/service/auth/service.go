// Package auth holds the identity of one client session: the current user,
// the mirrored token and the API cookies, kept in memory and in a session.Store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskhub/internal/apiclient"
	"taskhub/internal/model"
	"taskhub/internal/session"
	"taskhub/pkg/logger"
	"taskhub/pkg/util"

	"go.uber.org/zap"
)

const (
	LoginPath = "/login"

	SignupSuccessMessage = "Signup successful. Please log in."
	DuplicateKeyMessage  = "An account with this email or username already exists."
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session token expired")
)

type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Result is returned by a successful login.
type Result struct {
	SessionID string
	User      model.User
	Token     string
	Redirect  string
}

// SignupResult is the message shown on the signup form. Field names the
// offending input for validation failures.
type SignupResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FieldError is a signup validation failure caught before any request is sent.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

type Service struct {
	api    *apiclient.Client
	store  session.Store
	ttl    time.Duration
	logger *zap.Logger

	mu         sync.RWMutex
	sess       *session.Session
	lastSignup *SignupResult
}

func NewService(api *apiclient.Client, store session.Store, ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: api, store: store, ttl: ttl, logger: log}
}

// Login 登录成功后把 {user, token, cookies} 写入内存和会话存储
// 失败时不写入任何状态
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	sess := session.New(resp.User, resp.Token, s.ttl)
	sess.SetHTTPCookies(s.api.Cookies())
	if err := s.store.Save(ctx, sess); err != nil {
		s.api.Reset()
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	prev := s.sess
	s.sess = sess
	s.mu.Unlock()

	if prev != nil && prev.ID != sess.ID {
		if err := s.store.Delete(ctx, prev.ID); err != nil {
			logger.WithTrace(ctx, s.logger).Warn("Failed to delete previous session", zap.String("session_id", prev.ID), zap.Error(err))
		}
	}

	logger.WithTrace(ctx, s.logger).Info("User logged in",
		zap.String("user_id", resp.User.ID),
		zap.String("role", string(resp.User.Role)),
		zap.String("session_id", sess.ID),
	)

	return &Result{
		SessionID: sess.ID,
		User:      resp.User,
		Token:     resp.Token,
		Redirect:  resp.User.Role.DashboardPath(),
	}, nil
}

// Signup 注册不会改变登录状态
func (s *Service) Signup(ctx context.Context, req model.SignupRequest) (SignupResult, error) {
	req = normalizeSignup(req)
	if fe := validateSignup(req); fe != nil {
		return s.setSignup(SignupResult{Message: fe.Message, Field: fe.Field}), fe
	}

	resp, err := s.api.Signup(ctx, req)
	if err != nil {
		msg := err.Error()
		if apiclient.IsDuplicateKey(err) {
			msg = DuplicateKeyMessage
		}
		return s.setSignup(SignupResult{Message: msg}), err
	}

	msg := SignupSuccessMessage
	if resp.Message != "" {
		msg = resp.Message
	}
	return s.setSignup(SignupResult{Success: true, Message: msg}), nil
}

func (s *Service) setSignup(r SignupResult) SignupResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.lastSignup = &cp
	return r
}

// normalizeSignup keeps only the organization field matching the role.
func normalizeSignup(req model.SignupRequest) model.SignupRequest {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	switch req.Role {
	case model.RoleCEO:
		req.OrganizationID = ""
		req.OrganizationName = strings.TrimSpace(req.OrganizationName)
	case model.RoleEmployee:
		req.OrganizationName = ""
		req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	}
	return req
}

func validateSignup(req model.SignupRequest) *FieldError {
	switch {
	case req.Username == "":
		return &FieldError{Field: "username", Message: "Username is required"}
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		return &FieldError{Field: "email", Message: "A valid email is required"}
	case req.Password == "":
		return &FieldError{Field: "password", Message: "Password is required"}
	case !req.Role.Valid():
		return &FieldError{Field: "role", Message: "Role must be ceo or employee"}
	case req.Role == model.RoleCEO && req.OrganizationName == "":
		return &FieldError{Field: "organizationName", Message: "Organization name is required"}
	case req.Role == model.RoleEmployee && req.OrganizationID == "":
		return &FieldError{Field: "organizationId", Message: "Please select an organization"}
	}
	return nil
}

// Logout clears memory and the persisted session. The API is notified on a
// best-effort basis. It always returns the login path.
func (s *Service) Logout(ctx context.Context) string {
	log := logger.WithTrace(ctx, s.logger)

	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	if err := s.api.Logout(ctx); err != nil {
		log.Warn("Logout notification failed", zap.Error(err))
	}
	s.api.Reset()

	if sess != nil {
		if err := s.store.Delete(ctx, sess.ID); err != nil {
			log.Error("Failed to delete session", zap.String("session_id", sess.ID), zap.Error(err))
		}
		log.Info("User logged out", zap.String("user_id", sess.User.ID), zap.String("session_id", sess.ID))
	}
	return LoginPath
}

// Restore rehydrates the session with id from the store. A session whose
// mirrored token has expired is deleted and ErrSessionExpired returned.
func (s *Service) Restore(ctx context.Context, id string) error {
	sess, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if util.TokenExpired(sess.Token, time.Now()) {
		if err := s.store.Delete(ctx, id); err != nil {
			logger.WithTrace(ctx, s.logger).Warn("Failed to delete expired session", zap.String("session_id", id), zap.Error(err))
		}
		return ErrSessionExpired
	}

	s.api.SetToken(sess.Token)
	s.api.SetCookies(sess.HTTPCookies())

	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	return nil
}

// SyncUser stores a newer copy of the current user, e.g. after a profile fetch.
func (s *Service) SyncUser(ctx context.Context, u model.User) error {
	s.mu.Lock()
	if s.sess == nil || s.sess.User.ID != u.ID {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.sess.User = u
	cp := *s.sess
	s.mu.Unlock()

	return s.store.Save(ctx, &cp)
}

func (s *Service) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	return s.api.Organizations(ctx)
}

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return Anonymous
	}
	return Authenticated
}

// User returns a copy of the current user.
func (s *Service) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return model.User{}, false
	}
	return s.sess.User, true
}

// Expired reports whether the session has run past its TTL or its mirrored
// token's exp. An anonymous service counts as expired.
func (s *Service) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return true
	}
	return s.sess.Expired(now) || util.TokenExpired(s.sess.Token, now)
}

func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return ""
	}
	return s.sess.Token
}

func (s *Service) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return ""
	}
	return s.sess.ID
}

func (s *Service) LastSignup() (SignupResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSignup == nil {
		return SignupResult{}, false
	}
	return *s.lastSignup, true
}
