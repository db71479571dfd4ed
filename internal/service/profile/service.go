// Package profile caches the current user's profile and the roster of the
// user's organization.
package profile

import (
	"context"
	"errors"
	"sync"

	"taskhub/internal/apiclient"
	"taskhub/internal/model"
	"taskhub/pkg/logger"

	"go.uber.org/zap"
)

var (
	ErrNoProfile        = errors.New("profile not loaded")
	ErrPasswordRequired = errors.New("new password is required")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// UserSink receives every newer copy of the current user.
type UserSink func(ctx context.Context, u model.User) error

type Service struct {
	api    *apiclient.Client
	logger *zap.Logger
	sink   UserSink

	mu    sync.RWMutex
	user  *model.User
	users []model.User
}

type Option func(*Service)

func WithUserSink(sink UserSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// NewService seeds the cache with the user returned at login.
func NewService(api *apiclient.Client, current model.User, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{api: api, logger: log}
	if current.ID != "" {
		s.user = &current
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetProfile 获取当前用户资料，失败时只记录日志并返回缓存值
func (s *Service) GetProfile(ctx context.Context) *model.User {
	u, err := s.api.Profile(ctx)
	if err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to fetch profile", zap.Error(err))
		return s.Profile()
	}
	s.setUser(ctx, *u)
	return s.Profile()
}

// FetchOrganizationUsers 获取同组织的用户列表
// organizationId 未知时直接返回，失败时只记录日志
func (s *Service) FetchOrganizationUsers(ctx context.Context) []model.User {
	orgID := s.organizationID()
	if orgID == "" {
		return s.Users()
	}

	users, err := s.api.OrganizationUsers(ctx, orgID)
	if err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to fetch organization users",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
		return s.Users()
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	return s.Users()
}

func (s *Service) UpdateProfile(ctx context.Context, fields model.ProfileUpdate) (*model.User, error) {
	u, err := s.api.UpdateProfile(ctx, fields)
	if err != nil {
		return nil, err
	}
	s.setUser(ctx, *u)
	return s.Profile(), nil
}

// ChangePassword returns the API's confirmation message.
func (s *Service) ChangePassword(ctx context.Context, req model.PasswordChange) (string, error) {
	if req.NewPassword == "" {
		return "", ErrPasswordRequired
	}
	if req.NewPassword != req.ConfirmPassword {
		return "", ErrPasswordMismatch
	}
	return s.api.ChangePassword(ctx, req)
}

func (s *Service) InviteEmployee(ctx context.Context, email string) (string, error) {
	return s.api.InviteEmployee(ctx, email)
}

// CountTasks derives the profile counters of userID from a task list.
func CountTasks(tasks []model.Task, userID string) model.TaskCounts {
	var c model.TaskCounts
	for _, t := range tasks {
		if !t.IsAssignedTo(userID) {
			continue
		}
		c.TasksAssigned++
		if t.Status == model.StatusCompleted {
			c.TasksCompleted++
		}
	}
	return c
}

// CalculateTaskCounts counts tasks for the current user and writes both
// counters back to the profile.
func (s *Service) CalculateTaskCounts(ctx context.Context, tasks []model.Task) (model.TaskCounts, error) {
	cur := s.Profile()
	if cur == nil {
		return model.TaskCounts{}, ErrNoProfile
	}

	counts := CountTasks(tasks, cur.ID)
	u, err := s.api.UpdateProfile(ctx, counts)
	if err != nil {
		return counts, err
	}
	s.setUser(ctx, *u)
	return counts, nil
}

// Counts returns the counters currently cached on the profile.
func (s *Service) Counts() (model.TaskCounts, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.TaskCounts{}, false
	}
	return model.TaskCounts{TasksAssigned: s.user.TasksAssigned, TasksCompleted: s.user.TasksCompleted}, true
}

// Profile returns a copy of the cached profile, or nil.
func (s *Service) Profile() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	cp := *s.user
	return &cp
}

func (s *Service) Users() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.User(nil), s.users...)
}

func (s *Service) organizationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.OrganizationID
}

func (s *Service) setUser(ctx context.Context, u model.User) {
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink(ctx, u); err != nil {
			logger.WithTrace(ctx, s.logger).Warn("Failed to persist profile", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
}
