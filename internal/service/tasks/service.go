// Package tasks caches the task collection of one organization and the
// subset assigned to the current user.
package tasks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"taskhub/internal/apiclient"
	"taskhub/internal/events"
	"taskhub/internal/model"
	"taskhub/internal/service/profile"
	"taskhub/pkg/logger"
	"taskhub/pkg/metrics"

	"go.uber.org/zap"
)

const DefaultMaxAttachmentBytes = 5 << 20

var (
	ErrNotFound           = errors.New("task not found")
	ErrNotBound           = errors.New("task store has no organization")
	ErrAttachmentTooLarge = errors.New("attachment too large")
)

// Publisher is satisfied by *events.Bus.
type Publisher interface {
	Publish(ctx context.Context, evt events.Event) error
}

// Counters is the profile side of counter reconciliation.
type Counters interface {
	Counts() (model.TaskCounts, bool)
	CalculateTaskCounts(ctx context.Context, tasks []model.Task) (model.TaskCounts, error)
}

type Option func(*Service)

func WithCounters(c Counters) Option {
	return func(s *Service) { s.counters = c }
}

// WithSessionID tags published events with the owning session.
func WithSessionID(id string) Option {
	return func(s *Service) { s.sessionID = id }
}

func WithMaxAttachmentBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttachment = n
		}
	}
}

type Service struct {
	api           *apiclient.Client
	bus           Publisher
	counters      Counters
	logger        *zap.Logger
	sessionID     string
	maxAttachment int64

	mu      sync.RWMutex
	user    model.User
	all     []model.Task
	loaded  bool
	stale   bool
	gen     uint64
	lastErr string

	// refreshing counts in-flight fetches, mutating in-flight create/update/delete
	refreshing int
	mutating   int
}

func NewService(api *apiclient.Client, bus Publisher, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		api:           api,
		bus:           bus,
		logger:        log,
		maxAttachment: DefaultMaxAttachmentBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind sets the current user. A change of user id or organization drops the
// cache and refetches.
func (s *Service) Bind(ctx context.Context, u model.User) error {
	s.mu.Lock()
	changed := u.ID != s.user.ID || u.OrganizationID != s.user.OrganizationID
	s.user = u
	if changed {
		s.all = nil
		s.loaded = false
		s.gen++
	}
	s.mu.Unlock()

	if !changed {
		return nil
	}
	return s.Refresh(ctx)
}

// Refresh 全量拉取组织任务
// 每次刷新分配一个代号，返回时若已有更新的刷新或本地写入，结果直接丢弃
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	orgID, userID := s.user.OrganizationID, s.user.ID
	if orgID == "" {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.refreshing++
	s.mu.Unlock()

	fetched, err := s.api.ListTasks(ctx, orgID)

	s.mu.Lock()
	s.refreshing--
	if gen != s.gen {
		s.mu.Unlock()
		metrics.IncrementStaleRefresh()
		logger.WithTrace(ctx, s.logger).Debug("Discarded stale task refresh",
			zap.String("organization_id", orgID),
			zap.Uint64("generation", gen),
		)
		return nil
	}
	if err != nil {
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}
	if fetched == nil {
		fetched = []model.Task{}
	}
	s.all = fetched
	s.loaded = true
	s.stale = false
	s.lastErr = ""
	snapshot := append([]model.Task(nil), fetched...)
	s.mu.Unlock()

	s.reconcileCounts(ctx, snapshot, userID)
	return nil
}

// reconcileCounts writes the derived counters back only when the profile
// disagrees with the freshly fetched task set.
func (s *Service) reconcileCounts(ctx context.Context, snapshot []model.Task, userID string) {
	if s.counters == nil || userID == "" {
		return
	}
	have, ok := s.counters.Counts()
	if !ok || have == profile.CountTasks(snapshot, userID) {
		return
	}
	if _, err := s.counters.CalculateTaskCounts(ctx, snapshot); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to reconcile task counts", zap.String("user_id", userID), zap.Error(err))
	}
}

// EnsureFresh refetches when nothing was loaded yet or the cache was marked stale.
func (s *Service) EnsureFresh(ctx context.Context) error {
	s.mu.RLock()
	need := !s.loaded || s.stale
	s.mu.RUnlock()
	if !need {
		return nil
	}
	return s.Refresh(ctx)
}

// MarkStale makes the next EnsureFresh refetch.
func (s *Service) MarkStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// CreateTask encodes attachments inline, posts the task and prepends the
// server copy to the collection.
func (s *Service) CreateTask(ctx context.Context, in model.NewTask) (*model.Task, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	uris, err := s.encodeAttachments(in.Attachments)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	u := s.user
	s.mu.RUnlock()
	if u.OrganizationID == "" {
		return nil, ErrNotBound
	}

	defer s.track()()
	created, err := s.api.CreateTask(ctx, apiclient.CreateTaskRequest{
		NewTask:        in,
		Attachments:    uris,
		AssignedBy:     u.Username,
		OrganizationID: u.OrganizationID,
	})
	if err != nil {
		s.setErr(err)
		return nil, err
	}

	s.mu.Lock()
	s.all = append([]model.Task{*created}, s.all...)
	s.localWriteLocked()
	s.mu.Unlock()

	logger.WithTrace(ctx, s.logger).Info("Task created", zap.String("task_id", created.ID), zap.String("organization_id", u.OrganizationID))
	return created, nil
}

func (s *Service) encodeAttachments(files []model.Attachment) ([]string, error) {
	uris := make([]string, 0, len(files))
	for _, f := range files {
		if int64(len(f.Data)) > s.maxAttachment {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrAttachmentTooLarge, f.Name, len(f.Data), s.maxAttachment)
		}
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		uris = append(uris, "data:"+ct+";base64,"+base64.StdEncoding.EncodeToString(f.Data))
	}
	return uris, nil
}

// UpdateTask patches the task and replaces the cached copy with the server's.
// Moving a task into or out of Completed publishes an event.
func (s *Service) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	before, known := s.Task(id)

	defer s.track()()
	updated, err := s.api.UpdateTask(ctx, id, patch)
	if err != nil {
		s.failed(id, err)
		return nil, err
	}

	s.mu.Lock()
	replaced := false
	for i := range s.all {
		if s.all[i].ID == id {
			s.all[i] = *updated
			replaced = true
			break
		}
	}
	if !replaced {
		s.stale = true
	}
	s.localWriteLocked()
	s.mu.Unlock()

	switch {
	case patch.SetsCompleted():
		s.publish(ctx, events.TaskCompleted, *updated)
	case known && patch.Reopens(before):
		s.publish(ctx, events.TaskReopened, *updated)
	}
	return updated, nil
}

// DeleteTask deletes the task remotely and locally, then publishes task.deleted.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	before, _ := s.Task(id)

	defer s.track()()
	if err := s.api.DeleteTask(ctx, id); err != nil {
		s.failed(id, err)
		return err
	}

	s.mu.Lock()
	s.removeLocked(id)
	s.localWriteLocked()
	s.mu.Unlock()

	before.ID = id
	s.publish(ctx, events.TaskDeleted, before)
	return nil
}

// localWriteLocked invalidates in-flight refreshes so they cannot overwrite
// a local write. The cache is marked stale when one was dropped.
func (s *Service) localWriteLocked() {
	s.gen++
	if s.refreshing > 0 {
		s.stale = true
	}
	s.lastErr = ""
}

func (s *Service) publish(ctx context.Context, t events.Type, task model.Task) {
	if s.bus == nil {
		return
	}
	ids := make([]string, 0, len(task.AssignedTo))
	for _, a := range task.AssignedTo {
		ids = append(ids, a.ID)
	}

	s.mu.RLock()
	orgID := s.user.OrganizationID
	s.mu.RUnlock()

	evt := events.New(t, s.sessionID, orgID, task.ID, ids)
	if err := s.bus.Publish(ctx, evt); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Task event handlers failed",
			zap.String("type", string(t)),
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}

// failed records err. A 404 from the API means the cached copy is gone.
func (s *Service) failed(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
	if apiclient.IsNotFound(err) {
		s.removeLocked(id)
	}
}

func (s *Service) removeLocked(id string) {
	for i := range s.all {
		if s.all[i].ID == id {
			s.all = append(s.all[:i:i], s.all[i+1:]...)
			return
		}
	}
}

// Get is Task with ErrNotFound for a missing id.
func (s *Service) Get(id string) (model.Task, error) {
	t, ok := s.Task(id)
	if !ok {
		return model.Task{}, ErrNotFound
	}
	return t, nil
}

// Task returns the cached task with id.
func (s *Service) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.all {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// AllTasks is the organization view.
func (s *Service) AllTasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Task(nil), s.all...)
}

// MyTasks is the subset of AllTasks assigned to the current user.
func (s *Service) MyTasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mine := []model.Task{}
	for _, t := range s.all {
		if t.IsAssignedTo(s.user.ID) {
			mine = append(mine, t)
		}
	}
	return mine
}

func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshing+s.mutating > 0
}

// track marks a mutation in flight until the returned func is called.
func (s *Service) track() func() {
	s.mu.Lock()
	s.mutating++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.mutating--
		s.mu.Unlock()
	}
}

// Err is the message of the last failed operation, or "".
func (s *Service) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
