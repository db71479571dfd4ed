package tasks

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskhub/internal/apiclient"
	"taskhub/internal/apitest"
	"taskhub/internal/events"
	"taskhub/internal/model"
	"taskhub/internal/service/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv *apitest.Server
	org model.Organization
	ceo model.User
	ann model.User
	bob model.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	org := srv.AddOrganization("Acme")
	e := &env{srv: srv, org: org}
	e.ceo = srv.AddUser(model.User{Username: "boss", Email: "boss@acme.io", Role: model.RoleCEO, OrganizationID: org.ID}, "secret")
	e.ann = srv.AddUser(model.User{Username: "ann", Email: "ann@acme.io", Role: model.RoleEmployee, OrganizationID: org.ID}, "pw")
	e.bob = srv.AddUser(model.User{Username: "bob", Email: "bob@acme.io", Role: model.RoleEmployee, OrganizationID: org.ID}, "pw")
	return e
}

func (e *env) task(title string, status model.Status, assignees ...model.User) model.Task {
	t := model.Task{
		Title:          title,
		Status:         status,
		Priority:       model.PriorityMedium,
		AssignedBy:     e.ceo.Username,
		OrganizationID: e.org.ID,
		Tags:           []string{},
		Attachments:    []string{},
	}
	for _, u := range assignees {
		t.AssignedTo = append(t.AssignedTo, model.SnapshotOf(u))
	}
	return e.srv.AddTask(t)
}

type session struct {
	svc     *Service
	profile *profile.Service
	user    model.User

	mu     sync.Mutex
	events []events.Event
}

func (s *session) published() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

// open logs in as email and binds a task store wired the way a workspace is.
func (e *env) open(t *testing.T, email, password string, opts ...Option) *session {
	t.Helper()
	ctx := context.Background()

	api, err := apiclient.New(e.srv.URL, time.Second, nil)
	require.NoError(t, err)
	resp, err := api.Login(ctx, email, password)
	require.NoError(t, err)

	s := &session{user: resp.User}
	bus := events.NewBus(nil)
	s.profile = profile.NewService(api, resp.User, nil)
	s.svc = NewService(api, bus, nil, append([]Option{WithCounters(s.profile), WithSessionID("s-test")}, opts...)...)
	profile.NewRecalculator(s.profile, s.svc, nil).Attach(bus)
	for _, typ := range []events.Type{events.TaskCompleted, events.TaskReopened, events.TaskDeleted} {
		bus.Subscribe(typ, func(ctx context.Context, evt events.Event) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.events = append(s.events, evt)
			return nil
		})
	}

	require.NoError(t, s.svc.Bind(ctx, resp.User))
	e.srv.ResetCalls()
	return s
}

func TestCEOCreatesTask(t *testing.T) {
	e := newEnv(t)
	e.task("Existing", model.StatusInProgress)
	s := e.open(t, "boss@acme.io", "secret")

	created, err := s.svc.CreateTask(context.Background(), model.NewTask{
		Title:      "Audit",
		AssignedTo: []model.Assignee{model.SnapshotOf(e.ann)},
		Priority:   model.PriorityHigh,
	})
	require.NoError(t, err)

	all := s.svc.AllTasks()
	require.Len(t, all, 2)
	assert.Equal(t, created.ID, all[0].ID)
	assert.Equal(t, model.StatusNotStarted, all[0].Status)
	assert.Equal(t, model.PriorityHigh, all[0].Priority)
	assert.Equal(t, "boss", all[0].AssignedBy)
	assert.Equal(t, e.org.ID, all[0].OrganizationID)
	assert.Empty(t, s.svc.Err())
}

func TestCreateThenRefreshRoundTrip(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "boss@acme.io", "secret")
	ctx := context.Background()

	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	in := model.NewTask{
		Title:              "Quarterly report",
		Description:        "Numbers",
		AssignedTo:         []model.Assignee{model.SnapshotOf(e.ann), model.SnapshotOf(e.bob)},
		DueDate:            &due,
		Priority:           model.PriorityLow,
		Status:             model.StatusInProgress,
		Category:           "Finance",
		Progress:           10,
		Tags:               []string{"q1", "report"},
		Attachments:        []model.Attachment{{Name: "a.txt", ContentType: "text/plain", Data: []byte("hi")}},
		NotifyAssignees:    true,
		Recurring:          true,
		RecurringFrequency: model.FrequencyMonthly,
	}
	created, err := s.svc.CreateTask(ctx, in)
	require.NoError(t, err)
	require.NoError(t, s.svc.Refresh(ctx))

	got, ok := s.svc.Task(created.ID)
	require.True(t, ok)
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.AssignedTo, got.AssignedTo)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
	assert.Nil(t, got.StartDate)
	assert.Equal(t, in.Priority, got.Priority)
	assert.Equal(t, in.Status, got.Status)
	assert.Equal(t, in.Category, got.Category)
	assert.Equal(t, in.Progress, got.Progress)
	assert.Equal(t, in.Tags, got.Tags)
	assert.Equal(t, []string{"data:text/plain;base64,aGk="}, got.Attachments)
	assert.True(t, got.NotifyAssignees)
	assert.True(t, got.Recurring)
	assert.Equal(t, model.FrequencyMonthly, got.RecurringFrequency)
}

func TestCreateValidatesLocally(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "boss@acme.io", "secret", WithMaxAttachmentBytes(4))
	ctx := context.Background()

	_, err := s.svc.CreateTask(ctx, model.NewTask{})
	assert.ErrorIs(t, err, model.ErrTitleRequired)

	_, err = s.svc.CreateTask(ctx, model.NewTask{
		Title:       "Big",
		Attachments: []model.Attachment{{Name: "big.bin", Data: make([]byte, 5)}},
	})
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)
	assert.Equal(t, 0, e.srv.Calls("POST /api/tasks"))
}

func TestCreateFailureStoresError(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "boss@acme.io", "secret")

	e.srv.FailNext("POST /api/tasks", http.StatusBadRequest, "Assignee not in organization")
	_, err := s.svc.CreateTask(context.Background(), model.NewTask{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, "Assignee not in organization", err.Error())
	assert.Equal(t, "Assignee not in organization", s.svc.Err())
	assert.Empty(t, s.svc.AllTasks())
}

func TestPartitionIntoMyTasks(t *testing.T) {
	e := newEnv(t)
	e.task("a", model.StatusNotStarted, e.ann)
	e.task("b", model.StatusNotStarted, e.bob)
	e.task("c", model.StatusCompleted, e.ann, e.bob)
	e.task("d", model.StatusNotStarted)
	s := e.open(t, "ann@acme.io", "pw")

	all := s.svc.AllTasks()
	mine := s.svc.MyTasks()
	require.Len(t, all, 4)

	var want []model.Task
	for _, task := range all {
		if task.IsAssignedTo(s.user.ID) {
			want = append(want, task)
		}
	}
	assert.Equal(t, want, mine)
	assert.Len(t, mine, 2)
}

func TestEmployeeCompletesTaskUpdatesProfile(t *testing.T) {
	e := newEnv(t)
	task := e.task("Fix bug", model.StatusInProgress, e.ann)
	s := e.open(t, "ann@acme.io", "pw")
	ctx := context.Background()

	before := s.profile.GetProfile(ctx)
	require.NotNil(t, before)

	done := model.StatusCompleted
	updated, err := s.svc.UpdateTask(ctx, task.ID, model.TaskPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, updated.Status)

	after := s.profile.GetProfile(ctx)
	require.NotNil(t, after)
	assert.Equal(t, before.TasksCompleted+1, after.TasksCompleted)

	evts := s.published()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TaskCompleted, evts[0].Type)
	assert.Equal(t, []string{e.ann.ID}, evts[0].Assignees)
	assert.Equal(t, "s-test", evts[0].SessionID)
}

func TestReopeningPublishesEvent(t *testing.T) {
	e := newEnv(t)
	task := e.task("Done", model.StatusCompleted, e.ann)
	s := e.open(t, "boss@acme.io", "secret")

	back := model.StatusInProgress
	_, err := s.svc.UpdateTask(context.Background(), task.ID, model.TaskPatch{Status: &back})
	require.NoError(t, err)

	evts := s.published()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TaskReopened, evts[0].Type)
}

func TestUpdateReplacesWithServerCopy(t *testing.T) {
	e := newEnv(t)
	task := e.task("Draft", model.StatusNotStarted, e.ann)
	s := e.open(t, "boss@acme.io", "secret")

	progress := 50
	updated, err := s.svc.UpdateTask(context.Background(), task.ID, model.TaskPatch{Progress: &progress})
	require.NoError(t, err)

	cached, ok := s.svc.Task(task.ID)
	require.True(t, ok)
	assert.Equal(t, *updated, cached)
	assert.True(t, cached.UpdatedAt.After(task.UpdatedAt))
	assert.Empty(t, s.published())
}

func TestEmptyPatchIsIdempotent(t *testing.T) {
	e := newEnv(t)
	task := e.task("Same", model.StatusInProgress, e.ann)
	s := e.open(t, "boss@acme.io", "secret")
	ctx := context.Background()

	_, err := s.svc.UpdateTask(ctx, task.ID, model.TaskPatch{})
	require.NoError(t, err)
	once, _ := e.srv.Task(task.ID)

	_, err = s.svc.UpdateTask(ctx, task.ID, model.TaskPatch{})
	require.NoError(t, err)
	twice, _ := e.srv.Task(task.ID)

	assert.Equal(t, once, twice)
	assert.Equal(t, task, twice)
}

func TestUpdateUnknownTaskDropsCachedCopy(t *testing.T) {
	e := newEnv(t)
	task := e.task("Gone", model.StatusInProgress)
	s := e.open(t, "boss@acme.io", "secret")

	e.srv.FailNext("PATCH /api/tasks/"+task.ID, http.StatusNotFound, "Task not found")
	title := "x"
	_, err := s.svc.UpdateTask(context.Background(), task.ID, model.TaskPatch{Title: &title})
	require.Error(t, err)
	assert.Equal(t, "Task not found", s.svc.Err())

	_, err = s.svc.Get(task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRefreshesRosterOnce(t *testing.T) {
	e := newEnv(t)
	t1 := e.task("T-1 task", model.StatusInProgress, e.ann)
	e.task("other", model.StatusInProgress, e.bob)
	s := e.open(t, "boss@acme.io", "secret")

	require.NoError(t, s.svc.DeleteTask(context.Background(), t1.ID))

	for _, task := range s.svc.AllTasks() {
		assert.NotEqual(t, t1.ID, task.ID)
	}
	assert.Len(t, s.svc.AllTasks(), 1)
	assert.Equal(t, 1, e.srv.Calls("GET /api/organizations/"+e.org.ID+"/users"))

	evts := s.published()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TaskDeleted, evts[0].Type)
	assert.Equal(t, t1.ID, evts[0].TaskID)
	assert.Equal(t, []string{e.ann.ID}, evts[0].Assignees)
}

func TestDeleteFailureKeepsTask(t *testing.T) {
	e := newEnv(t)
	task := e.task("Keep", model.StatusInProgress)
	s := e.open(t, "boss@acme.io", "secret")

	e.srv.FailNext("DELETE /api/tasks/"+task.ID, http.StatusInternalServerError, "")
	err := s.svc.DeleteTask(context.Background(), task.ID)
	require.Error(t, err)
	assert.Equal(t, "Failed to delete task", s.svc.Err())
	assert.Len(t, s.svc.AllTasks(), 1)
	assert.Empty(t, s.published())
}

func TestRefreshReconcilesCountersOnlyWhenDifferent(t *testing.T) {
	e := newEnv(t)
	e.task("mine", model.StatusCompleted, e.ann)

	s := e.open(t, "ann@acme.io", "pw")
	stored, _ := e.srv.User(e.ann.ID)
	assert.Equal(t, 1, stored.TasksAssigned)
	assert.Equal(t, 1, stored.TasksCompleted)

	require.NoError(t, s.svc.Refresh(context.Background()))
	assert.Equal(t, 0, e.srv.Calls("PATCH /api/profile"))
}

func TestBindSameUserDoesNotRefetch(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "boss@acme.io", "secret")

	require.NoError(t, s.svc.Bind(context.Background(), s.user))
	assert.Equal(t, 0, e.srv.Calls("GET /api/tasks"))

	moved := s.user
	moved.OrganizationID = "org-other"
	require.NoError(t, s.svc.Bind(context.Background(), moved))
	assert.Equal(t, 1, e.srv.Calls("GET /api/tasks"))
}

func TestBindWithoutOrganizationSkipsFetch(t *testing.T) {
	e := newEnv(t)
	api, err := apiclient.New(e.srv.URL, time.Second, nil)
	require.NoError(t, err)
	svc := NewService(api, nil, nil)

	require.NoError(t, svc.Bind(context.Background(), model.User{ID: "u-x"}))
	assert.Equal(t, 0, e.srv.Calls("GET /api/tasks"))
	assert.False(t, svc.Loaded())

	_, err = svc.CreateTask(context.Background(), model.NewTask{Title: "x"})
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestEnsureFreshHonoursStaleMark(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "boss@acme.io", "secret")
	ctx := context.Background()

	require.NoError(t, s.svc.EnsureFresh(ctx))
	assert.Equal(t, 0, e.srv.Calls("GET /api/tasks"))

	s.svc.MarkStale()
	require.NoError(t, s.svc.EnsureFresh(ctx))
	require.NoError(t, s.svc.EnsureFresh(ctx))
	assert.Equal(t, 1, e.srv.Calls("GET /api/tasks"))
}

func TestRefreshErrorIsStoredAndReturned(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "boss@acme.io", "secret")

	e.srv.FailNext("GET /api/tasks", http.StatusServiceUnavailable, "")
	err := s.svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Failed to fetch tasks", s.svc.Err())
	assert.False(t, s.svc.Loading())
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	e := newEnv(t)
	e.task("first", model.StatusNotStarted)

	var armed atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	e.srv.Hook = func(r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/tasks" && armed.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
	}

	s := e.open(t, "boss@acme.io", "secret")
	ctx := context.Background()

	armed.Store(true)
	slow := make(chan error, 1)
	go func() { slow <- s.svc.Refresh(ctx) }()
	<-entered
	assert.True(t, s.svc.Loading())

	e.task("second", model.StatusNotStarted)
	require.NoError(t, s.svc.Refresh(ctx))
	assert.Len(t, s.svc.AllTasks(), 2)

	e.task("third", model.StatusNotStarted)
	close(release)
	require.NoError(t, <-slow)

	assert.Len(t, s.svc.AllTasks(), 2)
	assert.False(t, s.svc.Loading())
}

func TestLoadingCoversMutations(t *testing.T) {
	e := newEnv(t)
	task := e.task("audit", model.StatusInProgress, e.ann)

	var armed atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	e.srv.Hook = func(r *http.Request) {
		if r.Method == http.MethodPatch && armed.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
	}

	s := e.open(t, "boss@acme.io", "secret")
	require.False(t, s.svc.Loading())

	armed.Store(true)
	done := make(chan error, 1)
	progress := 50
	go func() {
		_, err := s.svc.UpdateTask(context.Background(), task.ID, model.TaskPatch{Progress: &progress})
		done <- err
	}()
	<-entered
	assert.True(t, s.svc.Loading())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.svc.Loading())

	// a finished mutation alone does not force a refetch
	e.srv.ResetCalls()
	require.NoError(t, s.svc.EnsureFresh(context.Background()))
	assert.Equal(t, 0, e.srv.Calls("GET /api/tasks"))
}
