package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskhub/internal/apiclient"
	"taskhub/internal/apitest"
	"taskhub/internal/model"
	"taskhub/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv   *apitest.Server
	store *session.MemoryStore
	org   model.Organization
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	org := srv.AddOrganization("Acme")
	srv.AddUser(model.User{
		Username: "boss", Email: "boss@acme.io", Role: model.RoleCEO,
		OrganizationID: org.ID, OrganizationName: org.Name,
	}, "secret")
	srv.AddUser(model.User{
		Username: "ann", Email: "ann@acme.io", Role: model.RoleEmployee,
		OrganizationID: org.ID, OrganizationName: org.Name,
	}, "pw")

	return &fixture{srv: srv, store: session.NewMemoryStore(), org: org}
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	api, err := apiclient.New(f.srv.URL, time.Second, nil)
	require.NoError(t, err)
	return NewService(api, f.store, time.Hour, nil)
}

func TestLoginRedirectsByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ceo := f.service(t)
	res, err := ceo.Login(ctx, "boss@acme.io", "secret")
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/ceo", res.Redirect)
	assert.Equal(t, Authenticated, ceo.State())

	emp := f.service(t)
	res, err = emp.Login(ctx, "ann@acme.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/employee", res.Redirect)

	persisted, err := f.store.Load(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, persisted.User.ID)
	assert.Equal(t, res.Token, persisted.Token)
	assert.NotEmpty(t, persisted.Cookies)
}

func TestLoginInvalidCredentialsPersistsNothing(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t)

	res, err := svc.Login(context.Background(), "bad@x.com", "wrong")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, "Invalid credentials", err.Error())

	assert.Equal(t, Anonymous, svc.State())
	assert.Empty(t, svc.Token())
	_, ok := svc.User()
	assert.False(t, ok)
	assert.Empty(t, svc.SessionID())
}

func TestSignupValidatesBeforeRequest(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t)

	res, err := svc.Signup(context.Background(), model.SignupRequest{
		Username: "new", Email: "new@acme.io", Password: "x", Role: model.RoleCEO,
	})
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "organizationName", res.Field)
	assert.False(t, res.Success)

	_, err = svc.Signup(context.Background(), model.SignupRequest{
		Username: "new", Email: "new@acme.io", Password: "x", Role: model.RoleEmployee, OrganizationName: "Acme",
	})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "organizationId", fe.Field)

	assert.Equal(t, 0, f.srv.Calls("POST /api/signup"))
}

func TestSignupSuccessDoesNotAuthenticate(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t)

	res, err := svc.Signup(context.Background(), model.SignupRequest{
		Username: "bob", Email: "bob@acme.io", Password: "x", Role: model.RoleEmployee, OrganizationID: f.org.ID,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "User registered successfully", res.Message)
	assert.Equal(t, Anonymous, svc.State())

	last, ok := svc.LastSignup()
	require.True(t, ok)
	assert.Equal(t, res, last)
}

func TestSignupDuplicateKeyMessage(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t)

	res, err := svc.Signup(context.Background(), model.SignupRequest{
		Username: "boss", Email: "boss@acme.io", Password: "x", Role: model.RoleCEO, OrganizationName: "Other",
	})
	require.Error(t, err)
	assert.Equal(t, DuplicateKeyMessage, res.Message)
	assert.False(t, res.Success)
}

func TestSignupUnknownOrganization(t *testing.T) {
	f := newFixture(t)
	res, err := f.service(t).Signup(context.Background(), model.SignupRequest{
		Username: "eve", Email: "eve@acme.io", Password: "x", Role: model.RoleEmployee, OrganizationID: "org-404",
	})
	require.Error(t, err)
	assert.Equal(t, "Organization not found", res.Message)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service(t)

	res, err := svc.Login(ctx, "boss@acme.io", "secret")
	require.NoError(t, err)

	assert.Equal(t, "/login", svc.Logout(ctx))
	assert.Equal(t, Anonymous, svc.State())
	assert.Empty(t, svc.Token())
	_, err = f.store.Load(ctx, res.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, 1, f.srv.Calls("POST /api/logout"))
}

func TestLogoutSurvivesAPIFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service(t)
	_, err := svc.Login(ctx, "boss@acme.io", "secret")
	require.NoError(t, err)

	f.srv.FailNext("POST /api/logout", 500, "")
	assert.Equal(t, "/login", svc.Logout(ctx))
	assert.Equal(t, Anonymous, svc.State())
}

func TestRestoreRehydratesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.service(t)
	res, err := first.Login(ctx, "ann@acme.io", "pw")
	require.NoError(t, err)

	second := f.service(t)
	require.NoError(t, second.Restore(ctx, res.SessionID))
	assert.Equal(t, Authenticated, second.State())
	u, ok := second.User()
	require.True(t, ok)
	assert.Equal(t, res.User.ID, u.ID)
	assert.Equal(t, res.Token, second.Token())
}

func TestRestoreMissingSession(t *testing.T) {
	f := newFixture(t)
	err := f.service(t).Restore(context.Background(), "nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRestoreDropsExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	sess := session.New(model.User{ID: "u-1"}, tok, time.Hour)
	require.NoError(t, f.store.Save(ctx, sess))

	svc := f.service(t)
	err = svc.Restore(ctx, sess.ID)
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.Equal(t, Anonymous, svc.State())
	_, err = f.store.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestExpiredFollowsTTL(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t)
	now := time.Now()
	assert.True(t, svc.Expired(now))

	_, err := svc.Login(context.Background(), "ann@acme.io", "pw")
	require.NoError(t, err)
	assert.False(t, svc.Expired(now))
	assert.True(t, svc.Expired(now.Add(2*time.Hour)))
}

func TestSyncUserPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service(t)

	assert.ErrorIs(t, svc.SyncUser(ctx, model.User{ID: "x"}), ErrNotAuthenticated)

	res, err := svc.Login(ctx, "ann@acme.io", "pw")
	require.NoError(t, err)
	u := res.User
	u.TasksCompleted = 3
	require.NoError(t, svc.SyncUser(ctx, u))

	persisted, err := f.store.Load(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, persisted.User.TasksCompleted)
}

func TestListOrganizations(t *testing.T) {
	f := newFixture(t)
	orgs, err := f.service(t).ListOrganizations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Organization{f.org}, orgs)
}
