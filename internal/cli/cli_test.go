package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskhub/internal/apitest"
	"taskhub/internal/model"
	"taskhub/internal/service/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv *apitest.Server
	db  string
	org model.Organization
	ann model.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	isTerminal = func() bool { return false }

	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	org := srv.AddOrganization("Acme")
	srv.AddUser(model.User{Username: "boss", Email: "boss@acme.io", Role: model.RoleCEO, OrganizationID: org.ID, OrganizationName: org.Name}, "secret")
	ann := srv.AddUser(model.User{Username: "ann", Email: "ann@acme.io", Role: model.RoleEmployee, OrganizationID: org.ID, OrganizationName: org.Name}, "pw")

	return &harness{srv: srv, db: filepath.Join(t.TempDir(), "taskctl.db"), org: org, ann: ann}
}

// run executes one taskctl invocation with stdin set to input.
func (h *harness) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--api", h.srv.URL, "--db", h.db}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "boss@acme.io\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as boss (ceo)")

	out, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "boss <boss@acme.io> ceo @ Acme")

	out, err = h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")
	assert.Equal(t, 1, h.srv.Calls("POST /api/logout"))

	_, err = h.run(t, "", "whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLogoutAfterSecondLogin(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "secret\n", "login", "-e", "boss@acme.io")
	require.NoError(t, err)
	_, err = h.run(t, "pw\n", "login", "-e", "ann@acme.io")
	require.NoError(t, err)

	out, err := h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ann <ann@acme.io>")

	_, err = h.run(t, "", "logout")
	require.NoError(t, err)

	_, err = h.run(t, "", "whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLoginFailureStoresNothing(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "wrong\n", "login", "--email", "boss@acme.io")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())

	_, err = h.run(t, "", "whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTaskLifecycle(t *testing.T) {
	h := newHarness(t)
	note := filepath.Join(t.TempDir(), "brief.txt")
	require.NoError(t, os.WriteFile(note, []byte("hi"), 0o600))

	_, err := h.run(t, "secret\n", "login", "-e", "boss@acme.io")
	require.NoError(t, err)

	out, err := h.run(t, "", "tasks", "create", "--title", "Audit", "--assign", "ann", "--priority", "High", "--file", note)
	require.NoError(t, err)
	assert.Contains(t, out, "Created T-")

	tasks := h.srv.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"data:text/plain;base64,aGk="}, tasks[0].Attachments)
	id := tasks[0].ID

	out, err = h.run(t, "", "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Audit")
	assert.Contains(t, out, "ann")

	// switch to the employee
	_, err = h.run(t, "pw\n", "login", "-e", "ann@acme.io")
	require.NoError(t, err)

	_, err = h.run(t, "", "tasks", "update", id, "--title", "mine now")
	require.Error(t, err)

	out, err = h.run(t, "", "tasks", "update", id, "--status", "In Progress", "--progress", "40")
	require.NoError(t, err)
	assert.Contains(t, out, "In Progress, 40%")

	_, err = h.run(t, "", "tasks", "delete", id)
	require.Error(t, err)
	assert.Equal(t, "insufficient permissions", err.Error())

	out, err = h.run(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total")
	assert.NotContains(t, out, "EMPLOYEE")
}

func TestSignupValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "pw\n", "signup", "--username", "eve", "--email", "eve@acme.io", "--role", "employee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "organizationId")
	assert.Equal(t, 0, h.srv.Calls("POST /api/signup"))

	out, err := h.run(t, "pw\n", "signup", "--username", "eve", "--email", "eve@acme.io", "--org-id", h.org.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "User registered successfully")
	assert.NotContains(t, out, "..")
}

func TestSignupDuplicateShowsFriendlyMessage(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "pw\n", "signup", "--username", "ann2", "--email", "ann@acme.io", "--org-id", h.org.ID)
	require.Error(t, err)
	assert.Equal(t, auth.DuplicateKeyMessage, err.Error())
	assert.NotContains(t, err.Error(), "E11000")
}

func TestOrgs(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "", "orgs")
	require.NoError(t, err)
	assert.Contains(t, out, h.org.ID)
	assert.Contains(t, out, "Acme")
}

func TestResolveAssignees(t *testing.T) {
	roster := []model.User{{ID: "u-1", Username: "ann"}, {ID: "u-2", Username: "bob"}}
	got, err := resolveAssignees(roster, []string{"ann", "u-2"})
	require.NoError(t, err)
	assert.Equal(t, []model.Assignee{{ID: "u-1", Name: "ann"}, {ID: "u-2", Name: "bob"}}, got)

	_, err = resolveAssignees(roster, []string{"zed"})
	assert.Error(t, err)
}
