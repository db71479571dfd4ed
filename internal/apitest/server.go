// Package apitest is an in-memory stand-in for the external task API, used by
// tests of every package that talks to it.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"taskhub/internal/model"
)

const cookieName = "token"

type failure struct {
	status int
	msg    string
}

type Server struct {
	*httptest.Server

	// Hook runs before every request is handled, outside the lock.
	Hook func(r *http.Request)

	mu        sync.Mutex
	users     map[string]*model.User
	passwords map[string]string // email -> password
	orgs      []model.Organization
	tasks     []*model.Task
	tokens    map[string]string // token -> user id
	calls     map[string]int
	fail      map[string]failure
	seq       int
	now       time.Time
}

func NewServer() *Server {
	s := &Server{
		users:     make(map[string]*model.User),
		passwords: make(map[string]string),
		tokens:    make(map[string]string),
		calls:     make(map[string]int),
		fail:      make(map[string]failure),
		now:       time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", s.login)
	mux.HandleFunc("POST /api/signup", s.signup)
	mux.HandleFunc("POST /api/logout", s.logout)
	mux.HandleFunc("GET /api/profile", s.authed(s.getProfile))
	mux.HandleFunc("PATCH /api/profile", s.authed(s.patchProfile))
	mux.HandleFunc("PATCH /api/change-password", s.authed(s.changePassword))
	mux.HandleFunc("GET /api/organizations/allOrganizations", s.listOrganizations)
	mux.HandleFunc("GET /api/organizations/{id}/users", s.authed(s.organizationUsers))
	mux.HandleFunc("POST /api/organizations/invite", s.authed(s.invite))
	mux.HandleFunc("GET /api/tasks", s.authed(s.listTasks))
	mux.HandleFunc("POST /api/tasks", s.authed(s.createTask))
	mux.HandleFunc("PATCH /api/tasks/{id}", s.authed(s.updateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", s.authed(s.deleteTask))

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Hook != nil {
			s.Hook(r)
		}
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls[key]++
		f, failing := s.fail[key]
		delete(s.fail, key)
		s.mu.Unlock()

		if failing {
			if f.msg == "" {
				w.WriteHeader(f.status)
				return
			}
			writeJSON(w, f.status, map[string]string{"error": f.msg})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return s
}

// AddOrganization registers an organization and returns it.
func (s *Server) AddOrganization(name string) model.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addOrganizationLocked(name)
}

func (s *Server) addOrganizationLocked(name string) model.Organization {
	s.seq++
	org := model.Organization{ID: fmt.Sprintf("org-%d", s.seq), Name: name}
	s.orgs = append(s.orgs, org)
	return org
}

// AddUser stores u (assigning an id when empty) with the given password.
func (s *Server) AddUser(u model.User, password string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		s.seq++
		u.ID = fmt.Sprintf("u-%d", s.seq)
	}
	if u.Status == "" {
		u.Status = model.UserActive
	}
	cp := u
	s.users[u.ID] = &cp
	s.passwords[u.Email] = password
	return u
}

// AddTask stores t (assigning an id when empty).
func (s *Server) AddTask(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		s.seq++
		t.ID = fmt.Sprintf("T-%d", s.seq)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now
		t.UpdatedAt = s.now
	}
	cp := t
	s.tasks = append(s.tasks, &cp)
	return t
}

// Task returns the stored task with id.
func (s *Server) Task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return *t, true
		}
	}
	return model.Task{}, false
}

// Tasks returns a copy of every stored task.
func (s *Server) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// User returns the stored user with id.
func (s *Server) User(id string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, false
	}
	return *u, true
}

// Calls returns how often "METHOD /path" was requested.
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// ResetCalls zeroes every call counter.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

// FailNext makes the next "METHOD /path" request answer status with
// {"error": msg}. An empty msg sends no body.
func (s *Server) FailNext(key string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[key] = failure{status: status, msg: msg}
}

func (s *Server) authed(next func(w http.ResponseWriter, r *http.Request, u *model.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else if c, err := r.Cookie(cookieName); err == nil {
			token = c.Value
		}

		s.mu.Lock()
		id, ok := s.tokens[token]
		var u *model.User
		if ok {
			u = s.users[id]
		}
		s.mu.Unlock()

		if u == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
			return
		}
		next(w, r, u)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pw, ok := s.passwords[req.Email]; !ok || pw != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}
	var user *model.User
	for _, u := range s.users {
		if u.Email == req.Email {
			user = u
		}
	}
	s.seq++
	token := fmt.Sprintf("tok-%d", s.seq)
	s.tokens[token] = user.ID

	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: token, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.passwords[req.Email]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": `E11000 duplicate key error collection: app.users index: email_1 dup key: { email: "` + req.Email + `" }`,
		})
		return
	}

	u := model.User{Username: req.Username, Email: req.Email, Role: req.Role, Status: model.UserActive}
	switch req.Role {
	case model.RoleCEO:
		org := s.addOrganizationLocked(req.OrganizationName)
		u.OrganizationID, u.OrganizationName = org.ID, org.Name
	case model.RoleEmployee:
		found := false
		for _, o := range s.orgs {
			if o.ID == req.OrganizationID {
				u.OrganizationID, u.OrganizationName = o.ID, o.Name
				found = true
			}
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Organization not found"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid role"})
		return
	}

	s.seq++
	u.ID = fmt.Sprintf("u-%d", s.seq)
	s.users[u.ID] = &u
	s.passwords[u.Email] = req.Password
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully", "user": u})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if c, err := r.Cookie(cookieName); err == nil {
		delete(s.tokens, c.Value)
	}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request, u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) patchProfile(w http.ResponseWriter, r *http.Request, u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := json.NewDecoder(r.Body).Decode(u); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	u.UpdatedAt = s.now
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request, u *model.User) {
	var req model.PasswordChange
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.passwords[u.Email] != req.CurrentPassword {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Current password is incorrect"})
		return
	}
	s.passwords[u.Email] = req.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"organizations": s.orgs})
}

func (s *Server) organizationUsers(w http.ResponseWriter, r *http.Request, u *model.User) {
	orgID := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	users := []model.User{}
	for _, other := range s.users {
		if other.OrganizationID == orgID {
			users = append(users, *other)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) invite(w http.ResponseWriter, r *http.Request, u *model.User) {
	if u.Role != model.RoleCEO {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Only a CEO can invite employees"})
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Invitation sent to " + req.Email})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, u *model.User) {
	orgID := r.URL.Query().Get("organizationId")
	if orgID == "" {
		orgID = u.OrganizationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := []model.Task{}
	for _, t := range s.tasks {
		if t.OrganizationID == orgID {
			tasks = append(tasks, *t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request, u *model.User) {
	var t model.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if t.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Title is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t.ID = fmt.Sprintf("T-%d", s.seq)
	if t.OrganizationID == "" {
		t.OrganizationID = u.OrganizationID
	}
	t.CreatedAt, t.UpdatedAt = s.now, s.now
	cp := t
	s.tasks = append(s.tasks, &cp)
	writeJSON(w, http.StatusCreated, map[string]any{"task": t})
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request, u *model.User) {
	id := r.PathValue("id")

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.ID != id {
			continue
		}
		if len(patch) > 0 {
			current, _ := json.Marshal(t)
			var merged map[string]json.RawMessage
			_ = json.Unmarshal(current, &merged)
			for k, v := range patch {
				merged[k] = v
			}
			b, _ := json.Marshal(merged)
			var updated model.Task
			if err := json.Unmarshal(b, &updated); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid field value"})
				return
			}
			updated.ID = t.ID
			s.now = s.now.Add(time.Minute)
			updated.UpdatedAt = s.now
			*t = updated
		}
		writeJSON(w, http.StatusOK, map[string]any{"task": t})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request, u *model.User) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
