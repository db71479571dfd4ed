package apiclient

import (
	"context"
	"net/http"

	"taskhub/internal/model"
)

type LoginResponse struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

type SignupResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login handles POST /api/login. On success the returned token is mirrored
// onto the client; the API also sets its session cookie in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := map[string]string{"email": email, "password": password}

	var resp LoginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/api/login", req, &resp, "Login failed"); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Signup handles POST /api/signup. It does not authenticate the client.
func (c *Client) Signup(ctx context.Context, req model.SignupRequest) (*SignupResponse, error) {
	var resp SignupResponse
	if err := c.do(ctx, "signup", http.MethodPost, "/api/signup", req, &resp, "Signup failed"); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout handles POST /api/logout.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/logout", nil, nil, "Logout failed")
}

// Organizations handles GET /api/organizations/allOrganizations.
func (c *Client) Organizations(ctx context.Context) ([]model.Organization, error) {
	var resp struct {
		Organizations []model.Organization `json:"organizations"`
	}
	if err := c.do(ctx, "organizations", http.MethodGet, "/api/organizations/allOrganizations", nil, &resp, "Failed to fetch organizations"); err != nil {
		return nil, err
	}
	return resp.Organizations, nil
}
