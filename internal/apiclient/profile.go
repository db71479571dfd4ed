package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"taskhub/internal/model"
)

type userResponse struct {
	User model.User `json:"user"`
}

// Profile handles GET /api/profile.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var resp userResponse
	if err := c.do(ctx, "profile", http.MethodGet, "/api/profile", nil, &resp, "Failed to fetch profile"); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// UpdateProfile handles PATCH /api/profile. fields is any JSON object of
// profile fields, e.g. model.ProfileUpdate or model.TaskCounts.
func (c *Client) UpdateProfile(ctx context.Context, fields any) (*model.User, error) {
	var resp userResponse
	if err := c.do(ctx, "profile_update", http.MethodPatch, "/api/profile", fields, &resp, "Failed to update profile"); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// ChangePassword handles PATCH /api/change-password.
func (c *Client) ChangePassword(ctx context.Context, req model.PasswordChange) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, "change_password", http.MethodPatch, "/api/change-password", req, &resp, "Failed to change password"); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// OrganizationUsers handles GET /api/organizations/{orgId}/users.
func (c *Client) OrganizationUsers(ctx context.Context, orgID string) ([]model.User, error) {
	var resp struct {
		Users []model.User `json:"users"`
	}
	path := "/api/organizations/" + url.PathEscape(orgID) + "/users"
	if err := c.do(ctx, "organization_users", http.MethodGet, path, nil, &resp, "Failed to fetch users"); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// InviteEmployee handles POST /api/organizations/invite.
func (c *Client) InviteEmployee(ctx context.Context, email string) (string, error) {
	var resp messageResponse
	req := map[string]string{"email": email}
	if err := c.do(ctx, "invite", http.MethodPost, "/api/organizations/invite", req, &resp, "Failed to send invitation"); err != nil {
		return "", err
	}
	return resp.Message, nil
}
