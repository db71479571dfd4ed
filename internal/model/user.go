package model

import "time"

type Role string

const (
	RoleCEO      Role = "ceo"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	return r == RoleCEO || r == RoleEmployee
}

// DashboardPath is where a freshly logged-in user lands.
func (r Role) DashboardPath() string {
	if r == RoleCEO {
		return "/dashboard/ceo"
	}
	return "/dashboard/employee"
}

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
	UserOnLeave  UserStatus = "onleave"
)

type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	Role              Role       `json:"role"`
	OrganizationID    string     `json:"organizationId"`
	OrganizationName  string     `json:"organizationName"`
	Phone             string     `json:"phone,omitempty"`
	Location          string     `json:"location,omitempty"`
	Position          string     `json:"position,omitempty"`
	Department        string     `json:"department,omitempty"`
	Bio               string     `json:"bio,omitempty"`
	Avatar            string     `json:"avatar,omitempty"`
	Status            UserStatus `json:"status,omitempty"`
	TasksAssigned     int        `json:"tasksAssigned"`
	TasksCompleted    int        `json:"tasksCompleted"`
	PerformanceRating float64    `json:"performanceRating"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are not sent.
type ProfileUpdate struct {
	Username   *string     `json:"username,omitempty"`
	Phone      *string     `json:"phone,omitempty"`
	Location   *string     `json:"location,omitempty"`
	Position   *string     `json:"position,omitempty"`
	Department *string     `json:"department,omitempty"`
	Bio        *string     `json:"bio,omitempty"`
	Avatar     *string     `json:"avatar,omitempty"`
	Status     *UserStatus `json:"status,omitempty"`
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"-"`
}

// TaskCounts are the two profile counters derived from the task list.
type TaskCounts struct {
	TasksAssigned  int `json:"tasksAssigned"`
	TasksCompleted int `json:"tasksCompleted"`
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SignupRequest is role-conditional: a CEO names a new organization, an
// employee joins an existing one by id.
type SignupRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	Role             Role   `json:"role"`
	OrganizationName string `json:"organizationName,omitempty"`
	OrganizationID   string `json:"organizationId,omitempty"`
}
