package model

import (
	"errors"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Status string

const (
	StatusNotStarted    Status = "Not Started"
	StatusInProgress    Status = "In Progress"
	StatusPendingReview Status = "Pending Review"
	StatusOverdue       Status = "Overdue"
	StatusCompleted     Status = "Completed"
)

// Statuses lists every task status in workflow order.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusPendingReview, StatusOverdue, StatusCompleted}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

type Frequency string

const (
	FrequencyNone    Frequency = ""
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Assignee is the {id, name, avatar} copy taken when a task is assigned.
// It is not refreshed when the user record changes later.
type Assignee struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// SnapshotOf copies the assignee fields out of a user.
func SnapshotOf(u User) Assignee {
	return Assignee{ID: u.ID, Name: u.Username, Avatar: u.Avatar}
}

type Task struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	AssignedBy         string     `json:"assignedBy"`
	AssignedTo         []Assignee `json:"assignedTo"`
	StartDate          *time.Time `json:"startDate,omitempty"`
	DueDate            *time.Time `json:"dueDate,omitempty"`
	Priority           Priority   `json:"priority"`
	Status             Status     `json:"status"`
	Category           string     `json:"category"`
	Progress           int        `json:"progress"`
	Tags               []string   `json:"tags"`
	Attachments        []string   `json:"attachments"`
	NotifyAssignees    bool       `json:"notifyAssignees"`
	Recurring          bool       `json:"recurring"`
	RecurringFrequency Frequency  `json:"recurringFrequency"`
	OrganizationID     string     `json:"organizationId"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// IsAssignedTo reports whether userID appears in the assignee snapshot.
func (t Task) IsAssignedTo(userID string) bool {
	if userID == "" {
		return false
	}
	for _, a := range t.AssignedTo {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// IsOverdue is true for tasks explicitly marked Overdue, or past their due
// date while still open.
func (t Task) IsOverdue(now time.Time) bool {
	if t.Status == StatusOverdue {
		return true
	}
	if t.Status == StatusCompleted || t.DueDate == nil {
		return false
	}
	return t.DueDate.Before(now)
}

// Attachment is a file to upload with a new task. It is sent inline as a data URI.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewTask is the create payload.
type NewTask struct {
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	AssignedTo         []Assignee   `json:"assignedTo"`
	StartDate          *time.Time   `json:"startDate,omitempty"`
	DueDate            *time.Time   `json:"dueDate,omitempty"`
	Priority           Priority     `json:"priority"`
	Status             Status       `json:"status"`
	Category           string       `json:"category"`
	Progress           int          `json:"progress"`
	Tags               []string     `json:"tags"`
	Attachments        []Attachment `json:"-"`
	NotifyAssignees    bool         `json:"notifyAssignees"`
	Recurring          bool         `json:"recurring"`
	RecurringFrequency Frequency    `json:"recurringFrequency"`
}

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")
	ErrInvalidFreq     = errors.New("invalid recurring frequency")
)

// Normalize applies defaults and validates the payload.
func (n *NewTask) Normalize() error {
	if n.Title == "" {
		return ErrTitleRequired
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if n.Status == "" {
		n.Status = StatusNotStarted
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.AssignedTo == nil {
		n.AssignedTo = []Assignee{}
	}
	if !n.Recurring {
		n.RecurringFrequency = FrequencyNone
	}
	if !n.Priority.Valid() {
		return ErrInvalidPriority
	}
	if !n.Status.Valid() {
		return ErrInvalidStatus
	}
	if n.Progress < 0 || n.Progress > 100 {
		return ErrInvalidProgress
	}
	if !n.RecurringFrequency.Valid() {
		return ErrInvalidFreq
	}
	return nil
}

// TaskPatch is a partial update. Nil fields are left out of the request body.
type TaskPatch struct {
	Title              *string     `json:"title,omitempty"`
	Description        *string     `json:"description,omitempty"`
	AssignedTo         *[]Assignee `json:"assignedTo,omitempty"`
	StartDate          *time.Time  `json:"startDate,omitempty"`
	DueDate            *time.Time  `json:"dueDate,omitempty"`
	Priority           *Priority   `json:"priority,omitempty"`
	Status             *Status     `json:"status,omitempty"`
	Category           *string     `json:"category,omitempty"`
	Progress           *int        `json:"progress,omitempty"`
	Tags               *[]string   `json:"tags,omitempty"`
	NotifyAssignees    *bool       `json:"notifyAssignees,omitempty"`
	Recurring          *bool       `json:"recurring,omitempty"`
	RecurringFrequency *Frequency  `json:"recurringFrequency,omitempty"`
}

// Fields returns the JSON names of the fields set on the patch.
func (p TaskPatch) Fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Description != nil, "description")
	add(p.AssignedTo != nil, "assignedTo")
	add(p.StartDate != nil, "startDate")
	add(p.DueDate != nil, "dueDate")
	add(p.Priority != nil, "priority")
	add(p.Status != nil, "status")
	add(p.Category != nil, "category")
	add(p.Progress != nil, "progress")
	add(p.Tags != nil, "tags")
	add(p.NotifyAssignees != nil, "notifyAssignees")
	add(p.Recurring != nil, "recurring")
	add(p.RecurringFrequency != nil, "recurringFrequency")
	return fields
}

// Validate checks enum and range fields that are set.
func (p TaskPatch) Validate() error {
	if p.Title != nil && *p.Title == "" {
		return ErrTitleRequired
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ErrInvalidPriority
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return ErrInvalidProgress
	}
	if p.RecurringFrequency != nil && !p.RecurringFrequency.Valid() {
		return ErrInvalidFreq
	}
	return nil
}

// SetsCompleted reports whether the patch sets the status to Completed.
func (p TaskPatch) SetsCompleted() bool {
	return p.Status != nil && *p.Status == StatusCompleted
}

// Reopens reports whether the patch moves a completed task back to an open status.
func (p TaskPatch) Reopens(before Task) bool {
	return p.Status != nil && *p.Status != StatusCompleted && before.Status == StatusCompleted
}
