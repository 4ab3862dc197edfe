// Package task defines the task data model shared by the cache, the remote
// store, and the CLI.
//
// Tasks carry one of two identifier namespaces: a temporary identifier minted
// locally at optimistic-creation time, and a durable identifier assigned by
// the remote store on successful insert. Exactly one is active at a time; a
// task is temporary if and only if its ID carries the temp prefix, and such a
// task has never been persisted remotely.
package task

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency bucket of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

const (
	// MaxTitleLen is the maximum title length after trimming.
	MaxTitleLen = 200
	// MaxDescriptionLen is the maximum description length.
	MaxDescriptionLen = 1000
)

// Subtask is a checklist entry nested inside a task.
type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Attachment is a file reference attached to a task.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Comment is a free-text note left on a task.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is the central entity. Fields mirror the remote store's row layout;
// ordered lists (assignees, subtasks, attachments, comments) keep insertion
// order, tags are an order-insignificant set stored as a slice.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    Priority     `json:"priority"`
	Status      Status       `json:"status"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Completed   bool         `json:"completed"`
	Assignees   []string     `json:"assignees,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Subtasks    []Subtask    `json:"subtasks,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Comments    []Comment    `json:"comments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Draft is the caller-supplied input for creating a task. Zero-valued
// optional fields are filled by SetDefaults on the constructed Task.
type Draft struct {
	Title       string
	Description string
	Priority    Priority
	Status      Status
	DueDate     *time.Time
	Assignees   []string
	Tags        []string
	Subtasks    []Subtask
}

// Patch is a partial update. Nil pointer fields are left untouched; non-nil
// fields overwrite. Slice fields replace wholesale when non-nil.
type Patch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Status      *Status
	DueDate     **time.Time
	Completed   *bool
	Assignees   []string
	Tags        []string
	Subtasks    []Subtask
	Attachments []Attachment
	Comments    []Comment
}

// Validate checks field constraints. It does not check the identifier
// namespace; both temporary and durable IDs are acceptable.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if len(title) > MaxTitleLen {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLen, len(title))
	}
	if len(t.Description) > MaxDescriptionLen {
		return fmt.Errorf("description must be %d characters or less (got %d)", MaxDescriptionLen, len(t.Description))
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
}

// Normalize trims the title and keeps the completed flag mirrored with
// status=done.
func (t *Task) Normalize() {
	t.Title = strings.TrimSpace(t.Title)
	t.Completed = t.Status == StatusDone
}

// FromDraft constructs an optimistic task from a draft with a fresh
// temporary identifier and current timestamps. The result is validated by
// the caller.
func FromDraft(d Draft) Task {
	now := time.Now()
	t := Task{
		ID:          NewTempID(),
		Title:       d.Title,
		Description: d.Description,
		Priority:    d.Priority,
		Status:      d.Status,
		DueDate:     d.DueDate,
		Assignees:   d.Assignees,
		Tags:        d.Tags,
		Subtasks:    d.Subtasks,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.SetDefaults()
	t.Normalize()
	return t
}

// Apply merges a patch into a copy of t, setting UpdatedAt to now.
func (t Task) Apply(p Patch) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.DueDate != nil {
		out.DueDate = *p.DueDate
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
	}
	if p.Assignees != nil {
		out.Assignees = append([]string(nil), p.Assignees...)
	}
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.Subtasks != nil {
		out.Subtasks = append([]Subtask(nil), p.Subtasks...)
	}
	if p.Attachments != nil {
		out.Attachments = append([]Attachment(nil), p.Attachments...)
	}
	if p.Comments != nil {
		out.Comments = append([]Comment(nil), p.Comments...)
	}
	if p.Status != nil && p.Completed == nil {
		out.Completed = out.Status == StatusDone
	}
	out.UpdatedAt = time.Now()
	return out
}

// Clone returns a deep copy. Snapshots handed out by the cache must not
// alias cache-internal state.
func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		due := *t.DueDate
		out.DueDate = &due
	}
	if t.Assignees != nil {
		out.Assignees = append([]string(nil), t.Assignees...)
	}
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	if t.Subtasks != nil {
		out.Subtasks = append([]Subtask(nil), t.Subtasks...)
	}
	if t.Attachments != nil {
		out.Attachments = append([]Attachment(nil), t.Attachments...)
	}
	if t.Comments != nil {
		out.Comments = append([]Comment(nil), t.Comments...)
	}
	return out
}

// CloneAll deep-copies a task list.
func CloneAll(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
