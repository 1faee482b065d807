// Package gateway is the typed boundary to the issue store. A Gateway
// performs exactly one round trip per call and keeps no local state;
// caching and reconciliation belong to the cache package.
package gateway

import (
	"context"
	"strings"
	"time"
)

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarted   Status = "started"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusStarted, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus maps a stored value to a Status. Rows written before the
// status column existed carry no value and are treated as pending.
func ParseStatus(s string) Status {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "" || !st.Valid() {
		return StatusPending
	}
	return st
}

// Workflow is the pipeline a worker runs for an issue. It is stored in
// the issue's type column.
type Workflow string

const (
	WorkflowNone  Workflow = ""
	WorkflowMain  Workflow = "main"
	WorkflowPatch Workflow = "patch"
)

// Workflows lists the selectable workflows, WorkflowNone first.
var Workflows = []Workflow{WorkflowNone, WorkflowMain, WorkflowPatch}

func (w Workflow) Valid() bool {
	switch w {
	case WorkflowNone, WorkflowMain, WorkflowPatch:
		return true
	}
	return false
}

// ParseWorkflow maps a stored value to a Workflow. Unknown values read
// as WorkflowNone.
func ParseWorkflow(s string) Workflow {
	w := Workflow(strings.ToLower(strings.TrimSpace(s)))
	if !w.Valid() {
		return WorkflowNone
	}
	return w
}

// Workers lists the worker identifiers an issue may be assigned to.
var Workers = []string{
	"alleycat-1", "alleycat-2", "alleycat-3",
	"executor-1", "executor-2", "executor-3",
	"local-1", "local-2", "local-3",
	"tydirium-1", "tydirium-2", "tydirium-3",
	"xwing-1", "xwing-2", "xwing-3",
}

// ValidWorker reports whether w is a known worker. The empty string,
// meaning unassigned, is valid.
func ValidWorker(w string) bool {
	if w == "" {
		return true
	}
	for _, known := range Workers {
		if w == known {
			return true
		}
	}
	return false
}

// Issue is a trackable unit of work.
type Issue struct {
	ID          int64
	Title       string
	Description string
	Status      Status
	// AssignedTo names the worker picking the issue up, empty when
	// unassigned.
	AssignedTo string
	Workflow   Workflow
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Summary returns the title, or the first line of the description when
// the issue has no title.
func (i Issue) Summary() string {
	if i.Title != "" {
		return i.Title
	}
	line, _, _ := strings.Cut(i.Description, "\n")
	return strings.TrimSpace(line)
}

// Comment belongs to exactly one issue and is removed with it.
type Comment struct {
	ID        int64
	IssueID   int64
	Body      string
	Source    string
	CreatedAt time.Time
}

// Gateway is the remote CRUD surface consumed by the cache.
//
// Errors are classified with the sentinels in errors.go. Cancellation of
// ctx by the caller is returned as context.Canceled, never ErrTransport.
type Gateway interface {
	// ListIssues returns every issue, newest first.
	ListIssues(ctx context.Context) ([]Issue, error)
	// GetIssue returns one issue and its comments, newest first.
	GetIssue(ctx context.Context, id int64) (Issue, []Comment, error)
	CreateIssue(ctx context.Context, description, title string) (Issue, error)
	DeleteIssue(ctx context.Context, id int64) error
	// UpdateStatus moves an issue from expected to next. If the stored
	// status is no longer expected the call fails with ErrConflict.
	UpdateStatus(ctx context.Context, id int64, expected, next Status) (Issue, error)
	UpdateDescription(ctx context.Context, id int64, description string) (Issue, error)
	// UpdateAssignment sets the worker of a pending issue; an empty
	// worker clears it. Fails with ErrConflict if the issue is no longer
	// pending.
	UpdateAssignment(ctx context.Context, id int64, worker string) (Issue, error)
	// UpdateWorkflow sets the workflow of a pending issue, with the same
	// pending-only rule as UpdateAssignment.
	UpdateWorkflow(ctx context.Context, id int64, workflow Workflow) (Issue, error)
	CreateComment(ctx context.Context, issueID int64, body string) (Comment, error)
}
