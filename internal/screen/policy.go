package screen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bleue/bleue-tui/internal/gateway"
)

var (
	// ErrInvalidTransition means the status change is not in the
	// allowed table. No gateway call is made.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrDeleteNotAllowed means the issue is not pending. No gateway
	// call is made.
	ErrDeleteNotAllowed = errors.New("only pending issues can be deleted")
	// ErrAssignNotAllowed and ErrWorkflowNotAllowed reject changes to
	// issues that have left pending. No gateway call is made.
	ErrAssignNotAllowed   = errors.New("only pending issues can be assigned")
	ErrWorkflowNotAllowed = errors.New("only pending issues can have workflow set")
)

var transitions = map[gateway.Status][]gateway.Status{
	gateway.StatusPending: {gateway.StatusStarted, gateway.StatusCancelled},
	gateway.StatusStarted: {gateway.StatusDone, gateway.StatusCancelled},
}

// NextStatuses lists the statuses an issue in from may move to.
func NextStatuses(from gateway.Status) []gateway.Status {
	return append([]gateway.Status(nil), transitions[from]...)
}

// CheckTransition fails fast on status changes outside the table.
// Terminal statuses have no outgoing transitions.
func CheckTransition(from, to gateway.Status) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
}

// CheckDelete permits deletion of pending issues only.
func CheckDelete(issue gateway.Issue) error {
	if issue.Status != gateway.StatusPending {
		return fmt.Errorf("issue #%d is %s: %w", issue.ID, issue.Status, ErrDeleteNotAllowed)
	}
	return nil
}

// CheckAssign permits worker changes on pending issues only.
func CheckAssign(issue gateway.Issue) error {
	if issue.Status != gateway.StatusPending {
		return fmt.Errorf("issue #%d is %s: %w", issue.ID, issue.Status, ErrAssignNotAllowed)
	}
	return nil
}

// CheckWorkflow permits workflow changes on pending issues only.
func CheckWorkflow(issue gateway.Issue) error {
	if issue.Status != gateway.StatusPending {
		return fmt.Errorf("issue #%d is %s: %w", issue.ID, issue.Status, ErrWorkflowNotAllowed)
	}
	return nil
}

// WorkerName is the display form of a worker id: "xwing-2" reads
// "Xwing 2" and no worker reads "None".
func WorkerName(worker string) string {
	if worker == "" {
		return "None"
	}
	return capitalize(strings.ReplaceAll(worker, "-", " "))
}

// WorkflowName is the display form of a workflow.
func WorkflowName(w gateway.Workflow) string {
	if w == gateway.WorkflowNone {
		return "None"
	}
	return capitalize(string(w))
}

// Message turns an error into the text shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gateway.ErrValidation):
		return trimClass(err, gateway.ErrValidation)
	case errors.Is(err, ErrInvalidTransition):
		return "That status change is not allowed"
	case errors.Is(err, ErrDeleteNotAllowed):
		return "Only pending issues can be deleted"
	case errors.Is(err, ErrAssignNotAllowed):
		return "Only pending issues can be assigned"
	case errors.Is(err, ErrWorkflowNotAllowed):
		return "Only pending issues can have workflow set"
	case errors.Is(err, gateway.ErrNotFound):
		return "The issue no longer exists"
	case errors.Is(err, gateway.ErrConflict):
		return "The issue was changed elsewhere; reloading it"
	case errors.Is(err, context.DeadlineExceeded):
		return "The server did not answer in time. Press r to retry"
	case errors.Is(err, gateway.ErrTransport):
		return "Could not reach the server. Press r to retry"
	}
	return err.Error()
}

// trimClass returns the detail that follows the error class in err's
// text, e.g. "description cannot be empty".
func trimClass(err error, class error) string {
	msg := err.Error()
	marker := class.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		msg = msg[i+len(marker):]
	}
	return capitalize(msg)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
