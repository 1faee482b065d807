package screen

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bleue/bleue-tui/internal/gateway"
)

func TestCheckTransition(t *testing.T) {
	statuses := []gateway.Status{gateway.StatusPending, gateway.StatusStarted, gateway.StatusDone, gateway.StatusCancelled}
	allowed := map[[2]gateway.Status]bool{
		{gateway.StatusPending, gateway.StatusStarted}:   true,
		{gateway.StatusStarted, gateway.StatusDone}:      true,
		{gateway.StatusStarted, gateway.StatusCancelled}: true,
		{gateway.StatusPending, gateway.StatusCancelled}: true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			err := CheckTransition(from, to)
			if allowed[[2]gateway.Status{from, to}] {
				if err != nil {
					t.Errorf("CheckTransition(%s, %s) = %v, want nil", from, to, err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("CheckTransition(%s, %s) = %v, want ErrInvalidTransition", from, to, err)
			}
		}
	}
}

func TestNextStatuses_TerminalHasNone(t *testing.T) {
	for _, s := range []gateway.Status{gateway.StatusDone, gateway.StatusCancelled} {
		if next := NextStatuses(s); len(next) != 0 {
			t.Errorf("NextStatuses(%s) = %v, want none", s, next)
		}
	}
}

func TestCheckDelete(t *testing.T) {
	if err := CheckDelete(gateway.Issue{ID: 1, Status: gateway.StatusPending}); err != nil {
		t.Errorf("CheckDelete(pending) = %v, want nil", err)
	}
	err := CheckDelete(gateway.Issue{ID: 7, Status: gateway.StatusStarted})
	if !errors.Is(err, ErrDeleteNotAllowed) {
		t.Errorf("CheckDelete(started) = %v, want ErrDeleteNotAllowed", err)
	}
}

func TestCheckAssignAndWorkflow_PendingOnly(t *testing.T) {
	for _, st := range []gateway.Status{gateway.StatusPending, gateway.StatusStarted, gateway.StatusDone, gateway.StatusCancelled} {
		issue := gateway.Issue{ID: 3, Status: st}
		assignErr, workflowErr := CheckAssign(issue), CheckWorkflow(issue)
		if st == gateway.StatusPending {
			if assignErr != nil || workflowErr != nil {
				t.Errorf("pending issue rejected: %v, %v", assignErr, workflowErr)
			}
			continue
		}
		if !errors.Is(assignErr, ErrAssignNotAllowed) {
			t.Errorf("CheckAssign(%s) = %v, want ErrAssignNotAllowed", st, assignErr)
		}
		if !errors.Is(workflowErr, ErrWorkflowNotAllowed) {
			t.Errorf("CheckWorkflow(%s) = %v, want ErrWorkflowNotAllowed", st, workflowErr)
		}
	}
}

func TestDisplayNames(t *testing.T) {
	tests := []struct{ got, want string }{
		{WorkerName("alleycat-1"), "Alleycat 1"},
		{WorkerName("xwing-3"), "Xwing 3"},
		{WorkerName(""), "None"},
		{WorkflowName(gateway.WorkflowMain), "Main"},
		{WorkflowName(gateway.WorkflowPatch), "Patch"},
		{WorkflowName(gateway.WorkflowNone), "None"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("create issue: %w", fmt.Errorf("%w: description cannot be empty", gateway.ErrValidation)), "Description cannot be empty"},
		{fmt.Errorf("get issue 5: %w", gateway.ErrNotFound), "The issue no longer exists"},
		{fmt.Errorf("list issues: %w: %w", gateway.ErrTransport, context.DeadlineExceeded), "The server did not answer in time. Press r to retry"},
		{fmt.Errorf("list issues: %w: %w", gateway.ErrTransport, errors.New("dial tcp")), "Could not reach the server. Press r to retry"},
		{CheckDelete(gateway.Issue{ID: 7, Status: gateway.StatusStarted}), "Only pending issues can be deleted"},
		{CheckAssign(gateway.Issue{ID: 7, Status: gateway.StatusDone}), "Only pending issues can be assigned"},
		{CheckWorkflow(gateway.Issue{ID: 7, Status: gateway.StatusCancelled}), "Only pending issues can have workflow set"},
		{errors.New("something odd"), "something odd"},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
