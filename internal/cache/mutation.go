package cache

import (
	"context"

	"github.com/bleue/bleue-tui/internal/gateway"
)

// Mutation is a change applied locally before the gateway confirms it.
type Mutation interface {
	// Check is called against the last confirmed value before the
	// mutation starts. A queued mutation is re-checked when its turn
	// comes, since the value it was requested against may have moved.
	Check(confirmed gateway.Issue) error
	// Apply returns the optimistic value. visible is false when the
	// entry should be hidden until the gateway answers.
	Apply(current gateway.Issue) (next gateway.Issue, visible bool)
	// Commit performs the remote call. A zero Issue with a nil error
	// means the entry no longer exists.
	Commit(ctx context.Context, gw gateway.Gateway, confirmed gateway.Issue) (gateway.Issue, error)
}

// StatusChange moves an issue to a new status. The remote update is
// conditional on the confirmed status.
type StatusChange struct {
	To gateway.Status
	// Allowed, when set, vets the transition from the confirmed status.
	Allowed func(from, to gateway.Status) error
}

func (m StatusChange) Check(confirmed gateway.Issue) error {
	if m.Allowed == nil {
		return nil
	}
	return m.Allowed(confirmed.Status, m.To)
}

func (m StatusChange) Apply(current gateway.Issue) (gateway.Issue, bool) {
	current.Status = m.To
	return current, true
}

func (m StatusChange) Commit(ctx context.Context, gw gateway.Gateway, confirmed gateway.Issue) (gateway.Issue, error) {
	return gw.UpdateStatus(ctx, confirmed.ID, confirmed.Status, m.To)
}

// DescriptionEdit replaces the description.
type DescriptionEdit struct {
	Description string
}

func (m DescriptionEdit) Check(gateway.Issue) error {
	_, err := gateway.NormalizeDescription(m.Description)
	return err
}

func (m DescriptionEdit) Apply(current gateway.Issue) (gateway.Issue, bool) {
	if d, err := gateway.NormalizeDescription(m.Description); err == nil {
		current.Description = d
	}
	return current, true
}

func (m DescriptionEdit) Commit(ctx context.Context, gw gateway.Gateway, confirmed gateway.Issue) (gateway.Issue, error) {
	return gw.UpdateDescription(ctx, confirmed.ID, m.Description)
}

// Deletion hides the entry until the gateway confirms, then drops it
// together with its comments.
type Deletion struct {
	Allowed func(gateway.Issue) error
}

func (m Deletion) Check(confirmed gateway.Issue) error {
	if m.Allowed == nil {
		return nil
	}
	return m.Allowed(confirmed)
}

func (Deletion) Apply(current gateway.Issue) (gateway.Issue, bool) {
	return current, false
}

func (Deletion) Commit(ctx context.Context, gw gateway.Gateway, confirmed gateway.Issue) (gateway.Issue, error) {
	return gateway.Issue{}, gw.DeleteIssue(ctx, confirmed.ID)
}

// Assignment sets the worker, or clears it when Worker is empty.
type Assignment struct {
	Worker string
	// Allowed, when set, vets the confirmed issue. The gateway enforces
	// the same rule remotely.
	Allowed func(gateway.Issue) error
}

func (m Assignment) Check(confirmed gateway.Issue) error {
	if err := gateway.CheckWorker(m.Worker); err != nil {
		return err
	}
	if m.Allowed == nil {
		return nil
	}
	return m.Allowed(confirmed)
}

func (m Assignment) Apply(current gateway.Issue) (gateway.Issue, bool) {
	current.AssignedTo = m.Worker
	return current, true
}

func (m Assignment) Commit(ctx context.Context, gw gateway.Gateway, confirmed gateway.Issue) (gateway.Issue, error) {
	return gw.UpdateAssignment(ctx, confirmed.ID, m.Worker)
}

// WorkflowChange sets the workflow.
type WorkflowChange struct {
	Workflow gateway.Workflow
	Allowed  func(gateway.Issue) error
}

func (m WorkflowChange) Check(confirmed gateway.Issue) error {
	if err := gateway.CheckWorkflow(m.Workflow); err != nil {
		return err
	}
	if m.Allowed == nil {
		return nil
	}
	return m.Allowed(confirmed)
}

func (m WorkflowChange) Apply(current gateway.Issue) (gateway.Issue, bool) {
	current.Workflow = m.Workflow
	return current, true
}

func (m WorkflowChange) Commit(ctx context.Context, gw gateway.Gateway, confirmed gateway.Issue) (gateway.Issue, error) {
	return gw.UpdateWorkflow(ctx, confirmed.ID, m.Workflow)
}
