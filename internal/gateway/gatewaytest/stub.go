// Package gatewaytest provides an in-memory gateway.Gateway for tests.
// Calls are recorded, individual methods can be blocked to simulate a
// slow network, and one-shot failures can be injected.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bleue/bleue-tui/internal/gateway"
)

// Method names accepted by Block, Fail and Count.
const (
	ListIssues        = "ListIssues"
	GetIssue          = "GetIssue"
	CreateIssue       = "CreateIssue"
	DeleteIssue       = "DeleteIssue"
	UpdateStatus      = "UpdateStatus"
	UpdateDescription = "UpdateDescription"
	UpdateAssignment  = "UpdateAssignment"
	UpdateWorkflow    = "UpdateWorkflow"
	CreateComment     = "CreateComment"
)

// Call is one recorded gateway invocation.
type Call struct {
	Method string
	ID     int64
}

// Epoch is the creation time of the issue with id 0. Issue n is created
// n minutes later.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Stub is a thread-safe fake backend.
type Stub struct {
	mu       sync.Mutex
	issues   map[int64]gateway.Issue
	comments map[int64][]gateway.Comment
	nextID   int64
	nextCID  int64
	calls    []Call
	gates    map[string]chan struct{}
	failures map[string][]error
}

// New returns a stub seeded with issues. Their CreatedAt is derived from
// their id when zero.
func New(issues ...gateway.Issue) *Stub {
	s := &Stub{
		issues:   make(map[int64]gateway.Issue),
		comments: make(map[int64][]gateway.Comment),
		gates:    make(map[string]chan struct{}),
		failures: make(map[string][]error),
		nextID:   1,
		nextCID:  1,
	}
	for _, is := range issues {
		s.Put(is)
	}
	return s
}

// Put inserts or replaces an issue server-side without recording a call.
func (s *Stub) Put(issue gateway.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = Epoch.Add(time.Duration(issue.ID) * time.Minute)
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = issue.CreatedAt
	}
	if issue.Status == "" {
		issue.Status = gateway.StatusPending
	}
	s.issues[issue.ID] = issue
	if issue.ID >= s.nextID {
		s.nextID = issue.ID + 1
	}
}

// Remove deletes an issue server-side without recording a call.
func (s *Stub) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issues, id)
	delete(s.comments, id)
}

// AddComment stores a comment server-side without recording a call.
func (s *Stub) AddComment(issueID int64, body string) gateway.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCommentLocked(issueID, body)
}

func (s *Stub) addCommentLocked(issueID int64, body string) gateway.Comment {
	c := gateway.Comment{
		ID:        s.nextCID,
		IssueID:   issueID,
		Body:      body,
		Source:    "tui",
		CreatedAt: Epoch.Add(time.Duration(s.nextCID) * time.Hour),
	}
	s.nextCID++
	s.comments[issueID] = append([]gateway.Comment{c}, s.comments[issueID]...)
	return c
}

// Block makes every later call of method wait until release is called.
// Reads compute their answer before waiting, so a blocked read delivers
// the state as of its call. A blocked call ignores its context so that a
// response can arrive after the caller gave up.
func (s *Stub) Block(method string) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gates[method] = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[method] == gate {
				delete(s.gates, method)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Fail makes the next call of method return err.
func (s *Stub) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], err)
}

// Calls returns a copy of the recorded calls.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many times method was called.
func (s *Stub) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// record logs the call and returns the gate to wait on, if the method
// is blocked, and any failure queued for it.
func (s *Stub) record(method string, id int64) (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, ID: id})
	var err error
	if q := s.failures[method]; len(q) > 0 {
		s.failures[method] = q[1:]
		err = q[0]
	}
	return s.gates[method], err
}

func wait(gate chan struct{}) {
	if gate != nil {
		<-gate
	}
}

// enter is used by mutations: the change is applied once the gate opens.
func (s *Stub) enter(method string, id int64) error {
	gate, err := s.record(method, id)
	wait(gate)
	return err
}

// ListIssues answers with the state at call time, delivered once any
// gate opens.
func (s *Stub) ListIssues(ctx context.Context) ([]gateway.Issue, error) {
	gate, err := s.record(ListIssues, 0)
	s.mu.Lock()
	issues := make([]gateway.Issue, 0, len(s.issues))
	for _, is := range s.issues {
		issues = append(issues, is)
	}
	s.mu.Unlock()
	sortNewestFirst(issues)

	wait(gate)
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// GetIssue answers with the state at call time, delivered once any gate
// opens.
func (s *Stub) GetIssue(ctx context.Context, id int64) (gateway.Issue, []gateway.Comment, error) {
	gate, err := s.record(GetIssue, id)
	s.mu.Lock()
	issue, ok := s.issues[id]
	comments := append([]gateway.Comment{}, s.comments[id]...)
	s.mu.Unlock()

	wait(gate)
	if err != nil {
		return gateway.Issue{}, nil, err
	}
	if !ok {
		return gateway.Issue{}, nil, fmt.Errorf("get issue %d: %w", id, gateway.ErrNotFound)
	}
	return issue, comments, nil
}

func (s *Stub) CreateIssue(ctx context.Context, description, title string) (gateway.Issue, error) {
	description, err := gateway.NormalizeDescription(description)
	if err != nil {
		return gateway.Issue{}, err
	}
	title, err = gateway.NormalizeTitle(title)
	if err != nil {
		return gateway.Issue{}, err
	}
	if err := s.enter(CreateIssue, 0); err != nil {
		return gateway.Issue{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	issue := gateway.Issue{
		ID:          s.nextID,
		Title:       title,
		Description: description,
		Status:      gateway.StatusPending,
		CreatedAt:   Epoch.Add(time.Duration(s.nextID) * time.Minute),
	}
	issue.UpdatedAt = issue.CreatedAt
	s.issues[issue.ID] = issue
	s.nextID++
	return issue, nil
}

func (s *Stub) DeleteIssue(ctx context.Context, id int64) error {
	if err := s.enter(DeleteIssue, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[id]; !ok {
		return fmt.Errorf("delete issue %d: %w", id, gateway.ErrNotFound)
	}
	delete(s.issues, id)
	delete(s.comments, id)
	return nil
}

func (s *Stub) UpdateStatus(ctx context.Context, id int64, expected, next gateway.Status) (gateway.Issue, error) {
	if err := s.enter(UpdateStatus, id); err != nil {
		return gateway.Issue{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return gateway.Issue{}, fmt.Errorf("update status %d: %w", id, gateway.ErrNotFound)
	}
	if issue.Status != expected {
		return gateway.Issue{}, fmt.Errorf("update status %d: %w", id, gateway.ErrConflict)
	}
	issue.Status = next
	issue.UpdatedAt = issue.UpdatedAt.Add(time.Second)
	s.issues[id] = issue
	return issue, nil
}

func (s *Stub) UpdateDescription(ctx context.Context, id int64, description string) (gateway.Issue, error) {
	description, err := gateway.NormalizeDescription(description)
	if err != nil {
		return gateway.Issue{}, err
	}
	if err := s.enter(UpdateDescription, id); err != nil {
		return gateway.Issue{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return gateway.Issue{}, fmt.Errorf("update description %d: %w", id, gateway.ErrNotFound)
	}
	issue.Description = description
	issue.UpdatedAt = issue.UpdatedAt.Add(time.Second)
	s.issues[id] = issue
	return issue, nil
}

func (s *Stub) UpdateAssignment(ctx context.Context, id int64, worker string) (gateway.Issue, error) {
	if err := gateway.CheckWorker(worker); err != nil {
		return gateway.Issue{}, err
	}
	return s.updatePending(UpdateAssignment, id, func(is *gateway.Issue) { is.AssignedTo = worker })
}

func (s *Stub) UpdateWorkflow(ctx context.Context, id int64, workflow gateway.Workflow) (gateway.Issue, error) {
	if err := gateway.CheckWorkflow(workflow); err != nil {
		return gateway.Issue{}, err
	}
	return s.updatePending(UpdateWorkflow, id, func(is *gateway.Issue) { is.Workflow = workflow })
}

func (s *Stub) updatePending(method string, id int64, set func(*gateway.Issue)) (gateway.Issue, error) {
	if err := s.enter(method, id); err != nil {
		return gateway.Issue{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return gateway.Issue{}, fmt.Errorf("%s %d: %w", method, id, gateway.ErrNotFound)
	}
	if issue.Status != gateway.StatusPending {
		return gateway.Issue{}, fmt.Errorf("%s %d: %w", method, id, gateway.ErrConflict)
	}
	set(&issue)
	issue.UpdatedAt = issue.UpdatedAt.Add(time.Second)
	s.issues[id] = issue
	return issue, nil
}

func (s *Stub) CreateComment(ctx context.Context, issueID int64, body string) (gateway.Comment, error) {
	body, err := gateway.NormalizeComment(body)
	if err != nil {
		return gateway.Comment{}, err
	}
	if err := s.enter(CreateComment, issueID); err != nil {
		return gateway.Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issueID]; !ok {
		return gateway.Comment{}, fmt.Errorf("create comment on %d: %w", issueID, gateway.ErrNotFound)
	}
	return s.addCommentLocked(issueID, body), nil
}

func sortNewestFirst(issues []gateway.Issue) {
	sort.Slice(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

var _ gateway.Gateway = (*Stub)(nil)
