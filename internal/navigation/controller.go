package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bleue/bleue-tui/internal/cache"
	"github.com/bleue/bleue-tui/internal/clock"
	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/bleue/bleue-tui/internal/loop"
	"github.com/bleue/bleue-tui/internal/refresh"
	"github.com/bleue/bleue-tui/internal/screen"
)

// ErrNotAvailable is returned when an action does not apply to the
// active screen, e.g. opening an issue while the list is still loading.
var ErrNotAvailable = errors.New("action not available on this screen")

var errNotLoaded = errors.New("issue list not loaded yet")

// Snapshot is what the rendering layer draws.
type Snapshot struct {
	// Screens is the navigation stack, bottom first.
	Screens []screen.Screen
	// Paused is set while periodic refresh is suspended.
	Paused bool
}

// Top returns the active screen.
func (s Snapshot) Top() screen.Screen {
	if len(s.Screens) == 0 {
		return screen.Screen{}
	}
	return s.Screens[len(s.Screens)-1]
}

// Config wires a Controller.
type Config struct {
	Repo     *cache.Repository
	Clock    clock.Clock
	Post     loop.PostFunc
	Interval time.Duration
}

// Controller turns user actions into stack, cache and scheduler changes.
// Like the repository it is owned by the control thread.
type Controller struct {
	repo  *cache.Repository
	clock clock.Clock
	sched *refresh.Scheduler
	stack Stack

	ctx    context.Context
	cancel context.CancelFunc

	tokens      uint64
	listeners   map[int]func(Snapshot)
	nextSub     int
	unsubscribe func()
}

// NewController builds a controller with its own refresh scheduler.
func NewController(cfg Config) *Controller {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		repo:      cfg.Repo,
		clock:     clk,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func(Snapshot)),
	}
	c.sched = refresh.New(clk, cfg.Interval, cfg.Post, source{c})
	c.unsubscribe = c.repo.Subscribe(c.onCacheEvent)
	return c
}

// Scheduler returns the periodic refresh scheduler.
func (c *Controller) Scheduler() *refresh.Scheduler {
	return c.sched
}

// Subscribe registers fn to receive a snapshot after every change.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	return func() { delete(c.listeners, id) }
}

// Snapshot returns the current stack.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{Screens: c.stack.Screens(), Paused: c.sched.Suspended()}
}

func (c *Controller) publish() {
	if len(c.listeners) == 0 {
		return
	}
	snap := c.Snapshot()
	for _, fn := range c.listeners {
		fn(snap)
	}
}

// Start pushes the issue list and starts periodic refresh.
func (c *Controller) Start() {
	if c.stack.Len() > 0 {
		return
	}
	logger.Info("navigation.controller: starting")
	c.push(screen.KindList, 0)
	c.sched.Start()
}

// Close stops the scheduler and cancels every outstanding fetch.
func (c *Controller) Close() {
	c.sched.Stop()
	c.stack.Clear()
	c.cancel()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Controller) push(kind screen.Kind, id int64) *Frame {
	f := &Frame{Screen: screen.New(kind, id)}
	c.stack.Push(f)
	logger.Debug("navigation.controller: push %s id=%d depth=%d", kind, id, c.stack.Len())
	if kind.Modal() {
		c.sched.Suspend()
		if err := c.derive(f, c.clock.Now()); err != nil {
			f.Screen.Fail(err)
		}
	} else {
		c.load(f)
	}
	c.publish()
	return f
}

// pop removes the top frame. The frame below comes back as it was,
// re-derived from the cache only if the cache changed underneath it.
func (c *Controller) pop() {
	popped := c.stack.Pop()
	top := c.stack.Top()
	logger.Debug("navigation.controller: pop %s depth=%d", popped.Screen.Kind, c.stack.Len())
	if top == nil {
		return
	}
	if top.version != c.repo.Version() && top.Screen.Interactive() {
		c.rederive(top)
	}
	if !top.Screen.Kind.Modal() {
		c.sched.Resume()
	}
}

// load starts the fetch that backs f.
func (c *Controller) load(f *Frame) {
	if f.cancel != nil {
		f.cancel()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.tokens++
	tok := c.tokens
	f.cancel, f.fetch, f.awaiting = cancel, tok, false

	done := func(err error) { c.loaded(f, tok, err) }
	switch f.Screen.Kind {
	case screen.KindList:
		c.repo.RefreshList(ctx, done)
	case screen.KindDetail:
		c.repo.RefreshDetail(ctx, f.Screen.IssueID, done)
	}
}

func (c *Controller) loaded(f *Frame, tok uint64, err error) {
	if f.fetch != tok || c.stack.Top() != f {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, cache.ErrStale) {
		f.awaiting = true
		return
	}
	c.settle(f)

	if err != nil {
		logger.Warning("navigation.controller: %s fetch failed id=%d: %v", f.Screen.Kind, f.Screen.IssueID, err)
		f.Screen.Fail(err)
		if errors.Is(err, gateway.ErrNotFound) {
			c.refreshListInBackground()
		}
	} else if err := c.derive(f, c.clock.Now()); err != nil {
		f.Screen.Fail(err)
	}
	c.publish()
}

// derive sets the payload of f from the cache.
func (c *Controller) derive(f *Frame, refreshedAt time.Time) error {
	s := f.Screen
	var err error
	switch s.Kind {
	case screen.KindList:
		if !c.repo.Loaded() {
			return errNotLoaded
		}
		err = s.ShowList(c.repo.Issues(), refreshedAt)
	case screen.KindCreate:
		err = s.ShowForm()
	default:
		issue, ok := c.repo.Issue(s.IssueID)
		if !ok {
			return fmt.Errorf("issue %d: %w", s.IssueID, gateway.ErrNotFound)
		}
		var comments []gateway.Comment
		if s.Kind == screen.KindDetail || s.Kind == screen.KindComment {
			comments = c.repo.Comments(s.IssueID)
		}
		err = s.ShowIssue(issue, comments, c.repo.IsPending(s.IssueID), refreshedAt)
	}
	if err != nil {
		return err
	}
	f.version = c.repo.Version()
	return nil
}

// rederive refreshes the payload of an interactive frame from the cache,
// keeping its timestamp.
func (c *Controller) rederive(f *Frame) {
	err := c.derive(f, time.Time{})
	if errors.Is(err, gateway.ErrNotFound) {
		f.Screen.State.Pending = false
		f.Screen.Notify(screen.LevelWarning, fmt.Sprintf("Issue #%d no longer exists", f.Screen.IssueID))
		f.version = c.repo.Version()
		return
	}
	if err != nil {
		logger.ErrorWithErr(err, "navigation.controller: re-deriving %s", f.Screen.Kind)
	}
}

func (c *Controller) onCacheEvent(ev cache.Event) {
	f := c.stack.Top()
	if f == nil {
		return
	}
	switch {
	case f.Screen.Interactive():
		c.rederive(f)
	case f.awaiting && f.Screen.State.Tag == screen.TagLoading:
		err := c.derive(f, c.clock.Now())
		switch {
		case err == nil:
		case errors.Is(err, gateway.ErrNotFound) && names(ev, f.Screen.IssueID) && !c.repo.IsPending(f.Screen.IssueID):
			f.Screen.Fail(err)
		default:
			return
		}
		c.settle(f)
	default:
		return
	}
	c.publish()
}

func names(ev cache.Event, id int64) bool {
	for _, x := range ev.IDs {
		if x == id {
			return true
		}
	}
	return false
}

func (c *Controller) settle(f *Frame) {
	if f.cancel != nil {
		f.cancel()
	}
	f.awaiting = false
	f.fetch = 0
	f.cancel = nil
}

// failAwaiting moves a top screen that waits on a superseding request
// to error when that request fails.
func (c *Controller) failAwaiting(kind screen.Kind, id int64, err error) {
	f := c.stack.Top()
	if f == nil || !f.awaiting || f.Screen.State.Tag != screen.TagLoading {
		return
	}
	if f.Screen.Kind != kind || f.Screen.IssueID != id {
		return
	}
	c.settle(f)
	f.Screen.Fail(err)
	c.publish()
}

func (c *Controller) refreshListInBackground() {
	c.repo.RefreshList(c.ctx, func(err error) {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, cache.ErrStale) {
			logger.Warning("navigation.controller: background list refresh failed: %v", err)
			c.failAwaiting(screen.KindList, 0, err)
		}
	})
}

// refreshDetailInBackground refreshes one issue for the scheduler or
// after a conflict. The top screen follows through cache events.
func (c *Controller) refreshDetailInBackground(id int64, done func()) {
	c.repo.RefreshDetail(c.ctx, id, func(err error) {
		if done != nil {
			done()
		}
		top := c.stack.Top()
		switch {
		case err == nil:
			if top != nil && top.Screen.Interactive() && shows(top.Screen, id) {
				top.Screen.State.RefreshedAt = c.clock.Now()
				c.publish()
			}
		case errors.Is(err, context.Canceled), errors.Is(err, cache.ErrStale):
		case errors.Is(err, gateway.ErrNotFound):
			c.failAwaiting(screen.KindDetail, id, err)
			c.refreshListInBackground()
		default:
			logger.Warning("navigation.controller: background refresh failed id=%d: %v", id, err)
			c.failAwaiting(screen.KindDetail, id, err)
			if top != nil && top.Screen.Interactive() && shows(top.Screen, id) {
				top.Screen.Notify(screen.LevelWarning, "Background refresh failed: "+screen.Message(err))
				c.publish()
			}
		}
	})
}

func shows(s *screen.Screen, id int64) bool {
	switch s.Kind {
	case screen.KindDetail:
		return s.IssueID == id
	case screen.KindList:
		for _, is := range s.State.Issues {
			if is.ID == id {
				return true
			}
		}
	}
	return false
}

// active returns the top frame if it is interactive and of one of kinds.
func (c *Controller) active(kinds ...screen.Kind) (*Frame, error) {
	f := c.stack.Top()
	if f == nil || !f.Screen.Interactive() {
		return nil, ErrNotAvailable
	}
	for _, k := range kinds {
		if f.Screen.Kind == k {
			f.Screen.State.Notice = nil
			return f, nil
		}
	}
	return nil, ErrNotAvailable
}

func (c *Controller) reject(f *Frame, level screen.Level, err error) error {
	f.Screen.Notify(level, screen.Message(err))
	c.publish()
	return err
}

// mutationSettled reports the outcome of a mutation on whatever screen
// is active when it arrives.
func (c *Controller) mutationSettled(id int64, err error, success string) {
	top := c.stack.Top()
	if top == nil {
		return
	}
	switch {
	case err == nil:
		top.Screen.Notify(screen.LevelInfo, success)
	case errors.Is(err, gateway.ErrNotFound):
		top.Screen.Notify(screen.LevelWarning, screen.Message(err))
		c.refreshListInBackground()
	case errors.Is(err, gateway.ErrConflict):
		top.Screen.Notify(screen.LevelWarning, screen.Message(err))
		c.refreshDetailInBackground(id, nil)
	default:
		logger.Warning("navigation.controller: mutation failed id=%d: %v", id, err)
		top.Screen.Notify(screen.LevelError, screen.Message(err))
	}
	c.publish()
}

// Open pushes the detail screen of id on top of the list.
func (c *Controller) Open(id int64) error {
	if _, err := c.active(screen.KindList); err != nil {
		return err
	}
	c.push(screen.KindDetail, id)
	return nil
}

// Back pops the active screen. The root screen is never popped.
func (c *Controller) Back() bool {
	if c.stack.Len() <= 1 {
		return false
	}
	c.pop()
	c.publish()
	return true
}

// Refresh reloads the active screen. It is also how an error screen is
// retried.
func (c *Controller) Refresh() error {
	f := c.stack.Top()
	if f == nil || f.Screen.Kind.Modal() {
		return ErrNotAvailable
	}
	if err := f.Screen.Begin(); err != nil {
		return ErrNotAvailable
	}
	c.load(f)
	c.publish()
	return nil
}

// Retry reloads a screen in the error state. Screens in any other state
// are left alone.
func (c *Controller) Retry() error {
	f := c.stack.Top()
	if f == nil || f.Screen.State.Tag != screen.TagError {
		return ErrNotAvailable
	}
	logger.Info("navigation.controller: retrying %s id=%d after: %s", f.Screen.Kind, f.Screen.IssueID, f.Screen.State.Err)
	return c.Refresh()
}

// ChangeStatus moves issue id to next, optimistically. Transitions the
// policy forbids are rejected without a gateway call.
func (c *Controller) ChangeStatus(id int64, next gateway.Status) error {
	f, err := c.active(screen.KindList, screen.KindDetail)
	if err != nil {
		return err
	}
	issue, ok := c.repo.Issue(id)
	if !ok {
		return c.reject(f, screen.LevelWarning, fmt.Errorf("issue %d: %w", id, gateway.ErrNotFound))
	}
	if err := screen.CheckTransition(issue.Status, next); err != nil {
		return c.reject(f, screen.LevelWarning, err)
	}
	m := cache.StatusChange{To: next, Allowed: screen.CheckTransition}
	err = c.repo.ApplyOptimistic(id, m, func(err error) {
		c.mutationSettled(id, err, fmt.Sprintf("Issue #%d is now %s", id, next))
	})
	if err != nil {
		return c.reject(f, screen.LevelWarning, err)
	}
	return nil
}

// RequestDelete opens the delete confirmation for id. Only pending
// issues may be deleted.
func (c *Controller) RequestDelete(id int64) error {
	f, err := c.active(screen.KindList, screen.KindDetail)
	if err != nil {
		return err
	}
	issue, ok := c.repo.Issue(id)
	if !ok {
		return c.reject(f, screen.LevelWarning, fmt.Errorf("issue %d: %w", id, gateway.ErrNotFound))
	}
	if err := screen.CheckDelete(issue); err != nil {
		return c.reject(f, screen.LevelWarning, err)
	}
	c.push(screen.KindConfirmDelete, id)
	return nil
}

// Confirm deletes the issue of the active confirmation. When the
// deletion was requested from its detail screen, that screen is closed
// as well.
func (c *Controller) Confirm() error {
	f, err := c.active(screen.KindConfirmDelete)
	if err != nil {
		return err
	}
	id := f.Screen.IssueID
	c.pop()
	if top := c.stack.Top(); top.Screen.Kind == screen.KindDetail && top.Screen.IssueID == id && c.stack.Len() > 1 {
		c.pop()
	}

	err = c.repo.ApplyOptimistic(id, cache.Deletion{Allowed: screen.CheckDelete}, func(err error) {
		c.mutationSettled(id, err, fmt.Sprintf("Issue #%d deleted", id))
	})
	if err != nil {
		return c.reject(c.stack.Top(), screen.LevelWarning, err)
	}
	c.publish()
	return nil
}

// Dismiss closes the active modal without acting.
func (c *Controller) Dismiss() error {
	f := c.stack.Top()
	if f == nil || !f.Screen.Kind.Modal() {
		return ErrNotAvailable
	}
	c.pop()
	c.publish()
	return nil
}

// BeginCreate opens the new-issue form.
func (c *Controller) BeginCreate() error {
	if _, err := c.active(screen.KindList); err != nil {
		return err
	}
	c.push(screen.KindCreate, 0)
	return nil
}

// SubmitCreate creates an issue from the form. Invalid input keeps the
// form open with an inline notice.
func (c *Controller) SubmitCreate(description, title string) error {
	f, err := c.active(screen.KindCreate)
	if err != nil {
		return err
	}
	err = c.repo.CreateIssue(description, title, func(issue gateway.Issue, err error) {
		c.mutationSettled(issue.ID, err, fmt.Sprintf("Issue #%d created", issue.ID))
	})
	if err != nil {
		return c.reject(f, screen.LevelError, err)
	}
	c.pop()
	c.stack.Top().Screen.Notify(screen.LevelInfo, "Creating issue...")
	c.publish()
	return nil
}

// BeginEdit opens the description editor for the issue on the active
// detail screen.
func (c *Controller) BeginEdit() error {
	f, err := c.active(screen.KindDetail)
	if err != nil {
		return err
	}
	c.push(screen.KindEdit, f.Screen.IssueID)
	return nil
}

// SubmitEdit replaces the description, optimistically.
func (c *Controller) SubmitEdit(description string) error {
	f, err := c.active(screen.KindEdit)
	if err != nil {
		return err
	}
	id := f.Screen.IssueID
	if _, err := gateway.NormalizeDescription(description); err != nil {
		return c.reject(f, screen.LevelError, err)
	}
	c.pop()
	err = c.repo.ApplyOptimistic(id, cache.DescriptionEdit{Description: description}, func(err error) {
		c.mutationSettled(id, err, fmt.Sprintf("Issue #%d updated", id))
	})
	if err != nil {
		return c.reject(c.stack.Top(), screen.LevelWarning, err)
	}
	c.publish()
	return nil
}

// BeginComment opens the comment form for the issue on the active
// detail screen.
func (c *Controller) BeginComment() error {
	f, err := c.active(screen.KindDetail)
	if err != nil {
		return err
	}
	c.push(screen.KindComment, f.Screen.IssueID)
	return nil
}

// SubmitComment posts a comment on the issue of the active form.
func (c *Controller) SubmitComment(body string) error {
	f, err := c.active(screen.KindComment)
	if err != nil {
		return err
	}
	id := f.Screen.IssueID
	if _, err := gateway.NormalizeComment(body); err != nil {
		return c.reject(f, screen.LevelError, err)
	}
	c.pop()
	err = c.repo.AddComment(id, body, func(_ gateway.Comment, err error) {
		c.mutationSettled(id, err, "Comment added")
	})
	if err != nil {
		return c.reject(c.stack.Top(), screen.LevelWarning, err)
	}
	c.publish()
	return nil
}

// BeginAssign opens the worker picker for id. Only pending issues can be
// assigned.
func (c *Controller) BeginAssign(id int64) error {
	return c.beginPendingOnly(screen.KindAssign, id, screen.CheckAssign)
}

// SubmitAssign sets the worker of the issue of the active picker,
// optimistically. An empty worker unassigns it.
func (c *Controller) SubmitAssign(worker string) error {
	f, err := c.active(screen.KindAssign)
	if err != nil {
		return err
	}
	if err := gateway.CheckWorker(worker); err != nil {
		return c.reject(f, screen.LevelError, err)
	}
	id := f.Screen.IssueID
	success := fmt.Sprintf("Issue #%d assigned to %s", id, screen.WorkerName(worker))
	if worker == "" {
		success = fmt.Sprintf("Issue #%d unassigned", id)
	}
	return c.submitPendingOnly(id, cache.Assignment{Worker: worker, Allowed: screen.CheckAssign}, success)
}

// BeginWorkflow opens the workflow picker for id. Only pending issues
// can have their workflow set.
func (c *Controller) BeginWorkflow(id int64) error {
	return c.beginPendingOnly(screen.KindWorkflow, id, screen.CheckWorkflow)
}

// SubmitWorkflow sets the workflow of the issue of the active picker,
// optimistically.
func (c *Controller) SubmitWorkflow(workflow gateway.Workflow) error {
	f, err := c.active(screen.KindWorkflow)
	if err != nil {
		return err
	}
	if err := gateway.CheckWorkflow(workflow); err != nil {
		return c.reject(f, screen.LevelError, err)
	}
	id := f.Screen.IssueID
	success := fmt.Sprintf("Issue #%d workflow set to %s", id, screen.WorkflowName(workflow))
	if workflow == gateway.WorkflowNone {
		success = fmt.Sprintf("Issue #%d workflow cleared", id)
	}
	return c.submitPendingOnly(id, cache.WorkflowChange{Workflow: workflow, Allowed: screen.CheckWorkflow}, success)
}

func (c *Controller) beginPendingOnly(kind screen.Kind, id int64, allowed func(gateway.Issue) error) error {
	f, err := c.active(screen.KindList, screen.KindDetail)
	if err != nil {
		return err
	}
	issue, ok := c.repo.Issue(id)
	if !ok {
		return c.reject(f, screen.LevelWarning, fmt.Errorf("issue %d: %w", id, gateway.ErrNotFound))
	}
	if err := allowed(issue); err != nil {
		return c.reject(f, screen.LevelWarning, err)
	}
	c.push(kind, id)
	return nil
}

// submitPendingOnly closes the active picker and applies m. The check
// runs again against the confirmed issue, which may have left pending
// while the picker was open.
func (c *Controller) submitPendingOnly(id int64, m cache.Mutation, success string) error {
	c.pop()
	err := c.repo.ApplyOptimistic(id, m, func(err error) {
		c.mutationSettled(id, err, success)
	})
	if err != nil {
		return c.reject(c.stack.Top(), screen.LevelWarning, err)
	}
	c.publish()
	return nil
}

// source adapts the controller to refresh.Source.
type source struct{ c *Controller }

// Targets returns the started issues shown on the top screen.
func (s source) Targets() []int64 {
	f := s.c.stack.Top()
	if f == nil || !f.Screen.Interactive() {
		return nil
	}
	st := f.Screen.State
	switch f.Screen.Kind {
	case screen.KindList:
		return refresh.Targets(st.Issues)
	case screen.KindDetail:
		if st.Issue != nil {
			return refresh.Targets([]gateway.Issue{*st.Issue})
		}
	}
	return nil
}

func (s source) Pending(id int64) bool {
	return s.c.repo.IsPending(id)
}

func (s source) Refresh(id int64, done func()) {
	s.c.refreshDetailInBackground(id, done)
}
