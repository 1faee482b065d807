// Package cache mirrors issues fetched through a gateway so that screens
// do not each re-fetch, and reconciles optimistic mutations with what the
// gateway confirms.
//
// A Repository is owned by the control thread: every method must be
// called there, and gateway results are delivered back through the
// loop.PostFunc it was built with. Callbacks passed to the methods run on
// the control thread as well.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/bleue/bleue-tui/internal/loop"
)

// ErrStale is passed to a fetch callback when the response was discarded
// because a newer request for the same data was issued, and the cache
// does not yet hold that data. A cache Event follows once it does.
var ErrStale = errors.New("response superseded by a newer request")

// Event describes a change to the repository.
type Event struct {
	// IDs lists the issues whose entries changed.
	IDs []int64
	// ListReplaced is set when the whole mapping was swapped by a list
	// refresh.
	ListReplaced bool
}

type entry struct {
	confirmed gateway.Issue
	current   gateway.Issue
	pending   bool
	// hidden is set while an optimistic deletion is in flight.
	hidden bool
}

type queued struct {
	m    Mutation
	done func(error)
}

// Repository is the in-memory issue mirror.
type Repository struct {
	gw     gateway.Gateway
	post   loop.PostFunc
	ctx    context.Context
	cancel context.CancelFunc

	entries  map[int64]*entry
	order    []int64
	comments map[int64][]gateway.Comment
	loaded   bool

	// seq numbers every request. latest holds, per id, the newest
	// request touching the issue record; commentsLatest the newest one
	// touching its comments; listLatest the newest list request.
	seq            uint64
	latest         map[int64]uint64
	commentsLatest map[int64]uint64
	listLatest     uint64

	waiting   map[int64][]queued
	version   uint64
	listeners map[int]func(Event)
	nextSub   int
	closed    bool
}

// New returns an empty repository.
func New(gw gateway.Gateway, post loop.PostFunc) *Repository {
	ctx, cancel := context.WithCancel(context.Background())
	return &Repository{
		gw:             gw,
		post:           post,
		ctx:            ctx,
		cancel:         cancel,
		entries:        make(map[int64]*entry),
		comments:       make(map[int64][]gateway.Comment),
		latest:         make(map[int64]uint64),
		commentsLatest: make(map[int64]uint64),
		waiting:        make(map[int64][]queued),
		listeners:      make(map[int]func(Event)),
	}
}

// Close cancels in-flight mutations. Their results, like every result
// delivered after Close, are ignored.
func (r *Repository) Close() {
	r.closed = true
	r.cancel()
}

// Subscribe registers fn to be called after every change. The returned
// function removes it.
func (r *Repository) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := r.nextSub
	r.nextSub++
	r.listeners[id] = fn
	return func() { delete(r.listeners, id) }
}

// Version increases on every state change.
func (r *Repository) Version() uint64 {
	return r.version
}

// Loaded reports whether a list refresh has succeeded at least once.
func (r *Repository) Loaded() bool {
	return r.loaded
}

// Issues returns the visible issues, newest first.
func (r *Repository) Issues() []gateway.Issue {
	issues := make([]gateway.Issue, 0, len(r.order))
	for _, id := range r.order {
		if e := r.entries[id]; e != nil && !e.hidden {
			issues = append(issues, e.current)
		}
	}
	return issues
}

// Issue returns the visible value of one issue, optimistic if a mutation
// is in flight.
func (r *Repository) Issue(id int64) (gateway.Issue, bool) {
	e := r.entries[id]
	if e == nil || e.hidden {
		return gateway.Issue{}, false
	}
	return e.current, true
}

// Confirmed returns the last gateway-confirmed value of one issue.
func (r *Repository) Confirmed(id int64) (gateway.Issue, bool) {
	e := r.entries[id]
	if e == nil {
		return gateway.Issue{}, false
	}
	return e.confirmed, true
}

// Comments returns the cached comments of an issue, newest first.
func (r *Repository) Comments(id int64) []gateway.Comment {
	return append([]gateway.Comment(nil), r.comments[id]...)
}

// IsPending reports whether id is tagged pending-confirmation.
func (r *Repository) IsPending(id int64) bool {
	e := r.entries[id]
	return e != nil && e.pending
}

func (r *Repository) next() uint64 {
	r.seq++
	return r.seq
}

func (r *Repository) emit(ev Event) {
	r.version++
	for _, fn := range r.listeners {
		fn(ev)
	}
}

// RefreshList fetches every issue and swaps the whole mapping once the
// response is in. done receives nil when the cache holds a list to read.
func (r *Repository) RefreshList(ctx context.Context, done func(error)) {
	seq := r.next()
	r.listLatest = seq
	logger.Debug("cache.repository: list refresh issued seq=%d", seq)

	go func() {
		issues, err := r.gw.ListIssues(ctx)
		r.post(func() { r.applyList(ctx, seq, issues, err, done) })
	}()
}

func (r *Repository) applyList(ctx context.Context, seq uint64, issues []gateway.Issue, err error, done func(error)) {
	if r.closed {
		return
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debug("cache.repository: discarding cancelled list response seq=%d", seq)
		done(ctxErr)
		return
	}
	if err != nil {
		done(err)
		return
	}
	if seq != r.listLatest {
		logger.Debug("cache.repository: discarding stale list response seq=%d latest=%d", seq, r.listLatest)
		if r.loaded {
			done(nil)
		} else {
			done(ErrStale)
		}
		return
	}

	// Entries with a mutation in flight, or touched by a request issued
	// after this one, are newer than the response and survive the swap.
	survives := func(id int64) bool {
		e := r.entries[id]
		return e != nil && (e.pending || r.latest[id] > seq)
	}

	entries := make(map[int64]*entry, len(issues))
	order := make([]int64, 0, len(issues))
	seen := make(map[int64]bool, len(issues))
	for _, is := range issues {
		if seen[is.ID] {
			continue
		}
		seen[is.ID] = true
		order = append(order, is.ID)
		if survives(is.ID) {
			entries[is.ID] = r.entries[is.ID]
			continue
		}
		entries[is.ID] = &entry{confirmed: is, current: is}
	}

	var head []int64
	for _, id := range r.order {
		if !seen[id] && survives(id) {
			head = append(head, id)
		}
	}
	for id, e := range r.entries {
		if !seen[id] && survives(id) {
			entries[id] = e
		}
	}
	for id := range r.comments {
		if entries[id] == nil {
			delete(r.comments, id)
		}
	}

	r.entries = entries
	r.order = append(head, order...)
	r.loaded = true
	logger.Info("cache.repository: list replaced count=%d kept=%d", len(order), len(head))
	r.emit(Event{ListReplaced: true})
	done(nil)
}

// RefreshDetail fetches one issue with its comments and replaces only
// that entry. done receives nil when the cache holds the issue to read.
func (r *Repository) RefreshDetail(ctx context.Context, id int64, done func(error)) {
	seq := r.next()
	r.latest[id] = seq
	r.commentsLatest[id] = seq
	logger.Debug("cache.repository: detail refresh issued id=%d seq=%d", id, seq)

	go func() {
		issue, comments, err := r.gw.GetIssue(ctx, id)
		r.post(func() { r.applyDetail(ctx, id, seq, issue, comments, err, done) })
	}()
}

func (r *Repository) applyDetail(ctx context.Context, id int64, seq uint64, issue gateway.Issue, comments []gateway.Comment, err error, done func(error)) {
	if r.closed {
		return
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debug("cache.repository: discarding cancelled detail response id=%d seq=%d", id, seq)
		done(ctxErr)
		return
	}

	e := r.entries[id]
	current := r.latest[id] == seq && (e == nil || !e.pending)

	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) && current && e != nil {
			r.drop(id)
			r.emit(Event{IDs: []int64{id}})
		}
		done(err)
		return
	}

	changed := false
	if r.commentsLatest[id] == seq {
		r.comments[id] = comments
		changed = true
	}
	if current {
		if e == nil {
			r.entries[id] = &entry{confirmed: issue, current: issue}
		} else {
			e.confirmed, e.current = issue, issue
		}
		changed = true
	} else {
		logger.Debug("cache.repository: detail response for id=%d kept out of the record seq=%d latest=%d", id, seq, r.latest[id])
	}
	if changed {
		r.emit(Event{IDs: []int64{id}})
	}

	if _, ok := r.Issue(id); ok {
		done(nil)
		return
	}
	done(ErrStale)
}

// ApplyOptimistic updates the local copy of id immediately and commits
// the mutation through the gateway. The entry stays pending-confirmation
// until the gateway answers: on success the confirmed value replaces the
// optimistic one, on failure the entry is rolled back.
//
// While id is pending a further mutation is queued and started against
// the confirmed value once the first resolves. An error returned here
// means nothing was applied and done will not be called.
func (r *Repository) ApplyOptimistic(id int64, m Mutation, done func(error)) error {
	e := r.entries[id]
	if e == nil || (e.hidden && !e.pending) {
		return fmt.Errorf("issue %d: %w", id, gateway.ErrNotFound)
	}
	if e.pending {
		logger.Debug("cache.repository: queueing mutation id=%d %T", id, m)
		r.waiting[id] = append(r.waiting[id], queued{m: m, done: done})
		return nil
	}
	return r.start(id, e, m, done)
}

func (r *Repository) start(id int64, e *entry, m Mutation, done func(error)) error {
	if err := m.Check(e.confirmed); err != nil {
		return err
	}

	base := e.confirmed
	next, visible := m.Apply(e.current)
	e.current = next
	e.hidden = !visible
	e.pending = true
	r.latest[id] = r.next()
	logger.Info("cache.repository: optimistic %T applied id=%d", m, id)
	r.emit(Event{IDs: []int64{id}})

	ctx := r.ctx
	go func() {
		confirmed, err := m.Commit(ctx, r.gw, base)
		r.post(func() { r.resolve(id, visible, confirmed, err, done) })
	}()
	return nil
}

func (r *Repository) resolve(id int64, visible bool, confirmed gateway.Issue, err error, done func(error)) {
	if r.closed {
		return
	}
	e := r.entries[id]
	if e == nil {
		done(err)
		return
	}

	e.pending = false
	// Fetches issued before this point may predate the mutation.
	r.latest[id] = r.next()

	switch {
	case err == nil && !visible:
		logger.Info("cache.repository: deletion confirmed id=%d", id)
		r.drop(id)
	case err == nil:
		e.confirmed, e.current = confirmed, confirmed
	case errors.Is(err, gateway.ErrNotFound):
		logger.Warning("cache.repository: issue vanished during mutation id=%d", id)
		r.drop(id)
	default:
		logger.Warning("cache.repository: rolling back id=%d: %v", id, err)
		e.current = e.confirmed
		e.hidden = false
	}
	r.emit(Event{IDs: []int64{id}})
	done(err)
	r.drain(id)
}

func (r *Repository) drain(id int64) {
	for len(r.waiting[id]) > 0 {
		q := r.waiting[id][0]
		r.waiting[id] = r.waiting[id][1:]

		e := r.entries[id]
		if e == nil {
			q.done(fmt.Errorf("issue %d: %w", id, gateway.ErrNotFound))
			continue
		}
		if err := r.start(id, e, q.m, q.done); err != nil {
			q.done(err)
			continue
		}
		return
	}
	delete(r.waiting, id)
}

func (r *Repository) drop(id int64) {
	delete(r.entries, id)
	delete(r.comments, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// CreateIssue creates an issue through the gateway. Identifiers are
// assigned server-side, so nothing is applied until the gateway answers;
// the confirmed issue is then placed at the head of the list. Validation
// failures are returned immediately and done is not called.
func (r *Repository) CreateIssue(description, title string, done func(gateway.Issue, error)) error {
	description, err := gateway.NormalizeDescription(description)
	if err != nil {
		return err
	}
	if title, err = gateway.NormalizeTitle(title); err != nil {
		return err
	}

	ctx := r.ctx
	go func() {
		issue, err := r.gw.CreateIssue(ctx, description, title)
		r.post(func() {
			if r.closed {
				return
			}
			if err == nil {
				r.latest[issue.ID] = r.next()
				r.entries[issue.ID] = &entry{confirmed: issue, current: issue}
				r.order = append([]int64{issue.ID}, r.order...)
				logger.Info("cache.repository: created id=%d", issue.ID)
				r.emit(Event{IDs: []int64{issue.ID}})
			}
			done(issue, err)
		})
	}()
	return nil
}

// AddComment posts a comment and prepends it to the cached comments of
// the issue once confirmed.
func (r *Repository) AddComment(issueID int64, body string, done func(gateway.Comment, error)) error {
	body, err := gateway.NormalizeComment(body)
	if err != nil {
		return err
	}
	if _, ok := r.Issue(issueID); !ok {
		return fmt.Errorf("issue %d: %w", issueID, gateway.ErrNotFound)
	}

	ctx := r.ctx
	go func() {
		c, err := r.gw.CreateComment(ctx, issueID, body)
		r.post(func() {
			if r.closed {
				return
			}
			switch {
			case err == nil:
				r.commentsLatest[issueID] = r.next()
				r.comments[issueID] = append([]gateway.Comment{c}, r.comments[issueID]...)
				r.emit(Event{IDs: []int64{issueID}})
			case errors.Is(err, gateway.ErrNotFound):
				if e := r.entries[issueID]; e != nil && !e.pending {
					r.drop(issueID)
					r.emit(Event{IDs: []int64{issueID}})
				}
			}
			done(c, err)
		})
	}()
	return nil
}
