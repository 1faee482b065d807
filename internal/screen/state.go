// Package screen holds per-view state and the rules for changing it:
// the loading/ready/error/empty lifecycle of a screen and the policy for
// issue status changes and deletion.
package screen

import (
	"errors"
	"fmt"
	"time"

	"github.com/bleue/bleue-tui/internal/gateway"
)

// Tag is the lifecycle state of a screen.
type Tag string

const (
	TagLoading Tag = "loading"
	TagReady   Tag = "ready"
	TagError   Tag = "error"
	TagEmpty   Tag = "empty"
)

// Kind identifies what a screen shows.
type Kind int

const (
	KindList Kind = iota
	KindDetail
	KindConfirmDelete
	KindCreate
	KindEdit
	KindComment
	KindAssign
	KindWorkflow
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindDetail:
		return "detail"
	case KindConfirmDelete:
		return "confirm-delete"
	case KindCreate:
		return "create"
	case KindEdit:
		return "edit"
	case KindComment:
		return "comment"
	case KindAssign:
		return "assign"
	case KindWorkflow:
		return "workflow"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Modal reports whether screens of this kind overlay another screen and
// have no remote fetch of their own.
func (k Kind) Modal() bool {
	return k >= KindConfirmDelete
}

// Level is the severity of a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// Notice is an inline message that does not change the screen's tag.
type Notice struct {
	Level Level
	Text  string
}

// State is everything needed to render one screen.
type State struct {
	Tag Tag
	// Issues is the payload of a list screen.
	Issues []gateway.Issue
	// Issue and Comments are the payload of a detail screen. Modals that
	// act on an issue carry it in Issue.
	Issue    *gateway.Issue
	Comments []gateway.Comment
	// Err is the message shown in the error state.
	Err    string
	Notice *Notice
	// Pending is set when the displayed issue awaits confirmation of a
	// mutation.
	Pending     bool
	RefreshedAt time.Time
}

// ErrBadStateTransition is returned when a screen is asked to move
// between tags the lifecycle does not connect.
var ErrBadStateTransition = errors.New("screen state transition not allowed")

var lifecycle = map[Tag][]Tag{
	TagLoading: {TagReady, TagError, TagEmpty},
	TagReady:   {TagLoading, TagReady, TagEmpty},
	TagError:   {TagLoading},
	TagEmpty:   {TagLoading, TagReady, TagEmpty},
}

// CanMove reports whether a screen may move from one tag to another.
func CanMove(from, to Tag) bool {
	for _, t := range lifecycle[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Screen is one entry of the navigation stack.
type Screen struct {
	Kind Kind
	// IssueID is the issue a detail screen or an issue modal is about.
	IssueID int64
	State   State
}

// New returns a screen in its initial loading state.
func New(kind Kind, issueID int64) *Screen {
	return &Screen{Kind: kind, IssueID: issueID, State: State{Tag: TagLoading}}
}

func (s *Screen) move(to Tag) error {
	if !CanMove(s.State.Tag, to) {
		return fmt.Errorf("%s screen %s -> %s: %w", s.Kind, s.State.Tag, to, ErrBadStateTransition)
	}
	s.State.Tag = to
	return nil
}

// Begin moves the screen to loading for a manual refresh or a retry. The
// previous payload stays visible and the notice is cleared.
func (s *Screen) Begin() error {
	if err := s.move(TagLoading); err != nil {
		return err
	}
	s.State.Err = ""
	s.State.Notice = nil
	return nil
}

// ShowList sets the payload of a list screen, choosing empty when there
// are no issues. A zero refreshedAt keeps the previous timestamp.
func (s *Screen) ShowList(issues []gateway.Issue, refreshedAt time.Time) error {
	to := TagReady
	if len(issues) == 0 {
		to = TagEmpty
	}
	if err := s.move(to); err != nil {
		return err
	}
	s.State.Issues = issues
	s.State.Err = ""
	if !refreshedAt.IsZero() {
		s.State.RefreshedAt = refreshedAt
	}
	return nil
}

// ShowIssue sets the payload of a detail screen or an issue modal. A
// zero refreshedAt keeps the previous timestamp.
func (s *Screen) ShowIssue(issue gateway.Issue, comments []gateway.Comment, pending bool, refreshedAt time.Time) error {
	if err := s.move(TagReady); err != nil {
		return err
	}
	s.State.Issue = &issue
	s.State.Comments = comments
	s.State.Pending = pending
	s.State.Err = ""
	if !refreshedAt.IsZero() {
		s.State.RefreshedAt = refreshedAt
	}
	return nil
}

// ShowForm readies a modal that carries no issue.
func (s *Screen) ShowForm() error {
	return s.move(TagReady)
}

// Fail records a fetch failure. Only a loading screen enters the error
// state; a screen already showing data keeps it and gets a notice.
func (s *Screen) Fail(err error) {
	if s.State.Tag == TagLoading {
		_ = s.move(TagError)
		s.State.Err = Message(err)
		return
	}
	s.Notify(LevelError, Message(err))
}

// Notify sets the inline notice.
func (s *Screen) Notify(level Level, text string) {
	s.State.Notice = &Notice{Level: level, Text: text}
}

// Interactive reports whether the screen shows settled data that user
// actions may act on.
func (s *Screen) Interactive() bool {
	return s.State.Tag == TagReady || s.State.Tag == TagEmpty
}
