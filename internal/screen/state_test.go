package screen

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/google/go-cmp/cmp"
)

func TestCanMove(t *testing.T) {
	tests := []struct {
		from, to Tag
		want     bool
	}{
		{TagLoading, TagReady, true},
		{TagLoading, TagError, true},
		{TagLoading, TagEmpty, true},
		{TagLoading, TagLoading, false},
		{TagReady, TagLoading, true},
		{TagReady, TagReady, true},
		{TagReady, TagEmpty, true},
		{TagReady, TagError, false},
		{TagError, TagLoading, true},
		{TagError, TagReady, false},
		{TagEmpty, TagReady, true},
		{TagEmpty, TagError, false},
	}
	for _, tt := range tests {
		if got := CanMove(tt.from, tt.to); got != tt.want {
			t.Errorf("CanMove(%s, %s) = %t, want %t", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestScreen_ListLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(KindList, 0)
	if s.State.Tag != TagLoading {
		t.Fatalf("new screen tag = %s, want loading", s.State.Tag)
	}

	if err := s.ShowList(nil, now); err != nil {
		t.Fatalf("ShowList(nil) error: %v", err)
	}
	if s.State.Tag != TagEmpty {
		t.Errorf("tag = %s, want empty for zero issues", s.State.Tag)
	}

	issues := []gateway.Issue{{ID: 42, Status: gateway.StatusPending}}
	if err := s.ShowList(issues, time.Time{}); err != nil {
		t.Fatalf("ShowList() error: %v", err)
	}
	want := State{Tag: TagReady, Issues: issues, RefreshedAt: now}
	if diff := cmp.Diff(want, s.State); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestScreen_FailEntersErrorOnlyFromLoading(t *testing.T) {
	errDown := fmt.Errorf("get issue 5: %w", gateway.ErrTransport)

	s := New(KindDetail, 5)
	s.Fail(errDown)
	if s.State.Tag != TagError || s.State.Err == "" {
		t.Fatalf("state = %+v, want error with message", s.State)
	}
	if err := s.ShowIssue(gateway.Issue{ID: 5}, nil, false, time.Time{}); !errors.Is(err, ErrBadStateTransition) {
		t.Errorf("ShowIssue() from error = %v, want ErrBadStateTransition", err)
	}

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() from error: %v", err)
	}
	if err := s.ShowIssue(gateway.Issue{ID: 5}, nil, false, time.Time{}); err != nil {
		t.Fatalf("ShowIssue() error: %v", err)
	}
	s.Fail(errDown)
	if s.State.Tag != TagReady {
		t.Errorf("tag = %s, want ready kept after background failure", s.State.Tag)
	}
	if s.State.Notice == nil || s.State.Notice.Level != LevelError {
		t.Errorf("notice = %+v, want error notice", s.State.Notice)
	}
}

func TestScreen_BeginWhileLoadingRejected(t *testing.T) {
	s := New(KindList, 0)
	if err := s.Begin(); !errors.Is(err, ErrBadStateTransition) {
		t.Errorf("Begin() while loading = %v, want ErrBadStateTransition", err)
	}
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{KindList, KindDetail} {
		if k.Modal() {
			t.Errorf("%s.Modal() = true", k)
		}
	}
	for _, k := range []Kind{KindConfirmDelete, KindCreate, KindEdit, KindComment, KindAssign, KindWorkflow} {
		if !k.Modal() {
			t.Errorf("%s.Modal() = false", k)
		}
	}
}
