package navigation

import (
	"testing"

	"github.com/bleue/bleue-tui/internal/screen"
)

func TestStack_PushPop(t *testing.T) {
	var s Stack
	if s.Top() != nil || s.Pop() != nil {
		t.Fatal("empty stack should have no top")
	}

	cancelled := false
	list := &Frame{Screen: screen.New(screen.KindList, 0)}
	detail := &Frame{Screen: screen.New(screen.KindDetail, 5), cancel: func() { cancelled = true }}
	s.Push(list)
	s.Push(detail)

	if s.Len() != 2 || s.Top() != detail {
		t.Fatalf("Len() = %d, Top() = %v; want 2 and the detail frame", s.Len(), s.Top())
	}
	if got := s.Pop(); got != detail {
		t.Fatalf("Pop() = %v, want detail frame", got)
	}
	if !cancelled {
		t.Error("Pop() did not cancel the frame's fetch")
	}
	if s.Top() != list {
		t.Error("Top() after Pop() is not the list frame")
	}
}

func TestStack_ScreensAreCopies(t *testing.T) {
	var s Stack
	f := &Frame{Screen: screen.New(screen.KindList, 0)}
	s.Push(f)

	screens := s.Screens()
	screens[0].State.Tag = screen.TagError
	if f.Screen.State.Tag != screen.TagLoading {
		t.Errorf("modifying a copy changed the frame: tag = %s", f.Screen.State.Tag)
	}
}

func TestStack_Clear(t *testing.T) {
	var s Stack
	n := 0
	for i := 0; i < 3; i++ {
		s.Push(&Frame{Screen: screen.New(screen.KindDetail, int64(i)), cancel: func() { n++ }})
	}
	s.Clear()
	if s.Len() != 0 || n != 3 {
		t.Errorf("after Clear(): Len() = %d, cancels = %d; want 0 and 3", s.Len(), n)
	}
}
