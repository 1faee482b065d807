// Package navigation keeps the stack of active screens and coordinates
// them with the repository cache and the refresh scheduler.
package navigation

import (
	"context"

	"github.com/bleue/bleue-tui/internal/screen"
)

// Frame is a screen on the stack together with its in-flight fetch.
type Frame struct {
	Screen *screen.Screen

	cancel context.CancelFunc
	// fetch identifies the request whose answer the screen waits for.
	fetch uint64
	// awaiting is set when that answer was superseded and the screen
	// waits for the cache to catch up instead.
	awaiting bool
	// version is the cache version the payload was derived from.
	version uint64
}

// Stack is an ordered stack of frames, bottom first.
type Stack struct {
	frames []*Frame
}

// Push places f on top.
func (s *Stack) Push(f *Frame) {
	s.frames = append(s.frames, f)
}

// Pop removes the top frame and cancels its outstanding fetch. The
// frame below is left exactly as it was.
func (s *Stack) Pop() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	f := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	return f
}

// Top returns the active frame, or nil when the stack is empty.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Len returns the number of frames.
func (s *Stack) Len() int {
	return len(s.frames)
}

// Screens returns copies of every screen, bottom first.
func (s *Stack) Screens() []screen.Screen {
	out := make([]screen.Screen, len(s.frames))
	for i, f := range s.frames {
		out[i] = *f.Screen
	}
	return out
}

// Clear pops every frame.
func (s *Stack) Clear() {
	for s.Len() > 0 {
		s.Pop()
	}
}
