// Package loop describes the single control thread that owns every
// piece of mutable UI state. Background work never touches that state
// directly; it hands a closure to a PostFunc and the closure runs on
// the control thread.
package loop

import "sync"

// PostFunc schedules f to run on the control thread. Implementations
// must not run f synchronously on the caller's goroutine when the
// caller is itself the control thread.
type PostFunc func(f func())

// Serial is a PostFunc implementation for headless use and tests:
// posted closures run on the posting goroutine, one at a time. Code
// already running inside a posted closure must not post again
// synchronously; the controller only posts from background goroutines.
type Serial struct {
	mu sync.Mutex
}

// Post runs f while holding the serial lock.
func (s *Serial) Post(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

// Do is an alias for Post used when a test drives the control thread
// itself rather than a background goroutine.
func (s *Serial) Do(f func()) { s.Post(f) }
