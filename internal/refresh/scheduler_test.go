package refresh

import (
	"testing"
	"time"

	"github.com/bleue/bleue-tui/internal/clock"
	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/loop"
	"github.com/google/go-cmp/cmp"
)

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// fakeSource records refreshes and leaves them outstanding until settled.
type fakeSource struct {
	targets   []int64
	pending   map[int64]bool
	refreshes []int64
	settle    map[int64]func()
}

func newFakeSource(targets ...int64) *fakeSource {
	return &fakeSource{targets: targets, pending: map[int64]bool{}, settle: map[int64]func(){}}
}

func (f *fakeSource) Targets() []int64      { return f.targets }
func (f *fakeSource) Pending(id int64) bool { return f.pending[id] }
func (f *fakeSource) Refresh(id int64, done func()) {
	f.refreshes = append(f.refreshes, id)
	f.settle[id] = done
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTargets(t *testing.T) {
	issues := []gateway.Issue{
		{ID: 1, Status: gateway.StatusPending},
		{ID: 2, Status: gateway.StatusStarted},
		{ID: 3, Status: gateway.StatusDone},
		{ID: 4, Status: gateway.StatusStarted},
	}
	if diff := cmp.Diff([]int64{2, 4}, Targets(issues)); diff != "" {
		t.Errorf("Targets() mismatch (-want +got):\n%s", diff)
	}
}

func TestTick_DropsWhileOutstanding(t *testing.T) {
	src := newFakeSource(42)
	s := New(clock.Fake(epoch), time.Second, func(f func()) { f() }, src)

	for i := 0; i < 5; i++ {
		s.Tick()
	}
	if diff := cmp.Diff([]int64{42}, src.refreshes); diff != "" {
		t.Fatalf("refreshes mismatch (-want +got):\n%s", diff)
	}
	if issued, dropped := s.Stats(); issued != 1 || dropped != 4 {
		t.Errorf("Stats() = %d, %d, want 1, 4", issued, dropped)
	}

	src.settle[42]()
	if s.Outstanding(42) {
		t.Fatal("Outstanding(42) = true after settle")
	}
	s.Tick()
	if len(src.refreshes) != 2 {
		t.Errorf("refreshes = %v, want a second refresh after settle", src.refreshes)
	}
}

func TestTick_SkipsPendingConfirmation(t *testing.T) {
	src := newFakeSource(42, 43)
	src.pending[42] = true
	s := New(clock.Fake(epoch), time.Second, func(f func()) { f() }, src)

	s.Tick()
	if diff := cmp.Diff([]int64{43}, src.refreshes); diff != "" {
		t.Errorf("refreshes mismatch (-want +got):\n%s", diff)
	}
}

func TestSuspendResume(t *testing.T) {
	src := newFakeSource(42)
	s := New(clock.Fake(epoch), time.Second, func(f func()) { f() }, src)

	s.Suspend()
	s.Tick()
	if len(src.refreshes) != 0 {
		t.Fatalf("refreshes = %v while suspended, want none", src.refreshes)
	}
	s.Resume()
	s.Tick()
	if len(src.refreshes) != 1 {
		t.Errorf("refreshes = %v after resume, want one", src.refreshes)
	}
}

func TestStart_TickerPostsToControlThread(t *testing.T) {
	clk := clock.Fake(epoch)
	src := newFakeSource(7)
	serial := &loop.Serial{}
	s := New(clk, 2*time.Second, serial.Post, src)

	serial.Do(s.Start)
	clk.WaitForTimers(1)
	clk.Advance(2 * time.Second)

	waitForCondition(t, time.Second, func() bool {
		var n int
		serial.Do(func() { n = len(src.refreshes) })
		return n == 1
	})

	serial.Do(s.Suspend)
	if n := clk.PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d while suspended, want 0", n)
	}
	serial.Do(s.Resume)
	if n := clk.PendingCount(); n != 1 {
		t.Errorf("PendingCount() = %d after resume, want 1", n)
	}
	serial.Do(s.Stop)
}

func TestNew_DefaultInterval(t *testing.T) {
	s := New(clock.Fake(epoch), 0, func(f func()) { f() }, newFakeSource())
	if s.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", s.Interval(), DefaultInterval)
	}
}
