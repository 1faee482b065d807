package loop

import (
	"sync"
	"testing"
)

func TestSerialRunsClosuresOneAtATime(t *testing.T) {
	var s Serial
	var post PostFunc = s.Post

	var (
		wg      sync.WaitGroup
		running int
		maxSeen int
		total   int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			post(func() {
				running++
				if running > maxSeen {
					maxSeen = running
				}
				total++
				running--
			})
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent closures = %d, want 1", maxSeen)
	}
	if total != 50 {
		t.Errorf("closures run = %d, want 50", total)
	}
}
