package testutil

import (
	"fmt"
	"sync"
	"testing"
)

// RunConcurrent calls fn from n goroutines and waits for all of them.
// A panic in any worker fails the test instead of crashing the binary.
func RunConcurrent(t *testing.T, n int, fn func(workerID int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(n)

	for i := range n {
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("worker %d panicked: %v", workerID, r)
				}
			}()
			fn(workerID)
		}(i)
	}

	wg.Wait()
}

// AssertNoRaces hammers fn from many goroutines; run with -race to catch shared state
func AssertNoRaces(t *testing.T, fn func(), iterations int) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping race detection test in short mode")
	}

	RunConcurrent(t, iterations, func(_ int) {
		fn()
	})
}

// OpSequence collapses consecutive calls of the same operation, so a run over
// three tables reads as [untrack track] rather than six entries
func OpSequence(calls []Call) []string {
	var seq []string

	for _, c := range calls {
		if len(seq) > 0 && seq[len(seq)-1] == c.Op {
			continue
		}

		seq = append(seq, c.Op)
	}

	return seq
}

// AssertPhaseOrder fails unless every call of ops[i] was recorded before the
// first call of ops[i+1]. Operations that were never called are ignored.
func AssertPhaseOrder(t *testing.T, gateway *MockGateway, ops ...string) {
	t.Helper()

	for _, v := range phaseOrderViolations(gateway.Calls(), ops...) {
		t.Error(v)
	}
}

func phaseOrderViolations(calls []Call, ops ...string) []string {
	first := make(map[string]int)
	last := make(map[string]int)

	for i, c := range calls {
		if _, seen := first[c.Op]; !seen {
			first[c.Op] = i
		}

		last[c.Op] = i
	}

	var violations []string

	prev := ""

	for _, op := range ops {
		if _, called := first[op]; !called {
			continue
		}

		if prev != "" && last[prev] > first[op] {
			violations = append(violations, fmt.Sprintf("%s call at position %d comes after the first %s call at position %d",
				prev, last[prev], op, first[op]))
		}

		prev = op
	}

	return violations
}
