package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kyleking/qik-trak/internal/types"
)

// Phase names one step of a synchronization run
type Phase string

const (
	PhaseWaitReady          Phase = "wait-ready"
	PhaseIntrospect         Phase = "introspect"
	PhaseUntrack            Phase = "untrack"
	PhasePreScripts         Phase = "pre-scripts"
	PhaseViews              Phase = "views"
	PhasePostScripts        Phase = "post-scripts"
	PhaseTrackTables        Phase = "track-tables"
	PhaseTrackRelationships Phase = "track-relationships"
)

// Run statuses
const (
	StatusCompleted             = "completed"
	StatusCompletedWithFailures = "completed_with_failures"
	StatusFailed                = "failed"
)

// Result is the outcome of one item in a phase
type Result struct {
	Phase     Phase
	Operation string
	Target    string
	Outcome   types.Outcome
	Err       error
}

// PhaseTiming records how long a phase took
type PhaseTiming struct {
	Phase    Phase
	Duration time.Duration
}

// Report summarizes a synchronization run
type Report struct {
	RunID      string
	Schema     string
	Database   string
	StartedAt  time.Time
	FinishedAt time.Time

	Tables        []string
	ForeignKeys   int
	Views         []string
	Relationships int

	Phases  []PhaseTiming
	Results []Result
	Fatal   error

	mu sync.Mutex
}

func newReport(schema, database string) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Schema:    schema,
		Database:  database,
		StartedAt: time.Now(),
	}
}

func (r *Report) add(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Results = append(r.Results, result)
}

func (r *Report) addTiming(phase Phase, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Phases = append(r.Phases, PhaseTiming{Phase: phase, Duration: d})
}

// Count returns the number of items with the given outcome
func (r *Report) Count(outcome types.Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}

	return n
}

// Failures returns every item that carries an error
func (r *Report) Failures() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Result

	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}

	return out
}

// HasFailures reports whether any item failed or was skipped because of an error
func (r *Report) HasFailures() bool {
	return len(r.Failures()) > 0
}

// ResultsFor returns the items of one phase in the order they were recorded
func (r *Report) ResultsFor(phase Phase) []Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Result

	for _, res := range r.Results {
		if res.Phase == phase {
			out = append(out, res)
		}
	}

	return out
}

// Duration returns the wall time of the run
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Status summarizes the run for the journal
func (r *Report) Status() string {
	switch {
	case r.Fatal != nil:
		return StatusFailed
	case r.HasFailures():
		return StatusCompletedWithFailures
	default:
		return StatusCompleted
	}
}
