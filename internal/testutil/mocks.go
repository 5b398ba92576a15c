package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kyleking/qik-trak/internal/types"
)

// Mock gateway operation names, used in call logs and error keys ("track:order")
const (
	CallWaitReady = "wait_ready"
	CallRunSQL    = "run_sql"
	CallUntrack   = "untrack"
	CallTrack     = "track"
	CallObject    = "object"
	CallArray     = "array"
)

// Call is one recorded gateway call
type Call struct {
	Op     string
	Target string
}

// String renders the call as op(target)
func (c Call) String() string {
	return fmt.Sprintf("%s(%s)", c.Op, c.Target)
}

// MockGateway records metadata calls and injects errors and outcomes by key
type MockGateway struct {
	mu sync.Mutex

	calls      []Call
	statements []string
	outcomes   map[string]types.Outcome
	sqlErrors  map[string]error
	readyErr   error
	credsErr   error
	delay      time.Duration
	injector   *ErrorInjector
}

// MockOption is a functional option for configuring MockGateway
type MockOption func(*MockGateway)

// WithError makes the call with key ("track:order", "object:order.customer") fail
func WithError(key string, err error) MockOption {
	return func(m *MockGateway) {
		m.injector.InjectError(key, err)
	}
}

// WithOutcome makes the call with key report outcome instead of success
func WithOutcome(key string, outcome types.Outcome) MockOption {
	return func(m *MockGateway) {
		m.outcomes[key] = outcome
	}
}

// WithSQLError makes run_sql fail for statements containing fragment
func WithSQLError(fragment string, err error) MockOption {
	return func(m *MockGateway) {
		m.sqlErrors[fragment] = err
	}
}

// WithReadyError makes the readiness probe fail
func WithReadyError(err error) MockOption {
	return func(m *MockGateway) {
		m.readyErr = err
	}
}

// WithCredentialsError makes the credential check fail
func WithCredentialsError(err error) MockOption {
	return func(m *MockGateway) {
		m.credsErr = err
	}
}

// WithDelay slows every metadata call down, to exercise phase joins
func WithDelay(d time.Duration) MockOption {
	return func(m *MockGateway) {
		m.delay = d
	}
}

// NewMockGateway creates a new mock gateway with the given options
func NewMockGateway(opts ...MockOption) *MockGateway {
	mock := &MockGateway{
		outcomes:  make(map[string]types.Outcome),
		sqlErrors: make(map[string]error),
		injector:  NewErrorInjector(),
	}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

func (m *MockGateway) record(op, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: op, Target: target})
}

// metadata records a metadata call and resolves its result
func (m *MockGateway) metadata(ctx context.Context, op, target string) (types.Outcome, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return types.OutcomeFailed, ctx.Err()
		}
	}

	m.record(op, target)

	key := op + ":" + target
	if err := m.injector.ShouldError(key); err != nil {
		return types.OutcomeFailed, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if outcome, ok := m.outcomes[key]; ok {
		return outcome, nil
	}

	return types.OutcomeSuccess, nil
}

// RequireCredentials returns the configured credential error; it is not recorded as a call
func (m *MockGateway) RequireCredentials() error {
	return m.credsErr
}

// WaitReady records the probe
func (m *MockGateway) WaitReady(_ context.Context, _ time.Duration) error {
	m.record(CallWaitReady, "")
	return m.readyErr
}

// RunSQL records the statement; it returns no rows
func (m *MockGateway) RunSQL(_ context.Context, statement string) ([][]string, error) {
	m.mu.Lock()
	m.statements = append(m.statements, statement)
	m.calls = append(m.calls, Call{Op: CallRunSQL, Target: firstLine(statement)})

	defer m.mu.Unlock()

	for fragment, err := range m.sqlErrors {
		if strings.Contains(statement, fragment) {
			return nil, err
		}
	}

	return nil, nil
}

// UntrackTable records an untrack call
func (m *MockGateway) UntrackTable(ctx context.Context, table string) (types.Outcome, error) {
	return m.metadata(ctx, CallUntrack, table)
}

// TrackTable records a track call
func (m *MockGateway) TrackTable(ctx context.Context, table string) (types.Outcome, error) {
	return m.metadata(ctx, CallTrack, table)
}

// CreateObjectRelationship records an object relationship on d.ReferencingTable
func (m *MockGateway) CreateObjectRelationship(ctx context.Context, name string, d types.RelationshipDescriptor) (types.Outcome, error) {
	return m.metadata(ctx, CallObject, d.ReferencingTable+"."+name)
}

// CreateArrayRelationship records an array relationship on d.ReferencedTable
func (m *MockGateway) CreateArrayRelationship(ctx context.Context, name string, d types.RelationshipDescriptor) (types.Outcome, error) {
	return m.metadata(ctx, CallArray, d.ReferencedTable+"."+name)
}

// Calls returns the recorded calls in order
func (m *MockGateway) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}

// CallStrings returns the recorded calls rendered as op(target), optionally filtered by op
func (m *MockGateway) CallStrings(ops ...string) []string {
	var out []string

	for _, c := range m.Calls() {
		if len(ops) > 0 && !containsString(ops, c.Op) {
			continue
		}

		out = append(out, c.String())
	}

	return out
}

// Statements returns every SQL statement received
func (m *MockGateway) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.statements...)
}

// GetCallCount returns the number of calls of one operation
func (m *MockGateway) GetCallCount(op string) int {
	n := 0

	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}

	return n
}

// MockIntrospector returns fixed tables and foreign keys
type MockIntrospector struct {
	Tables    []types.SchemaTable
	Edges     []types.ForeignKeyEdge
	TablesErr error
	EdgesErr  error
}

// ListTables returns the configured tables
func (m *MockIntrospector) ListTables(_ context.Context) ([]types.SchemaTable, error) {
	return m.Tables, m.TablesErr
}

// ListForeignKeys returns the configured edges
func (m *MockIntrospector) ListForeignKeys(_ context.Context) ([]types.ForeignKeyEdge, error) {
	return m.Edges, m.EdgesErr
}

// ErrorInjector provides systematic error injection for testing
type ErrorInjector struct {
	errors map[string]error
	after  map[string]int
	counts map[string]int
	mu     sync.Mutex
}

// NewErrorInjector creates a new error injector
func NewErrorInjector() *ErrorInjector {
	return &ErrorInjector{
		errors: make(map[string]error),
		after:  make(map[string]int),
		counts: make(map[string]int),
	}
}

// InjectError configures an error to be returned for a specific key
func (e *ErrorInjector) InjectError(key string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors[key] = err
	delete(e.after, key)
}

// InjectErrorAfterN configures an error to be returned after N successful calls
func (e *ErrorInjector) InjectErrorAfterN(key string, n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors[key] = err
	e.after[key] = n
}

// ShouldError checks if an error should be returned for the given key
func (e *ErrorInjector) ShouldError(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.counts[key]++

	err, exists := e.errors[key]
	if !exists {
		return nil
	}

	if n, delayed := e.after[key]; delayed && e.counts[key] <= n {
		return nil
	}

	return err
}

// GetCount returns the number of times a key was checked
func (e *ErrorInjector) GetCount(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.counts[key]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
