// Package orchestrator runs a synchronization: introspect the schema, untrack everything,
// run scripts and materialize views, then track every table and relationship again.
// Each phase joins on all of its items before the next one starts.
package orchestrator

import (
	"context"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kyleking/qik-trak/internal/config"
	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/hasura"
	"github.com/kyleking/qik-trak/internal/logging"
	"github.com/kyleking/qik-trak/internal/names"
	"github.com/kyleking/qik-trak/internal/types"
	"github.com/kyleking/qik-trak/internal/views"
)

// Operation names recorded in results alongside the metadata operation types
const (
	OpRunScript  = "run_script"
	OpLoadViews  = "load_views"
	OpCreateView = "create_view"
	OpExtract    = "extract_relationships"
	OpValidate   = "validate_relationship"
)

// Gateway is the metadata API used by a run
type Gateway interface {
	RequireCredentials() error
	WaitReady(ctx context.Context, timeout time.Duration) error
	RunSQL(ctx context.Context, statement string) ([][]string, error)
	UntrackTable(ctx context.Context, table string) (types.Outcome, error)
	TrackTable(ctx context.Context, table string) (types.Outcome, error)
	CreateObjectRelationship(ctx context.Context, name string, d types.RelationshipDescriptor) (types.Outcome, error)
	CreateArrayRelationship(ctx context.Context, name string, d types.RelationshipDescriptor) (types.Outcome, error)
}

// Introspector lists the tables and foreign keys of the target schema
type Introspector interface {
	ListTables(ctx context.Context) ([]types.SchemaTable, error)
	ListForeignKeys(ctx context.Context) ([]types.ForeignKeyEdge, error)
}

// Orchestrator sequences the phases of a run
type Orchestrator struct {
	cfg          *config.Config
	gateway      Gateway
	introspector Introspector
	logger       *logging.Logger
	policy       names.Policy
	pool         *WorkerPool
	pending      *pendingRelationships
	readFile     func(string) ([]byte, error)
}

// New creates an orchestrator. cfg is read, never modified.
func New(cfg *config.Config, gateway Gateway, introspector Introspector, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}

	return &Orchestrator{
		cfg:          cfg,
		gateway:      gateway,
		introspector: introspector,
		logger:       logger,
		policy:       names.NewPolicy(cfg.KeyColumnSuffix, names.Style(strings.ToLower(cfg.NamingStyle))),
		pool:         NewWorkerPool(cfg.Runtime.Concurrency),
		pending:      &pendingRelationships{},
		readFile:     os.ReadFile,
	}
}

// Run executes every enabled phase. The error is non-nil only for fatal conditions:
// missing credentials, readiness, introspection or cancellation. Per-item failures are in the report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := newReport(o.cfg.TargetSchema, o.cfg.TargetDatabase)
	logger := o.logger.WithFields(map[string]interface{}{
		"run_id": report.RunID,
		"schema": o.cfg.TargetSchema,
	})

	fail := func(err error) (*Report, error) {
		report.Fatal = err
		report.FinishedAt = time.Now()
		logger.ErrorWithErr("Synchronization aborted", err)

		return report, err
	}

	logger.Info("Starting synchronization")

	if err := o.gateway.RequireCredentials(); err != nil {
		return fail(err)
	}

	err := o.runPhase(report, PhaseWaitReady, func() error {
		return o.gateway.WaitReady(ctx, o.cfg.StartupTimeout())
	})
	if err != nil {
		return fail(err)
	}

	var (
		tables []types.SchemaTable
		edges  []types.ForeignKeyEdge
	)

	err = o.runPhase(report, PhaseIntrospect, func() error {
		var introspectErr error
		tables, edges, introspectErr = o.introspect(ctx)

		return introspectErr
	})
	if err != nil {
		return fail(err)
	}

	report.Tables = types.TableNames(tables)
	report.ForeignKeys = len(edges)
	logger.WithFields(map[string]interface{}{
		"tables":       len(tables),
		"foreign_keys": len(edges),
	}).Info("Introspected schema")

	ops := o.cfg.Operations

	if ops.Untrack {
		_ = o.runPhase(report, PhaseUntrack, func() error {
			o.forEachTable(ctx, report, PhaseUntrack, hasura.OpUntrackTable, report.Tables, o.gateway.UntrackTable)
			return nil
		})
	}

	if ops.ExecuteSQLScripts {
		_ = o.runPhase(report, PhasePreScripts, func() error {
			o.runScripts(ctx, report, PhasePreScripts, o.cfg.Scripts.BeforeViews)
			return nil
		})
	}

	if ops.CreateJSONViews {
		_ = o.runPhase(report, PhaseViews, func() error {
			report.Views = o.materializeViews(ctx, report)
			return nil
		})
	}

	if ops.ExecuteSQLScripts {
		_ = o.runPhase(report, PhasePostScripts, func() error {
			o.runScripts(ctx, report, PhasePostScripts, o.cfg.Scripts.AfterViews)
			return nil
		})
	}

	if ops.TrackTables {
		_ = o.runPhase(report, PhaseTrackTables, func() error {
			o.forEachTable(ctx, report, PhaseTrackTables, hasura.OpTrackTable,
				unionNames(report.Tables, report.Views), o.gateway.TrackTable)
			return nil
		})
	}

	if ops.TrackRelationships {
		_ = o.runPhase(report, PhaseTrackRelationships, func() error {
			o.trackRelationships(ctx, report, edges)
			return nil
		})
	}

	if err := ctx.Err(); err != nil {
		return fail(errors.Wrap(err, errors.ErrTypeInternal, "synchronization interrupted"))
	}

	report.FinishedAt = time.Now()

	logger.WithFields(map[string]interface{}{
		"succeeded":  report.Count(types.OutcomeSuccess),
		"idempotent": report.Count(types.OutcomeIdempotent),
		"failed":     len(report.Failures()),
		"duration":   report.Duration().Round(time.Millisecond),
	}).Info("Synchronization finished")

	return report, nil
}

// runPhase times a phase and records its duration
func (o *Orchestrator) runPhase(report *Report, phase Phase, fn func() error) error {
	start := time.Now()
	err := o.logger.Timed(string(phase), fn)
	report.addTiming(phase, time.Since(start))

	return err
}

// introspect lists tables and foreign keys concurrently; either failure is fatal
func (o *Orchestrator) introspect(ctx context.Context) ([]types.SchemaTable, []types.ForeignKeyEdge, error) {
	var (
		tables []types.SchemaTable
		edges  []types.ForeignKeyEdge
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t, err := o.introspector.ListTables(gctx)
		if err != nil {
			return errors.NewIntrospectionError(err, "tables", o.cfg.TargetSchema)
		}

		tables = t

		return nil
	})

	g.Go(func() error {
		e, err := o.introspector.ListForeignKeys(gctx)
		if err != nil {
			return errors.NewIntrospectionError(err, "foreign keys", o.cfg.TargetSchema)
		}

		edges = e

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return tables, edges, nil
}

// record stores a result and logs it with its context
func (o *Orchestrator) record(report *Report, res Result) {
	report.add(res)

	logger := o.logger.WithFields(map[string]interface{}{
		"phase":     string(res.Phase),
		"operation": res.Operation,
		"target":    res.Target,
	})

	switch {
	case res.Err != nil && res.Outcome == types.OutcomeFailed:
		logger.ErrorWithErr("Item failed", res.Err)
	case res.Err != nil:
		logger.WithError(res.Err).Warn("Item skipped")
	case res.Outcome == types.OutcomeIdempotent:
		logger.Debug("Already in the desired state")
	case res.Outcome == types.OutcomeSkipped:
		logger.Debug("Nothing to do")
	default:
		logger.Info("Done")
	}
}

// forEachTable applies fn to every table on the worker pool
func (o *Orchestrator) forEachTable(
	ctx context.Context,
	report *Report,
	phase Phase,
	operation string,
	tables []string,
	fn func(context.Context, string) (types.Outcome, error),
) {
	tasks := make([]Task, len(tables))
	for i, table := range tables {
		tasks[i] = Task{
			ID: table,
			Func: func(ctx context.Context) (types.Outcome, error) {
				return fn(ctx, table)
			},
		}
	}

	for _, r := range o.pool.Execute(ctx, tasks) {
		o.record(report, Result{Phase: phase, Operation: operation, Target: r.ID, Outcome: r.Outcome, Err: r.Error})
	}
}

// runScripts executes script files one at a time in list order
func (o *Orchestrator) runScripts(ctx context.Context, report *Report, phase Phase, paths []string) {
	for _, path := range paths {
		res := Result{Phase: phase, Operation: OpRunScript, Target: path}

		if err := ctx.Err(); err != nil {
			res.Outcome, res.Err = types.OutcomeSkipped, err
			o.record(report, res)

			continue
		}

		data, err := o.readFile(path)
		if err != nil {
			res.Outcome = types.OutcomeFailed
			res.Err = errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to read script %s", path)
			o.record(report, res)

			continue
		}

		if strings.TrimSpace(string(data)) == "" {
			res.Outcome = types.OutcomeSkipped
			o.record(report, res)

			continue
		}

		if _, err := o.gateway.RunSQL(ctx, string(data)); err != nil {
			res.Outcome, res.Err = types.OutcomeFailed, err
		} else {
			res.Outcome = types.OutcomeSuccess
		}

		o.record(report, res)
	}
}

// materializeViews compiles and creates every configured view in order and collects
// their declared relationships. It returns the names of the views created.
func (o *Orchestrator) materializeViews(ctx context.Context, report *Report) []string {
	var created []string

	for _, path := range o.cfg.Views {
		specs, err := views.LoadFile(path)
		if err != nil {
			o.record(report, Result{Phase: PhaseViews, Operation: OpLoadViews, Target: path, Outcome: types.OutcomeFailed, Err: err})
			continue
		}

		for _, v := range specs {
			if o.createView(ctx, report, v) {
				created = append(created, v.Name)
			}
		}
	}

	return created
}

func (o *Orchestrator) createView(ctx context.Context, report *Report, v views.ViewSpec) bool {
	res := Result{Phase: PhaseViews, Operation: OpCreateView, Target: v.Name}

	if err := ctx.Err(); err != nil {
		res.Outcome, res.Err = types.OutcomeSkipped, err
		o.record(report, res)

		return false
	}

	statement, err := views.Compile(o.cfg.TargetSchema, v)
	if err != nil {
		res.Outcome, res.Err = types.OutcomeFailed, err
		o.record(report, res)

		return false
	}

	if o.cfg.DumpViewSQL {
		o.logger.WithField("view", v.Name).Info(statement)
	}

	if _, err := o.gateway.RunSQL(ctx, statement); err != nil {
		res.Outcome, res.Err = types.OutcomeFailed, err
		o.record(report, res)

		return false
	}

	res.Outcome = types.OutcomeSuccess
	o.record(report, res)

	rels, err := views.ExtractRelationships(v)
	if err != nil {
		o.record(report, Result{Phase: PhaseViews, Operation: OpExtract, Target: v.Name, Outcome: types.OutcomeFailed, Err: err})
	} else {
		o.pending.Add(rels...)
	}

	return true
}

// trackRelationships names every merged descriptor and creates both directions
func (o *Orchestrator) trackRelationships(ctx context.Context, report *Report, edges []types.ForeignKeyEdge) {
	descriptors, dropped := MergeRelationships(edges, o.pending.Drain())
	for _, d := range dropped {
		o.logger.WithField("relationship", d.Key()).Debug("View relationship duplicates a foreign key")
	}

	report.Relationships = len(descriptors)

	registry := names.NewRegistry()

	var (
		tasks      []Task
		operations []string
	)

	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			o.record(report, Result{
				Phase:     PhaseTrackRelationships,
				Operation: OpValidate,
				Target:    d.Key(),
				Outcome:   types.OutcomeFailed,
				Err:       errors.Wrap(err, errors.ErrTypeValidation, "invalid relationship"),
			})

			continue
		}

		directions := []struct {
			operation string
			table     string
			name      string
			create    func(context.Context, string, types.RelationshipDescriptor) (types.Outcome, error)
		}{
			{hasura.OpCreateObjectRelationship, d.ReferencingTable, o.policy.ObjectRelationshipName(d), o.gateway.CreateObjectRelationship},
			{hasura.OpCreateArrayRelationship, d.ReferencedTable, o.policy.ArrayRelationshipName(d), o.gateway.CreateArrayRelationship},
		}

		for _, dir := range directions {
			target := dir.table + "." + dir.name

			if err := registry.Claim(dir.table, dir.name, d.Key()+" ("+dir.operation+")"); err != nil {
				o.record(report, Result{
					Phase:     PhaseTrackRelationships,
					Operation: dir.operation,
					Target:    target,
					Outcome:   types.OutcomeSkipped,
					Err:       err,
				})

				continue
			}

			name, create, desc := dir.name, dir.create, d

			tasks = append(tasks, Task{
				ID: target,
				Func: func(ctx context.Context) (types.Outcome, error) {
					return create(ctx, name, desc)
				},
			})
			operations = append(operations, dir.operation)
		}
	}

	for i, r := range o.pool.Execute(ctx, tasks) {
		o.record(report, Result{
			Phase:     PhaseTrackRelationships,
			Operation: operations[i],
			Target:    r.ID,
			Outcome:   r.Outcome,
			Err:       r.Error,
		})
	}
}

// unionNames appends the names from extra not already in base, keeping order
func unionNames(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))

	for _, list := range [][]string{base, extra} {
		for _, n := range list {
			if seen[n] {
				continue
			}

			seen[n] = true
			out = append(out, n)
		}
	}

	return out
}
