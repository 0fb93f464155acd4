// Package pipeline runs the stages that turn raw record files into an analysed graph:
// read, normalize, dedup, (reset), constraints, load, analyze, verify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/data/runs"
	"github.com/yungbote/procurement-graph/internal/dedup"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
	runtypes "github.com/yungbote/procurement-graph/internal/domain/runs"
	"github.com/yungbote/procurement-graph/internal/loader"
	"github.com/yungbote/procurement-graph/internal/normalize"
	"github.com/yungbote/procurement-graph/internal/observability"
	"github.com/yungbote/procurement-graph/internal/platform/ctxutil"
	"github.com/yungbote/procurement-graph/internal/platform/dbctx"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
	"github.com/yungbote/procurement-graph/internal/realtime/bus"
	"github.com/yungbote/procurement-graph/internal/risk"
	"github.com/yungbote/procurement-graph/internal/verify"
)

// Stage names.
const (
	StageRead        = "read"
	StageNormalize   = "normalize"
	StageDedup       = "dedup"
	StageReset       = "reset"
	StageConstraints = "constraints"
	StageLoad        = "load"
	StageAnalyze     = "analyze"
	StageVerify      = "verify"
)

// RecordSource resolves input names to raw records.
type RecordSource interface {
	Read(ctx context.Context, inputs []string) ([]normalize.Raw, error)
}

type Deps struct {
	Store   graph.Store
	Source  RecordSource
	Runs    runs.RunRepo
	Bus     bus.Bus
	Metrics *observability.Metrics
	Log     *logger.Logger
	// Now is the verifier's clock.
	Now func() time.Time
}

type Pipeline struct {
	store   graph.Store
	source  RecordSource
	runs    runs.RunRepo
	bus     bus.Bus
	metrics *observability.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func New(d Deps) (*Pipeline, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("pipeline: store required")
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Bus == nil {
		d.Bus = bus.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Pipeline{
		store:   d.Store,
		source:  d.Source,
		runs:    d.Runs,
		bus:     d.Bus,
		metrics: d.Metrics,
		log:     d.Log.With("component", "Pipeline"),
		now:     d.Now,
	}, nil
}

type stage struct {
	name string
	run  func(ctx context.Context, st *runState) (map[string]int, error)
}

// runState carries data between stages of one run.
type runState struct {
	inputs  []string
	raws    []normalize.Raw
	records []procurement.Record
	diag    *Diagnostics
}

// Rebuild empties the graph and rebuilds it from inputs, then analyses and verifies it.
func (p *Pipeline) Rebuild(ctx context.Context, inputs []string) (*Diagnostics, error) {
	return p.run(ctx, runtypes.KindRebuild, inputs, []stage{
		{StageRead, p.read},
		{StageNormalize, p.normalize},
		{StageDedup, p.dedup},
		{StageReset, p.reset},
		{StageConstraints, p.constraints},
		{StageLoad, p.load},
		{StageAnalyze, p.analyze},
		{StageVerify, p.verify},
	})
}

// Load merges inputs into the existing graph. Loading the same inputs again changes nothing.
func (p *Pipeline) Load(ctx context.Context, inputs []string) (*Diagnostics, error) {
	return p.run(ctx, runtypes.KindLoad, inputs, []stage{
		{StageRead, p.read},
		{StageNormalize, p.normalize},
		{StageDedup, p.dedup},
		{StageConstraints, p.constraints},
		{StageLoad, p.load},
	})
}

// Analyze runs the risk passes over the graph as it is.
func (p *Pipeline) Analyze(ctx context.Context) (*Diagnostics, error) {
	return p.run(ctx, runtypes.KindAnalyze, nil, []stage{{StageAnalyze, p.analyze}})
}

func (p *Pipeline) Verify(ctx context.Context) (*Diagnostics, error) {
	return p.run(ctx, runtypes.KindVerify, nil, []stage{{StageVerify, p.verify}})
}

func (p *Pipeline) run(ctx context.Context, kind runtypes.Kind, inputs []string, stages []stage) (*Diagnostics, error) {
	diag := &Diagnostics{Kind: string(kind), StartedAt: time.Now().UTC(), Stages: []StageTiming{}}
	diag.RunID = p.startRun(ctx, kind, inputs)
	ctx = ctxutil.WithRunID(ctx, diag.RunID)
	log := p.log.With(ctxutil.LogFields(ctx)...)

	ctx, span := observability.Tracer().Start(ctx, "pipeline."+string(kind))
	span.SetAttributes(
		attribute.String("run.id", diag.RunID),
		attribute.Int("run.inputs", len(inputs)),
	)
	defer span.End()

	log.Info("run started", "kind", kind, "inputs", len(inputs))
	st := &runState{inputs: inputs, diag: diag}
	var runErr *StepError
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			runErr = newStepError(s.name, err)
			break
		}
		if err := p.runStage(ctx, log, st, s); err != nil {
			runErr = newStepError(s.name, err)
			break
		}
	}

	diag.FinishedAt = time.Now().UTC()
	status := runtypes.StatusSucceeded
	if runErr != nil {
		status = runtypes.StatusFailed
		diag.FailedStep = runErr.Step
		diag.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Error("run failed", "kind", kind, "stage", runErr.Stage, "step", runErr.Step, "error", runErr.Err)
	} else {
		log.Info("run finished", "kind", kind, "duration_ms", diag.FinishedAt.Sub(diag.StartedAt).Milliseconds())
	}
	p.metrics.IncRun(string(kind), status)
	p.finishRun(ctx, log, diag, status)

	if runErr != nil {
		return diag, runErr
	}
	return diag, nil
}

func (p *Pipeline) runStage(ctx context.Context, log *logger.Logger, st *runState, s stage) error {
	ctx, span := observability.Tracer().Start(ctx, "pipeline.stage."+s.name)
	defer span.End()

	p.emit(ctx, log, st.diag, s.name, runtypes.StatusRunning, nil, nil)
	start := time.Now()
	counts, err := s.run(ctx, st)
	took := time.Since(start)

	status := runtypes.StatusSucceeded
	if err != nil {
		status = runtypes.StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	for k, v := range counts {
		span.SetAttributes(attribute.Int("stage."+k, v))
	}
	st.diag.Stages = append(st.diag.Stages, StageTiming{Name: s.name, Status: status, DurationMS: took.Milliseconds()})
	p.metrics.ObserveStage(s.name, status, took)
	p.emit(ctx, log, st.diag, s.name, status, counts, err)
	log.Debug("stage done", "stage", s.name, "status", status, "duration_ms", took.Milliseconds())
	return err
}

func (p *Pipeline) read(ctx context.Context, st *runState) (map[string]int, error) {
	if p.source == nil {
		return nil, fmt.Errorf("no record source configured")
	}
	raws, err := p.source.Read(ctx, st.inputs)
	if err != nil {
		return nil, err
	}
	st.raws = raws
	st.diag.RawRecords = len(raws)
	return map[string]int{"records": len(raws)}, nil
}

func (p *Pipeline) normalize(_ context.Context, st *runState) (map[string]int, error) {
	recs, rejected := normalize.NormalizeAll(st.raws)
	st.raws = nil
	st.records = recs
	st.diag.Normalized = len(recs)
	st.diag.Rejected = len(rejected)
	for i, r := range rejected {
		if i == maxRejectionSamples {
			break
		}
		st.diag.RejectionSamples = append(st.diag.RejectionSamples, r.Err.Error())
	}
	if len(rejected) > 0 {
		p.log.Warn("records rejected", "count", len(rejected), "first", rejected[0].Err)
	}
	p.metrics.AddRecords("ingested", len(recs))
	p.metrics.AddRecords("rejected", len(rejected))
	return map[string]int{"normalized": len(recs), "rejected": len(rejected)}, nil
}

func (p *Pipeline) dedup(_ context.Context, st *runState) (map[string]int, error) {
	res := dedup.Deduplicate(st.records)
	st.records = res.Records
	st.diag.Duplicates = res.TotalDiscarded
	st.diag.DuplicateGroups = res.Groups
	st.diag.ContractsWithoutAward = res.ContractsWithoutAward
	p.metrics.AddRecords("deduplicated", res.TotalDiscarded)
	return map[string]int{
		"kept":                    len(res.Records),
		"discarded":               res.TotalDiscarded,
		"contracts_without_award": res.ContractsWithoutAward,
	}, nil
}

func (p *Pipeline) reset(ctx context.Context, _ *runState) (map[string]int, error) {
	return nil, p.store.ResetAll(ctx)
}

func (p *Pipeline) constraints(ctx context.Context, _ *runState) (map[string]int, error) {
	return nil, p.store.EnsureConstraints(ctx)
}

func (p *Pipeline) load(ctx context.Context, st *runState) (map[string]int, error) {
	l := loader.New(p.store, p.log)
	stats, err := l.Load(ctx, st.records)
	st.diag.Load = &stats
	if err != nil {
		return nil, err
	}
	for kind, rs := range stats.Relationships {
		p.metrics.AddSkippedRelationships(string(kind), rs.Skipped)
	}
	p.metrics.AddDroppedContracts(stats.DroppedContracts)
	return map[string]int{
		"created":               stats.Created(),
		"skipped_relationships": stats.SkippedRelationships(),
		"dropped_contracts":     stats.DroppedContracts,
	}, nil
}

func (p *Pipeline) analyze(ctx context.Context, st *runState) (map[string]int, error) {
	eng := risk.NewEngine(p.store, p.log)
	eng.OnPass = func(pr risk.PassResult) {
		p.metrics.AddRiskWrites(pr.Name, pr.EntitiesUpdated+pr.EdgesCreated+pr.EdgesUpdated)
	}
	res, err := eng.Run(ctx)
	st.diag.Risk = &res
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, pr := range res.Passes {
		counts[pr.Name] = pr.EntitiesUpdated + pr.EdgesCreated + pr.EdgesUpdated
	}
	return counts, nil
}

func (p *Pipeline) verify(ctx context.Context, st *runState) (map[string]int, error) {
	rep, err := verify.New(p.store, p.log, p.now).Run(ctx)
	if err != nil {
		return nil, err
	}
	st.diag.Verify = &rep
	in := rep.Integrity
	return map[string]int{
		"duplicate_procurements":  len(in.DuplicateProcurements),
		"orphan_awards":           in.OrphanAwards,
		"missing_required_fields": in.MissingRequiredFields,
		"future_dated":            in.FutureDated,
	}, nil
}

func (p *Pipeline) startRun(ctx context.Context, kind runtypes.Kind, inputs []string) string {
	if p.runs == nil {
		return uuid.New().String()
	}
	run, err := p.runs.Create(dbctx.New(ctx), kind, inputs)
	if err != nil {
		p.log.Warn("run ledger create failed (continuing)", "error", err)
		return uuid.New().String()
	}
	return run.ID.String()
}

func (p *Pipeline) finishRun(ctx context.Context, log *logger.Logger, diag *Diagnostics, status string) {
	if p.runs == nil {
		return
	}
	id, err := uuid.Parse(diag.RunID)
	if err != nil {
		return
	}
	// The run context may already be cancelled; the ledger row must still be closed.
	dbc := dbctx.New(context.WithoutCancel(ctx))
	if err := p.runs.Finish(dbc, id, status, diag.FailedStep, diag.Error, diag); err != nil {
		if !errors.Is(err, runs.ErrNotFound) {
			log.Warn("run ledger finish failed", "error", err)
		}
	}
}

func (p *Pipeline) emit(ctx context.Context, log *logger.Logger, diag *Diagnostics, stageName, status string, counts map[string]int, stageErr error) {
	ev := bus.Event{
		RunID:  diag.RunID,
		Kind:   diag.Kind,
		Stage:  stageName,
		Status: status,
		Counts: counts,
		At:     time.Now().UTC(),
	}
	if stageErr != nil {
		ev.Error = stageErr.Error()
	}
	if err := p.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn("publish run event failed", "stage", stageName, "error", err)
	}
	if p.runs == nil || status == runtypes.StatusRunning {
		return
	}
	id, err := uuid.Parse(diag.RunID)
	if err != nil {
		return
	}
	if err := p.runs.AppendEvent(dbctx.New(context.WithoutCancel(ctx)), id, stageName, status, counts, ev.Error); err != nil {
		log.Warn("run ledger event failed", "stage", stageName, "error", err)
	}
}
