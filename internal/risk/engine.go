// Package risk derives fraud indicators from a loaded procurement graph. Every pass is
// a pure function from a graph snapshot to a set of writes; the Engine applies them.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

type EntityWrite struct {
	Kind  procurement.EntityKind
	Key   string
	Attrs graph.Attributes
}

// EdgeWrite creates the edge if needed and then sets Attrs on it.
type EdgeWrite struct {
	Kind  procurement.RelKind
	From  string
	To    string
	Attrs graph.Attributes
}

type Writes struct {
	Entities []EntityWrite
	Edges    []EdgeWrite
}

func (w *Writes) entity(kind procurement.EntityKind, key string, attrs graph.Attributes) {
	w.Entities = append(w.Entities, EntityWrite{Kind: kind, Key: key, Attrs: attrs})
}

func (w *Writes) edge(kind procurement.RelKind, from, to string, attrs graph.Attributes) {
	w.Edges = append(w.Edges, EdgeWrite{Kind: kind, From: from, To: to, Attrs: attrs})
}

func (w Writes) Len() int { return len(w.Entities) + len(w.Edges) }

type Pass struct {
	Name string
	Run  func(*graph.Snapshot) Writes
}

// Pass names.
const (
	PassTemporal          = "temporal_correlation"
	PassSupplierFrequency = "supplier_frequency"
	PassQuickAward        = "quick_award"
	PassCategoryOutliers  = "category_outliers"
	PassRegional          = "regional_cooperation"
	PassSplitting         = "spend_splitting"
	PassDailyActivity     = "daily_activity"
)

// DefaultPasses is every pass, in the order they are applied.
func DefaultPasses() []Pass {
	return []Pass{
		{PassTemporal, TemporalCorrelation},
		{PassSupplierFrequency, SupplierFrequency},
		{PassQuickAward, QuickAwards},
		{PassCategoryOutliers, CategoryOutliers},
		{PassRegional, RegionalCooperation},
		{PassSplitting, SpendSplitting},
		{PassDailyActivity, DailyActivity},
	}
}

// PassError reports the pass whose writes failed. Passes after it are not applied.
type PassError struct {
	Pass string
	Err  error
}

func (e *PassError) Error() string { return fmt.Sprintf("risk pass %s: %v", e.Pass, e.Err) }
func (e *PassError) Unwrap() error { return e.Err }

type PassResult struct {
	Name            string        `json:"name"`
	EntitiesUpdated int           `json:"entitiesUpdated"`
	EdgesCreated    int           `json:"edgesCreated"`
	EdgesUpdated    int           `json:"edgesUpdated"`
	Missing         int           `json:"missing"`
	Duration        time.Duration `json:"duration"`
}

type Result struct {
	Passes []PassResult `json:"passes"`
	Report Report       `json:"report"`
}

type Engine struct {
	store  graph.Store
	log    *logger.Logger
	passes []Pass

	// OnPass, when set, is called after each applied pass.
	OnPass func(PassResult)
}

func NewEngine(store graph.Store, log *logger.Logger, passes ...Pass) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if len(passes) == 0 {
		passes = DefaultPasses()
	}
	return &Engine{store: store, log: log.With("component", "RiskEngine"), passes: passes}
}

// Run computes every pass from one snapshot of the graph, so no pass sees another
// pass's output, then applies the writes pass by pass.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot graph: %w", err)
	}

	var res Result
	for _, p := range e.passes {
		start := time.Now()
		writes := p.Run(snap)
		pr, err := e.apply(ctx, p.Name, writes)
		if err != nil {
			e.log.Error("risk pass failed", "pass", p.Name, "error", err)
			return res, &PassError{Pass: p.Name, Err: err}
		}
		pr.Duration = time.Since(start)
		res.Passes = append(res.Passes, pr)
		e.log.Debug("risk pass applied",
			"pass", p.Name,
			"entities", pr.EntitiesUpdated,
			"edges_created", pr.EdgesCreated,
			"edges_updated", pr.EdgesUpdated,
		)
		if e.OnPass != nil {
			e.OnPass(pr)
		}
	}

	after, err := e.store.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("snapshot graph: %w", err)
	}
	res.Report = BuildReport(after)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, name string, w Writes) (PassResult, error) {
	pr := PassResult{Name: name}
	for _, ew := range w.Entities {
		ok, err := e.store.SetEntityAttributes(ctx, ew.Kind, ew.Key, ew.Attrs)
		if err != nil {
			return pr, err
		}
		if ok {
			pr.EntitiesUpdated++
		} else {
			pr.Missing++
		}
	}
	for _, ew := range w.Edges {
		out, err := e.store.UpsertRelationship(ctx, ew.Kind, ew.From, ew.To, ew.Attrs)
		if err != nil {
			return pr, err
		}
		switch out {
		case graph.RelCreated:
			pr.EdgesCreated++
		case graph.RelExisting:
			if _, err := e.store.SetRelationshipAttributes(ctx, ew.Kind, ew.From, ew.To, ew.Attrs); err != nil {
				return pr, err
			}
			pr.EdgesUpdated++
		default:
			pr.Missing++
		}
	}
	return pr, nil
}
