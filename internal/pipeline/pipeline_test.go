package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/data/runs"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
	runtypes "github.com/yungbote/procurement-graph/internal/domain/runs"
	"github.com/yungbote/procurement-graph/internal/loader"
	"github.com/yungbote/procurement-graph/internal/normalize"
	"github.com/yungbote/procurement-graph/internal/observability"
	"github.com/yungbote/procurement-graph/internal/platform/dbctx"
	"github.com/yungbote/procurement-graph/internal/realtime/bus"
	"github.com/yungbote/procurement-graph/internal/risk"
	"github.com/yungbote/procurement-graph/internal/source"
)

const recordsJSON = `{"records": [
  {"ocid": "ocds-1", "id": "rel-1b", "publishedDate": "2024-03-01T08:00:00Z",
   "buyer": {"id": "B1", "name": "Muni"},
   "tender": {"id": "T1", "title": "old version"}},
  {"ocid": "ocds-1", "id": "rel-1", "publishedDate": "2024-03-04T10:00:00Z",
   "buyer": {"id": "B1", "name": "Muni"},
   "parties": [
     {"id": "B1", "name": "Muni", "roles": ["buyer"], "address": {"region": "LIMA"}},
     {"id": "S1", "name": "Acme", "address": {"region": "LIMA"}}
   ],
   "tender": {"id": "T1", "title": "Papel", "procurementMethod": "open",
              "mainProcurementCategory": "goods", "value": {"amount": 1000, "currency": "PEN"},
              "items": [{"id": "I1", "description": "papel", "quantity": 5}]},
   "awards": [{"id": "A1", "date": "2024-03-04T16:00:00Z", "value": {"amount": 950, "currency": "PEN"},
               "suppliers": [{"id": "S1", "name": "Acme"}]}],
   "contracts": [{"id": "C1", "awardID": "A1", "value": {"amount": 950}}]},
  {"ocid": "ocds-2", "id": "rel-2", "publishedDate": "2024-03-10T10:00:00Z",
   "buyer": {"id": "B1", "name": "Muni"},
   "parties": [{"id": "S2", "name": "Beta", "address": {"region": "LIMA"}}],
   "tender": {"id": "T2", "title": "Toner", "procurementMethod": "open",
              "mainProcurementCategory": "goods", "value": {"amount": 400, "currency": "PEN"}},
   "awards": [{"id": "A2", "date": "2024-03-20T10:00:00Z", "value": {"amount": 390, "currency": "PEN"},
               "suppliers": [{"id": "S2", "name": "Beta"}]}]},
  {"id": "no-ocid", "tender": {"title": "orphan"}}
]}`

type staticSource struct {
	raws []normalize.Raw
	err  error
}

func (s staticSource) Read(context.Context, []string) ([]normalize.Raw, error) {
	return s.raws, s.err
}

func fixtureSource(t *testing.T) staticSource {
	t.Helper()
	raws, err := source.Decode([]byte(recordsJSON))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return staticSource{raws: raws}
}

type recordingBus struct {
	mu     sync.Mutex
	events []bus.Event
}

func (b *recordingBus) Publish(_ context.Context, ev bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) StartForwarder(context.Context, func(bus.Event)) error { return nil }

func (b *recordingBus) Close() error { return nil }

func ledgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := runs.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func fixedNow() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

func newPipeline(t *testing.T, store graph.Store, src RecordSource, repo runs.RunRepo, b bus.Bus) *Pipeline {
	t.Helper()
	p, err := New(Deps{Store: store, Source: src, Runs: repo, Bus: b, Metrics: observability.NewMetrics(), Now: fixedNow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestRebuildEndToEnd(t *testing.T) {
	store := graph.NewMemoryStore()
	repo := runs.NewRunRepo(ledgerDB(t), nil)
	events := &recordingBus{}
	p := newPipeline(t, store, fixtureSource(t), repo, events)

	diag, err := p.Rebuild(context.Background(), []string{"records.json"})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if diag.RawRecords != 4 || diag.Normalized != 3 || diag.Rejected != 1 || diag.Duplicates != 1 {
		t.Fatalf("counts: raw=%d normalized=%d rejected=%d dups=%d", diag.RawRecords, diag.Normalized, diag.Rejected, diag.Duplicates)
	}
	if len(diag.RejectionSamples) != 1 || !strings.Contains(diag.RejectionSamples[0], normalize.ErrMissingIdentifier.Error()) {
		t.Fatalf("rejection samples: %v", diag.RejectionSamples)
	}

	wantStages := []string{StageRead, StageNormalize, StageDedup, StageReset, StageConstraints, StageLoad, StageAnalyze, StageVerify}
	if len(diag.Stages) != len(wantStages) {
		t.Fatalf("stages: got %d, want %d", len(diag.Stages), len(wantStages))
	}
	for i, s := range diag.Stages {
		if s.Name != wantStages[i] || s.Status != runtypes.StatusSucceeded {
			t.Fatalf("stage %d: %+v", i, s)
		}
	}

	snap, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	p1, ok := snap.Node(procurement.KindProcurement, "ocds-1")
	if !ok {
		t.Fatalf("ocds-1 not loaded")
	}
	if got := p1.Attrs.String(procurement.AttrTitle); got != "Papel" {
		t.Fatalf("dedup kept wrong version, title=%q", got)
	}
	if !p1.Attrs.Bool("quickAward") || p1.Attrs.String("awardSpeed") != string(procurement.SpeedSameDay) {
		t.Fatalf("quick award not flagged: %v", p1.Attrs)
	}
	if diag.Risk == nil || len(diag.Risk.Passes) != len(risk.DefaultPasses()) {
		t.Fatalf("risk passes not recorded: %+v", diag.Risk)
	}
	if diag.Verify == nil || len(diag.Verify.Integrity.DuplicateProcurements) != 0 || diag.Verify.Integrity.OrphanAwards != 0 {
		t.Fatalf("integrity: %+v", diag.Verify)
	}
	if diag.Verify.Census.Nodes[procurement.KindProcurement] != 2 {
		t.Fatalf("census: %+v", diag.Verify.Census.Nodes)
	}

	id := uuid.MustParse(diag.RunID)
	run, err := repo.Get(dbctx.New(context.Background()), id)
	if err != nil {
		t.Fatalf("ledger Get: %v", err)
	}
	if run.Status != runtypes.StatusSucceeded || run.Kind != string(runtypes.KindRebuild) || run.FinishedAt == nil {
		t.Fatalf("ledger run: %+v", run)
	}
	ledgerEvents, err := repo.Events(dbctx.New(context.Background()), id)
	if err != nil || len(ledgerEvents) != len(wantStages) {
		t.Fatalf("ledger events: %d (%v)", len(ledgerEvents), err)
	}

	// one running + one finished event per stage
	if len(events.events) != 2*len(wantStages) {
		t.Fatalf("bus events: got %d", len(events.events))
	}
	for _, ev := range events.events {
		if ev.RunID != diag.RunID {
			t.Fatalf("event run id %q, want %q", ev.RunID, diag.RunID)
		}
	}
}

func TestLoadTwiceIsIdempotent(t *testing.T) {
	store := graph.NewMemoryStore()
	p := newPipeline(t, store, fixtureSource(t), nil, nil)

	first, err := p.Load(context.Background(), []string{"records.json"})
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if first.Load == nil || first.Load.Created() == 0 {
		t.Fatalf("first load created nothing")
	}
	second, err := p.Load(context.Background(), []string{"records.json"})
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if n := second.Load.Created(); n != 0 {
		t.Fatalf("second load created %d", n)
	}
	if second.Risk != nil || second.Verify != nil {
		t.Fatalf("load should not analyze or verify")
	}
}

type failingUpsertStore struct {
	*graph.MemoryStore
	failKind procurement.EntityKind
}

func (s failingUpsertStore) UpsertEntity(ctx context.Context, kind procurement.EntityKind, key string, attrs graph.Attributes) (bool, error) {
	if kind == s.failKind {
		return false, errors.New("connection reset")
	}
	return s.MemoryStore.UpsertEntity(ctx, kind, key, attrs)
}

func TestStoreFailureAbortsRun(t *testing.T) {
	store := failingUpsertStore{MemoryStore: graph.NewMemoryStore(), failKind: procurement.KindAward}
	repo := runs.NewRunRepo(ledgerDB(t), nil)
	p := newPipeline(t, store, fixtureSource(t), repo, nil)

	diag, err := p.Rebuild(context.Background(), []string{"records.json"})
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if se.Stage != StageLoad || se.Step != loader.StepAwards {
		t.Fatalf("step error: stage=%q step=%q", se.Stage, se.Step)
	}
	if diag.Risk != nil || diag.Verify != nil {
		t.Fatalf("stages after the failure must not run")
	}
	last := diag.Stages[len(diag.Stages)-1]
	if last.Name != StageLoad || last.Status != runtypes.StatusFailed {
		t.Fatalf("last stage: %+v", last)
	}

	run, gerr := repo.Get(dbctx.New(context.Background()), uuid.MustParse(diag.RunID))
	if gerr != nil {
		t.Fatalf("ledger Get: %v", gerr)
	}
	if run.Status != runtypes.StatusFailed || run.FailedStep != loader.StepAwards || run.Error == "" {
		t.Fatalf("ledger run: %+v", run)
	}
}

type failingSetStore struct {
	*graph.MemoryStore
}

func (s failingSetStore) SetEntityAttributes(context.Context, procurement.EntityKind, string, graph.Attributes) (bool, error) {
	return false, errors.New("write timeout")
}

func TestAnalyzeFailureNamesPass(t *testing.T) {
	store := failingSetStore{MemoryStore: graph.NewMemoryStore()}
	p := newPipeline(t, store, fixtureSource(t), nil, nil)
	if _, err := p.Load(context.Background(), []string{"records.json"}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err := p.Analyze(context.Background())
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected StepError, got %v", err)
	}
	// temporal correlation only writes edges; no supplier reaches three awards
	if se.Stage != StageAnalyze || se.Step != risk.PassQuickAward {
		t.Fatalf("step error: stage=%q step=%q", se.Stage, se.Step)
	}
}

func TestReadFailure(t *testing.T) {
	p := newPipeline(t, graph.NewMemoryStore(), staticSource{err: errors.New("bucket gone")}, nil, nil)
	_, err := p.Rebuild(context.Background(), []string{"gs://raw/"})
	var se *StepError
	if !errors.As(err, &se) || se.Stage != StageRead || se.Step != StageRead {
		t.Fatalf("expected read StepError, got %v", err)
	}
}

func TestVerifyOnly(t *testing.T) {
	store := graph.NewMemoryStore()
	p := newPipeline(t, store, fixtureSource(t), nil, nil)
	if _, err := p.Load(context.Background(), []string{"records.json"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	diag, err := p.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if diag.Verify == nil || diag.Verify.Census.Nodes[procurement.KindSupplier] != 2 {
		t.Fatalf("census: %+v", diag.Verify)
	}
	if !diag.Verify.CheckedAt.Equal(fixedNow()) {
		t.Fatalf("verifier clock not injected: %v", diag.Verify.CheckedAt)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatalf("expected error without store")
	}
}
