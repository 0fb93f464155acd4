package loader

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

func sampleRecords() []procurement.Record {
	return []procurement.Record{
		{
			OCID:          "ocds-1",
			PublishedDate: "2024-03-01T10:00:00Z",
			Buyer:         procurement.Buyer{ID: "B1", Name: "MUNICIPALIDAD"},
			Parties: []procurement.Party{
				{ID: "B1", Name: "Municipalidad", TaxID: "2010", Region: "LIMA", Email: "compras@muni.gob.pe"},
			},
			Tender: procurement.Tender{
				ID:           "T1",
				Title:        "Laptops",
				MainCategory: "goods",
				Items: []procurement.Item{
					{ID: "I1", Description: "laptop", Quantity: 10},
					{ID: "I2"},
				},
			},
			Awards: []procurement.Award{
				{ID: "A1", Amount: 1000, Currency: "PEN", Date: "2024-03-01T15:00:00Z", Suppliers: []procurement.Supplier{
					{ID: "S1", Name: "Acme", Region: "LIMA"},
				}},
			},
			Contracts: []procurement.Contract{
				{ID: "C1", AwardID: "A1", Amount: 1000},
				{ID: "C2", AwardID: "A-missing"},
				{ID: "C3"},
			},
		},
		{
			OCID:          "ocds-2",
			PublishedDate: "2024-03-05T10:00:00Z",
			Buyer:         procurement.Buyer{ID: "B1", Name: "OTHER NAME"},
			Tender: procurement.Tender{
				Items: []procurement.Item{{ID: "I1", Description: "a different laptop"}},
			},
		},
		{
			// No buyer, no awards: contributes only a procurement node.
			OCID: "ocds-3",
		},
	}
}

func TestLoadBuildsGraph(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	st, err := New(store, nil).Load(ctx, sampleRecords())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	counts := map[procurement.EntityKind]int{
		procurement.KindBuyer:       1,
		procurement.KindProcurement: 3,
		procurement.KindItem:        2,
		procurement.KindAward:       1,
		procurement.KindContract:    1,
		procurement.KindSupplier:    1,
	}
	for kind, want := range counts {
		if got := snap.NodeCount(kind); got != want {
			t.Fatalf("%s nodes: got %d want %d", kind, got, want)
		}
	}
	rels := map[procurement.RelKind]int{
		procurement.RelPublished:   2,
		procurement.RelIncludes:    3,
		procurement.RelHasAward:    1,
		procurement.RelAwardedTo:   1,
		procurement.RelHasContract: 1,
	}
	for kind, want := range rels {
		if got := snap.EdgeCount(kind); got != want {
			t.Fatalf("%s edges: got %d want %d", kind, got, want)
		}
	}

	if st.DroppedContracts != 2 {
		t.Fatalf("dropped contracts: got %d want 2", st.DroppedContracts)
	}
	if got := st.Relationships[procurement.RelHasContract].Skipped; got != 1 {
		t.Fatalf("skipped HAS_CONTRACT: got %d want 1", got)
	}
	if got := st.Entities[procurement.KindBuyer]; got.Created != 1 || got.Existing != 1 {
		t.Fatalf("buyer stats: %+v", got)
	}
}

func TestLoadAttributesAndPlaceholders(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	if _, err := New(store, nil).Load(ctx, sampleRecords()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap, _ := store.Snapshot(ctx)

	b, _ := snap.Node(procurement.KindBuyer, "B1")
	if b.Attrs.String("name") != "MUNICIPALIDAD" {
		t.Fatalf("first writer should win: %+v", b.Attrs)
	}
	if b.Attrs.String("taxId") != "2010" || b.Attrs.String("telephone") != NoPhone || b.Attrs.String("region") != "LIMA" {
		t.Fatalf("buyer attrs: %+v", b.Attrs)
	}

	p, _ := snap.Node(procurement.KindProcurement, "ocds-3")
	if p.Attrs.String(procurement.AttrTitle) != NoTitle || p.Attrs.String(procurement.AttrMainCategory) != NoCategory {
		t.Fatalf("procurement placeholders: %+v", p.Attrs)
	}
	if p.Attrs.Has(procurement.AttrPublishedDate) {
		t.Fatalf("empty publishedDate should be omitted: %+v", p.Attrs)
	}

	item, _ := snap.Node(procurement.KindItem, "I1")
	if item.Attrs.String(procurement.AttrDescription) != "laptop" {
		t.Fatalf("first seen item should win: %+v", item.Attrs)
	}
	i2, _ := snap.Node(procurement.KindItem, "I2")
	if i2.Attrs.String("status") != NoStatus {
		t.Fatalf("item placeholder: %+v", i2.Attrs)
	}

	c, _ := snap.Node(procurement.KindContract, "C1")
	if c.Attrs.String(procurement.AttrAwardID) != "A1" {
		t.Fatalf("contract awardID: %+v", c.Attrs)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	once := graph.NewMemoryStore()
	twice := graph.NewMemoryStore()
	recs := sampleRecords()

	if _, err := New(once, nil).Load(ctx, recs); err != nil {
		t.Fatalf("Load: %v", err)
	}
	l := New(twice, nil)
	if _, err := l.Load(ctx, recs); err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := l.Load(ctx, recs)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if second.Created() != 0 {
		t.Fatalf("second load created %d things", second.Created())
	}

	a, _ := once.Snapshot(ctx)
	b, _ := twice.Snapshot(ctx)
	for _, kind := range procurement.EntityKinds {
		if !reflect.DeepEqual(a.Nodes(kind), b.Nodes(kind)) {
			t.Fatalf("%s nodes differ after reload", kind)
		}
	}
	for _, kind := range procurement.RelKinds {
		if !reflect.DeepEqual(a.Edges(kind), b.Edges(kind)) {
			t.Fatalf("%s edges differ after reload", kind)
		}
	}
}

func TestNoContractWithoutAward(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	if _, err := New(store, nil).Load(ctx, sampleRecords()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap, _ := store.Snapshot(ctx)
	for _, c := range snap.Nodes(procurement.KindContract) {
		if _, ok := snap.Node(procurement.KindAward, c.Attrs.String(procurement.AttrAwardID)); !ok {
			t.Fatalf("contract %s references missing award", c.Key)
		}
	}
}

type failingStore struct {
	graph.Store
	failOn procurement.EntityKind
}

var errBoom = errors.New("boom")

func (f failingStore) UpsertEntity(ctx context.Context, kind procurement.EntityKind, key string, attrs graph.Attributes) (bool, error) {
	if kind == f.failOn {
		return false, errBoom
	}
	return f.Store.UpsertEntity(ctx, kind, key, attrs)
}

func TestLoadStopsOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	mem := graph.NewMemoryStore()
	var steps []string
	l := New(failingStore{Store: mem, failOn: procurement.KindAward}, nil)
	l.OnStep = func(step string, _ time.Duration) { steps = append(steps, step) }

	_, err := l.Load(ctx, sampleRecords())
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if se.Step != StepAwards || !errors.Is(err, errBoom) {
		t.Fatalf("unexpected step error: %+v", se)
	}
	snap, _ := mem.Snapshot(ctx)
	if snap.NodeCount(procurement.KindSupplier) != 0 {
		t.Fatalf("steps after the failure must not run")
	}
	if snap.NodeCount(procurement.KindItem) != 2 {
		t.Fatalf("steps before the failure should have run")
	}
	if want := []string{StepBuyers, StepProcurements, StepItems}; !reflect.DeepEqual(steps, want) {
		t.Fatalf("completed steps: got %v want %v", steps, want)
	}
}
