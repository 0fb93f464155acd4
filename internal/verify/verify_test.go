package verify

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
	"github.com/yungbote/procurement-graph/internal/loader"
)

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestCleanLoadHasNoDuplicatesOrOrphanAwards(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	recs := []procurement.Record{
		{
			OCID:          "ocds-1",
			PublishedDate: "2024-01-01T00:00:00Z",
			Buyer:         procurement.Buyer{ID: "B"},
			Tender: procurement.Tender{
				Title:             "t",
				ProcurementMethod: "open",
				MainCategory:      "goods",
				Items:             []procurement.Item{{ID: "I"}},
			},
			Awards:    []procurement.Award{{ID: "A", Suppliers: []procurement.Supplier{{ID: "S"}}}},
			Contracts: []procurement.Contract{{ID: "C", AwardID: "A"}},
		},
	}
	if _, err := loader.New(store, nil).Load(ctx, recs); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rep, err := New(store, nil, clock).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Integrity.Clean() {
		t.Fatalf("expected clean integrity, got %+v", rep.Integrity)
	}
	if !rep.CheckedAt.Equal(fixedNow) {
		t.Fatalf("CheckedAt should come from the injected clock")
	}
	if rep.Census.Nodes[procurement.KindContract] != 1 || rep.Census.Edges[procurement.RelHasContract] != 1 {
		t.Fatalf("census: %+v", rep.Census)
	}
}

func TestCheckIntegrityFindings(t *testing.T) {
	snap := graph.NewSnapshot()
	full := graph.Attributes{
		procurement.AttrTitle:             "t",
		procurement.AttrPublishedDate:     "2024-01-01",
		procurement.AttrProcurementMethod: "open",
		procurement.AttrMainCategory:      "goods",
	}
	future := full.Clone()
	future[procurement.AttrPublishedDate] = "2030-01-01T00:00:00Z"
	missing := full.Clone()
	delete(missing, procurement.AttrPublishedDate)
	missing[procurement.AttrTitle] = ""

	snap.AddNode(graph.Node{Kind: procurement.KindBuyer, Key: "B"})
	snap.AddNode(graph.Node{Kind: procurement.KindProcurement, Key: "dup", Attrs: full})
	snap.AddNode(graph.Node{Kind: procurement.KindProcurement, Key: "dup", Attrs: full})
	snap.AddNode(graph.Node{Kind: procurement.KindProcurement, Key: "future", Attrs: future})
	snap.AddNode(graph.Node{Kind: procurement.KindProcurement, Key: "missing", Attrs: missing})
	snap.AddNode(graph.Node{Kind: procurement.KindItem, Key: "lonely-item"})
	snap.AddNode(graph.Node{Kind: procurement.KindAward, Key: "lonely-award"})
	snap.AddNode(graph.Node{Kind: procurement.KindContract, Key: "lonely-contract"})
	snap.AddEdge(graph.Edge{Kind: procurement.RelPublished, From: "B", To: "dup"})
	snap.AddEdge(graph.Edge{Kind: procurement.RelPublished, From: "B", To: "future"})

	got := CheckIntegrity(snap, fixedNow)
	if len(got.DuplicateProcurements) != 1 || got.DuplicateProcurements[0] != (DuplicateKey{Key: "dup", Count: 2}) {
		t.Fatalf("duplicates: %+v", got.DuplicateProcurements)
	}
	if got.OrphanProcurements != 1 {
		t.Fatalf("orphan procurements: %d", got.OrphanProcurements)
	}
	if got.OrphanItems != 1 || got.OrphanAwards != 1 || got.OrphanContracts != 1 {
		t.Fatalf("orphans: %+v", got)
	}
	if got.MissingRequiredFields != 1 {
		t.Fatalf("missing required fields: %d", got.MissingRequiredFields)
	}
	if got.FutureDated != 1 {
		t.Fatalf("future dated: %d", got.FutureDated)
	}
	if got.Clean() {
		t.Fatalf("findings reported as clean")
	}
}

func TestCensusRiskCounts(t *testing.T) {
	snap := graph.NewSnapshot()
	snap.AddNode(graph.Node{Kind: procurement.KindSupplier, Key: "s1", Attrs: graph.Attributes{"highFrequencySupplier": true}})
	snap.AddNode(graph.Node{Kind: procurement.KindSupplier, Key: "s2"})
	snap.AddNode(graph.Node{Kind: procurement.KindProcurement, Key: "p1", Attrs: graph.Attributes{"quickAward": true}})
	snap.AddNode(graph.Node{Kind: procurement.KindProcurement, Key: "p2"})
	snap.AddNode(graph.Node{Kind: procurement.KindAward, Key: "a", Attrs: graph.Attributes{"unusualAmount": true}})
	snap.AddNode(graph.Node{Kind: procurement.KindBuyer, Key: "b", Attrs: graph.Attributes{"potentialSplitting": true}})
	snap.AddEdge(graph.Edge{Kind: procurement.RelRelatedTime, From: "p1", To: "p2"})
	snap.AddEdge(graph.Edge{Kind: procurement.RelRegionalCooperation, From: "s1", To: "s2"})

	c := TakeCensus(snap)
	want := RiskCounts{
		RelatedTime:            1,
		HighFrequencySuppliers: 1,
		QuickAwards:            1,
		UnusualAmounts:         1,
		RegionalCooperation:    1,
		SplittingBuyers:        1,
	}
	if c.Risk != want {
		t.Fatalf("risk counts: got %+v want %+v", c.Risk, want)
	}
	if c.Nodes[procurement.KindProcurement] != 2 || c.Nodes[procurement.KindItem] != 0 {
		t.Fatalf("nodes: %+v", c.Nodes)
	}
}
