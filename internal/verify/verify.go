// Package verify audits a loaded procurement graph. Nothing here writes to the store.
package verify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
	"github.com/yungbote/procurement-graph/internal/risk"
)

// RequiredProcurementFields must be present and non-empty on every Procurement.
var RequiredProcurementFields = []string{
	procurement.AttrTitle,
	procurement.AttrPublishedDate,
	procurement.AttrProcurementMethod,
	procurement.AttrMainCategory,
}

type DuplicateKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Integrity struct {
	DuplicateProcurements []DuplicateKey `json:"duplicateProcurements"`
	OrphanProcurements    int            `json:"orphanProcurements"`
	OrphanItems           int            `json:"orphanItems"`
	OrphanAwards          int            `json:"orphanAwards"`
	OrphanContracts       int            `json:"orphanContracts"`
	MissingRequiredFields int            `json:"missingRequiredFields"`
	FutureDated           int            `json:"futureDated"`
}

// Clean reports whether the audit found nothing at all.
func (i Integrity) Clean() bool {
	return len(i.DuplicateProcurements) == 0 &&
		i.OrphanProcurements == 0 && i.OrphanItems == 0 && i.OrphanAwards == 0 && i.OrphanContracts == 0 &&
		i.MissingRequiredFields == 0 && i.FutureDated == 0
}

type RiskCounts struct {
	RelatedTime            int `json:"relatedTime"`
	HighFrequencySuppliers int `json:"highFrequencySuppliers"`
	QuickAwards            int `json:"quickAwards"`
	UnusualAmounts         int `json:"unusualAmounts"`
	RegionalCooperation    int `json:"regionalCooperation"`
	SplittingBuyers        int `json:"splittingBuyers"`
}

type Census struct {
	Nodes map[procurement.EntityKind]int `json:"nodes"`
	Edges map[procurement.RelKind]int    `json:"edges"`
	Risk  RiskCounts                     `json:"risk"`
}

type Report struct {
	Census    Census    `json:"census"`
	Integrity Integrity `json:"integrity"`
	CheckedAt time.Time `json:"checkedAt"`
}

type Verifier struct {
	store graph.Store
	log   *logger.Logger
	now   func() time.Time
}

// New builds a verifier. now defaults to time.Now; tests pin it.
func New(store graph.Store, log *logger.Logger, now func() time.Time) *Verifier {
	if log == nil {
		log = logger.Nop()
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{store: store, log: log.With("component", "Verifier"), now: now}
}

func (v *Verifier) Run(ctx context.Context) (Report, error) {
	snap, err := v.store.Snapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("snapshot graph: %w", err)
	}
	now := v.now()
	rep := Report{
		Census:    TakeCensus(snap),
		Integrity: CheckIntegrity(snap, now),
		CheckedAt: now,
	}
	in := rep.Integrity
	if len(in.DuplicateProcurements) > 0 {
		v.log.Error("duplicate procurement keys", "count", len(in.DuplicateProcurements))
	}
	if !in.Clean() {
		v.log.Warn("integrity findings",
			"orphan_procurements", in.OrphanProcurements,
			"orphan_items", in.OrphanItems,
			"orphan_awards", in.OrphanAwards,
			"orphan_contracts", in.OrphanContracts,
			"missing_required_fields", in.MissingRequiredFields,
			"future_dated", in.FutureDated,
		)
	}
	return rep, nil
}

func CheckIntegrity(snap *graph.Snapshot, now time.Time) Integrity {
	var out Integrity

	counts := map[string]int{}
	var order []string
	for _, p := range snap.Nodes(procurement.KindProcurement) {
		if counts[p.Key] == 0 {
			order = append(order, p.Key)
		}
		counts[p.Key]++
	}
	for _, k := range order {
		if counts[k] > 1 {
			out.DuplicateProcurements = append(out.DuplicateProcurements, DuplicateKey{Key: k, Count: counts[k]})
		}
	}
	sort.SliceStable(out.DuplicateProcurements, func(i, j int) bool {
		return out.DuplicateProcurements[i].Key < out.DuplicateProcurements[j].Key
	})

	out.OrphanProcurements = orphans(snap, procurement.KindProcurement, procurement.RelPublished)
	out.OrphanItems = orphans(snap, procurement.KindItem, procurement.RelIncludes)
	out.OrphanAwards = orphans(snap, procurement.KindAward, procurement.RelHasAward)
	out.OrphanContracts = orphans(snap, procurement.KindContract, procurement.RelHasContract)

	for _, p := range snap.Nodes(procurement.KindProcurement) {
		for _, f := range RequiredProcurementFields {
			if p.Attrs.String(f) == "" {
				out.MissingRequiredFields++
				break
			}
		}
		if t, ok := risk.ParseTime(p.Attrs.String(procurement.AttrPublishedDate)); ok && t.After(now) {
			out.FutureDated++
		}
	}
	return out
}

func orphans(snap *graph.Snapshot, kind procurement.EntityKind, in procurement.RelKind) int {
	n := 0
	for _, node := range snap.Nodes(kind) {
		if !snap.HasIncoming(in, node.Key) {
			n++
		}
	}
	return n
}

func TakeCensus(snap *graph.Snapshot) Census {
	c := Census{
		Nodes: map[procurement.EntityKind]int{},
		Edges: map[procurement.RelKind]int{},
	}
	for _, k := range procurement.EntityKinds {
		c.Nodes[k] = snap.NodeCount(k)
	}
	for _, k := range procurement.RelKinds {
		c.Edges[k] = snap.EdgeCount(k)
	}
	c.Risk.RelatedTime = snap.EdgeCount(procurement.RelRelatedTime)
	c.Risk.RegionalCooperation = snap.EdgeCount(procurement.RelRegionalCooperation)
	c.Risk.HighFrequencySuppliers = countFlag(snap, procurement.KindSupplier, "highFrequencySupplier")
	c.Risk.QuickAwards = countFlag(snap, procurement.KindProcurement, "quickAward")
	c.Risk.UnusualAmounts = countFlag(snap, procurement.KindAward, "unusualAmount")
	c.Risk.SplittingBuyers = countFlag(snap, procurement.KindBuyer, "potentialSplitting")
	return c
}

func countFlag(snap *graph.Snapshot, kind procurement.EntityKind, attr string) int {
	n := 0
	for _, node := range snap.Nodes(kind) {
		if node.Attrs.Bool(attr) {
			n++
		}
	}
	return n
}
