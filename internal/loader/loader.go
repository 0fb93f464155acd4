// Package loader drives canonical procurement records into a graph.Store in dependency
// order: entities first, then the relationships between them.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
	"github.com/yungbote/procurement-graph/internal/normalize"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

// Step names, in execution order.
const (
	StepBuyers           = "buyers"
	StepProcurements     = "procurements"
	StepItems            = "items"
	StepAwards           = "awards"
	StepContracts        = "contracts"
	StepSuppliers        = "suppliers"
	StepBuyerProcurement = "rel_buyer_procurement"
	StepProcurementItem  = "rel_procurement_item"
	StepAwardSupplier    = "rel_award_supplier"
	StepProcurementAward = "rel_procurement_award"
	StepAwardContract    = "rel_award_contract"
)

// Placeholders written for empty text attributes.
const (
	NoTitle       = "No Title"
	NoDescription = "No Description"
	NotAvailable  = "N/A"
	NoCategory    = "No Category"
	NoStatus      = "No Status"
	NoName        = "No Name"
	NoAddress     = "No Address"
	NoContact     = "No Contact"
	NoEmail       = "No Email"
	NoPhone       = "No Phone"
	NoLegalName   = "No Legal Name"
)

// StepError reports the loader step during which the store failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("load step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

type Loader struct {
	store graph.Store
	log   *logger.Logger

	// OnStep, when set, is called after every completed step.
	OnStep func(step string, took time.Duration)
}

func New(store graph.Store, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{store: store, log: log.With("component", "Loader")}
}

type step struct {
	name string
	run  func(ctx context.Context, recs []procurement.Record, st *Stats) error
}

func (l *Loader) steps() []step {
	return []step{
		{StepBuyers, l.loadBuyers},
		{StepProcurements, l.loadProcurements},
		{StepItems, l.loadItems},
		{StepAwards, l.loadAwards},
		{StepContracts, l.loadContracts},
		{StepSuppliers, l.loadSuppliers},
		{StepBuyerProcurement, l.linkBuyerProcurement},
		{StepProcurementItem, l.linkProcurementItem},
		{StepAwardSupplier, l.linkAwardSupplier},
		{StepProcurementAward, l.linkProcurementAward},
		{StepAwardContract, l.linkAwardContract},
	}
}

// Load writes recs into the store. Every step is a full pass over recs. Running Load
// twice over the same records leaves the graph unchanged the second time.
func (l *Loader) Load(ctx context.Context, recs []procurement.Record) (Stats, error) {
	st := newStats()
	for _, s := range l.steps() {
		if err := ctx.Err(); err != nil {
			return st, &StepError{Step: s.name, Err: err}
		}
		start := time.Now()
		if err := s.run(ctx, recs, &st); err != nil {
			l.log.Error("load step failed", "step", s.name, "error", err)
			return st, &StepError{Step: s.name, Err: err}
		}
		took := time.Since(start)
		l.log.Debug("load step done", "step", s.name, "duration_ms", took.Milliseconds())
		if l.OnStep != nil {
			l.OnStep(s.name, took)
		}
	}
	l.log.Info("load complete",
		"records", len(recs),
		"dropped_contracts", st.DroppedContracts,
		"skipped_relationships", st.SkippedRelationships(),
	)
	return st, nil
}

func (l *Loader) upsert(ctx context.Context, st *Stats, kind procurement.EntityKind, key string, attrs graph.Attributes) error {
	created, err := l.store.UpsertEntity(ctx, kind, key, attrs)
	if err != nil {
		return err
	}
	st.entity(kind, created)
	return nil
}

func (l *Loader) link(ctx context.Context, st *Stats, kind procurement.RelKind, from, to string) error {
	if from == "" || to == "" {
		st.rel(kind, graph.RelSkipped)
		return nil
	}
	out, err := l.store.UpsertRelationship(ctx, kind, from, to, nil)
	if err != nil {
		return err
	}
	st.rel(kind, out)
	return nil
}

func (l *Loader) loadBuyers(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		rec := &recs[i]
		if rec.Buyer.ID == "" {
			continue
		}
		party := normalize.BuyerParty(rec)
		attrs := graph.Attributes{
			"name":         or(rec.Buyer.Name, NoName),
			"taxId":        or(party.TaxID, NotAvailable),
			"address":      or(party.Address, NoAddress),
			"contactPoint": or(party.ContactName, NoContact),
			"email":        or(party.Email, NoEmail),
			"telephone":    or(party.Telephone, NoPhone),
		}
		if party.Region != "" {
			attrs[procurement.AttrRegion] = party.Region
		}
		if err := l.upsert(ctx, st, procurement.KindBuyer, rec.Buyer.ID, attrs); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadProcurements(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		rec := &recs[i]
		t := rec.Tender
		attrs := graph.Attributes{
			"tenderId":                        t.ID,
			procurement.AttrTitle:             or(t.Title, NoTitle),
			procurement.AttrDescription:       or(t.Description, NoDescription),
			procurement.AttrProcurementMethod: or(t.ProcurementMethod, NotAvailable),
			"procurementMethodDetails":        or(t.ProcurementMethodDetails, NotAvailable),
			procurement.AttrMainCategory:      or(t.MainCategory, NoCategory),
			procurement.AttrValue:             t.Value,
			procurement.AttrCurrency:          or(t.Currency, NotAvailable),
		}
		if d := rec.Published(); d != "" {
			attrs[procurement.AttrPublishedDate] = d
		}
		if err := l.upsert(ctx, st, procurement.KindProcurement, rec.OCID, attrs); err != nil {
			return err
		}
	}
	return nil
}

// Items are collected across the whole input first; the first occurrence of an id
// supplies its attributes.
func (l *Loader) loadItems(ctx context.Context, recs []procurement.Record, st *Stats) error {
	seen := map[string]struct{}{}
	var unique []procurement.Item
	for i := range recs {
		for _, it := range recs[i].Tender.Items {
			if it.ID == "" {
				continue
			}
			if _, ok := seen[it.ID]; ok {
				continue
			}
			seen[it.ID] = struct{}{}
			unique = append(unique, it)
		}
	}
	for _, it := range unique {
		attrs := graph.Attributes{
			procurement.AttrDescription: or(it.Description, NoDescription),
			"status":                    or(it.Status, NoStatus),
			"quantity":                  it.Quantity,
		}
		if it.Unit != "" {
			attrs["unit"] = it.Unit
		}
		if err := l.upsert(ctx, st, procurement.KindItem, it.ID, attrs); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadAwards(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		for _, a := range recs[i].Awards {
			if a.ID == "" {
				continue
			}
			attrs := graph.Attributes{
				procurement.AttrTitle:    or(a.Title, NoTitle),
				procurement.AttrValue:    a.Amount,
				procurement.AttrCurrency: or(a.Currency, NotAvailable),
				"status":                 or(a.Status, NoStatus),
			}
			if a.Date != "" {
				attrs[procurement.AttrDate] = a.Date
			}
			if err := l.upsert(ctx, st, procurement.KindAward, a.ID, attrs); err != nil {
				return err
			}
		}
	}
	return nil
}

// Contracts are only created under an award that is already in the store.
func (l *Loader) loadContracts(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		for _, c := range recs[i].Contracts {
			if c.ID == "" {
				continue
			}
			if c.AwardID == "" {
				st.DroppedContracts++
				l.log.Debug("contract dropped", "contract_id", c.ID, "reason", "no award reference")
				continue
			}
			ok, err := l.store.EntityExists(ctx, procurement.KindAward, c.AwardID)
			if err != nil {
				return err
			}
			if !ok {
				st.DroppedContracts++
				l.log.Debug("contract dropped", "contract_id", c.ID, "award_id", c.AwardID, "reason", "unknown award")
				continue
			}
			attrs := graph.Attributes{
				procurement.AttrTitle:       or(c.Title, NoTitle),
				procurement.AttrDescription: or(c.Description, NoDescription),
				procurement.AttrValue:       c.Amount,
				procurement.AttrCurrency:    or(c.Currency, NotAvailable),
				procurement.AttrAwardID:     c.AwardID,
				"status":                    or(c.Status, NoStatus),
			}
			if err := l.upsert(ctx, st, procurement.KindContract, c.ID, attrs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Loader) loadSuppliers(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		for _, a := range recs[i].Awards {
			for _, s := range a.Suppliers {
				if s.ID == "" {
					continue
				}
				attrs := graph.Attributes{
					"name":      or(s.Name, NoName),
					"taxId":     or(s.TaxID, NotAvailable),
					"legalName": or(s.LegalName, NoLegalName),
					"address":   or(s.Address, NoAddress),
				}
				if s.Region != "" {
					attrs[procurement.AttrRegion] = s.Region
				}
				if err := l.upsert(ctx, st, procurement.KindSupplier, s.ID, attrs); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (l *Loader) linkBuyerProcurement(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		if recs[i].Buyer.ID == "" {
			continue
		}
		if err := l.link(ctx, st, procurement.RelPublished, recs[i].Buyer.ID, recs[i].OCID); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) linkProcurementItem(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		for _, it := range recs[i].Tender.Items {
			if it.ID == "" {
				continue
			}
			if err := l.link(ctx, st, procurement.RelIncludes, recs[i].OCID, it.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Loader) linkAwardSupplier(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		for _, a := range recs[i].Awards {
			if a.ID == "" {
				continue
			}
			for _, s := range a.Suppliers {
				if s.ID == "" {
					continue
				}
				if err := l.link(ctx, st, procurement.RelAwardedTo, a.ID, s.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (l *Loader) linkProcurementAward(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		for _, a := range recs[i].Awards {
			if a.ID == "" {
				continue
			}
			if err := l.link(ctx, st, procurement.RelHasAward, recs[i].OCID, a.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Loader) linkAwardContract(ctx context.Context, recs []procurement.Record, st *Stats) error {
	for i := range recs {
		for _, c := range recs[i].Contracts {
			if c.ID == "" || c.AwardID == "" {
				continue
			}
			if err := l.link(ctx, st, procurement.RelHasContract, c.AwardID, c.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func or(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	return v
}
