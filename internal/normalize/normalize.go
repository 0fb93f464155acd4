// Package normalize maps loosely typed procurement records (open-contracting style JSON)
// onto the canonical procurement.Record. Nothing downstream of this package sees a nil
// or a missing field.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

// ErrMissingIdentifier is returned for records that carry no ocid.
var ErrMissingIdentifier = errors.New("record has no ocid")

// Raw is one record as decoded from JSON.
type Raw = map[string]any

// Rejection identifies a raw record that could not be normalized.
type Rejection struct {
	Index int
	Err   error
}

// Normalize converts one raw record. Both the API envelope ({"ocid", "compiledRelease"})
// and a bare release are accepted.
func Normalize(raw Raw) (procurement.Record, error) {
	release := raw
	if cr := getMap(raw, "compiledRelease"); cr != nil {
		release = cr
	}

	ocid := getString(release, "ocid")
	if ocid == "" {
		ocid = getString(raw, "ocid")
	}
	if ocid == "" {
		return procurement.Record{}, ErrMissingIdentifier
	}

	rec := procurement.Record{
		OCID:          ocid,
		ContractID:    getString(release, "id"),
		Date:          getString(release, "date"),
		PublishedDate: firstNonEmpty(getString(release, "publishedDate"), getString(raw, "publishedDate")),
	}

	buyer := getMap(release, "buyer")
	rec.Buyer = procurement.Buyer{
		ID:   getString(buyer, "id"),
		Name: strings.ToUpper(getString(buyer, "name")),
	}

	for _, p := range getMaps(release, "parties") {
		rec.Parties = append(rec.Parties, normalizeParty(p))
	}

	tender := getMap(release, "tender")
	value := getMap(tender, "value")
	rec.Tender = procurement.Tender{
		ID:                       getString(tender, "id"),
		Title:                    getString(tender, "title"),
		Description:              getString(tender, "description"),
		ProcurementMethod:        getString(tender, "procurementMethod"),
		ProcurementMethodDetails: getString(tender, "procurementMethodDetails"),
		MainCategory:             firstNonEmpty(getString(tender, "mainProcurementCategory"), getString(tender, "mainCategory")),
		Value:                    getFloat(value, "amount"),
		Currency:                 getString(value, "currency"),
		DatePublished:            getString(tender, "datePublished"),
	}
	for _, it := range getMaps(tender, "items") {
		rec.Tender.Items = append(rec.Tender.Items, procurement.Item{
			ID:          getString(it, "id"),
			Description: getString(it, "description"),
			Status:      getString(it, "status"),
			Quantity:    getFloat(it, "quantity"),
			Unit:        getString(getMap(it, "unit"), "name"),
			TotalValue:  getFloat(getMap(it, "totalValue"), "amount"),
		})
	}

	// Documents hang off the tender in the source API; accept release level too.
	docs := getMaps(tender, "documents")
	if len(docs) == 0 {
		docs = getMaps(release, "documents")
	}
	for _, d := range docs {
		rec.Documents = append(rec.Documents, procurement.Document{
			ID:            getString(d, "id"),
			Title:         getString(d, "title"),
			URL:           getString(d, "url"),
			DatePublished: getString(d, "datePublished"),
			DocumentType:  getString(d, "documentType"),
			Language:      getString(d, "language"),
		})
	}

	for _, a := range getMaps(release, "awards") {
		av := getMap(a, "value")
		award := procurement.Award{
			ID:       getString(a, "id"),
			Title:    getString(a, "title"),
			Amount:   getFloat(av, "amount"),
			Currency: getString(av, "currency"),
			Date:     getString(a, "date"),
			Status:   getString(a, "status"),
		}
		for _, s := range getMaps(a, "suppliers") {
			award.Suppliers = append(award.Suppliers, normalizeSupplier(&rec, s))
		}
		rec.Awards = append(rec.Awards, award)
	}

	for _, c := range getMaps(release, "contracts") {
		cv := getMap(c, "value")
		rec.Contracts = append(rec.Contracts, procurement.Contract{
			ID:          getString(c, "id"),
			Title:       getString(c, "title"),
			Description: getString(c, "description"),
			Amount:      getFloat(cv, "amount"),
			Currency:    getString(cv, "currency"),
			AwardID:     firstNonEmpty(getString(c, "awardID"), getString(c, "awardId")),
			Status:      getString(c, "status"),
		})
	}

	return rec, nil
}

// NormalizeAll normalizes a batch, returning the accepted records in input order and
// the rejected ones by position.
func NormalizeAll(raws []Raw) ([]procurement.Record, []Rejection) {
	out := make([]procurement.Record, 0, len(raws))
	var rejected []Rejection
	for i, raw := range raws {
		rec, err := Normalize(raw)
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Err: fmt.Errorf("record %d: %w", i, err)})
			continue
		}
		out = append(out, rec)
	}
	return out, rejected
}

func normalizeParty(p Raw) procurement.Party {
	addr := getMap(p, "address")
	contact := getMap(p, "contactPoint")
	taxID := ""
	if ids := getMaps(p, "additionalIdentifiers"); len(ids) > 0 {
		taxID = getString(ids[0], "id")
	}
	if taxID == "" {
		taxID = getString(getMap(p, "identifier"), "id")
	}
	return procurement.Party{
		ID:          getString(p, "id"),
		Name:        getString(p, "name"),
		Roles:       getStrings(p, "roles"),
		TaxID:       taxID,
		Address:     getString(addr, "streetAddress"),
		Region:      getString(addr, "region"),
		Department:  getString(addr, "department"),
		Locality:    getString(addr, "locality"),
		CountryName: getString(addr, "countryName"),
		ContactName: getString(contact, "name"),
		Email:       getString(contact, "email"),
		Telephone:   getString(contact, "telephone"),
	}
}

func normalizeSupplier(rec *procurement.Record, s Raw) procurement.Supplier {
	ident := getMap(s, "identifier")
	addr := getMap(s, "address")
	sup := procurement.Supplier{
		ID:        getString(s, "id"),
		Name:      getString(s, "name"),
		TaxID:     getString(ident, "id"),
		LegalName: getString(ident, "legalName"),
		Address:   getString(addr, "streetAddress"),
		Region:    getString(addr, "region"),
	}
	if party, ok := rec.Party(sup.ID); ok {
		sup.Region = firstNonEmpty(sup.Region, party.Region)
		sup.Address = firstNonEmpty(sup.Address, party.Address)
		sup.TaxID = firstNonEmpty(sup.TaxID, party.TaxID)
		sup.Name = firstNonEmpty(sup.Name, party.Name)
	}
	return sup
}

// BuyerParty resolves the party describing the buyer: the one sharing its id, else the
// first listed party.
func BuyerParty(rec *procurement.Record) procurement.Party {
	if p, ok := rec.Party(rec.Buyer.ID); ok {
		return p
	}
	if len(rec.Parties) > 0 {
		return rec.Parties[0]
	}
	return procurement.Party{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
