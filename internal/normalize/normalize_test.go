package normalize

import (
	"encoding/json"
	"errors"
	"testing"
)

const envelopeJSON = `{
  "ocid": "ocds-1",
  "compiledRelease": {
    "ocid": "ocds-1",
    "id": "rel-1",
    "date": "2024-11-05T10:00:00Z",
    "publishedDate": "2024-11-05T09:00:00Z",
    "buyer": {"id": "B1", "name": "  municipalidad de lima "},
    "parties": [
      {"id": "S9", "name": "Other", "address": {"region": "CUSCO"}},
      {"id": "B1", "name": "Muni", "roles": ["buyer"],
       "additionalIdentifiers": [{"id": "20100000001"}],
       "address": {"streetAddress": "Av. Central 1", "region": "LIMA"},
       "contactPoint": {"name": "Ana", "email": "ana@example.org", "telephone": "123"}},
      {"id": "S1", "name": "Acme", "address": {"region": "LIMA", "streetAddress": "Jr. Uno"}}
    ],
    "tender": {
      "id": "T1",
      "title": "Compra de papel",
      "procurementMethod": "open",
      "mainProcurementCategory": "goods",
      "value": {"amount": "1500.50", "currency": "PEN"},
      "datePublished": "2024-11-01",
      "items": [{"id": 7, "description": "papel", "quantity": 10,
                 "unit": {"name": "caja"}, "totalValue": {"amount": 100}}],
      "documents": [{"id": "D1", "title": "bases", "url": "http://x"}]
    },
    "awards": [{"id": "A1", "value": {"amount": 900, "currency": "PEN"}, "date": "2024-11-06",
                "suppliers": [{"id": "S1", "identifier": {"id": "20555", "legalName": "ACME SAC"}}]}],
    "contracts": [{"id": "C1", "awardID": "A1", "value": {"amount": 900}}]
  }
}`

func decode(t *testing.T, s string) Raw {
	t.Helper()
	var raw Raw
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return raw
}

func TestNormalizeEnvelope(t *testing.T) {
	rec, err := Normalize(decode(t, envelopeJSON))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rec.OCID != "ocds-1" || rec.ContractID != "rel-1" {
		t.Fatalf("ids: got ocid=%q contract=%q", rec.OCID, rec.ContractID)
	}
	if rec.PublishedDate != "2024-11-05T09:00:00Z" {
		t.Fatalf("publishedDate: got %q", rec.PublishedDate)
	}
	if rec.Buyer.Name != "MUNICIPALIDAD DE LIMA" {
		t.Fatalf("buyer name not trimmed/uppercased: %q", rec.Buyer.Name)
	}
	if rec.Tender.MainCategory != "goods" || rec.Tender.Value != 1500.50 || rec.Tender.Currency != "PEN" {
		t.Fatalf("tender: %+v", rec.Tender)
	}
	if len(rec.Tender.Items) != 1 || rec.Tender.Items[0].ID != "7" || rec.Tender.Items[0].Unit != "caja" {
		t.Fatalf("items: %+v", rec.Tender.Items)
	}
	if len(rec.Documents) != 1 || rec.Documents[0].ID != "D1" {
		t.Fatalf("documents: %+v", rec.Documents)
	}
	if len(rec.Awards) != 1 || rec.Awards[0].Amount != 900 {
		t.Fatalf("awards: %+v", rec.Awards)
	}
	sup := rec.Awards[0].Suppliers[0]
	if sup.Region != "LIMA" || sup.Address != "Jr. Uno" || sup.TaxID != "20555" || sup.LegalName != "ACME SAC" {
		t.Fatalf("supplier enrichment from parties: %+v", sup)
	}
	if rec.Contracts[0].AwardID != "A1" || rec.Contracts[0].Currency != "" {
		t.Fatalf("contract: %+v", rec.Contracts[0])
	}

	bp := BuyerParty(&rec)
	if bp.ID != "B1" || bp.TaxID != "20100000001" || bp.Email != "ana@example.org" {
		t.Fatalf("buyer party: %+v", bp)
	}
}

func TestNormalizeBareReleaseDefaults(t *testing.T) {
	rec, err := Normalize(Raw{"ocid": "ocds-2"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rec.Buyer.ID != "" || rec.Tender.Title != "" || rec.Tender.Value != 0 {
		t.Fatalf("expected zero defaults, got %+v", rec)
	}
	if len(rec.Awards) != 0 || len(rec.Contracts) != 0 || len(rec.Tender.Items) != 0 {
		t.Fatalf("expected empty collections, got %+v", rec)
	}
	if bp := BuyerParty(&rec); bp.ID != "" {
		t.Fatalf("expected empty buyer party, got %+v", bp)
	}
}

func TestNormalizeRejectsMissingOCID(t *testing.T) {
	_, err := Normalize(Raw{"compiledRelease": map[string]any{"id": "x"}})
	if !errors.Is(err, ErrMissingIdentifier) {
		t.Fatalf("expected ErrMissingIdentifier, got %v", err)
	}
}

func TestNormalizeAllKeepsOrderAndReportsRejections(t *testing.T) {
	raws := []Raw{
		{"ocid": "a"},
		{"tender": map[string]any{}},
		{"ocid": "b"},
		{"ocid": "   "},
	}
	recs, rejected := NormalizeAll(raws)
	if len(recs) != 2 || recs[0].OCID != "a" || recs[1].OCID != "b" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if len(rejected) != 2 || rejected[0].Index != 1 || rejected[1].Index != 3 {
		t.Fatalf("unexpected rejections: %+v", rejected)
	}
	if !errors.Is(rejected[0].Err, ErrMissingIdentifier) {
		t.Fatalf("rejection should wrap ErrMissingIdentifier: %v", rejected[0].Err)
	}
}

func TestNormalizeIgnoresWrongTypes(t *testing.T) {
	raw := Raw{
		"ocid":   "ocds-3",
		"buyer":  "not-a-map",
		"awards": []any{"junk", map[string]any{"id": "A", "value": map[string]any{"amount": "n/a"}}},
	}
	rec, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rec.Buyer.ID != "" {
		t.Fatalf("buyer should default: %+v", rec.Buyer)
	}
	if len(rec.Awards) != 1 || rec.Awards[0].Amount != 0 {
		t.Fatalf("awards: %+v", rec.Awards)
	}
}
