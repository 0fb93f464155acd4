package risk

import (
	"math"
	"sort"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

type QuickAwardBreakdown struct {
	Total             int     `json:"total"`
	SameDay           int     `json:"sameDay"`
	OneDay            int     `json:"oneDay"`
	TwoToThreeDays    int     `json:"twoToThreeDays"`
	SameDayPercentage float64 `json:"sameDayPercentage"`
	OneDayPercentage  float64 `json:"oneDayPercentage"`
}

type HighRiskSuppliers struct {
	Count         int     `json:"count"`
	AvgTotalValue float64 `json:"avgTotalValue"`
}

type RegionConcentration struct {
	Region        string                `json:"region"`
	Suppliers     int                   `json:"suppliers"`
	TotalValue    float64               `json:"totalValue"`
	Concentration procurement.RiskLevel `json:"concentration"`
}

type DailyActivitySummary struct {
	HighActivity int     `json:"highActivity"`
	AvgAwards    float64 `json:"avgAwards"`
	MaxAwards    int64   `json:"maxAwards"`
}

// Report summarises the risk attributes present in the graph.
type Report struct {
	QuickAwards       QuickAwardBreakdown   `json:"quickAwards"`
	HighRiskSuppliers HighRiskSuppliers     `json:"highRiskSuppliers"`
	TopRegions        []RegionConcentration `json:"topRegions"`
	DailyActivity     DailyActivitySummary  `json:"dailyActivity"`
}

const topRegionLimit = 5

func BuildReport(snap *graph.Snapshot) Report {
	return Report{
		QuickAwards:       quickAwardBreakdown(snap),
		HighRiskSuppliers: highRiskSuppliers(snap),
		TopRegions:        TopRegions(snap, topRegionLimit),
		DailyActivity:     dailyActivitySummary(snap),
	}
}

func quickAwardBreakdown(snap *graph.Snapshot) QuickAwardBreakdown {
	var out QuickAwardBreakdown
	for _, p := range snap.Nodes(procurement.KindProcurement) {
		if !p.Attrs.Bool("quickAward") || !p.Attrs.Has("awardSpeed") {
			continue
		}
		out.Total++
		switch procurement.AwardSpeed(p.Attrs.String("awardSpeed")) {
		case procurement.SpeedSameDay:
			out.SameDay++
		case procurement.SpeedOneDay:
			out.OneDay++
		case procurement.SpeedTwoToThreeDays:
			out.TwoToThreeDays++
		}
	}
	if out.Total > 0 {
		out.SameDayPercentage = round2(100 * float64(out.SameDay) / float64(out.Total))
		out.OneDayPercentage = round2(100 * float64(out.OneDay) / float64(out.Total))
	}
	return out
}

func highRiskSuppliers(snap *graph.Snapshot) HighRiskSuppliers {
	var out HighRiskSuppliers
	sum, valued := 0.0, 0
	for _, s := range snap.Nodes(procurement.KindSupplier) {
		if s.Attrs.String(procurement.AttrRiskLevel) != string(procurement.RiskHigh) {
			continue
		}
		out.Count++
		if v, ok := s.Attrs.Float("totalValue"); ok {
			sum += v
			valued++
		}
	}
	if valued > 0 {
		out.AvgTotalValue = sum / float64(valued)
	}
	return out
}

// TopRegions ranks supplier regions by awarded value. Concentration is HIGH when the
// value sits with three suppliers or fewer, MEDIUM up to five.
func TopRegions(snap *graph.Snapshot, limit int) []RegionConcentration {
	type agg struct {
		suppliers map[string]struct{}
		value     float64
	}
	byRegion := map[string]*agg{}
	for _, e := range snap.Edges(procurement.RelAwardedTo) {
		s, ok := snap.Node(procurement.KindSupplier, e.To)
		if !ok {
			continue
		}
		region := s.Attrs.String(procurement.AttrRegion)
		if region == "" {
			continue
		}
		a := byRegion[region]
		if a == nil {
			a = &agg{suppliers: map[string]struct{}{}}
			byRegion[region] = a
		}
		a.suppliers[s.Key] = struct{}{}
		if award, ok := snap.Node(procurement.KindAward, e.From); ok {
			v, _ := award.Attrs.Float(procurement.AttrValue)
			a.value += v
		}
	}

	out := make([]RegionConcentration, 0, len(byRegion))
	for region, a := range byRegion {
		n := len(a.suppliers)
		level := procurement.RiskLow
		switch {
		case n <= 3:
			level = procurement.RiskHigh
		case n <= 5:
			level = procurement.RiskMedium
		}
		out = append(out, RegionConcentration{Region: region, Suppliers: n, TotalValue: a.value, Concentration: level})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalValue != out[j].TotalValue {
			return out[i].TotalValue > out[j].TotalValue
		}
		return out[i].Region < out[j].Region
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func dailyActivitySummary(snap *graph.Snapshot) DailyActivitySummary {
	var out DailyActivitySummary
	var sum int64
	for _, p := range snap.Nodes(procurement.KindProcurement) {
		if p.Attrs.String("unusualDailyActivity") != string(procurement.RiskHigh) {
			continue
		}
		n, _ := p.Attrs.Int("dailyAwards")
		out.HighActivity++
		sum += n
		if n > out.MaxAwards {
			out.MaxAwards = n
		}
	}
	if out.HighActivity > 0 {
		out.AvgAwards = float64(sum) / float64(out.HighActivity)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
