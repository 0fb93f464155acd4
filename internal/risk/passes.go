package risk

import (
	"math"
	"sort"
	"time"

	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

const (
	relatedTimeWindowDays = 30
	quickAwardMaxDays     = 3
	minFrequentAwards     = 3
	minSplitProcurements  = 3
)

// countLevel grades a count against a HIGH and a MEDIUM threshold.
func countLevel(n, high, medium int, below procurement.RiskLevel) procurement.RiskLevel {
	switch {
	case n >= high:
		return procurement.RiskHigh
	case n >= medium:
		return procurement.RiskMedium
	default:
		return below
	}
}

type datedProcurement struct {
	ocid     string
	date     time.Time
	category string
}

// TemporalCorrelation links procurements of the same buyer published at most 30 whole
// days apart. Edges point from the earlier procurement; equal dates point from the
// lower ocid, so each pair gets a single edge.
func TemporalCorrelation(snap *graph.Snapshot) Writes {
	var w Writes
	for _, buyer := range snap.Nodes(procurement.KindBuyer) {
		var procs []datedProcurement
		seen := map[string]bool{}
		for _, e := range snap.Outgoing(procurement.RelPublished, buyer.Key) {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			p, ok := snap.Node(procurement.KindProcurement, e.To)
			if !ok {
				continue
			}
			t, ok := ParseTime(p.Attrs.String(procurement.AttrPublishedDate))
			if !ok {
				continue
			}
			procs = append(procs, datedProcurement{ocid: p.Key, date: t, category: p.Attrs.String(procurement.AttrMainCategory)})
		}
		sort.SliceStable(procs, func(i, j int) bool {
			if !procs[i].date.Equal(procs[j].date) {
				return procs[i].date.Before(procs[j].date)
			}
			return procs[i].ocid < procs[j].ocid
		})
		for i := range procs {
			for j := i + 1; j < len(procs); j++ {
				days := WholeDays(procs[i].date, procs[j].date)
				if days > relatedTimeWindowDays {
					break
				}
				w.edge(procurement.RelRelatedTime, procs[i].ocid, procs[j].ocid, graph.Attributes{
					"daysBetween":  int64(days),
					"sameCategory": procs[i].category == procs[j].category,
				})
			}
		}
	}
	return w
}

// SupplierFrequency flags suppliers holding at least three awards.
func SupplierFrequency(snap *graph.Snapshot) Writes {
	var w Writes
	for _, s := range snap.Nodes(procurement.KindSupplier) {
		edges := snap.Incoming(procurement.RelAwardedTo, s.Key)
		if len(edges) < minFrequentAwards {
			continue
		}
		total := 0.0
		currencies := map[string]struct{}{}
		for _, e := range edges {
			a, ok := snap.Node(procurement.KindAward, e.From)
			if !ok {
				continue
			}
			v, _ := a.Attrs.Float(procurement.AttrValue)
			total += v
			if c := a.Attrs.String(procurement.AttrCurrency); c != "" {
				currencies[c] = struct{}{}
			}
		}
		n := len(edges)
		w.entity(procurement.KindSupplier, s.Key, graph.Attributes{
			"highFrequencySupplier":   true,
			"totalAwards":             int64(n),
			"totalValue":              total,
			"averageAwardValue":       total / float64(n),
			"currencies":              sortedKeys(currencies),
			procurement.AttrRiskLevel: string(countLevel(n, 10, 5, procurement.RiskLow)),
		})
	}
	return w
}

// QuickAwards flags procurements with an award at most three whole days after
// publication. Awards dated before publication qualify too and land in the
// TWO_TO_THREE_DAYS bucket. With several qualifying awards the one closest to
// publication counts; on equal distance the award after publication wins.
func QuickAwards(snap *graph.Snapshot) Writes {
	var w Writes
	for _, p := range snap.Nodes(procurement.KindProcurement) {
		published, ok := ParseTime(p.Attrs.String(procurement.AttrPublishedDate))
		if !ok {
			continue
		}
		best, found := 0, false
		for _, e := range snap.Outgoing(procurement.RelHasAward, p.Key) {
			a, ok := snap.Node(procurement.KindAward, e.To)
			if !ok {
				continue
			}
			awarded, ok := ParseTime(a.Attrs.String(procurement.AttrDate))
			if !ok {
				continue
			}
			days := WholeDays(published, awarded)
			if days > quickAwardMaxDays {
				continue
			}
			if !found || closerToPublication(days, best) {
				best, found = days, true
			}
		}
		if !found {
			continue
		}
		speed, level := procurement.SpeedTwoToThreeDays, procurement.RiskLow
		switch best {
		case 0:
			speed, level = procurement.SpeedSameDay, procurement.RiskHigh
		case 1:
			speed, level = procurement.SpeedOneDay, procurement.RiskMedium
		}
		w.entity(procurement.KindProcurement, p.Key, graph.Attributes{
			"quickAward":              true,
			"awardDays":               int64(best),
			"awardSpeed":              string(speed),
			procurement.AttrRiskLevel: string(level),
		})
	}
	return w
}

func closerToPublication(days, than int) bool {
	da, db := absInt(days), absInt(than)
	if da != db {
		return da < db
	}
	return days > than
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type categoryAward struct {
	key   string
	value float64
}

// CategoryOutliers flags awards whose value is strictly above mean + 2 standard
// deviations of their procurement category (population statistics).
func CategoryOutliers(snap *graph.Snapshot) Writes {
	byCategory := map[string][]categoryAward{}
	var order []string
	seen := map[string]bool{}
	for _, p := range snap.Nodes(procurement.KindProcurement) {
		cat := p.Attrs.String(procurement.AttrMainCategory)
		for _, e := range snap.Outgoing(procurement.RelHasAward, p.Key) {
			if seen[e.To] {
				continue
			}
			a, ok := snap.Node(procurement.KindAward, e.To)
			if !ok {
				continue
			}
			v, ok := a.Attrs.Float(procurement.AttrValue)
			if !ok {
				continue
			}
			seen[e.To] = true
			if _, ok := byCategory[cat]; !ok {
				order = append(order, cat)
			}
			byCategory[cat] = append(byCategory[cat], categoryAward{key: a.Key, value: v})
		}
	}

	var w Writes
	for _, cat := range order {
		awards := byCategory[cat]
		if len(awards) < 2 {
			continue
		}
		mean, std := meanStdDev(awards)
		if std == 0 {
			continue
		}
		for _, a := range awards {
			if !(a.value > mean+2*std) {
				continue
			}
			atOrBelow := 0
			for _, o := range awards {
				if o.value <= a.value {
					atOrBelow++
				}
			}
			level := procurement.RiskMedium
			if a.value > mean+3*std {
				level = procurement.RiskHigh
			}
			w.entity(procurement.KindAward, a.key, graph.Attributes{
				"unusualAmount":           true,
				"categoryAvg":             mean,
				"categoryStdDev":          std,
				"deviation":               (a.value - mean) / std,
				"percentileRank":          float64(atOrBelow) / float64(len(awards)) * 100,
				procurement.AttrRiskLevel: string(level),
			})
		}
	}
	return w
}

func meanStdDev(awards []categoryAward) (float64, float64) {
	n := float64(len(awards))
	sum := 0.0
	for _, a := range awards {
		sum += a.value
	}
	mean := sum / n
	sq := 0.0
	for _, a := range awards {
		d := a.value - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

type supplierPair struct{ a, b string }

type cooperation struct {
	shared      int
	region      string
	sameAsBuyer bool
}

// RegionalCooperation links same-region suppliers that share procurements. Pairs are
// keyed in ascending id order; suppliers without a region never pair.
func RegionalCooperation(snap *graph.Snapshot) Writes {
	pairs := map[supplierPair]*cooperation{}
	var order []supplierPair

	for _, p := range snap.Nodes(procurement.KindProcurement) {
		buyerRegions := map[string]bool{}
		for _, e := range snap.Incoming(procurement.RelPublished, p.Key) {
			if b, ok := snap.Node(procurement.KindBuyer, e.From); ok {
				if r := b.Attrs.String(procurement.AttrRegion); r != "" {
					buyerRegions[r] = true
				}
			}
		}

		regionOf := map[string]string{}
		var ids []string
		for _, ae := range snap.Outgoing(procurement.RelHasAward, p.Key) {
			for _, se := range snap.Outgoing(procurement.RelAwardedTo, ae.To) {
				if _, dup := regionOf[se.To]; dup {
					continue
				}
				s, ok := snap.Node(procurement.KindSupplier, se.To)
				if !ok {
					continue
				}
				r := s.Attrs.String(procurement.AttrRegion)
				if r == "" {
					continue
				}
				regionOf[s.Key] = r
				ids = append(ids, s.Key)
			}
		}
		sort.Strings(ids)

		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				if regionOf[ids[i]] != regionOf[ids[j]] {
					continue
				}
				k := supplierPair{ids[i], ids[j]}
				c, ok := pairs[k]
				if !ok {
					c = &cooperation{region: regionOf[ids[i]]}
					pairs[k] = c
					order = append(order, k)
				}
				c.shared++
				if buyerRegions[c.region] {
					c.sameAsBuyer = true
				}
			}
		}
	}

	var w Writes
	for _, k := range order {
		c := pairs[k]
		w.edge(procurement.RelRegionalCooperation, k.a, k.b, graph.Attributes{
			"sharedProcurements":      int64(c.shared),
			procurement.AttrRegion:    c.region,
			"sameRegionAsBuyer":       c.sameAsBuyer,
			procurement.AttrRiskLevel: string(countLevel(c.shared, 5, 3, procurement.RiskLow)),
		})
	}
	return w
}

type splitGroup struct {
	category string
	date     string
	count    int
	value    float64
}

func (g splitGroup) beats(o splitGroup) bool {
	if g.count != o.count {
		return g.count > o.count
	}
	if g.value != o.value {
		return g.value > o.value
	}
	if g.date != o.date {
		return g.date < o.date
	}
	return g.category < o.category
}

// SpendSplitting flags buyers that published three or more awarded procurements of
// one category on the same calendar date. A buyer with several such groups is
// reported with its largest.
func SpendSplitting(snap *graph.Snapshot) Writes {
	var w Writes
	for _, b := range snap.Nodes(procurement.KindBuyer) {
		groups := map[[2]string]*splitGroup{}
		seen := map[string]bool{}
		for _, e := range snap.Outgoing(procurement.RelPublished, b.Key) {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			p, ok := snap.Node(procurement.KindProcurement, e.To)
			if !ok {
				continue
			}
			awards := snap.Outgoing(procurement.RelHasAward, p.Key)
			if len(awards) == 0 {
				continue
			}
			t, ok := ParseTime(p.Attrs.String(procurement.AttrPublishedDate))
			if !ok {
				continue
			}
			cat := p.Attrs.String(procurement.AttrMainCategory)
			k := [2]string{cat, CalendarDate(t)}
			g := groups[k]
			if g == nil {
				g = &splitGroup{category: cat, date: k[1]}
				groups[k] = g
			}
			g.count++
			for _, ae := range awards {
				if a, ok := snap.Node(procurement.KindAward, ae.To); ok {
					v, _ := a.Attrs.Float(procurement.AttrValue)
					g.value += v
				}
			}
		}

		var best *splitGroup
		for _, g := range groups {
			if g.count < minSplitProcurements {
				continue
			}
			if best == nil || g.beats(*best) {
				best = g
			}
		}
		if best == nil {
			continue
		}
		w.entity(procurement.KindBuyer, b.Key, graph.Attributes{
			"potentialSplitting":      true,
			"splittingCategory":       best.category,
			"splittingDate":           best.date,
			"splittingValue":          best.value,
			"splittingCount":          int64(best.count),
			procurement.AttrRiskLevel: string(countLevel(best.count, 5, 3, procurement.RiskLow)),
		})
	}
	return w
}

// DailyActivity annotates every dated procurement that has awards with its award count
// and mean award value.
func DailyActivity(snap *graph.Snapshot) Writes {
	var w Writes
	for _, p := range snap.Nodes(procurement.KindProcurement) {
		if _, ok := ParseTime(p.Attrs.String(procurement.AttrPublishedDate)); !ok {
			continue
		}
		awards := snap.Outgoing(procurement.RelHasAward, p.Key)
		n, total := 0, 0.0
		for _, e := range awards {
			a, ok := snap.Node(procurement.KindAward, e.To)
			if !ok {
				continue
			}
			v, _ := a.Attrs.Float(procurement.AttrValue)
			total += v
			n++
		}
		if n == 0 {
			continue
		}
		w.entity(procurement.KindProcurement, p.Key, graph.Attributes{
			"avgDailyValue":        total / float64(n),
			"dailyAwards":          int64(n),
			"unusualDailyActivity": string(countLevel(n, 10, 5, procurement.RiskNormal)),
		})
	}
	return w
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
