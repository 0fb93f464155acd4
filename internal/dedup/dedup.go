// Package dedup collapses records that describe the same procurement process (same ocid)
// down to the most recently published one.
package dedup

import (
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

// GroupDiscard reports how many records were dropped for one ocid.
type GroupDiscard struct {
	OCID      string
	Discarded int
	// RunningTotal is the cumulative discard count up to and including this group.
	RunningTotal int
	Kept         string
}

type Result struct {
	Records               []procurement.Record
	Groups                []GroupDiscard
	TotalDiscarded        int
	ContractsWithoutAward int
}

// Deduplicate keeps, per ocid, the record with the greatest published date (the same
// date the loader stamps, tender.datePublished when the release has none) using plain
// string ordering. On equal dates the record encountered last wins. Output order follows
// the first appearance of each ocid.
func Deduplicate(records []procurement.Record) Result {
	order := make([]string, 0, len(records))
	best := make(map[string]int, len(records))
	counts := make(map[string]int, len(records))

	for i := range records {
		ocid := records[i].OCID
		counts[ocid]++
		cur, seen := best[ocid]
		if !seen {
			order = append(order, ocid)
			best[ocid] = i
			continue
		}
		if records[i].Published() >= records[cur].Published() {
			best[ocid] = i
		}
	}

	res := Result{Records: make([]procurement.Record, 0, len(order))}
	for _, ocid := range order {
		kept := records[best[ocid]]
		res.Records = append(res.Records, kept)
		if n := counts[ocid]; n > 1 {
			res.TotalDiscarded += n - 1
			res.Groups = append(res.Groups, GroupDiscard{
				OCID:         ocid,
				Discarded:    n - 1,
				RunningTotal: res.TotalDiscarded,
				Kept:         kept.Published(),
			})
		}
	}
	res.ContractsWithoutAward = ContractsWithoutAward(res.Records)
	return res
}

// ContractsWithoutAward counts contracts that carry no award reference.
func ContractsWithoutAward(records []procurement.Record) int {
	n := 0
	for i := range records {
		for _, c := range records[i].Contracts {
			if c.AwardID == "" {
				n++
			}
		}
	}
	return n
}
