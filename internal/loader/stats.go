package loader

import (
	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

type EntityStats struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

type RelationshipStats struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Skipped  int `json:"skipped"`
}

// Stats counts what a Load did. Skipped relationships and dropped contracts are
// referential gaps in the input, not failures.
type Stats struct {
	Entities         map[procurement.EntityKind]EntityStats    `json:"entities"`
	Relationships    map[procurement.RelKind]RelationshipStats `json:"relationships"`
	DroppedContracts int                                       `json:"droppedContracts"`
}

func newStats() Stats {
	return Stats{
		Entities:      map[procurement.EntityKind]EntityStats{},
		Relationships: map[procurement.RelKind]RelationshipStats{},
	}
}

func (s *Stats) entity(kind procurement.EntityKind, created bool) {
	es := s.Entities[kind]
	if created {
		es.Created++
	} else {
		es.Existing++
	}
	s.Entities[kind] = es
}

func (s *Stats) rel(kind procurement.RelKind, out graph.RelOutcome) {
	rs := s.Relationships[kind]
	switch out {
	case graph.RelCreated:
		rs.Created++
	case graph.RelExisting:
		rs.Existing++
	default:
		rs.Skipped++
	}
	s.Relationships[kind] = rs
}

func (s Stats) SkippedRelationships() int {
	n := 0
	for _, rs := range s.Relationships {
		n += rs.Skipped
	}
	return n
}

func (s Stats) Created() int {
	n := 0
	for _, es := range s.Entities {
		n += es.Created
	}
	for _, rs := range s.Relationships {
		n += rs.Created
	}
	return n
}
