package graph

import (
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

type Node struct {
	Kind  procurement.EntityKind
	Key   string
	Attrs Attributes
}

type Edge struct {
	Kind  procurement.RelKind
	From  string
	To    string
	Attrs Attributes
}

// Snapshot is a read-only view of the graph at one point in time. Nodes sharing a key
// are all kept (a healthy store never has them, the verifier looks for them); lookups
// by key return the first one.
type Snapshot struct {
	nodes map[procurement.EntityKind][]Node
	edges map[procurement.RelKind][]Edge

	byKey    map[procurement.EntityKind]map[string]int
	outgoing map[procurement.RelKind]map[string][]int
	incoming map[procurement.RelKind]map[string][]int
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		nodes:    map[procurement.EntityKind][]Node{},
		edges:    map[procurement.RelKind][]Edge{},
		byKey:    map[procurement.EntityKind]map[string]int{},
		outgoing: map[procurement.RelKind]map[string][]int{},
		incoming: map[procurement.RelKind]map[string][]int{},
	}
}

func (s *Snapshot) AddNode(n Node) {
	if n.Attrs == nil {
		n.Attrs = Attributes{}
	}
	idx := len(s.nodes[n.Kind])
	s.nodes[n.Kind] = append(s.nodes[n.Kind], n)
	m := s.byKey[n.Kind]
	if m == nil {
		m = map[string]int{}
		s.byKey[n.Kind] = m
	}
	if _, dup := m[n.Key]; !dup {
		m[n.Key] = idx
	}
}

func (s *Snapshot) AddEdge(e Edge) {
	if e.Attrs == nil {
		e.Attrs = Attributes{}
	}
	idx := len(s.edges[e.Kind])
	s.edges[e.Kind] = append(s.edges[e.Kind], e)
	if s.outgoing[e.Kind] == nil {
		s.outgoing[e.Kind] = map[string][]int{}
		s.incoming[e.Kind] = map[string][]int{}
	}
	s.outgoing[e.Kind][e.From] = append(s.outgoing[e.Kind][e.From], idx)
	s.incoming[e.Kind][e.To] = append(s.incoming[e.Kind][e.To], idx)
}

func (s *Snapshot) Nodes(kind procurement.EntityKind) []Node { return s.nodes[kind] }

func (s *Snapshot) Edges(kind procurement.RelKind) []Edge { return s.edges[kind] }

func (s *Snapshot) Node(kind procurement.EntityKind, key string) (Node, bool) {
	idx, ok := s.byKey[kind][key]
	if !ok {
		return Node{}, false
	}
	return s.nodes[kind][idx], true
}

// Outgoing returns the edges of kind leaving from, in insertion order.
func (s *Snapshot) Outgoing(kind procurement.RelKind, from string) []Edge {
	return s.pick(kind, s.outgoing[kind][from])
}

// Incoming returns the edges of kind arriving at to, in insertion order.
func (s *Snapshot) Incoming(kind procurement.RelKind, to string) []Edge {
	return s.pick(kind, s.incoming[kind][to])
}

func (s *Snapshot) HasIncoming(kind procurement.RelKind, to string) bool {
	return len(s.incoming[kind][to]) > 0
}

func (s *Snapshot) Edge(kind procurement.RelKind, from, to string) (Edge, bool) {
	for _, idx := range s.outgoing[kind][from] {
		if e := s.edges[kind][idx]; e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

func (s *Snapshot) pick(kind procurement.RelKind, idxs []int) []Edge {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.edges[kind][i])
	}
	return out
}

func (s *Snapshot) NodeCount(kind procurement.EntityKind) int { return len(s.nodes[kind]) }

func (s *Snapshot) EdgeCount(kind procurement.RelKind) int { return len(s.edges[kind]) }
