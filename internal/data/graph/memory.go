package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

type edgeKey struct {
	from string
	to   string
}

// MemoryStore is an adjacency-map Store. Iteration order is insertion order so that
// snapshots, and everything computed from them, are deterministic.
type MemoryStore struct {
	mu sync.Mutex

	constraints map[string]struct{}
	nodes       map[procurement.EntityKind]map[string]Attributes
	nodeOrder   map[procurement.EntityKind][]string
	edges       map[procurement.RelKind]map[edgeKey]Attributes
	edgeOrder   map[procurement.RelKind][]edgeKey
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.clear()
	return s
}

func (s *MemoryStore) clear() {
	s.constraints = map[string]struct{}{}
	s.nodes = map[procurement.EntityKind]map[string]Attributes{}
	s.nodeOrder = map[procurement.EntityKind][]string{}
	s.edges = map[procurement.RelKind]map[edgeKey]Attributes{}
	s.edgeOrder = map[procurement.RelKind][]edgeKey{}
}

func (s *MemoryStore) EnsureConstraints(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range procurement.EntityKinds {
		s.constraints[ConstraintName(k)] = struct{}{}
	}
	return nil
}

// Constraints lists the declared constraint names, sorted.
func (s *MemoryStore) Constraints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.constraints))
	for name := range s.constraints {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) UpsertEntity(ctx context.Context, kind procurement.EntityKind, key string, attrs Attributes) (bool, error) {
	if err := checkEntity(kind, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := s.nodes[kind]
	if byKey == nil {
		byKey = map[string]Attributes{}
		s.nodes[kind] = byKey
	}
	if _, ok := byKey[key]; ok {
		return false, nil
	}
	stored := attrs.Clone()
	stored[kind.KeyField()] = key
	byKey[key] = stored
	s.nodeOrder[kind] = append(s.nodeOrder[kind], key)
	return true, nil
}

func (s *MemoryStore) UpsertRelationship(ctx context.Context, kind procurement.RelKind, from, to string, attrs Attributes) (RelOutcome, error) {
	fk, tk, err := checkRel(kind, from, to)
	if err != nil {
		return RelSkipped, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasNode(fk, from) || !s.hasNode(tk, to) {
		return RelSkipped, nil
	}
	byPair := s.edges[kind]
	if byPair == nil {
		byPair = map[edgeKey]Attributes{}
		s.edges[kind] = byPair
	}
	ek := edgeKey{from: from, to: to}
	if _, ok := byPair[ek]; ok {
		return RelExisting, nil
	}
	byPair[ek] = attrs.Clone()
	s.edgeOrder[kind] = append(s.edgeOrder[kind], ek)
	return RelCreated, nil
}

func (s *MemoryStore) EntityExists(ctx context.Context, kind procurement.EntityKind, key string) (bool, error) {
	if err := checkEntity(kind, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasNode(kind, key), nil
}

func (s *MemoryStore) SetEntityAttributes(ctx context.Context, kind procurement.EntityKind, key string, attrs Attributes) (bool, error) {
	if err := checkEntity(kind, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.nodes[kind][key]
	if !ok {
		return false, nil
	}
	for k, v := range attrs.Clone() {
		if k == kind.KeyField() {
			continue
		}
		stored[k] = v
	}
	return true, nil
}

func (s *MemoryStore) SetRelationshipAttributes(ctx context.Context, kind procurement.RelKind, from, to string, attrs Attributes) (bool, error) {
	if _, _, err := checkRel(kind, from, to); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.edges[kind][edgeKey{from: from, to: to}]
	if !ok {
		return false, nil
	}
	for k, v := range attrs.Clone() {
		stored[k] = v
	}
	return true, nil
}

func (s *MemoryStore) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	return nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := NewSnapshot()
	for _, kind := range procurement.EntityKinds {
		for _, key := range s.nodeOrder[kind] {
			snap.AddNode(Node{Kind: kind, Key: key, Attrs: s.nodes[kind][key].Clone()})
		}
	}
	for _, kind := range procurement.RelKinds {
		for _, ek := range s.edgeOrder[kind] {
			snap.AddEdge(Edge{Kind: kind, From: ek.from, To: ek.to, Attrs: s.edges[kind][ek].Clone()})
		}
	}
	return snap, nil
}

func (s *MemoryStore) hasNode(kind procurement.EntityKind, key string) bool {
	_, ok := s.nodes[kind][key]
	return ok
}
