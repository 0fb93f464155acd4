// Package graph is the persistence boundary for the procurement graph. Store is
// implemented by an in-memory adjacency structure and by neo4j; both give the same
// create-or-ignore semantics, so the loader and risk passes never know which one they
// are writing to.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/procurement-graph/internal/domain/procurement"
)

var (
	ErrUnknownKind = errors.New("unknown graph kind")
	ErrEmptyKey    = errors.New("empty entity key")
)

// RelOutcome reports what UpsertRelationship did.
type RelOutcome int

const (
	RelCreated RelOutcome = iota
	RelExisting
	// RelSkipped means one of the endpoints does not exist; nothing was written.
	RelSkipped
)

func (o RelOutcome) String() string {
	switch o {
	case RelCreated:
		return "created"
	case RelExisting:
		return "existing"
	case RelSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("RelOutcome(%d)", int(o))
	}
}

type Store interface {
	// EnsureConstraints declares one uniqueness constraint per entity key. Safe to repeat.
	EnsureConstraints(ctx context.Context) error
	// UpsertEntity creates the node with attrs if absent. Existing nodes are left
	// untouched. Reports whether the node was created.
	UpsertEntity(ctx context.Context, kind procurement.EntityKind, key string, attrs Attributes) (bool, error)
	// UpsertRelationship creates the edge with attrs between two existing nodes if
	// absent. A missing endpoint yields RelSkipped and no error.
	UpsertRelationship(ctx context.Context, kind procurement.RelKind, from, to string, attrs Attributes) (RelOutcome, error)
	EntityExists(ctx context.Context, kind procurement.EntityKind, key string) (bool, error)
	// SetEntityAttributes overwrites the given attributes on an existing node.
	// Reports false when the node does not exist.
	SetEntityAttributes(ctx context.Context, kind procurement.EntityKind, key string, attrs Attributes) (bool, error)
	SetRelationshipAttributes(ctx context.Context, kind procurement.RelKind, from, to string, attrs Attributes) (bool, error)
	// ResetAll drops every constraint, then every node and edge.
	ResetAll(ctx context.Context) error
	// Snapshot reads the whole graph.
	Snapshot(ctx context.Context) (*Snapshot, error)
}

func checkEntity(kind procurement.EntityKind, key string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: entity %q", ErrUnknownKind, kind)
	}
	if key == "" {
		return fmt.Errorf("%w: %s", ErrEmptyKey, kind)
	}
	return nil
}

func checkRel(kind procurement.RelKind, from, to string) (procurement.EntityKind, procurement.EntityKind, error) {
	fk, tk, ok := kind.Endpoints()
	if !ok {
		return "", "", fmt.Errorf("%w: relationship %q", ErrUnknownKind, kind)
	}
	if from == "" || to == "" {
		return "", "", fmt.Errorf("%w: %s endpoint", ErrEmptyKey, kind)
	}
	return fk, tk, nil
}

// ConstraintName is the name a kind's uniqueness constraint is declared under.
func ConstraintName(kind procurement.EntityKind) string {
	return fmt.Sprintf("%s_%s_unique", strings.ToLower(string(kind)), kind.KeyField())
}
