package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/procurement-graph/internal/domain/procurement"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
	"github.com/yungbote/procurement-graph/internal/platform/neo4jdb"
)

// Neo4jStore persists the procurement graph in neo4j. Labels and relationship types
// come from the closed procurement vocabulary, so interpolating them into Cypher is safe.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("neo4j store: client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Neo4jStore{client: client, log: log.With("store", "Neo4jStore")}, nil
}

func (s *Neo4jStore) EnsureConstraints(ctx context.Context) error {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	for _, kind := range procurement.EntityKinds {
		q := fmt.Sprintf(
			"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			ConstraintName(kind), kind, kind.KeyField(),
		)
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			return fmt.Errorf("create constraint %s: %w", ConstraintName(kind), err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("create constraint %s: %w", ConstraintName(kind), err)
		}
	}
	return nil
}

func (s *Neo4jStore) UpsertEntity(ctx context.Context, kind procurement.EntityKind, key string, attrs Attributes) (bool, error) {
	if err := checkEntity(kind, key); err != nil {
		return false, err
	}
	q := fmt.Sprintf(`
OPTIONAL MATCH (existing:%[1]s {%[2]s: $key})
WITH count(existing) = 0 AS created
MERGE (n:%[1]s {%[2]s: $key})
ON CREATE SET n += $attrs
RETURN created AS out
`, kind, kind.KeyField())
	v, _, err := s.writeSingle(ctx, q, map[string]any{"key": key, "attrs": toParams(attrs)})
	if err != nil {
		return false, fmt.Errorf("upsert %s %q: %w", kind, key, err)
	}
	created, _ := v.(bool)
	return created, nil
}

func (s *Neo4jStore) UpsertRelationship(ctx context.Context, kind procurement.RelKind, from, to string, attrs Attributes) (RelOutcome, error) {
	fk, tk, err := checkRel(kind, from, to)
	if err != nil {
		return RelSkipped, err
	}
	q := fmt.Sprintf(`
MATCH (a:%[1]s {%[2]s: $from})
MATCH (b:%[3]s {%[4]s: $to})
WITH a, b LIMIT 1
OPTIONAL MATCH (a)-[existing:%[5]s]->(b)
WITH a, b, count(existing) = 0 AS created
MERGE (a)-[r:%[5]s]->(b)
ON CREATE SET r += $attrs
RETURN created AS out
`, fk, fk.KeyField(), tk, tk.KeyField(), kind)
	v, found, err := s.writeSingle(ctx, q, map[string]any{"from": from, "to": to, "attrs": toParams(attrs)})
	if err != nil {
		return RelSkipped, fmt.Errorf("upsert %s %q->%q: %w", kind, from, to, err)
	}
	if !found {
		return RelSkipped, nil
	}
	if created, _ := v.(bool); created {
		return RelCreated, nil
	}
	return RelExisting, nil
}

func (s *Neo4jStore) EntityExists(ctx context.Context, kind procurement.EntityKind, key string) (bool, error) {
	if err := checkEntity(kind, key); err != nil {
		return false, err
	}
	q := fmt.Sprintf("MATCH (n:%s {%s: $key}) RETURN count(n) > 0 AS out", kind, kind.KeyField())
	v, _, err := s.readSingle(ctx, q, map[string]any{"key": key})
	if err != nil {
		return false, fmt.Errorf("exists %s %q: %w", kind, key, err)
	}
	ok, _ := v.(bool)
	return ok, nil
}

func (s *Neo4jStore) SetEntityAttributes(ctx context.Context, kind procurement.EntityKind, key string, attrs Attributes) (bool, error) {
	if err := checkEntity(kind, key); err != nil {
		return false, err
	}
	params := toParams(attrs)
	delete(params, kind.KeyField())
	q := fmt.Sprintf("MATCH (n:%s {%s: $key}) SET n += $attrs RETURN count(n) AS out", kind, kind.KeyField())
	v, _, err := s.writeSingle(ctx, q, map[string]any{"key": key, "attrs": params})
	if err != nil {
		return false, fmt.Errorf("set %s %q: %w", kind, key, err)
	}
	n, _ := v.(int64)
	return n > 0, nil
}

func (s *Neo4jStore) SetRelationshipAttributes(ctx context.Context, kind procurement.RelKind, from, to string, attrs Attributes) (bool, error) {
	fk, tk, err := checkRel(kind, from, to)
	if err != nil {
		return false, err
	}
	q := fmt.Sprintf(
		"MATCH (:%s {%s: $from})-[r:%s]->(:%s {%s: $to}) SET r += $attrs RETURN count(r) AS out",
		fk, fk.KeyField(), kind, tk, tk.KeyField(),
	)
	v, _, err := s.writeSingle(ctx, q, map[string]any{"from": from, "to": to, "attrs": toParams(attrs)})
	if err != nil {
		return false, fmt.Errorf("set %s %q->%q: %w", kind, from, to, err)
	}
	n, _ := v.(int64)
	return n > 0, nil
}

// ResetAll drops constraints first so that a schema change between runs cannot block
// the rebuild, then deletes the graph in batches.
func (s *Neo4jStore) ResetAll(ctx context.Context) error {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	res, err := session.Run(ctx, "SHOW CONSTRAINTS YIELD name RETURN name", nil)
	if err != nil {
		return fmt.Errorf("list constraints: %w", err)
	}
	var names []string
	for res.Next(ctx) {
		if v, ok := res.Record().Get("name"); ok {
			if name, ok := v.(string); ok && name != "" {
				names = append(names, name)
			}
		}
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("list constraints: %w", err)
	}
	for _, name := range names {
		q := fmt.Sprintf("DROP CONSTRAINT `%s` IF EXISTS", strings.ReplaceAll(name, "`", "``"))
		r, err := session.Run(ctx, q, nil)
		if err != nil {
			return fmt.Errorf("drop constraint %s: %w", name, err)
		}
		if _, err := r.Consume(ctx); err != nil {
			return fmt.Errorf("drop constraint %s: %w", name, err)
		}
	}

	// CALL {} IN TRANSACTIONS needs an auto-commit transaction, hence session.Run.
	r, err := session.Run(ctx, "MATCH (n) CALL { WITH n DETACH DELETE n } IN TRANSACTIONS OF 10000 ROWS", nil)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	summary, err := r.Consume(ctx)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	s.log.Info("graph reset",
		"constraints_dropped", len(names),
		"nodes_deleted", summary.Counters().NodesDeleted(),
		"relationships_deleted", summary.Counters().RelationshipsDeleted(),
	)
	return nil
}

func (s *Neo4jStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		snap := NewSnapshot()
		for _, kind := range procurement.EntityKinds {
			q := fmt.Sprintf("MATCH (n:%s) RETURN n.%s AS key, properties(n) AS props ORDER BY elementId(n)", kind, kind.KeyField())
			res, err := tx.Run(ctx, q, nil)
			if err != nil {
				return nil, fmt.Errorf("read %s nodes: %w", kind, err)
			}
			for res.Next(ctx) {
				rec := res.Record()
				key, _ := rec.Get("key")
				props, _ := rec.Get("props")
				k, _ := key.(string)
				snap.AddNode(Node{Kind: kind, Key: k, Attrs: fromProps(props)})
			}
			if err := res.Err(); err != nil {
				return nil, fmt.Errorf("read %s nodes: %w", kind, err)
			}
		}
		for _, kind := range procurement.RelKinds {
			fk, tk, _ := kind.Endpoints()
			q := fmt.Sprintf(
				"MATCH (a:%s)-[r:%s]->(b:%s) RETURN a.%s AS from, b.%s AS to, properties(r) AS props ORDER BY elementId(r)",
				fk, kind, tk, fk.KeyField(), tk.KeyField(),
			)
			res, err := tx.Run(ctx, q, nil)
			if err != nil {
				return nil, fmt.Errorf("read %s edges: %w", kind, err)
			}
			for res.Next(ctx) {
				rec := res.Record()
				from, _ := rec.Get("from")
				to, _ := rec.Get("to")
				props, _ := rec.Get("props")
				f, _ := from.(string)
				t, _ := to.(string)
				snap.AddEdge(Edge{Kind: kind, From: f, To: t, Attrs: fromProps(props)})
			}
			if err := res.Err(); err != nil {
				return nil, fmt.Errorf("read %s edges: %w", kind, err)
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Snapshot), nil
}

type singleResult struct {
	value any
	found bool
}

func (s *Neo4jStore) writeSingle(ctx context.Context, q string, params map[string]any) (any, bool, error) {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)
	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runSingle(ctx, tx, q, params)
	})
	if err != nil {
		return nil, false, err
	}
	r := out.(singleResult)
	return r.value, r.found, nil
}

func (s *Neo4jStore) readSingle(ctx context.Context, q string, params map[string]any) (any, bool, error) {
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runSingle(ctx, tx, q, params)
	})
	if err != nil {
		return nil, false, err
	}
	r := out.(singleResult)
	return r.value, r.found, nil
}

func runSingle(ctx context.Context, tx neo4j.ManagedTransaction, q string, params map[string]any) (singleResult, error) {
	res, err := tx.Run(ctx, q, params)
	if err != nil {
		return singleResult{}, err
	}
	if !res.Next(ctx) {
		return singleResult{}, res.Err()
	}
	v, _ := res.Record().Get("out")
	if _, err := res.Consume(ctx); err != nil {
		return singleResult{}, err
	}
	return singleResult{value: v, found: true}, nil
}

// toParams converts attributes into driver parameters. []string is widened to []any,
// the shape the driver returns lists in.
func toParams(attrs Attributes) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if ss, ok := v.([]string); ok {
			list := make([]any, len(ss))
			for i, s := range ss {
				list[i] = s
			}
			out[k] = list
			continue
		}
		out[k] = v
	}
	return out
}

func fromProps(v any) Attributes {
	m, ok := v.(map[string]any)
	if !ok {
		return Attributes{}
	}
	return Attributes(m)
}
