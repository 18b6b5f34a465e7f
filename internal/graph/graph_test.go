package graph

import "testing"

type fakeStore struct {
	nextConcept int64
	nextRel     int64
	archived    []int64
}

func (s *fakeStore) PutConcept(c *Concept) (int64, error) {
	s.nextConcept++
	return s.nextConcept, nil
}

func (s *fakeStore) PutRelation(r *Relation) (int64, error) {
	s.nextRel++
	return s.nextRel, nil
}

func (s *fakeStore) DeleteRelation(rowid int64) error { return nil }

func (s *fakeStore) ArchiveRelation(r *Relation) error {
	s.archived = append(s.archived, r.RowID)
	return nil
}

func buildDiamond(t *testing.T) (*Graph, map[string]int64) {
	t.Helper()
	g := New(&fakeStore{})
	ids := map[string]int64{}
	for _, k := range []string{"a", "b", "c", "d"} {
		id, err := g.Intern(k, "node", nil)
		if err != nil {
			t.Fatal(err)
		}
		ids[k] = id
	}
	g.Link(ids["a"], ids["b"], "edge", 1, nil)
	g.Link(ids["a"], ids["c"], "edge", 1, nil)
	g.Link(ids["b"], ids["d"], "edge", 1, nil)
	g.Link(ids["c"], ids["d"], "edge", 1, nil)
	return g, ids
}

func TestBFSRespectsMaxDepth(t *testing.T) {
	g, ids := buildDiamond(t)
	nodes, err := g.BFS(ids["a"], TraverseOptions{Direction: DirectionOut, MaxDepth: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 3 { // a, b, c
		t.Fatalf("got %d nodes, want 3", len(nodes))
	}
}

func TestBFSRespectsTokenBudget(t *testing.T) {
	// A(100)->B(100)->C(100)->D(100); admitting C would push cumulative
	// cost to 300 against a 250 budget, so only A and B are admitted (§8
	// scenario S6).
	g := New(&fakeStore{})
	a, _ := g.InternWithTokens("a", "node", nil, 100)
	b, _ := g.InternWithTokens("b", "node", nil, 100)
	c, _ := g.InternWithTokens("c", "node", nil, 100)
	d, _ := g.InternWithTokens("d", "node", nil, 100)
	g.Link(a, b, "edge", 1, nil)
	g.Link(b, c, "edge", 1, nil)
	g.Link(c, d, "edge", 1, nil)

	nodes, err := g.BFS(a, TraverseOptions{Direction: DirectionOut, MaxDepth: 5, MaxTokens: 250})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2 (A, B): %+v", len(nodes), nodes)
	}
	if nodes[0].ConceptID != a || nodes[1].ConceptID != b {
		t.Fatalf("expected [A, B], got %+v", nodes)
	}
}

func TestShortestPath(t *testing.T) {
	g, ids := buildDiamond(t)
	path, err := g.ShortestPath(ids["a"], ids["d"], DirectionOut)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 3 {
		t.Fatalf("path = %v, want length 3", path)
	}
	if path[0] != ids["a"] || path[2] != ids["d"] {
		t.Fatalf("path endpoints wrong: %v", path)
	}
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	g, ids := buildDiamond(t)
	if _, err := g.TopologicalSort(""); err != nil {
		t.Fatalf("diamond should not be cyclic: %v", err)
	}
	g.Link(ids["d"], ids["a"], "edge", 1, nil)
	if _, err := g.TopologicalSort(""); err == nil {
		t.Fatal("expected cycle error after closing the loop")
	}
}

func TestDegreeCentrality(t *testing.T) {
	g, ids := buildDiamond(t)
	deg := g.DegreeCentrality(DirectionBoth)
	if deg[ids["a"]] != 2 {
		t.Fatalf("degree(a) = %d, want 2", deg[ids["a"]])
	}
	if deg[ids["d"]] != 2 {
		t.Fatalf("degree(d) = %d, want 2", deg[ids["d"]])
	}
}

func TestUnlinkArchivesRelation(t *testing.T) {
	g, ids := buildDiamond(t)
	store := g.store.(*fakeStore)
	relID := g.outEdges[ids["a"]][0]
	if err := g.Unlink(relID); err != nil {
		t.Fatal(err)
	}
	if len(store.archived) != 1 {
		t.Fatalf("expected 1 archived relation, got %d", len(store.archived))
	}
}
