// Package hnsw implements a Hierarchical Navigable Small World graph
// (§4.6): a layered proximity graph supporting approximate nearest-
// neighbor search with logarithmic expected hop count. Construction uses
// a geometric level draw, greedy descent through upper layers, and an
// ef_construction-bounded beam search with heuristic neighbor selection
// at the target layer.
package hnsw

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Metric is a vector similarity function. DotProduct is negated
// internally during search so every metric can be treated as "smaller is
// closer" against a min-heap.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
	MetricDotProduct
)

// Distance computes the search-ordering distance between a and b under m
// (lower is closer; for MetricDotProduct this is the negated dot
// product, since larger dot products mean closer vectors).
func Distance(m Metric, a, b []float32) float64 {
	switch m {
	case MetricCosine:
		return 1 - cosineSimilarity(a, b)
	case MetricDotProduct:
		return -dotProduct(a, b)
	default:
		return l2Squared(a, b)
	}
}

func l2Squared(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosineSimilarity(a, b []float32) float64 {
	dot := dotProduct(a, b)
	var na, nb float64
	for i := range a {
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Config controls graph construction and search parameters.
type Config struct {
	Dimensions     int
	Metric         Metric
	M              int // max neighbors per node at layers above 0 (default 16)
	M0             int // max neighbors per node at layer 0 (default 2*M, per §4.6)
	EfConstruction int // beam width used while inserting (default 200)
	LevelMult      float64
	Seed           int64
	// UseSimpleSelection picks the M nearest candidates outright. The
	// default (false) is the heuristic selector from §4.6: candidates
	// are walked nearest-first and kept only if they are closer to the
	// target than to any neighbor already kept, preserving links to
	// distant regions of the graph that a pure nearest-M cut would prune.
	UseSimpleSelection bool
}

func (c *Config) setDefaults() {
	if c.M == 0 {
		c.M = 16
	}
	if c.M0 == 0 {
		c.M0 = 2 * c.M
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = 200
	}
	if c.LevelMult == 0 {
		c.LevelMult = 1 / math.Log(float64(c.M))
	}
}

type node struct {
	id        int64
	vec       []float32
	neighbors [][]int64 // neighbors[layer] = ordered neighbor ids
	tombstone bool
}

// Graph is a mutable HNSW index. All exported methods are safe for
// concurrent readers against a single writer (§5): writers call Upsert/
// Tombstone while holding the write lock implicitly via these methods,
// and Search takes a read lock.
type Graph struct {
	mu         sync.RWMutex
	cfg        Config
	nodes      map[int64]*node
	entryPoint int64
	maxLevel   int
	rng        *rand.Rand

	// version counts every Upsert/Tombstone since construction; pending
	// counts reset to zero on Compact, giving snapshot() the same
	// upsert/delete-since-last-compaction view the delta layer exposes
	// in §4.6.
	version       uint64
	pendingUpsert uint64
	pendingDelete uint64
}

// New creates an empty graph.
func New(cfg Config) *Graph {
	cfg.setDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &Graph{
		cfg:        cfg,
		nodes:      make(map[int64]*node),
		entryPoint: -1,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// capFor returns the neighbor-count cap for layer: M0 at layer 0, M at
// every layer above it (§4.6).
func (g *Graph) capFor(layer int) int {
	if layer == 0 {
		return g.cfg.M0
	}
	return g.cfg.M
}

// randomLevel draws a node's top layer via the standard HNSW
// exponential-decay distribution: -ln(uniform) * levelMult, floored.
func (g *Graph) randomLevel() int {
	r := -math.Log(g.rng.Float64()) * g.cfg.LevelMult
	return int(r)
}

// Upsert inserts vec under id, or replaces id's vector and re-links it if
// id already exists.
func (g *Graph) Upsert(id int64, vec []float32) error {
	if len(vec) != g.cfg.Dimensions {
		return fmt.Errorf("hnsw: vector has %d dimensions, want %d", len(vec), g.cfg.Dimensions)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.version++
	g.pendingUpsert++

	// Re-upserting an id rebuilds its node and edges from scratch rather
	// than patching the existing one in place.
	level := g.randomLevel()
	n := &node{id: id, vec: vec, neighbors: make([][]int64, level+1)}
	g.nodes[id] = n

	if g.entryPoint == -1 {
		g.entryPoint = id
		g.maxLevel = level
		return nil
	}

	ep := g.entryPoint
	curDist := Distance(g.cfg.Metric, g.nodes[ep].vec, vec)
	for l := g.maxLevel; l > level; l-- {
		ep, curDist = g.greedyDescend(ep, curDist, vec, l)
	}

	for l := min(level, g.maxLevel); l >= 0; l-- {
		candidates := g.searchLayer(vec, ep, g.cfg.EfConstruction, l)
		selected := g.selectNeighbors(candidates, g.capFor(l))
		n.neighbors[l] = selected
		for _, nb := range selected {
			g.addReverseEdge(nb, id, l)
		}
		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entryPoint = id
	}
	return nil
}

// Tombstone marks id as deleted without unlinking it from the graph
// immediately — search skips tombstoned nodes, and Compact later removes
// them along with their edges.
func (g *Graph) Tombstone(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok && !n.tombstone {
		n.tombstone = true
		g.version++
		g.pendingDelete++
	}
}

// Delete is the spec's name (§4.6 "delete(row_id) tombstones") for
// Tombstone, kept as a separate method so callers reading against the
// spec's vocabulary find the operation under its documented name.
func (g *Graph) Delete(id int64) { g.Tombstone(id) }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// candidate pairs a node id with its distance from the query, used for
// both the search beam and the final result ranking.
type candidate struct {
	id   int64
	dist float64
}

func (g *Graph) greedyDescend(ep int64, epDist float64, query []float32, layer int) (int64, float64) {
	improved := true
	for improved {
		improved = false
		for _, nb := range g.nodes[ep].neighbors[layer] {
			nbNode := g.nodes[nb]
			if nbNode == nil || nbNode.tombstone {
				continue
			}
			d := Distance(g.cfg.Metric, nbNode.vec, query)
			if d < epDist {
				epDist = d
				ep = nb
				improved = true
			}
		}
	}
	return ep, epDist
}

// searchLayer runs the ef-bounded beam search at layer, returning
// candidates sorted by ascending distance.
func (g *Graph) searchLayer(query []float32, entry int64, ef int, layer int) []candidate {
	visited := map[int64]bool{entry: true}
	entryDist := Distance(g.cfg.Metric, g.nodes[entry].vec, query)

	candidates := &minHeap{{entry, entryDist}}
	results := &maxHeap{{entry, entryDist}}

	for candidates.Len() > 0 {
		c := candidates.PopC()
		worst := (*results)[0]
		if c.dist > worst.dist && results.Len() >= ef {
			break
		}
		n := g.nodes[c.id]
		if n == nil {
			continue
		}
		if layer >= len(n.neighbors) {
			continue
		}
		for _, nbID := range n.neighbors[layer] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			nb := g.nodes[nbID]
			if nb == nil || nb.tombstone {
				continue
			}
			d := Distance(g.cfg.Metric, nb.vec, query)
			worst := (*results)[0]
			if results.Len() < ef || d < worst.dist {
				candidates.PushC(candidate{nbID, d})
				results.PushC(candidate{nbID, d})
				if results.Len() > ef {
					results.PopC()
				}
			}
		}
	}

	out := make([]candidate, len(*results))
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// selectNeighbors picks up to m neighbors from candidates (sorted
// ascending by distance to the target). UseSimpleSelection takes the m
// nearest outright; otherwise the §4.6 heuristic walks candidates
// nearest-first and keeps one only if it is closer to the target than
// to every neighbor already kept, trading a few nearby links for edges
// into otherwise-disconnected regions of the graph.
func (g *Graph) selectNeighbors(candidates []candidate, m int) []int64 {
	if g.cfg.UseSimpleSelection {
		if len(candidates) > m {
			candidates = candidates[:m]
		}
		out := make([]int64, len(candidates))
		for i, c := range candidates {
			out[i] = c.id
		}
		return out
	}

	kept := make([]candidate, 0, m)
	for _, c := range candidates {
		if len(kept) >= m {
			break
		}
		cn := g.nodes[c.id]
		if cn == nil {
			continue
		}
		diverse := true
		for _, k := range kept {
			kn := g.nodes[k.id]
			if kn == nil {
				continue
			}
			if Distance(g.cfg.Metric, cn.vec, kn.vec) < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			kept = append(kept, c)
		}
	}
	out := make([]int64, len(kept))
	for i, k := range kept {
		out[i] = k.id
	}
	return out
}

// addReverseEdge attaches id as a neighbor of nb at layer, re-selecting
// nb's neighbor set with the same selection rule as a forward insert
// (§4.6) if it would exceed M.
func (g *Graph) addReverseEdge(nb, id int64, layer int) {
	n := g.nodes[nb]
	if n == nil {
		return
	}
	for layer >= len(n.neighbors) {
		n.neighbors = append(n.neighbors, nil)
	}
	n.neighbors[layer] = append(n.neighbors[layer], id)
	capN := g.capFor(layer)
	if len(n.neighbors[layer]) <= capN {
		return
	}
	candidates := make([]candidate, 0, len(n.neighbors[layer]))
	for _, other := range n.neighbors[layer] {
		on := g.nodes[other]
		if on == nil {
			continue
		}
		candidates = append(candidates, candidate{other, Distance(g.cfg.Metric, n.vec, on.vec)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	n.neighbors[layer] = g.selectNeighbors(candidates, capN)
}

// Search returns up to k nearest neighbors of query, widening the beam
// to at least ef (which must be >= k for meaningful recall).
func (g *Graph) Search(query []float32, k, ef int) ([]int64, []float64, error) {
	if len(query) != g.cfg.Dimensions {
		return nil, nil, fmt.Errorf("hnsw: query has %d dimensions, want %d", len(query), g.cfg.Dimensions)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.entryPoint == -1 {
		return nil, nil, nil
	}
	if ef < k {
		ef = k
	}

	ep := g.entryPoint
	epDist := Distance(g.cfg.Metric, g.nodes[ep].vec, query)
	for l := g.maxLevel; l > 0; l-- {
		ep, epDist = g.greedyDescend(ep, epDist, query, l)
	}

	results := g.searchLayer(query, ep, ef, 0)
	filtered := results[:0]
	for _, r := range results {
		if n := g.nodes[r.id]; n != nil && !n.tombstone {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	ids := make([]int64, len(filtered))
	dists := make([]float64, len(filtered))
	for i, f := range filtered {
		ids[i] = f.id
		dists[i] = f.dist
	}
	return ids, dists, nil
}

// Metric reports the distance metric this graph was built with.
func (g *Graph) Metric() Metric {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg.Metric
}

// Len reports the number of live (non-tombstoned) vectors.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, nd := range g.nodes {
		if !nd.tombstone {
			n++
		}
	}
	return n
}

// Compact rebuilds the graph from scratch over its current live vectors,
// permanently dropping tombstoned nodes and their edges. Called by
// scheduled maintenance rather than inline with writes, since it
// reconstructs the whole index.
func (g *Graph) Compact() {
	g.mu.Lock()
	live := make([]struct {
		id  int64
		vec []float32
	}, 0, len(g.nodes))
	for id, n := range g.nodes {
		if !n.tombstone {
			live = append(live, struct {
				id  int64
				vec []float32
			}{id, n.vec})
		}
	}
	cfg := g.cfg
	g.mu.Unlock()

	rebuilt := New(cfg)
	for _, l := range live {
		rebuilt.Upsert(l.id, l.vec)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = rebuilt.nodes
	g.entryPoint = rebuilt.entryPoint
	g.maxLevel = rebuilt.maxLevel
	g.version++
	g.pendingUpsert = 0
	g.pendingDelete = 0
}

// Snapshot reports the observable delta-layer state named in §4.6:
// a monotonic version, a content checksum, the live node count, and the
// upsert/delete counts accumulated since the last Compact.
type Snapshot struct {
	Version            uint64
	Checksum           [32]byte
	ActiveNodeCount    int
	PendingUpsertCount uint64
	PendingDeleteCount uint64
}

// HasPendingMutations reports whether any Upsert or Tombstone has run
// since the last Compact.
func (g *Graph) HasPendingMutations() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pendingUpsert > 0 || g.pendingDelete > 0
}

// snapshotLocked computes Snapshot; the caller holds g.mu. The checksum
// covers every node id, tombstoned ones included, with its tombstone
// flag, sorted for determinism, using
// blake2b rather than the ledger's SHA-256 so a vector-index checksum
// mismatch is never confusable with a provenance-chain failure.
func (g *Graph) snapshotLocked() Snapshot {
	ids := make([]int64, 0, len(g.nodes))
	active := 0
	for id, n := range g.nodes {
		ids = append(ids, id)
		if !n.tombstone {
			active++
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h, _ := blake2b.New256(nil)
	var tmp [9]byte
	for _, id := range ids {
		binary.BigEndian.PutUint64(tmp[:8], uint64(id))
		if g.nodes[id].tombstone {
			tmp[8] = 1
		} else {
			tmp[8] = 0
		}
		h.Write(tmp[:])
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))

	return Snapshot{
		Version:            g.version,
		Checksum:           sum,
		ActiveNodeCount:    active,
		PendingUpsertCount: g.pendingUpsert,
		PendingDeleteCount: g.pendingDelete,
	}
}

// Snapshot returns the current observable delta-layer state (§4.6).
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}
