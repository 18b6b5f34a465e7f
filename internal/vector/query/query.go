// Package query implements vector search strategy selection and
// reciprocal rank fusion (§4.6, §4.7): choosing between a flat scan and
// the HNSW index based on selectivity, and merging a lexical result set
// with a vector result set into a single ranking.
package query

import (
	"fmt"
	"sort"

	"github.com/sharc-db/sharc/internal/vector/hnsw"
)

// Strategy names the search path VectorQuery chose, reported back to
// callers for diagnostics and tests.
type Strategy int

const (
	StrategyFlatScan Strategy = iota
	StrategyHnswNearest
	StrategyHnswReranked
	StrategyHnswPostFilterWidening
	StrategyHnswWithinDistanceWidening
)

func (s Strategy) String() string {
	switch s {
	case StrategyHnswNearest:
		return "hnsw_nearest"
	case StrategyHnswReranked:
		return "hnsw_reranked"
	case StrategyHnswPostFilterWidening:
		return "hnsw_post_filter_widening"
	case StrategyHnswWithinDistanceWidening:
		return "hnsw_within_distance_widening"
	default:
		return "flat_scan"
	}
}

// Candidate is one row eligible for vector search: a rowid plus the
// stored vector, exposed so flat scan and post-filtering can share the
// same shape.
type Candidate struct {
	RowID  int64
	Vector []float32
}

// PostFilter narrows a candidate set before distance is computed, e.g.
// for a WHERE clause accompanying a vector search. Returning true keeps
// the row.
type PostFilter func(rowid int64) bool

// Request parameterizes a single vector search call.
type Request struct {
	Query           []float32
	K               int
	Metric          hnsw.Metric
	Filter          PostFilter
	ForceFlatScan   bool
	// SelectivityThreshold: when Filter is set and this value lies in
	// (0, 0.05), Search treats the filter as highly selective and serves
	// the request with a flat scan instead of widening the HNSW beam.
	// Search computes no selectivity estimate of its own; the value given
	// here is the only input, and the 0.05 cut-off is fixed.
	SelectivityThreshold float64
	// MaxDistance, if nonzero, bounds accepted results for the
	// within-distance-widening strategy.
	MaxDistance float64
	EfSearch    int
}

// Result is one ranked hit.
type Result struct {
	RowID    int64
	Distance float64
}

// Engine dispatches vector search requests between flat scan and HNSW.
type Engine struct {
	Graph       *hnsw.Graph
	AllVectors  func() ([]Candidate, error) // full-table fallback for flat scan
	DimMismatch func(got, want int) error
}

// Search executes req and reports which strategy served it.
func (e *Engine) Search(req Request) ([]Result, Strategy, error) {
	if req.ForceFlatScan || e.Graph == nil {
		res, err := e.flatScan(req)
		return res, StrategyFlatScan, err
	}

	if req.Filter == nil {
		ids, dists, err := e.Graph.Search(req.Query, req.K, req.EfSearch)
		if err != nil {
			return nil, StrategyFlatScan, err
		}
		return toResults(ids, dists), StrategyHnswNearest, nil
	}

	if req.SelectivityThreshold > 0 && req.SelectivityThreshold < 0.05 {
		// Highly selective filter: a flat scan over the filtered subset
		// beats repeatedly widening the HNSW beam to find enough
		// surviving hits.
		res, err := e.flatScan(req)
		return res, StrategyFlatScan, err
	}

	if req.MaxDistance > 0 {
		res, err := e.withinDistanceWidening(req)
		return res, StrategyHnswWithinDistanceWidening, err
	}

	res, err := e.postFilterWidening(req)
	return res, StrategyHnswPostFilterWidening, err
}

func toResults(ids []int64, dists []float64) []Result {
	out := make([]Result, len(ids))
	for i := range ids {
		out[i] = Result{RowID: ids[i], Distance: dists[i]}
	}
	return out
}

func (e *Engine) flatScan(req Request) ([]Result, error) {
	if e.AllVectors == nil {
		return nil, fmt.Errorf("query: flat scan requested but no table scanner configured")
	}
	all, err := e.AllVectors()
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, c := range all {
		if req.Filter != nil && !req.Filter(c.RowID) {
			continue
		}
		d := hnsw.Distance(req.Metric, c.Vector, req.Query)
		if req.MaxDistance > 0 && d > req.MaxDistance {
			continue
		}
		out = append(out, Result{RowID: c.RowID, Distance: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > req.K {
		out = out[:req.K]
	}
	return out, nil
}

// postFilterWidening repeatedly doubles the HNSW beam width until K
// filtered results are found or the beam exceeds the graph size.
func (e *Engine) postFilterWidening(req Request) ([]Result, error) {
	ef := req.EfSearch
	if ef < req.K {
		ef = req.K
	}
	maxEf := e.Graph.Len()
	for {
		ids, dists, err := e.Graph.Search(req.Query, ef, ef)
		if err != nil {
			return nil, err
		}
		var out []Result
		for i, id := range ids {
			if req.Filter(id) {
				out = append(out, Result{RowID: id, Distance: dists[i]})
			}
		}
		if len(out) >= req.K || ef >= maxEf {
			if len(out) > req.K {
				out = out[:req.K]
			}
			return out, nil
		}
		ef *= 2
	}
}

// withinDistanceWidening is like postFilterWidening but also trims
// results past MaxDistance, widening until the beam is exhausted since a
// distance bound can legitimately return fewer than K hits.
func (e *Engine) withinDistanceWidening(req Request) ([]Result, error) {
	ef := req.EfSearch
	if ef < req.K {
		ef = req.K
	}
	maxEf := e.Graph.Len()
	var out []Result
	for {
		ids, dists, err := e.Graph.Search(req.Query, ef, ef)
		if err != nil {
			return nil, err
		}
		out = out[:0]
		for i, id := range ids {
			if dists[i] > req.MaxDistance {
				continue
			}
			if req.Filter != nil && !req.Filter(id) {
				continue
			}
			out = append(out, Result{RowID: id, Distance: dists[i]})
		}
		if len(out) >= req.K || ef >= maxEf {
			if len(out) > req.K {
				out = out[:req.K]
			}
			return out, nil
		}
		ef *= 2
	}
}
