package query

import "sort"

// RRFConstant is the standard reciprocal rank fusion smoothing constant.
const RRFConstant = 60

// UnrankedSentinel is the rank assigned to a row present in one result
// list but absent from the other, placing it effectively last in that
// list's contribution without requiring a sparse-array rank lookup.
const UnrankedSentinel = 1 << 30

// Ranked is one entry in a single-signal ranking (lexical or vector),
// in rank order starting at 1.
type Ranked struct {
	RowID int64
}

// FusedResult is one row's combined RRF score across both input lists.
type FusedResult struct {
	RowID int64
	Score float64
}

// ReciprocalRankFusion merges a lexical ranking and a vector ranking into
// one score per row: score = 1/(k+rank_lexical) + 1/(k+rank_vector),
// using UnrankedSentinel for a list a row didn't appear in. Ties break
// by ascending rowid for determinism.
func ReciprocalRankFusion(lexical, vector []Ranked, k int) []FusedResult {
	if k <= 0 {
		k = RRFConstant
	}
	lexRank := make(map[int64]int, len(lexical))
	for i, r := range lexical {
		lexRank[r.RowID] = i + 1
	}
	vecRank := make(map[int64]int, len(vector))
	for i, r := range vector {
		vecRank[r.RowID] = i + 1
	}

	seen := make(map[int64]bool, len(lexical)+len(vector))
	var rowids []int64
	for _, r := range lexical {
		if !seen[r.RowID] {
			seen[r.RowID] = true
			rowids = append(rowids, r.RowID)
		}
	}
	for _, r := range vector {
		if !seen[r.RowID] {
			seen[r.RowID] = true
			rowids = append(rowids, r.RowID)
		}
	}

	out := make([]FusedResult, len(rowids))
	for i, id := range rowids {
		lr, ok := lexRank[id]
		if !ok {
			lr = UnrankedSentinel
		}
		vr, ok := vecRank[id]
		if !ok {
			vr = UnrankedSentinel
		}
		score := 1/float64(k+lr) + 1/float64(k+vr)
		out[i] = FusedResult{RowID: id, Score: score}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].RowID < out[j].RowID
	})
	return out
}
