package entitlement

import "github.com/sharc-db/sharc/internal/storage/record"

// RowAccessEvaluator decides whether a raw row payload is visible to the
// current reader, inspecting the undecoded record bytes rather than
// forcing the caller to materialize every row first (§4.9).
type RowAccessEvaluator interface {
	Allow(rowid int64, payload []byte) (bool, error)
}

// EntitlementRowEvaluator allows a row only if the string value of its
// tag column is in AllowedTags. It decodes just that one column in
// place via record.DecodeStringAt, never materializing the rest of the
// row for rows that end up filtered out.
type EntitlementRowEvaluator struct {
	// TagColumn is the 0-based ordinal of the tag column within the
	// record.
	TagColumn int
	// AllowedTags is the set of tag values that pass.
	AllowedTags map[string]bool
}

// Allow implements RowAccessEvaluator.
func (e *EntitlementRowEvaluator) Allow(rowid int64, payload []byte) (bool, error) {
	var types [16]uint64
	n, bodyOffset, err := record.ReadSerialTypes(payload, types[:])
	if err != nil {
		return false, err
	}
	if e.TagColumn >= n {
		return false, nil
	}
	offsets := make([]int, e.TagColumn+1)
	if err := record.ComputeColumnOffsets(types[:e.TagColumn+1], e.TagColumn+1, bodyOffset, offsets); err != nil {
		return false, err
	}
	tag, err := record.DecodeStringAt(payload, types[e.TagColumn], offsets[e.TagColumn])
	if err != nil {
		return false, err
	}
	return e.AllowedTags[tag], nil
}
