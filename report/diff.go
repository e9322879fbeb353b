package report

import "fmt"

// Change records a single byte position whose value differs between
// two payloads of the same report ID.
type Change struct {
	Index int
	Old   byte
	New   byte
}

func (c Change) String() string {
	return fmt.Sprintf("byte[%d]: 0x%02X -> 0x%02X (%d -> %d)", c.Index, c.Old, c.New, c.Old, c.New)
}

// Delta is the ordered list of byte changes between two payloads.
// Indexes are strictly increasing. An empty Delta means no observable
// change within the compared range.
type Delta []Change

// Diff compares two payloads byte-by-byte up to the shorter length.
// Bytes beyond the shorter length are not reported; a length mismatch
// is the caller's fact to observe, not a change. Diff never fails.
func Diff(old, new []byte) Delta {
	n := len(old)
	if len(new) < n {
		n = len(new)
	}
	var d Delta
	for i := 0; i < n; i++ {
		if old[i] != new[i] {
			d = append(d, Change{Index: i, Old: old[i], New: new[i]})
		}
	}
	return d
}

// Empty reports whether the delta contains no changes.
func (d Delta) Empty() bool {
	return len(d) == 0
}
