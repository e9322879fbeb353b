package probe

import "sort"

// Store keeps the most recently observed payload per report ID. Each
// new observation supersedes the previous one; nothing persists past
// the process.
type Store struct {
	latest map[byte][]byte
}

func NewStore() *Store {
	return &Store{latest: make(map[byte][]byte)}
}

// Record stores payload for reportID and returns the previous payload
// if one existed. The payload is copied so later reads can't mutate
// stored state.
func (s *Store) Record(reportID byte, payload []byte) ([]byte, bool) {
	prev, existed := s.latest[reportID]
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.latest[reportID] = cp
	return prev, existed
}

// Snapshot returns a deep copy of the current state, suitable for
// comparing against a later capture.
func (s *Store) Snapshot() map[byte][]byte {
	out := make(map[byte][]byte, len(s.latest))
	for rid, payload := range s.latest {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		out[rid] = cp
	}
	return out
}

// ReportIDs returns the observed report IDs in ascending order, the
// order all reporting output uses.
func (s *Store) ReportIDs() []byte {
	ids := make([]byte, 0, len(s.latest))
	for rid := range s.latest {
		ids = append(ids, rid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of report IDs with an observation.
func (s *Store) Len() int {
	return len(s.latest)
}
