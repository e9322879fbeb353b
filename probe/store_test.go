package probe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hidprobe/probe"
)

func TestStoreRecordReturnsPrevious(t *testing.T) {
	s := probe.NewStore()

	prev, existed := s.Record(0x3F, []byte{1, 2, 3})
	assert.False(t, existed)
	assert.Nil(t, prev)

	prev, existed = s.Record(0x3F, []byte{1, 2, 4})
	require.True(t, existed)
	assert.Equal(t, []byte{1, 2, 3}, prev)

	prev, existed = s.Record(0x3F, []byte{9})
	require.True(t, existed)
	assert.Equal(t, []byte{1, 2, 4}, prev)

	// A different report ID is first-time again.
	_, existed = s.Record(0x40, []byte{1})
	assert.False(t, existed)
}

func TestStoreCopiesPayloads(t *testing.T) {
	s := probe.NewStore()
	payload := []byte{1, 2, 3}
	s.Record(0x01, payload)
	payload[0] = 0xEE

	prev, existed := s.Record(0x01, []byte{4, 5, 6})
	require.True(t, existed)
	assert.Equal(t, []byte{1, 2, 3}, prev, "stored payload must not alias the caller's buffer")
}

func TestStoreSnapshotIsDeepCopy(t *testing.T) {
	s := probe.NewStore()
	s.Record(0x01, []byte{1, 2})
	s.Record(0x02, []byte{3})

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	snap[0x01][0] = 0xEE

	prev, _ := s.Record(0x01, []byte{0})
	assert.Equal(t, []byte{1, 2}, prev, "mutating a snapshot must not touch stored state")
}

func TestStoreReportIDsAscending(t *testing.T) {
	s := probe.NewStore()
	for _, rid := range []byte{0x90, 0x01, 0x3F, 0x02} {
		s.Record(rid, []byte{0})
	}
	assert.Equal(t, []byte{0x01, 0x02, 0x3F, 0x90}, s.ReportIDs())
	assert.Equal(t, 4, s.Len())
}
