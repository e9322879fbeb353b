package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSessionCloseIsIdempotent(t *testing.T) {
	s := &DeviceSession{}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestDeviceSessionOperationsAfterClose(t *testing.T) {
	s := &DeviceSession{}
	require.NoError(t, s.Close())

	_, err := s.SendFeatureReport([]byte{0x00, 0xF7})
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.GetFeatureReport(0xF7, 64)
	assert.ErrorIs(t, err, ErrSessionClosed)

	// Closing again after failed operations stays safe.
	require.NoError(t, s.Close())
}

func TestIdentityString(t *testing.T) {
	withPath := Identity{Path: `\\?\HID#VID_3151&PID_5007`, VendorID: 0x3151}
	assert.Equal(t, `\\?\HID#VID_3151&PID_5007`, withPath.String())

	byPair := Identity{VendorID: 0x3151, ProductID: 0x5007}
	assert.Equal(t, "3151:5007", byPair.String())
}
