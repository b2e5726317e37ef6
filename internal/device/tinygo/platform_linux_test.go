//go:build linux

package tinygo

import (
	"testing"

	"github.com/srg/blelink/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	addr, err := parseAddress("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", addr.String())

	for _, id := range []string{"", "not-a-mac", "AA:BB:CC", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"} {
		_, err := parseAddress(id)
		assert.Error(t, err, "id %q MUST be rejected before dialing", id)
	}
}

func TestWriteWithResponseUnsupported(t *testing.T) {
	err := writeWithResponse(nil, []byte("AT"))

	assert.ErrorIs(t, err, device.ErrUnsupported)
}
