package session

import (
	"testing"

	"github.com/srg/blelink/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestDiscoveryOrderAndDedupe(t *testing.T) {
	d := newDiscovery()

	assert.True(t, d.add(device.Peripheral{ID: "B", RSSI: -60}))
	assert.True(t, d.add(device.Peripheral{ID: "A", Name: "HC-08"}))
	assert.False(t, d.add(device.Peripheral{ID: "B", RSSI: -30}), "repeat identifier MUST be ignored")

	list := d.list()
	assert.Equal(t, []string{"B", "A"}, []string{list[0].ID, list[1].ID}, "MUST keep first-seen order")
	assert.Equal(t, -60, list[0].RSSI)

	p, ok := d.lookup("A")
	assert.True(t, ok)
	assert.Equal(t, "HC-08", p.DisplayName())

	d.reset()
	assert.Empty(t, d.list())
	_, ok = d.lookup("A")
	assert.False(t, ok)
}
