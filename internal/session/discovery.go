package session

import (
	"sync"

	"github.com/srg/blelink/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// discovery is the per-scan set of peripherals keyed by identifier, in first-seen order.
type discovery struct {
	mu   sync.Mutex
	seen *orderedmap.OrderedMap[string, device.Peripheral]
}

func newDiscovery() *discovery {
	return &discovery{seen: orderedmap.New[string, device.Peripheral]()}
}

func (d *discovery) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = orderedmap.New[string, device.Peripheral]()
}

// add records p and reports whether its identifier was new.
func (d *discovery) add(p device.Peripheral) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, present := d.seen.Get(p.ID); present {
		return false
	}
	d.seen.Set(p.ID, p)
	return true
}

func (d *discovery) lookup(id string) (device.Peripheral, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen.Get(id)
}

func (d *discovery) list() []device.Peripheral {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]device.Peripheral, 0, d.seen.Len())
	for pair := d.seen.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}
