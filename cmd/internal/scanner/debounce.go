package scanner

import (
	"sync"
	"time"
)

// DefaultCooldown matches the time a door screen keeps showing a result.
const DefaultCooldown = 3 * time.Second

// Debouncer stops a camera or wedge scanner from submitting the same code in a loop.
//
// A raw value is admitted once; the same value is admitted again only after its
// result was rendered and the cool-down elapsed, or after Reset. Different values
// pass straight through.
type Debouncer struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time

	last       string
	pending    bool
	renderedAt time.Time
}

// NewDebouncer returns a Debouncer; cooldown <= 0 uses DefaultCooldown.
func NewDebouncer(cooldown time.Duration) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Debouncer{cooldown: cooldown, now: time.Now}
}

// Admit reports whether raw should be sent to the server.
func (d *Debouncer) Admit(raw string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if raw == d.last {
		if d.pending {
			return false
		}
		if d.now().Sub(d.renderedAt) < d.cooldown {
			return false
		}
	}
	d.last = raw
	d.pending = true
	return true
}

// Rendered marks the in-flight result as shown to the operator; the cool-down starts now.
func (d *Debouncer) Rendered() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = false
	d.renderedAt = d.now()
}

// Reset forgets the last value, e.g. when the operator taps "scan again".
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = ""
	d.pending = false
	d.renderedAt = time.Time{}
}
