package wait

import (
	"sync"
	"time"
)

// Timing holds the per-run wait delays. Steps can override the smart wait
// delay and must restore it afterwards; the "sloth" tag raises the force
// delay for one scenario.
type Timing struct {
	mu               sync.RWMutex
	smartwait        time.Duration
	defaultSmartwait time.Duration
	force            time.Duration
	defaultForce     time.Duration
}

// NewTiming returns timing with the configured defaults.
func NewTiming(smartwait, force time.Duration) *Timing {
	return &Timing{
		smartwait:        smartwait,
		defaultSmartwait: smartwait,
		force:            force,
		defaultForce:     force,
	}
}

func (t *Timing) Smartwait() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.smartwait
}

func (t *Timing) SetSmartwait(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.smartwait = d
}

// RestoreSmartwait resets the smart wait delay to the configured value.
func (t *Timing) RestoreSmartwait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.smartwait = t.defaultSmartwait
}

func (t *Timing) ForceDelay() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.force
}

func (t *Timing) SetForceDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force = d
}

// RestoreForceDelay resets the force delay to the configured value.
func (t *Timing) RestoreForceDelay() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force = t.defaultForce
}
