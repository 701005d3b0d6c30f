package attend

import (
	"sync"
	"time"
)

// CooldownGate answers "may this keyed action fire again yet?". One gate
// deduplicates marks (keyed by student ID), another suppresses alert
// re-triggers (keyed by alert class). The two are independent instances
// with independent windows.
//
// A key may fire when it has never fired before, or when at least the
// window has elapsed since its last permitted fire; exactly the window is
// enough. A permitted fire records its timestamp. A denied attempt
// records nothing, so denials never slide the window.
type CooldownGate struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldownGate creates a gate with the given window. A window <= 0
// permits every fire.
func NewCooldownGate(window time.Duration) *CooldownGate {
	return &CooldownGate{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// TryFire reports whether key may fire at now, recording now as the last
// fire time when permitted.
func (g *CooldownGate) TryFire(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[key]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[key] = now
	return true
}

// Reset forgets a key's last fire, so its next TryFire is permitted.
func (g *CooldownGate) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key)
}

// Window returns the configured window.
func (g *CooldownGate) Window() time.Duration { return g.window }

// Len returns the number of keys currently tracked.
func (g *CooldownGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
