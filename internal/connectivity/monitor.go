// Package connectivity tracks network reachability for the sync core.
package connectivity

import (
	"sync"

	"github.com/fieldsync/backend/internal/logging"
)

// State is the monitor's view of the network.
type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

// Probe answers a point-in-time reachability question. The platform layer
// plugs in whatever it has (OS reachability API, a ping endpoint); tests plug
// in a stub.
type Probe interface {
	Check() bool
}

// ProbeFunc adapts a plain function to the Probe interface.
type ProbeFunc func() bool

// Check implements Probe.
func (f ProbeFunc) Check() bool { return f() }

// TransitionHandler is invoked on actual state changes, with online=true for
// the offline-to-online edge.
type TransitionHandler func(online bool)

// Monitor is a two-state machine driven by an external reachability signal.
// Handlers fire only on a real transition: repeated identical signals emit
// nothing.
type Monitor struct {
	mu       sync.Mutex
	state    State
	probe    Probe
	handlers []TransitionHandler
}

// NewMonitor creates a Monitor. The initial state is Online, matching the
// assumption the rest of the app makes before the first signal arrives.
func NewMonitor(probe Probe) *Monitor {
	return &Monitor{
		state: Online,
		probe: probe,
	}
}

// OnTransition registers a handler for state changes. Handlers run
// synchronously on the goroutine that reported the signal, in registration
// order.
func (m *Monitor) OnTransition(h TransitionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Report feeds a reachability signal into the state machine.
func (m *Monitor) Report(online bool) {
	next := Offline
	if online {
		next = Online
	}

	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	handlers := make([]TransitionHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	logging.Info("Network state changed", map[string]interface{}{
		"was": string(prev),
		"now": string(next),
	})

	for _, h := range handlers {
		h(online)
	}
}

// State returns the last reported state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAvailable answers a point-in-time reachability query. When a probe is
// configured it is consulted directly, and the answer also feeds the state
// machine so a probe-detected change still emits a transition. Without a
// probe the last reported state is used.
func (m *Monitor) IsAvailable() bool {
	m.mu.Lock()
	probe := m.probe
	state := m.state
	m.mu.Unlock()

	if probe == nil {
		return state == Online
	}

	online := probe.Check()
	m.Report(online)
	return online
}
