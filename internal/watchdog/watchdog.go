// Package watchdog implements the 1 Hz connection monitor of spec.md
// §4.7: it samples transport counters, drives the LinkState machine,
// and triggers reconnect. Grounded on the teacher's periodic
// time.NewTicker senders (rcdcan.go's pressManager), scaled down to a
// single sampling loop.
package watchdog

import (
	"log"
	"sync"
	"time"
)

// LinkState is the four-state machine of spec.md §3/§4.7.
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
	Degraded
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Counters is the minimal view of transport.Transport the watchdog
// needs to sample. Defined here (rather than importing transport) so
// the watchdog stays testable without real sockets.
type Counters interface {
	LastRxAt() time.Time
	ConsecutiveTxFailures() int32
}

// Config carries the tunables from the persisted configuration record.
type Config struct {
	RxTimeout    time.Duration
	SampleEvery  time.Duration
}

// DefaultConfig matches spec.md §6's rx_timeout_s=3 default and a 1 Hz
// sampling cadence.
func DefaultConfig() Config {
	return Config{RxTimeout: 3 * time.Second, SampleEvery: 1 * time.Second}
}

// Watchdog runs the 1 Hz sampling loop and publishes LinkState
// transitions exactly once per change (spec.md §4.7).
type Watchdog struct {
	cfg      Config
	counters Counters
	reconnect func() error

	mu             sync.Mutex
	state          LinkState
	degradedMisses int

	onTransition func(LinkState)
}

// New returns a Watchdog starting in Disconnected.
func New(cfg Config, counters Counters, reconnect func() error, onTransition func(LinkState)) *Watchdog {
	return &Watchdog{
		cfg:          cfg,
		counters:     counters,
		reconnect:    reconnect,
		state:        Disconnected,
		onTransition: onTransition,
	}
}

// State returns the current LinkState.
func (w *Watchdog) State() LinkState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// transition moves to next and fires the callback exactly once, outside
// the lock per spec.md §9 ("never invoke callbacks while holding the
// FlightState mutex" — the same discipline applies here).
func (w *Watchdog) transition(next LinkState) {
	w.mu.Lock()
	changed := w.state != next
	w.state = next
	w.mu.Unlock()
	if changed && w.onTransition != nil {
		w.onTransition(next)
	}
}

// NotifyRxActivity lets the coordinator report "a telemetry packet
// arrived" so Connecting -> Connected can happen on the first RX rather
// than waiting for the next 1 Hz sample, per spec.md §4.7.
func (w *Watchdog) NotifyRxActivity() {
	if w.State() == Connecting {
		w.transition(Connected)
	}
}

// MarkConnecting is called once at startup, after sockets open but
// before the first RX.
func (w *Watchdog) MarkConnecting() {
	w.transition(Connecting)
}

// tick runs one sampling pass. now is injected so tests don't sleep.
func (w *Watchdog) tick(now time.Time) {
	state := w.State()

	// A Disconnected link gets a reconnect attempt on every tick, not
	// just the one that caused the transition — a transient Rebind
	// failure must not permanently strand the link.
	if state == Disconnected {
		w.doReconnect()
		return
	}

	if state != Connected && state != Degraded {
		return
	}

	stalled := now.Sub(w.counters.LastRxAt()) > w.cfg.RxTimeout
	txFailed := w.counters.ConsecutiveTxFailures() >= 3

	if txFailed {
		w.transition(Disconnected)
		w.doReconnect()
		return
	}

	if !stalled {
		w.mu.Lock()
		w.degradedMisses = 0
		w.mu.Unlock()
		if state == Degraded {
			w.transition(Connected)
		}
		return
	}

	if state == Connected {
		w.transition(Degraded)
		w.mu.Lock()
		w.degradedMisses = 1
		w.mu.Unlock()
		return
	}

	// Already Degraded and still stalled.
	w.mu.Lock()
	w.degradedMisses++
	misses := w.degradedMisses
	w.mu.Unlock()
	if misses >= 2 {
		w.transition(Disconnected)
		w.doReconnect()
	}
}

func (w *Watchdog) doReconnect() {
	if w.reconnect == nil {
		return
	}
	if err := w.reconnect(); err != nil {
		log.Printf("watchdog: reconnect failed: %v", err)
	}
}

// Run blocks, sampling at cfg.SampleEvery until stop is closed.
func (w *Watchdog) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.SampleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.tick(time.Now())
		}
	}
}
