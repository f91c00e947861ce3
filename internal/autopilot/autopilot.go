// Package autopilot implements the 40 Hz pattern executor of spec.md
// §4.8: a dedicated timed loop that writes the currently executing
// step's axes into flightstate's override channel without blocking the
// 140ms control cadence.
package autopilot

import (
	"sync"
	"time"

	"github.com/kabeerthockchom/xr872ctl/internal/flightstate"
)

const tickInterval = 25 * time.Millisecond // 40 Hz

// Overrider is the single-slot publish target the engine writes into
// each tick — satisfied by *flightstate.Store.
type Overrider interface {
	PublishOverride(flightstate.Override)
	ClearOverride()
}

// EventKind distinguishes the autopilot event stream's three shapes,
// carried over from autopilot.py's on_step_change/on_progress/on_complete
// callbacks (see SPEC_FULL.md §10).
type EventKind int

const (
	EventStarted EventKind = iota
	EventStepChanged
	EventCompleted
)

// Event is one notification on the autopilot's event stream.
type Event struct {
	Kind     EventKind
	Pattern  string
	Step     string
	Progress float64
}

// Status is the engine's current idle/running state, per spec.md §4.8.
type Status struct {
	Running  bool
	Pattern  string
	Step     string
	Progress float64
}

// Engine runs one pattern at a time on a dedicated goroutine.
type Engine struct {
	overrider Overrider
	onEvent   func(Event)

	mu           sync.Mutex
	running      bool
	pattern      Pattern
	stepIndex    int
	stepStartedAt time.Time
	progress     float64

	stopCh chan struct{}
	doneCh chan struct{}

	now func() time.Time
}

// New returns an idle Engine.
func New(overrider Overrider, onEvent func(Event)) *Engine {
	return &Engine{overrider: overrider, onEvent: onEvent, now: time.Now}
}

// Start begins executing pattern on the 40 Hz loop, replacing any
// pattern already running.
func (e *Engine) Start(pattern Pattern) {
	e.Stop()
	if len(pattern.Steps) == 0 {
		return
	}

	e.mu.Lock()
	e.running = true
	e.pattern = pattern
	e.stepIndex = 0
	e.stepStartedAt = e.now()
	e.progress = 0
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	e.publishCurrentStep()
	e.emit(Event{Kind: EventStarted, Pattern: pattern.Name, Step: pattern.Steps[0].Label})

	go e.run(stopCh, doneCh)
}

// Stop halts the currently executing pattern, clearing the override
// within one tick (<=25ms) per spec.md §5.
func (e *Engine) Stop() {
	e.mu.Lock()
	running := e.running
	stopCh := e.stopCh
	doneCh := e.doneCh
	e.mu.Unlock()

	if !running {
		return
	}
	close(stopCh)
	<-doneCh
}

// Status returns the engine's current idle/running snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return Status{}
	}
	return Status{
		Running:  true,
		Pattern:  e.pattern.Name,
		Step:     e.pattern.Steps[e.stepIndex].Label,
		Progress: e.progress,
	}
}

func (e *Engine) run(stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			e.finish(false)
			return
		case <-ticker.C:
			done, stepEvent := e.advance()
			if done {
				e.finish(true)
				return
			}
			if stepEvent != nil {
				e.emit(*stepEvent)
			}
			e.publishCurrentStep()
		}
	}
}

// advance checks whether the current step's duration has elapsed and
// moves to the next step if so. Returns done=true when the pattern has
// run past its last step, and a non-nil event when a new step started.
func (e *Engine) advance() (done bool, stepEvent *Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	step := e.pattern.Steps[e.stepIndex]
	elapsed := e.now().Sub(e.stepStartedAt)
	if elapsed < time.Duration(step.DurationMs)*time.Millisecond {
		e.progress = e.totalProgressLocked(elapsed)
		return false, nil
	}

	e.stepIndex++
	if e.stepIndex >= len(e.pattern.Steps) {
		return true, nil
	}
	e.stepStartedAt = e.now()
	e.progress = e.totalProgressLocked(0)

	ev := Event{Kind: EventStepChanged, Pattern: e.pattern.Name, Step: e.pattern.Steps[e.stepIndex].Label, Progress: e.progress}
	return false, &ev
}

func (e *Engine) totalProgressLocked(elapsedInStep time.Duration) float64 {
	var total, done float64
	for i, s := range e.pattern.Steps {
		d := float64(s.DurationMs)
		total += d
		if i < e.stepIndex {
			done += d
		}
	}
	done += float64(elapsedInStep.Milliseconds())
	if total == 0 {
		return 1
	}
	p := done / total
	if p > 1 {
		p = 1
	}
	return p
}

func (e *Engine) publishCurrentStep() {
	e.mu.Lock()
	step := e.pattern.Steps[e.stepIndex]
	e.mu.Unlock()

	e.overrider.PublishOverride(flightstate.Override{
		Roll:     step.Roll,
		Pitch:    step.Pitch,
		Throttle: step.Throttle,
		Yaw:      step.Yaw,
	})
}

func (e *Engine) finish(completed bool) {
	e.overrider.ClearOverride()

	e.mu.Lock()
	patternName := e.pattern.Name
	e.running = false
	e.progress = 0
	e.mu.Unlock()

	if completed {
		e.emit(Event{Kind: EventCompleted, Pattern: patternName, Progress: 1})
	}
}

func (e *Engine) emit(ev Event) {
	if e.onEvent == nil {
		return
	}
	defer func() { recover() }() // a misbehaving collaborator must not crash the engine, per spec.md §7
	e.onEvent(ev)
}
