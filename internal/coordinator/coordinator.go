// Package coordinator implements C9: it owns every other component,
// starts and stops the five/six logical tasks of spec.md §5, and
// publishes the telemetry/video/status/autopilot event streams to
// collaborators. Grounded on the teacher's main()'s wiring of canbus,
// pressManager, flapPressManager and startWebServer, with task
// lifetime managed by context.WithCancel (the teacher's
// pressManager.start pattern) and joined with a sync.WaitGroup bounded
// by a 2s time.After shutdown deadline.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kabeerthockchom/xr872ctl/internal/autopilot"
	"github.com/kabeerthockchom/xr872ctl/internal/codec"
	"github.com/kabeerthockchom/xr872ctl/internal/config"
	"github.com/kabeerthockchom/xr872ctl/internal/flightstate"
	"github.com/kabeerthockchom/xr872ctl/internal/position"
	"github.com/kabeerthockchom/xr872ctl/internal/protocol"
	"github.com/kabeerthockchom/xr872ctl/internal/sequencer"
	"github.com/kabeerthockchom/xr872ctl/internal/telemetry"
	"github.com/kabeerthockchom/xr872ctl/internal/transport"
	"github.com/kabeerthockchom/xr872ctl/internal/video"
	"github.com/kabeerthockchom/xr872ctl/internal/watchdog"
)

// airborneThrottleDeadzone is the throttle magnitude above which the
// position tracker treats the drone as airborne, since nothing in the
// telemetry stream reports flight state directly (SPEC_FULL.md §10).
const airborneThrottleDeadzone = 5.0

// shutdownGrace is spec.md §4.9/§5's 2s join deadline.
const shutdownGrace = 2 * time.Second

// Coordinator is the single owner of every component; collaborators
// only ever see its exported methods.
type Coordinator struct {
	cfg config.Config

	transport *transport.Transport
	flight    *flightstate.Store
	seq       *sequencer.Sequencer
	video     *video.Reassembler
	telem     *telemetry.Parser
	heading   *telemetry.HeadingEstimator
	position  *position.Tracker
	wd        *watchdog.Watchdog
	autopilot *autopilot.Engine

	geofenceMu      sync.Mutex
	wasAtWarning    bool
	wasBeyondFence  bool

	callbackMu      sync.Mutex
	onTelemetry     func(telemetry.Record)
	onVideoFrame    func([]byte)
	onStatus        func(StatusEvent)
	onAutopilot     func(autopilot.Event)

	counters *endpointCounters

	pendingMu sync.Mutex
	pending   map[pendingCategory]func()

	lifecycleMu sync.Mutex
	connected   bool
	cancels     []context.CancelFunc // in start order; cancelled in reverse
	wg          sync.WaitGroup
}

// endpointCounters adapts *transport.Endpoint to watchdog.Counters,
// indirecting through a pointer so the Watchdog can be built in New
// before Connect has opened any socket.
type endpointCounters struct {
	ep *transport.Endpoint
}

func (c *endpointCounters) LastRxAt() time.Time {
	if c.ep == nil {
		return time.Time{}
	}
	return c.ep.LastRxAt()
}

func (c *endpointCounters) ConsecutiveTxFailures() int32 {
	if c.ep == nil {
		return 0
	}
	return c.ep.ConsecutiveTxFailures()
}

// pendingCategory identifies one of the arming categories that can hold
// at most one queued operation while the link is not Connected, per
// spec.md §4.7.
type pendingCategory int

const (
	pendingTakeoffLand pendingCategory = iota
	pendingEstop
	pendingCalibrate
	pendingFlip
	pendingLightToggle
)

// StatusEvent is on_status(LinkState or message) from spec.md §4.9:
// either a LinkState transition (from C7) or a free-text message (a
// CC 5A command echo seen on the Ctl socket, a telemetry edge event, or
// a geofence edge). Command echoes are reported only here; they are not
// passed to the sequencer.
type StatusEvent struct {
	LinkState watchdog.LinkState
	IsLink    bool
	Message   string
}

// New builds a Coordinator from a validated configuration record. It
// does not open any socket; call Connect to do that.
func New(cfg config.Config) *Coordinator {
	c := &Coordinator{
		cfg:   cfg,
		flight: flightstate.New(float64(cfg.HoverThrottleCap)),
		seq:    sequencer.New(),
		video:  video.New(),
		telem:  telemetry.New(),
	}
	c.heading = telemetry.NewHeadingEstimator()
	c.position = position.New()
	c.flight.SetIndoorMode(cfg.IndoorDefault, float64(cfg.HoverThrottleCap))
	c.autopilot = autopilot.New(c.flight, c.emitAutopilotEvent)
	c.counters = &endpointCounters{}
	c.pending = make(map[pendingCategory]func())
	c.wd = watchdog.New(
		watchdog.Config{RxTimeout: time.Duration(cfg.RxTimeoutS) * time.Second, SampleEvery: time.Second},
		c.counters,
		c.handleReconnect,
		c.emitLinkState,
	)
	return c
}

// OnTelemetry registers the collaborator callback for C4's output.
func (c *Coordinator) OnTelemetry(f func(telemetry.Record)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onTelemetry = f
}

// OnVideoFrame registers the collaborator callback for C3's output.
func (c *Coordinator) OnVideoFrame(f func([]byte)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onVideoFrame = f
}

// OnStatus registers the collaborator callback for LinkState transitions
// and free-text status messages.
func (c *Coordinator) OnStatus(f func(StatusEvent)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onStatus = f
}

// OnAutopilotEvent registers the collaborator callback for the fourth
// event stream supplemented from autopilot.py's callbacks (SPEC_FULL.md
// §10) — not one of spec.md's three, additive only.
func (c *Coordinator) OnAutopilotEvent(f func(autopilot.Event)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onAutopilot = f
}

// Connect runs the startup sequence of spec.md §4.9 in order: open
// sockets, start receivers, start the heartbeat sender, start the
// control sender, send video-start, then mark Connecting.
func (c *Coordinator) Connect() error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.connected {
		return nil
	}

	tr, err := transport.Open(transport.Addresses{
		DroneIP:   c.cfg.DroneIP,
		CtlPort:   c.cfg.CtlPort,
		VideoPort: c.cfg.VideoPort,
	})
	if err != nil {
		return err
	}
	c.transport = tr
	c.counters.ep = tr.Ctl

	c.startTask(c.runCtlReceiver)
	c.startTask(c.runVideoReceiver)
	c.startTask(c.runHeartbeatSender)
	c.startTask(c.runControlSender)
	c.startTask(c.wd.Run)

	if err := c.transport.SendRaw(codec.VideoStart[:]); err != nil {
		log.Printf("coordinator: video-start send failed: %v", err)
	}

	c.wd.MarkConnecting()
	c.connected = true
	return nil
}

// startTask launches fn on its own goroutine with a cancellable stop
// channel, recording the cancel func in start order for shutdown's
// reverse-order cancellation (spec.md §4.9).
func (c *Coordinator) startTask(fn func(stop <-chan struct{})) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancels = append(c.cancels, cancel)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx.Done())
	}()
}

// Shutdown runs spec.md §4.9's teardown: video-stop, cancel timers in
// reverse start order, close sockets, join with a 2s deadline then
// force-terminate. Idempotent per spec.md §5.
func (c *Coordinator) Shutdown() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if !c.connected {
		return
	}

	c.autopilot.Stop()

	if c.transport != nil {
		if err := c.transport.SendRaw(codec.VideoStop[:]); err != nil {
			log.Printf("coordinator: video-stop send failed: %v", err)
		}
	}

	for i := len(c.cancels) - 1; i >= 0; i-- {
		c.cancels[i]()
	}
	c.cancels = nil

	// Closing the sockets unblocks the receivers' pending reads so they
	// can observe their cancelled stop channel and return.
	if c.transport != nil {
		_ = c.transport.Close()
	}

	joined := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(shutdownGrace):
		log.Printf("coordinator: shutdown grace period elapsed, forcing close")
	}

	c.connected = false
}

func (c *Coordinator) runControlSender(stop <-chan struct{}) {
	interval := time.Duration(c.cfg.ControlIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.sendControlFrame()
		}
	}
}

func (c *Coordinator) sendControlFrame() {
	snap := c.flight.Snapshot()
	heading := c.heading.Update(snap.Yaw)
	airborne := snap.Throttle > airborneThrottleDeadzone || snap.Throttle < -airborneThrottleDeadzone
	c.position.Update(snap.Pitch, snap.Roll, heading, snap.SpeedLevel, airborne)
	c.checkGeofence()
	frame := codec.EncodeControlFrame(codec.ControlInput{
		Axes:     codec.Axes{Roll: snap.Roll, Pitch: snap.Pitch, Throttle: snap.Throttle, Yaw: snap.Yaw},
		Follow:   codec.FollowAxes{DirX: snap.FollowDirX, DirY: snap.FollowDirY, AccelX: snap.FollowAccelX, AccelY: snap.FollowAccelY},
		Flags:    c.seq.Flags(),
		Headless: snap.Headless,
	})
	if err := c.transport.SendControl(frame[:]); err != nil {
		log.Printf("coordinator: control send failed: %v", err)
	}
}

func (c *Coordinator) runHeartbeatSender(stop <-chan struct{}) {
	interval := time.Duration(c.cfg.HeartbeatIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.transport.SendHeartbeat(); err != nil {
				log.Printf("coordinator: heartbeat send failed: %v", err)
			}
		}
	}
}

func (c *Coordinator) runCtlReceiver(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		pkt, err := c.transport.RecvCtl()
		if err != nil {
			continue
		}
		c.wd.NotifyRxActivity()

		if _, ok := telemetry.ScanEcho(pkt); ok {
			c.emitStatus(StatusEvent{Message: fmt.Sprintf("command echo received (%d bytes)", len(pkt))})
			continue
		}
		for _, b := range pkt {
			rec, events := c.telem.Feed(b)
			if rec != nil {
				c.emitTelemetry(*rec)
			}
			for _, ev := range events {
				c.emitStatus(StatusEvent{Message: telemetryEventMessage(ev)})
			}
		}
	}
}

// checkGeofence emits a status message once on each edge into the
// geofence warning band or past the boundary, rather than on every
// control tick.
func (c *Coordinator) checkGeofence() {
	atWarning := c.position.AtGeofenceWarning()
	beyond := c.position.BeyondGeofence()

	c.geofenceMu.Lock()
	warnEdge := atWarning && !c.wasAtWarning
	beyondEdge := beyond && !c.wasBeyondFence
	clearEdge := !atWarning && !beyond && (c.wasAtWarning || c.wasBeyondFence)
	c.wasAtWarning = atWarning
	c.wasBeyondFence = beyond
	c.geofenceMu.Unlock()

	switch {
	case beyondEdge:
		c.emitStatus(StatusEvent{Message: "geofence boundary crossed"})
	case warnEdge:
		c.emitStatus(StatusEvent{Message: "approaching geofence boundary"})
	case clearEdge:
		c.emitStatus(StatusEvent{Message: "back inside geofence"})
	}
}

func telemetryEventMessage(ev telemetry.Event) string {
	switch ev {
	case telemetry.EventPhotoRequested:
		return "photo requested"
	case telemetry.EventRecordToggle:
		return "record toggled"
	default:
		return "telemetry event"
	}
}

func (c *Coordinator) runVideoReceiver(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		pkt, err := c.transport.RecvVideo()
		if err != nil {
			continue
		}
		c.wd.NotifyRxActivity()
		if frame := c.video.Feed(pkt); frame != nil {
			c.emitVideoFrame(frame)
		}
	}
}

// handleReconnect is the watchdog's reconnect callback. It rebinds both
// sockets and resets C3/C4's in-progress buffers, but deliberately
// leaves C5's armed flags alone (spec.md §4.7).
func (c *Coordinator) handleReconnect() error {
	if err := c.transport.Rebind(); err != nil {
		return err
	}
	// Rebind swaps in fresh Ctl/Video endpoints; repoint the watchdog's
	// sampled endpoint or it keeps reading LastRxAt off the closed one.
	c.counters.ep = c.transport.Ctl
	c.video.Reset()
	c.telem.Reset()
	c.wd.MarkConnecting()
	return nil
}

func (c *Coordinator) emitTelemetry(rec telemetry.Record) {
	c.callbackMu.Lock()
	f := c.onTelemetry
	c.callbackMu.Unlock()
	if f == nil {
		return
	}
	c.safeCall(func() { f(rec) })
}

func (c *Coordinator) emitVideoFrame(frame []byte) {
	c.callbackMu.Lock()
	f := c.onVideoFrame
	c.callbackMu.Unlock()
	if f == nil {
		return
	}
	c.safeCall(func() { f(frame) })
}

func (c *Coordinator) emitStatus(ev StatusEvent) {
	c.callbackMu.Lock()
	f := c.onStatus
	c.callbackMu.Unlock()
	if f == nil {
		return
	}
	c.safeCall(func() { f(ev) })
}

func (c *Coordinator) emitLinkState(state watchdog.LinkState) {
	if state == watchdog.Connected {
		c.drainPending()
	}
	c.emitStatus(StatusEvent{LinkState: state, IsLink: true})
}

// armOrQueue runs fn immediately when the link is Connected. Otherwise
// it replaces any previously queued operation in cat's slot — at most
// one pending operation per category survives, per spec.md §4.7 — to
// be run once the link reaches Connected.
func (c *Coordinator) armOrQueue(cat pendingCategory, fn func()) {
	if c.wd.State() == watchdog.Connected {
		fn()
		return
	}
	c.pendingMu.Lock()
	c.pending[cat] = fn
	c.pendingMu.Unlock()
}

// drainPending runs and clears every queued arming operation, called
// once on each transition into Connected.
func (c *Coordinator) drainPending() {
	c.pendingMu.Lock()
	ops := c.pending
	c.pending = make(map[pendingCategory]func())
	c.pendingMu.Unlock()
	for _, fn := range ops {
		fn()
	}
}

func (c *Coordinator) emitAutopilotEvent(ev autopilot.Event) {
	c.callbackMu.Lock()
	f := c.onAutopilot
	c.callbackMu.Unlock()
	if f == nil {
		return
	}
	c.safeCall(func() { f(ev) })
}

// safeCall recovers a panicking collaborator callback so it cannot
// crash the core, per spec.md §7.
func (c *Coordinator) safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("coordinator: collaborator callback panicked: %v", r)
		}
	}()
	f()
}

// ---- public control-plane API (spec.md §6) ----

func (c *Coordinator) SetStick(axis flightstate.Axis, value float64) { c.flight.Set(axis, value) }
func (c *Coordinator) SetTrim(axis flightstate.Axis, value float64)  { c.flight.SetTrim(axis, value) }
func (c *Coordinator) SetSpeed(level int)                            { c.flight.SetSpeed(level) }
func (c *Coordinator) SetHeadless(on bool)                           { c.flight.SetHeadless(on) }
func (c *Coordinator) SetLights(on bool)                             { c.flight.SetLights(on) }
func (c *Coordinator) SetIndoorMode(on bool, capPercent float64)     { c.flight.SetIndoorMode(on, capPercent) }

// ArmTakeoff/ArmLand/ArmEstop/ArmCalibrate/ArmFlip/ArmLightToggle only
// take effect while the link is Connected (spec.md §4.7); otherwise
// they queue, replacing any older queued op in the same category.
func (c *Coordinator) ArmTakeoff()     { c.armOrQueue(pendingTakeoffLand, c.seq.ArmTakeoffOrLand) }
func (c *Coordinator) ArmLand()        { c.armOrQueue(pendingTakeoffLand, c.seq.ArmTakeoffOrLand) }
func (c *Coordinator) ArmEstop()       { c.armOrQueue(pendingEstop, c.seq.ArmEmergencyStop) }
func (c *Coordinator) ArmCalibrate()   { c.armOrQueue(pendingCalibrate, c.seq.ArmCalibrate) }
func (c *Coordinator) ArmFlip()        { c.armOrQueue(pendingFlip, c.seq.ArmFlip) }
func (c *Coordinator) ArmLightToggle() { c.armOrQueue(pendingLightToggle, c.seq.ArmLightToggle) }

// SendCameraSwitch sends the switch-camera triple immediately on the
// Ctl socket, outside the 140ms control cadence (spec.md §6).
func (c *Coordinator) SendCameraSwitch() error {
	return c.transport.SendTriple(codec.CameraSwitchTriple())
}

// SendCameraRotate sends the camera-rotate on/off triple.
func (c *Coordinator) SendCameraRotate(on bool) error {
	return c.transport.SendTriple(codec.CameraRotateTriple(on))
}

// SendVideoStart/SendVideoStop let a collaborator re-request the video
// stream without a full reconnect (spec.md §4.9 step 5's "deferred if
// collaborator requests").
func (c *Coordinator) SendVideoStart() error {
	return c.transport.SendRaw(codec.VideoStart[:])
}

func (c *Coordinator) SendVideoStop() error {
	return c.transport.SendRaw(codec.VideoStop[:])
}

// AutopilotStart looks up a named pattern from the built-in library and
// starts it; ConfigError-wraps an unknown name.
func (c *Coordinator) AutopilotStart(name string) error {
	lib := autopilot.Library()
	pattern, ok := lib[name]
	if !ok {
		return protocol.New(protocol.ConfigError, "coordinator.AutopilotStart", fmt.Errorf("unknown pattern %q", name))
	}
	c.autopilot.Start(pattern)
	return nil
}

func (c *Coordinator) AutopilotStop() { c.autopilot.Stop() }

// AutopilotStatus reports the engine's current idle/running state.
func (c *Coordinator) AutopilotStatus() autopilot.Status { return c.autopilot.Status() }

// LinkState returns the watchdog's current connection state.
func (c *Coordinator) LinkState() watchdog.LinkState { return c.wd.State() }

// Heading returns the advisory dead-reckoned heading estimate in
// [0, 360), supplemented from drone_protocol.py per SPEC_FULL.md §10 —
// never used for navigation.
func (c *Coordinator) Heading() float64 { return c.heading.Heading() }

// Position returns the advisory dead-reckoned position estimate,
// supplemented from position_tracker.py per SPEC_FULL.md §10 — never
// used for navigation or geofence enforcement, only for display.
func (c *Coordinator) Position() position.Position { return c.position.Position() }

// ResetHome re-zeros the position estimate to the drone's current
// location.
func (c *Coordinator) ResetHome() { c.position.ResetHome() }
