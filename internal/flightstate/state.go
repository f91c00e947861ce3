// Package flightstate owns the single authoritative FlightState: the
// current stick axes, trims, speed level, and mode flags. It is the only
// writable copy; every other component reads a Snapshot.
package flightstate

import (
	"sync"
	"time"
)

// Axis identifies one of the eight stick axes plus the four trimmable
// ones, for use with Set/SetTrim.
type Axis int

const (
	Roll Axis = iota
	Pitch
	Throttle
	Yaw
	FollowDirX
	FollowDirY
	FollowAccelX
	FollowAccelY
)

const (
	minAxis = -100.0
	maxAxis = 100.0
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// State holds the eight stick axes, four trims, and mode flags.
// Zero value is the all-neutral, all-false state.
type State struct {
	Roll, Pitch, Throttle, Yaw                         float64
	FollowDirX, FollowDirY, FollowAccelX, FollowAccelY float64

	TrimRoll, TrimPitch, TrimThrottle, TrimYaw float64

	SpeedLevel int // 0, 1, or 2

	Headless        bool
	Lights          bool
	IndoorMode      bool
	HoverThrottleCap float64 // [0, 100]
}

// Override is a single-slot publication from the autopilot engine,
// carrying the four axes it wants to drive plus a freshness timestamp.
// Staleness beyond overrideFreshness is treated as "no override" per
// spec.md §9.
type Override struct {
	Roll, Pitch, Throttle, Yaw float64
	At                         time.Time
}

const overrideFreshness = 100 * time.Millisecond

// Store is the mutex-guarded FlightState owner (C6). The mutex is held
// only across struct field reads/writes, never across I/O — see
// spec.md §5.
type Store struct {
	mu    sync.Mutex
	state State

	overrideMu sync.Mutex
	override   *Override
}

// New returns a Store with all axes neutral, all modes false, and the
// hover throttle cap defaulted to the configuration default passed in.
func New(hoverThrottleCap float64) *Store {
	return &Store{state: State{HoverThrottleCap: hoverThrottleCap}}
}

// Set clamps and writes one of the eight stick axes.
func (s *Store) Set(axis Axis, v float64) {
	v = clamp(v, minAxis, maxAxis)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch axis {
	case Roll:
		s.state.Roll = v
	case Pitch:
		s.state.Pitch = v
	case Throttle:
		s.state.Throttle = v
	case Yaw:
		s.state.Yaw = v
	case FollowDirX:
		s.state.FollowDirX = v
	case FollowDirY:
		s.state.FollowDirY = v
	case FollowAccelX:
		s.state.FollowAccelX = v
	case FollowAccelY:
		s.state.FollowAccelY = v
	}
}

// SetTrim clamps and writes one of the four trimmable axes' trim offset.
func (s *Store) SetTrim(axis Axis, v float64) {
	v = clamp(v, minAxis, maxAxis)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch axis {
	case Roll:
		s.state.TrimRoll = v
	case Pitch:
		s.state.TrimPitch = v
	case Throttle:
		s.state.TrimThrottle = v
	case Yaw:
		s.state.TrimYaw = v
	}
}

// SetSpeed sets the advisory speed level, clamped to {0,1,2}.
func (s *Store) SetSpeed(level int) {
	if level < 0 {
		level = 0
	}
	if level > 2 {
		level = 2
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SpeedLevel = level
}

// SetHeadless sets headless mode.
func (s *Store) SetHeadless(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Headless = v
}

// SetLights sets the lights mode.
func (s *Store) SetLights(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Lights = v
}

// SetIndoorMode enables/disables indoor mode and its hover cap.
func (s *Store) SetIndoorMode(on bool, capPercent float64) {
	capPercent = clamp(capPercent, 0, 100)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IndoorMode = on
	s.state.HoverThrottleCap = capPercent
}

// PublishOverride is the autopilot engine's single writer into the
// override cell. Called once per 40 Hz tick.
func (s *Store) PublishOverride(o Override) {
	o.At = timeNow()
	s.overrideMu.Lock()
	s.override = &o
	s.overrideMu.Unlock()
}

// ClearOverride drops the override immediately, used by Autopilot.Stop
// so the next Snapshot returns to human/gamepad input within one tick.
func (s *Store) ClearOverride() {
	s.overrideMu.Lock()
	s.override = nil
	s.overrideMu.Unlock()
}

func (s *Store) currentOverride() *Override {
	s.overrideMu.Lock()
	defer s.overrideMu.Unlock()
	if s.override == nil {
		return nil
	}
	if timeNow().Sub(s.override.At) > overrideFreshness {
		return nil
	}
	o := *s.override
	return &o
}

// timeNow is a seam so tests can exercise override-staleness without
// sleeping; production always uses wall time.
var timeNow = time.Now

// Snapshot returns a by-value copy of the effective control inputs:
// autopilot override projected onto roll/pitch/throttle/yaw (if fresh),
// indoor-mode throttle cap and forced low speed applied, then trim
// added and the result clamped to [-100, 100]. Encoders must only ever
// see a Snapshot, never the live State.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	if ov := s.currentOverride(); ov != nil {
		st.Roll = ov.Roll
		st.Pitch = ov.Pitch
		st.Throttle = ov.Throttle
		st.Yaw = ov.Yaw
	}

	if st.IndoorMode {
		if st.Throttle > st.HoverThrottleCap {
			st.Throttle = st.HoverThrottleCap
		}
		st.SpeedLevel = 0
	}

	st.Roll = clamp(st.Roll+st.TrimRoll, minAxis, maxAxis)
	st.Pitch = clamp(st.Pitch+st.TrimPitch, minAxis, maxAxis)
	st.Throttle = clamp(st.Throttle+st.TrimThrottle, minAxis, maxAxis)
	st.Yaw = clamp(st.Yaw+st.TrimYaw, minAxis, maxAxis)

	// Trim must never let a collaborator defeat the indoor hover cap:
	// re-clamp throttle to the cap after trim is folded in.
	if st.IndoorMode && st.Throttle > st.HoverThrottleCap {
		st.Throttle = st.HoverThrottleCap
	}

	return st
}

// SpeedName returns the advisory speed level's display name, a detail
// carried over from the original drone_protocol.py's speed_name
// property (see SPEC_FULL.md §10).
func SpeedName(level int) string {
	switch level {
	case 0:
		return "LOW"
	case 1:
		return "MED"
	default:
		return "HIGH"
	}
}
