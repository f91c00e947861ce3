package telemetry

import (
	"math"
	"time"
)

// maxYawRateDegPerSec is the original drone_protocol.py's assumed
// maximum yaw rate at full stick deflection, used only to integrate an
// advisory heading estimate — never fed back into control.
const maxYawRateDegPerSec = 90.0

// HeadingEstimator integrates the yaw stick over time into a 0-359
// degree heading estimate for display, grounded on
// drone_protocol.py's _update_heading. It is advisory only: nothing in
// this repo reads HeadingEstimator to make a navigation decision,
// keeping spec.md §1's GPS non-goal intact.
type HeadingEstimator struct {
	headingDeg float64
	lastTick   time.Time
	started    bool

	now func() time.Time
}

// NewHeadingEstimator returns an estimator starting at heading 0.
func NewHeadingEstimator() *HeadingEstimator {
	return &HeadingEstimator{now: time.Now}
}

// Update integrates yawStick (in [-100, 100]) since the previous call
// and returns the updated heading in [0, 360).
func (h *HeadingEstimator) Update(yawStick float64) float64 {
	now := h.now()
	if !h.started {
		h.started = true
		h.lastTick = now
		return h.headingDeg
	}

	dt := now.Sub(h.lastTick).Seconds()
	h.lastTick = now

	yawRate := (yawStick / 100.0) * maxYawRateDegPerSec
	h.headingDeg += yawRate * dt
	h.headingDeg = wrap360(h.headingDeg)
	return h.headingDeg
}

// Heading returns the current estimate without advancing time.
func (h *HeadingEstimator) Heading() float64 { return h.headingDeg }

func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
