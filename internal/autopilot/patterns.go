package autopilot

import (
	"math"
	"strconv"
)

// FlightStep is one leg of a pattern: axes in [-100,100] held for
// DurationMs. Label is carried over from the original autopilot.py's
// per-step label (see SPEC_FULL.md §10) and surfaced in Status.
type FlightStep struct {
	Roll, Pitch, Throttle, Yaw float64
	DurationMs                 int
	Label                      string
}

// Pattern is a named, ordered sequence of FlightSteps. The library is
// purely declarative data, per spec.md §4.8.
type Pattern struct {
	Name  string
	Steps []FlightStep
}

func ms(seconds float64) int { return int(seconds * 1000) }

// Circle produces a single sustained pitch+yaw leg, grounded on
// autopilot.py's FlightPattern.circle.
func Circle() Pattern {
	return Pattern{Name: "Circle", Steps: []FlightStep{
		{Pitch: 50, Yaw: 50, DurationMs: ms(2 * math.Pi * 2), Label: "Circle"},
	}}
}

// Square alternates four side/turn legs, grounded on
// autopilot.py's FlightPattern.square.
func Square() Pattern {
	const sideTime, turnTime, speed = 2.0, 0.75, 50.0
	steps := make([]FlightStep, 0, 8)
	for i := 1; i <= 4; i++ {
		steps = append(steps,
			FlightStep{Pitch: speed, DurationMs: ms(sideTime), Label: sideLabel(i)},
			FlightStep{Yaw: 75, DurationMs: ms(turnTime), Label: turnLabel(i)},
		)
	}
	return Pattern{Name: "Square", Steps: steps}
}

func sideLabel(i int) string { return "Side " + strconv.Itoa(i) }
func turnLabel(i int) string { return "Turn " + strconv.Itoa(i) }

// FigureEight alternates a right loop and a left loop, grounded on
// autopilot.py's FlightPattern.figure_eight.
func FigureEight() Pattern {
	const duration, speed = 3.0, 50.0
	return Pattern{Name: "Figure Eight", Steps: []FlightStep{
		{Pitch: speed, Yaw: 50, DurationMs: ms(duration), Label: "Right Loop"},
		{Pitch: speed, Yaw: -50, DurationMs: ms(duration), Label: "Left Loop"},
	}}
}

// Zigzag alternates roll direction across legs, grounded on
// autopilot.py's FlightPattern.zigzag.
func Zigzag() Pattern {
	const legs, legTime, speed = 4, 1.5, 50.0
	steps := make([]FlightStep, 0, legs)
	for i := 0; i < legs; i++ {
		roll := speed
		if i%2 != 0 {
			roll = -speed
		}
		steps = append(steps, FlightStep{Pitch: speed, Roll: roll, DurationMs: ms(legTime), Label: "Leg " + strconv.Itoa(i+1)})
	}
	return Pattern{Name: "Zigzag", Steps: steps}
}

// HoverAndRotate spins in place, grounded on
// autopilot.py's FlightPattern.hover_rotate.
func HoverAndRotate() Pattern {
	return Pattern{Name: "Hover & Rotate", Steps: []FlightStep{
		{Yaw: 40, DurationMs: ms(8), Label: "Rotate"},
	}}
}

// AscendDescend climbs, hovers, then descends, grounded on
// autopilot.py's FlightPattern.ascend_descend.
func AscendDescend() Pattern {
	const heightTime, speed = 3.0, 50.0
	return Pattern{Name: "Ascend & Descend", Steps: []FlightStep{
		{Throttle: speed, DurationMs: ms(heightTime), Label: "Ascend"},
		{DurationMs: ms(2), Label: "Hover"},
		{Throttle: -speed, DurationMs: ms(heightTime), Label: "Descend"},
	}}
}

// Orbit banks around a point, grounded on
// autopilot.py's FlightPattern.orbit.
func Orbit() Pattern {
	return Pattern{Name: "Orbit", Steps: []FlightStep{
		{Roll: 40, Yaw: 20, DurationMs: ms(10), Label: "Orbit"},
	}}
}

// Helix climbs while orbiting, grounded on
// autopilot.py's FlightPattern.helix.
func Helix() Pattern {
	return Pattern{Name: "Helix", Steps: []FlightStep{
		{Throttle: 40, Pitch: 40, Yaw: 50, DurationMs: ms(6), Label: "Helix"},
	}}
}

// Pendulum swings roll left and right, grounded on
// autopilot.py's FlightPattern.pendulum.
func Pendulum() Pattern {
	const swings, swingTime, speed = 4, 1.5, 50.0
	steps := make([]FlightStep, 0, swings)
	for i := 0; i < swings; i++ {
		roll := speed
		if i%2 != 0 {
			roll = -speed
		}
		steps = append(steps, FlightStep{Roll: roll, DurationMs: ms(swingTime), Label: "Swing " + strconv.Itoa(i+1)})
	}
	return Pattern{Name: "Pendulum", Steps: steps}
}

// SpiralOut approximates an expanding spiral, grounded on
// autopilot.py's FlightPattern.spiral_out.
func SpiralOut() Pattern {
	return Pattern{Name: "Spiral Out", Steps: []FlightStep{
		{Pitch: 40, Yaw: 50, Roll: 20, DurationMs: ms(8), Label: "Spiral Out"},
	}}
}

// Library returns the ten built-in patterns keyed by name, mirroring
// autopilot.py's Autopilot.get_patterns.
func Library() map[string]Pattern {
	patterns := []Pattern{
		Circle(), Square(), FigureEight(), Zigzag(), HoverAndRotate(),
		AscendDescend(), Orbit(), Helix(), Pendulum(), SpiralOut(),
	}
	lib := make(map[string]Pattern, len(patterns))
	for _, p := range patterns {
		lib[p.Name] = p
	}
	return lib
}
