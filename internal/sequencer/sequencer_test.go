package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArmSetsBit(t *testing.T) {
	s := New()
	s.ArmTakeoffOrLand()
	assert.Equal(t, byte(BitTakeoffOrLand), s.Flags())
}

func TestArmMultipleDistinctBits(t *testing.T) {
	s := New()
	s.ArmTakeoffOrLand()
	s.ArmCalibrate()
	assert.Equal(t, byte(BitTakeoffOrLand|BitCalibrate), s.Flags())
}

func TestAutoClearAfterWindow(t *testing.T) {
	s := New()
	cleared := make(chan struct{})
	s.afterFunc = func(d time.Duration, f func()) *time.Timer {
		assert.Equal(t, armWindow, d)
		return time.AfterFunc(time.Millisecond, func() {
			f()
			close(cleared)
		})
	}

	s.ArmFlip()
	require.Equal(t, byte(BitFlip360), s.Flags())

	select {
	case <-cleared:
	case <-time.After(time.Second):
		t.Fatal("auto-clear never fired")
	}
	assert.Equal(t, byte(0), s.Flags())
}

func TestRearmingRestartsWindow(t *testing.T) {
	s := New()
	var stopped bool
	first := time.AfterFunc(time.Hour, func() {})
	calls := 0
	s.afterFunc = func(d time.Duration, f func()) *time.Timer {
		calls++
		if calls == 1 {
			return first
		}
		return time.AfterFunc(time.Hour, func() {})
	}

	s.ArmCalibrate()
	s.ArmCalibrate()

	stopped = !first.Stop()
	assert.True(t, stopped, "rearming must stop the previous timer")
	assert.Equal(t, 2, calls)
}

func TestResetClearsFlagsAndTimers(t *testing.T) {
	s := New()
	s.ArmEmergencyStop()
	s.Reset()
	assert.Equal(t, byte(0), s.Flags())
}
