package watchdog

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFakeRebind = errors.New("fake rebind failure")

type fakeCounters struct {
	lastRx   atomic.Value // time.Time
	txFail   atomic.Int32
}

func newFakeCounters(lastRx time.Time) *fakeCounters {
	c := &fakeCounters{}
	c.lastRx.Store(lastRx)
	return c
}

func (c *fakeCounters) LastRxAt() time.Time             { return c.lastRx.Load().(time.Time) }
func (c *fakeCounters) ConsecutiveTxFailures() int32    { return c.txFail.Load() }
func (c *fakeCounters) setLastRx(t time.Time)           { c.lastRx.Store(t) }

func TestConnectingToConnectedOnFirstRx(t *testing.T) {
	w := New(DefaultConfig(), newFakeCounters(time.Now()), nil, nil)
	w.MarkConnecting()
	require.Equal(t, Connecting, w.State())
	w.NotifyRxActivity()
	assert.Equal(t, Connected, w.State())
}

func TestStallTransitionsThroughDegradedToDisconnectedAfterTwoMisses(t *testing.T) {
	var transitions []LinkState
	counters := newFakeCounters(time.Now())
	reconnectCalled := false

	w := New(Config{RxTimeout: 3 * time.Second, SampleEvery: time.Second}, counters, func() error {
		reconnectCalled = true
		return nil
	}, func(s LinkState) { transitions = append(transitions, s) })

	w.MarkConnecting()
	w.NotifyRxActivity()
	require.Equal(t, Connected, w.State())

	base := time.Now()
	counters.setLastRx(base)

	w.tick(base.Add(4 * time.Second)) // first miss -> Degraded
	assert.Equal(t, Degraded, w.State())

	w.tick(base.Add(5 * time.Second)) // second miss -> Disconnected + reconnect
	assert.Equal(t, Disconnected, w.State())
	assert.True(t, reconnectCalled)

	assert.Contains(t, transitions, Degraded)
	assert.Contains(t, transitions, Disconnected)
}

func TestRecoveryFromDegradedBackToConnected(t *testing.T) {
	counters := newFakeCounters(time.Now())
	w := New(DefaultConfig(), counters, nil, nil)
	w.MarkConnecting()
	w.NotifyRxActivity()

	base := time.Now()
	counters.setLastRx(base)
	w.tick(base.Add(4 * time.Second))
	require.Equal(t, Degraded, w.State())

	counters.setLastRx(base.Add(4 * time.Second))
	w.tick(base.Add(4500 * time.Millisecond))
	assert.Equal(t, Connected, w.State())
}

func TestThreeConsecutiveTxFailuresDisconnectsImmediately(t *testing.T) {
	counters := newFakeCounters(time.Now())
	reconnectCalled := false
	w := New(DefaultConfig(), counters, func() error { reconnectCalled = true; return nil }, nil)
	w.MarkConnecting()
	w.NotifyRxActivity()

	counters.txFail.Store(3)
	w.tick(time.Now())
	assert.Equal(t, Disconnected, w.State())
	assert.True(t, reconnectCalled)
}

func TestTransitionFiresExactlyOncePerChange(t *testing.T) {
	var count int
	w := New(DefaultConfig(), newFakeCounters(time.Now()), nil, func(LinkState) { count++ })
	w.MarkConnecting()
	w.MarkConnecting() // no-op, state unchanged
	assert.Equal(t, 1, count)
}

func TestNoSamplingWhileConnecting(t *testing.T) {
	counters := newFakeCounters(time.Now().Add(-1 * time.Hour))
	w := New(DefaultConfig(), counters, nil, nil)
	w.MarkConnecting()
	w.tick(time.Now())
	assert.Equal(t, Connecting, w.State(), "watchdog must not act before Connected")
}

func TestDisconnectedRetriesReconnectOnEveryTick(t *testing.T) {
	var attempts int32
	w := New(DefaultConfig(), newFakeCounters(time.Now()), func() error {
		atomic.AddInt32(&attempts, 1)
		return errFakeRebind
	}, nil)

	// Already Disconnected at construction; a failed Rebind must not
	// strand the link with no further retries.
	w.tick(time.Now())
	w.tick(time.Now())
	w.tick(time.Now())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "each tick while Disconnected must retry reconnect")
	assert.Equal(t, Disconnected, w.State())
}
