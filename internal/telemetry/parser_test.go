package telemetry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildLong constructs a well-formed 15-byte Long telemetry packet for
// a given battery percent and status, used by the round-trip test.
func buildLong(battery, status byte) []byte {
	w := make([]byte, longLen)
	w[0] = 0x66
	w[1] = 0x0F
	w[3] = battery
	w[4] = status
	w[13] = xor(w, 2, 12)
	w[14] = 0x99
	return w
}

// buildShort constructs a well-formed 10-byte Short telemetry packet.
func buildShort(voltageRaw, status byte) []byte {
	w := make([]byte, shortLen)
	w[0] = 0x66
	w[1] = voltageRaw
	w[2] = status
	w[9] = xor(w, 1, 8)
	return w
}

func feedAll(p *Parser, bytes []byte) (recs []*Record, evs []Event) {
	for _, b := range bytes {
		r, e := p.Feed(b)
		if r != nil {
			recs = append(recs, r)
		}
		evs = append(evs, e...)
	}
	return
}

func TestLongFormDecode(t *testing.T) {
	p := New()
	pkt := buildLong(100, 0)
	recs, _ := feedAll(p, pkt)
	require.Len(t, recs, 1)
	assert.Equal(t, Long, recs[0].Kind)
	assert.Equal(t, 100, recs[0].BatteryPercent)
	assert.Equal(t, byte(0), recs[0].Status)
}

func TestShortFormDecodeDerivesBatteryPercent(t *testing.T) {
	p := New()
	pkt := buildShort(37, 0) // 3.7V
	recs, _ := feedAll(p, pkt)
	require.Len(t, recs, 1)
	assert.Equal(t, Short, recs[0].Kind)
	assert.InDelta(t, 77, recs[0].BatteryPercent, 1)
}

func TestBatteryPercentAlwaysInRange(t *testing.T) {
	for raw := 0; raw <= 255; raw++ {
		pct := batteryFromVoltageRaw(byte(raw))
		assert.GreaterOrEqual(t, pct, 0)
		assert.LessOrEqual(t, pct, 100)
	}
}

func TestLongFormRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		battery := byte(rnd.Intn(101))
		status := byte(rnd.Intn(256))
		pkt := buildLong(battery, status)

		p := New()
		recs, _ := feedAll(p, pkt)
		require.Len(t, recs, 1)
		assert.Equal(t, int(battery), recs[0].BatteryPercent)
		assert.Equal(t, status, recs[0].Status)
	}
}

func TestChecksumMismatchProducesNoRecord(t *testing.T) {
	p := New()
	pkt := buildLong(50, 0)
	pkt[13] ^= 0xFF
	recs, _ := feedAll(p, pkt)
	assert.Empty(t, recs)
}

func TestStreamDoesNotReattributeBytesAcrossRecords(t *testing.T) {
	p := New()
	var stream []byte
	stream = append(stream, buildLong(80, 0)...)
	stream = append(stream, buildShort(40, 0)...)

	recs, _ := feedAll(p, stream)
	require.Len(t, recs, 2)
	assert.Equal(t, Long, recs[0].Kind)
	assert.Equal(t, Short, recs[1].Kind)
}

func TestPhotoRequestedFiresOnSingleRise(t *testing.T) {
	p := New()
	frozen := time.Now()
	p.now = func() time.Time { return frozen }

	_, e1 := feedPacket(p, buildLong(50, 0x00))
	assert.Empty(t, e1)

	frozen = frozen.Add(100 * time.Millisecond)
	_, e2 := feedPacket(p, buildLong(50, 0x02)) // single 0->1 press, long-form bit 1
	require.Contains(t, e2, EventPhotoRequested)
}

func TestPhotoRequestedFiresOnSingleRiseShortForm(t *testing.T) {
	p := New()
	frozen := time.Now()
	p.now = func() time.Time { return frozen }

	_, e1 := feedPacket(p, buildShort(37, 0x00))
	assert.Empty(t, e1)

	frozen = frozen.Add(100 * time.Millisecond)
	_, e2 := feedPacket(p, buildShort(37, 0x01)) // single 0->1 press, short-form bit 0
	require.Contains(t, e2, EventPhotoRequested)
}

func TestPhotoRequestedDoesNotRefireWhileHeld(t *testing.T) {
	p := New()
	frozen := time.Now()
	p.now = func() time.Time { return frozen }

	feedPacket(p, buildLong(50, 0x00))
	frozen = frozen.Add(100 * time.Millisecond)
	_, e1 := feedPacket(p, buildLong(50, 0x02))
	require.Contains(t, e1, EventPhotoRequested)

	frozen = frozen.Add(100 * time.Millisecond)
	_, e2 := feedPacket(p, buildLong(50, 0x02)) // still held, no new rise
	assert.NotContains(t, e2, EventPhotoRequested)
}

func TestPhotoRequestedGuardsAgainstStaleGapBeforeRise(t *testing.T) {
	p := New()
	frozen := time.Now()
	p.now = func() time.Time { return frozen }

	feedPacket(p, buildLong(50, 0x00))

	frozen = frozen.Add(1500 * time.Millisecond) // gap exceeds the 1.0s liveness window
	_, e := feedPacket(p, buildLong(50, 0x02))
	assert.NotContains(t, e, EventPhotoRequested, "a rise observed across a stale gap must not fire")
}

func TestScanEchoFindsEarliestOverlappingMatch(t *testing.T) {
	buf := []byte{0x00, 0xCC, 0x5A, 0x01, 0xCC, 0x5A, 0x02}
	off, ok := ScanEcho(buf)
	require.True(t, ok)
	assert.Equal(t, 1, off)
}

func TestScanEchoNoMatch(t *testing.T) {
	_, ok := ScanEcho([]byte{0x00, 0x01, 0x02})
	assert.False(t, ok)
}

// feedPacket feeds a whole packet at once and returns the last
// record/events pair produced, a convenience for debounce tests that
// operate record-by-record rather than byte-by-byte.
func feedPacket(p *Parser, pkt []byte) (*Record, []Event) {
	var rec *Record
	var evs []Event
	for _, b := range pkt {
		r, e := p.Feed(b)
		if r != nil {
			rec = r
		}
		evs = append(evs, e...)
	}
	return rec, evs
}
