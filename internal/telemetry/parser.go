// Package telemetry implements the sliding-window byte scanner of
// spec.md §4.4: it turns the raw byte stream on the Ctl endpoint into
// Short/Long telemetry records, with edge-triggered, debounced
// photo/record events. ScanEcho detects CC 5A-prefixed command echoes;
// the coordinator reports them as status messages and does not hand
// them to the sequencer.
package telemetry

import "time"

// Kind distinguishes the two telemetry record shapes.
type Kind int

const (
	Short Kind = iota
	Long
)

// Record is the tagged union described in spec.md §3. Short records
// carry VoltageRaw/BatteryPercent (derived); Long records carry
// BatteryPercent directly.
type Record struct {
	Kind           Kind
	BatteryPercent int
	VoltageRaw     byte // short form only
	Status         byte
}

// PhotoRequested/RecordToggle are the debounced edge events of
// spec.md §4.4, derived from two consecutive records' status bits.
type Event int

const (
	EventPhotoRequested Event = iota
	EventRecordToggle
)

const (
	shortLen             = 10
	longLen              = 15
	photoDebounceWindow  = 1 * time.Second
	recordDebounceWindow = 2 * time.Second
)

// batteryFromVoltageRaw converts a short-form voltage decidecimal
// (e.g. 37 -> 3.7V) into a clamped battery percentage per spec.md §3.
func batteryFromVoltageRaw(raw byte) int {
	volts := float64(raw) / 10.0
	pct := volts*160.7142 - 517.8571
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return int(pct + 0.5)
}

func xor(b []byte, i, j int) byte {
	var x byte
	for k := i; k <= j; k++ {
		x ^= b[k]
	}
	return x
}

// echoWindow is the length of one CC 5A command-echo packet. ScanEcho
// looks for the two-byte prefix anywhere in the buffer it is given.
const echoWindow = 7

// Parser maintains a ring of the most recently received bytes plus the
// debounce state needed for photo/record edge detection. It is
// single-threaded per Ctl endpoint, matching spec.md §4.4.
type Parser struct {
	window []byte // up to longLen most recent bytes

	lastStatus     byte
	lastStatusSeen bool
	lastRecordAt   time.Time

	// now is a seam for deterministic debounce tests.
	now func() time.Time
}

// New returns an empty Parser.
func New() *Parser {
	return &Parser{now: time.Now}
}

// Reset clears the ring buffer, used by the watchdog on reconnect.
func (p *Parser) Reset() {
	p.window = p.window[:0]
	p.lastStatusSeen = false
}

// Feed appends one byte from the Ctl stream and returns any telemetry
// record and/or debounced events produced by that byte.
func (p *Parser) Feed(b byte) (rec *Record, events []Event) {
	p.window = append(p.window, b)
	if len(p.window) > longLen {
		p.window = p.window[len(p.window)-longLen:]
	}

	if r := p.tryLong(); r != nil {
		p.window = p.window[:0]
		events = p.debounce(r.Status, true)
		return r, events
	}

	if r := p.tryShort(); r != nil {
		p.window = p.window[:0]
		events = p.debounce(r.Status, false)
		return r, events
	}

	return nil, nil
}

func (p *Parser) tryLong() *Record {
	w := p.window
	if len(w) != longLen {
		return nil
	}
	if w[0] != 0x66 || w[1] != 0x0F || w[14] != 0x99 {
		return nil
	}
	if xor(w, 2, 12) != w[13] {
		return nil
	}
	return &Record{Kind: Long, BatteryPercent: int(w[3]), Status: w[4]}
}

func (p *Parser) tryShort() *Record {
	w := p.window
	if len(w) < shortLen {
		return nil
	}
	w = w[len(w)-shortLen:]
	if w[0] != 0x66 || w[1] == 0x0F {
		return nil
	}
	if xor(w, 1, 8) != w[9] {
		return nil
	}
	return &Record{
		Kind:           Short,
		VoltageRaw:     w[1],
		Status:         w[2],
		BatteryPercent: batteryFromVoltageRaw(w[1]),
	}
}

// debounce implements spec.md §4.4's edge detection: a 0->1 rise is
// inherently observed across exactly two consecutive records (prev=0,
// cur=1), and fires immediately — PhotoRequested off bit 0 (short) /
// bit 1 (long), RecordToggle off bit 1 (short) / bit 2 (long) —
// provided those two records arrived within the respective liveness
// window (1.0s, 2.0s). That window guards against a stale comparison
// across a gap (e.g. a reconnect), not against firing on a single
// legitimate press.
func (p *Parser) debounce(status byte, long bool) []Event {
	var photoBit, recordBit bool
	if long {
		photoBit = status&0x02 != 0
		recordBit = status&0x04 != 0
	} else {
		photoBit = status&0x01 != 0
		recordBit = status&0x02 != 0
	}

	var events []Event
	now := p.now()

	if p.lastStatusSeen {
		gap := now.Sub(p.lastRecordAt)

		var prevPhoto, prevRecord bool
		if long {
			prevPhoto = p.lastStatus&0x02 != 0
			prevRecord = p.lastStatus&0x04 != 0
		} else {
			prevPhoto = p.lastStatus&0x01 != 0
			prevRecord = p.lastStatus&0x02 != 0
		}

		if photoBit && !prevPhoto && gap <= photoDebounceWindow {
			events = append(events, EventPhotoRequested)
		}
		if recordBit && !prevRecord && gap <= recordDebounceWindow {
			events = append(events, EventRecordToggle)
		}
	}

	p.lastStatus = status
	p.lastStatusSeen = true
	p.lastRecordAt = now
	return events
}

// ScanEcho reports whether buf contains the CC 5A command-echo prefix,
// returning the offset of the earliest match, resolving overlapping
// matches to the earliest per spec.md §4.4.
func ScanEcho(buf []byte) (offset int, ok bool) {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == 0xCC && buf[i+1] == 0x5A {
			return i, true
		}
	}
	return 0, false
}
