// Package codec implements the XR872 wire format: encoding and
// validating 20-byte control frames, and building command triples.
// Telemetry decoding lives in internal/telemetry. Every function here
// is pure — no shared state, no I/O.
package codec

import (
	"math"

	"github.com/kabeerthockchom/xr872ctl/internal/protocol"
)

const (
	controlHeader byte = 0x66
	controlLen    byte = 0x14
	controlTail   byte = 0x99

	// ControlFrameLen is the fixed wire length of a control frame.
	ControlFrameLen = 20
)

// ModeFlagAlways is the bit that must always be set in byte 7 of a
// control frame (mask 0x02). Bit 0 reflects headless mode.
const (
	ModeFlagAlways   byte = 0x02
	ModeFlagHeadless byte = 0x01
)

// Axes is the set of four stick axes encoded into bytes 2..5 of a
// control frame.
type Axes struct {
	Roll, Pitch, Throttle, Yaw float64
}

// FollowAxes carries the follow-mode axes encoded into bytes 10..13.
type FollowAxes struct {
	DirX, DirY, AccelX, AccelY float64
}

// ControlInput is everything the encoder needs to build one control
// frame. It is a snapshot — callers never hold a lock while encoding.
type ControlInput struct {
	Axes         Axes
	Follow       FollowAxes
	FollowActive bool
	Flags        byte // C5's CommandFlags bitfield, 0 if none armed
	Headless     bool
	Reserved     [4]byte // bytes 14..17, zero unless a collaborator injects a payload
}

// EncodeAxis maps a stick value in [-100, 100] onto a byte in [0, 255]
// with the center (0.0) landing on exactly 128.
func EncodeAxis(v float64) byte {
	scaled := math.Round(v/100*128) + 128
	return clampByte(scaled)
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// XOR computes the XOR checksum of b[i..j] inclusive.
func XOR(b []byte, i, j int) byte {
	var x byte
	for k := i; k <= j; k++ {
		x ^= b[k]
	}
	return x
}

// EncodeControlFrame builds the 20-byte control frame described in
// spec.md §4.1. Encoding is total: every ControlInput, however
// out-of-range its float fields, produces a valid frame because
// EncodeAxis clamps.
func EncodeControlFrame(in ControlInput) [ControlFrameLen]byte {
	var f [ControlFrameLen]byte

	f[0] = controlHeader
	f[1] = controlLen

	f[2] = EncodeAxis(in.Axes.Roll)
	f[3] = EncodeAxis(in.Axes.Pitch)
	f[4] = EncodeAxis(in.Axes.Throttle)
	f[5] = EncodeAxis(in.Axes.Yaw)

	f[6] = in.Flags

	f[7] = ModeFlagAlways
	if in.Headless {
		f[7] |= ModeFlagHeadless
	}

	if in.FollowActive {
		f[8] = 0xFF
		f[9] = 0xFF
	}

	f[10] = EncodeAxis(in.Follow.DirY)
	f[11] = EncodeAxis(in.Follow.AccelX)
	f[12] = EncodeAxis(in.Follow.AccelY)
	f[13] = EncodeAxis(in.Follow.DirX)

	f[14] = in.Reserved[0]
	f[15] = in.Reserved[1]
	f[16] = in.Reserved[2]
	f[17] = in.Reserved[3]

	f[18] = XOR(f[:], 2, 17)
	f[19] = controlTail

	return f
}

// CommandTriple is three 7-byte packets with sequence bytes 1, 2, 3.
type CommandTriple [3][7]byte

// BuildCommandTriple builds the three sequence-numbered command packets
// for (cmdID, param) per spec.md §4.1.
func BuildCommandTriple(cmdID, param byte) CommandTriple {
	var triple CommandTriple
	for seq := byte(1); seq <= 3; seq++ {
		p := &triple[seq-1]
		p[0] = 0xCC
		p[1] = 0x5A
		p[2] = seq
		p[3] = cmdID
		p[4] = 0x02
		p[5] = param
		p[6] = XOR(p[:], 2, 5)
	}
	return triple
}

// Fixed byte strings for video start/stop and the camera command
// triples, reproduced verbatim from spec.md §6.
var (
	VideoStart = [7]byte{0xCC, 0x5A, 0x01, 0x82, 0x02, 0x36, 0xB7}
	VideoStop  = [7]byte{0xCC, 0x5A, 0x01, 0x82, 0x02, 0x37, 0xB6}
)

const (
	cmdCameraRotate byte = 0x01
	cmdCameraSwitch byte = 0x04
)

// CameraRotateTriple builds the camera-rotate on/off triple.
func CameraRotateTriple(on bool) CommandTriple {
	param := byte(0)
	if on {
		param = 1
	}
	return BuildCommandTriple(cmdCameraRotate, param)
}

// CameraSwitchTriple builds the switch-camera triple.
func CameraSwitchTriple() CommandTriple {
	return BuildCommandTriple(cmdCameraSwitch, 0)
}

// ValidateControlFrame checks the structural invariants of a frame this
// codec produced — used by tests and by loopback self-checks.
func ValidateControlFrame(f []byte) error {
	if len(f) != ControlFrameLen {
		return protocol.New(protocol.DecodeError, "codec.ValidateControlFrame", protocol.ErrInvalidLength)
	}
	if f[0] != controlHeader || f[1] != controlLen {
		return protocol.New(protocol.DecodeError, "codec.ValidateControlFrame", protocol.ErrBadHeader)
	}
	if f[19] != controlTail {
		return protocol.New(protocol.DecodeError, "codec.ValidateControlFrame", protocol.ErrBadTail)
	}
	if f[18] != XOR(f, 2, 17) {
		return protocol.New(protocol.DecodeError, "codec.ValidateControlFrame", protocol.ErrChecksumMismatch)
	}
	return nil
}
