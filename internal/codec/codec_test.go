package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAxisCenterIsExactly128(t *testing.T) {
	assert.Equal(t, byte(128), EncodeAxis(0))
}

func TestEncodeAxisClampsToByteRange(t *testing.T) {
	for _, v := range []float64{-100, -50, 0, 50, 100, -1000, 1000} {
		b := EncodeAxis(v)
		assert.GreaterOrEqual(t, int(b), 0)
		assert.LessOrEqual(t, int(b), 255)
	}
}

func TestEncodeControlFrameNeutral(t *testing.T) {
	f := EncodeControlFrame(ControlInput{})
	want := [ControlFrameLen]byte{
		0x66, 0x14, 0x80, 0x80, 0x80, 0x80, 0x00, 0x02,
		0x00, 0x00, 0x80, 0x80, 0x80, 0x80, 0x00, 0x00,
		0x00, 0x00, 0x02, 0x99,
	}
	assert.Equal(t, want, f)
}

func TestEncodeControlFrameInvariants(t *testing.T) {
	in := ControlInput{
		Axes:     Axes{Roll: 42, Pitch: -17, Throttle: 100, Yaw: -100},
		Follow:   FollowAxes{DirX: 10, DirY: -10, AccelX: 5, AccelY: -5},
		Flags:    0x03,
		Headless: true,
	}
	f := EncodeControlFrame(in)

	require.NoError(t, ValidateControlFrame(f[:]))
	assert.Equal(t, byte(0x66), f[0])
	assert.Equal(t, byte(0x14), f[1])
	assert.Equal(t, byte(0x99), f[19])
	assert.Equal(t, XOR(f[:], 2, 17), f[18])
	assert.Equal(t, byte(0x02), f[7]&0x02)
	assert.Equal(t, byte(0x01), f[7]&0x01, "headless bit should be set")
}

func TestEncodeControlFrameIndoorCap(t *testing.T) {
	// Scenario 3 from spec.md §8: hover_throttle_cap=30 -> throttle byte 0xA6.
	f := EncodeControlFrame(ControlInput{Axes: Axes{Throttle: 30}})
	assert.Equal(t, byte(0xA6), f[4])
}

func TestXORHelper(t *testing.T) {
	b := []byte{0x01, 0x02, 0x04, 0x08}
	assert.Equal(t, byte(0x01^0x02^0x04^0x08), XOR(b, 0, 3))
}

func TestBuildCommandTripleSequenceAndChecksum(t *testing.T) {
	triple := BuildCommandTriple(0x01, 0x01)
	for i, pkt := range triple {
		assert.Equal(t, byte(0xCC), pkt[0])
		assert.Equal(t, byte(0x5A), pkt[1])
		assert.Equal(t, byte(i+1), pkt[2])
		assert.Equal(t, byte(0x01), pkt[3])
		assert.Equal(t, byte(0x02), pkt[4])
		assert.Equal(t, byte(0x01), pkt[5])
		assert.Equal(t, XOR(pkt[:], 2, 5), pkt[6])
	}
}

func TestCameraRotateTripleMatchesWireConstants(t *testing.T) {
	on := CameraRotateTriple(true)
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x01, 0x01, 0x02, 0x01, 0x03}, on[0])
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x02, 0x01, 0x02, 0x01, 0x00}, on[1])
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x03, 0x01, 0x02, 0x01, 0x01}, on[2])

	off := CameraRotateTriple(false)
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x01, 0x01, 0x02, 0x00, 0x02}, off[0])
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x02, 0x01, 0x02, 0x00, 0x01}, off[1])
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x03, 0x01, 0x02, 0x00, 0x00}, off[2])
}

func TestCameraSwitchTripleMatchesWireConstants(t *testing.T) {
	sw := CameraSwitchTriple()
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x01, 0x04, 0x02, 0x00, 0x07}, sw[0])
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x02, 0x04, 0x02, 0x00, 0x04}, sw[1])
	assert.Equal(t, [7]byte{0xCC, 0x5A, 0x03, 0x04, 0x02, 0x00, 0x05}, sw[2])
}

func TestValidateControlFrameRejectsBadLength(t *testing.T) {
	err := ValidateControlFrame([]byte{0x66, 0x14})
	require.Error(t, err)
}

func TestValidateControlFrameRejectsBadChecksum(t *testing.T) {
	f := EncodeControlFrame(ControlInput{})
	f[18] ^= 0xFF
	require.Error(t, ValidateControlFrame(f[:]))
}
