package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackPair opens two Endpoints on 127.0.0.1 pointed at each other,
// standing in for the drone and the ground station in tests — dialing
// the real 192.168.28.1 peer is neither possible nor desirable here.
func loopbackPair(t *testing.T) (a, b *Endpoint) {
	t.Helper()
	a, err := dial("127.0.0.1", 0, 0)
	require.NoError(t, err)
	aPort := a.conn.LocalAddr().(*net.UDPAddr).Port

	b, err = dial("127.0.0.1", 0, aPort)
	require.NoError(t, err)
	bPort := b.conn.LocalAddr().(*net.UDPAddr).Port

	a.peer.Port = bPort
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestSendRecvRoundTripUpdatesCounters(t *testing.T) {
	a, b := loopbackPair(t)

	require.NoError(t, a.Send([]byte{0x66, 0x14, 0x01}))
	assert.Equal(t, int64(1), a.TxCount())

	buf := make([]byte, 64)
	got, err := b.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x66, 0x14, 0x01}, got)
	assert.Equal(t, int64(1), b.RxCount())
	assert.False(t, b.LastRxAt().IsZero())
}

func TestSendFailureIncrementsConsecutiveFailures(t *testing.T) {
	a, b := loopbackPair(t)
	b.Close()
	// Closing the peer doesn't always fail a connectionless UDP send on
	// every platform; directly exercise the counter via a closed local
	// socket instead, matching what the watchdog actually observes.
	a.Close()
	err := a.Send([]byte{0x00})
	require.Error(t, err)
	assert.Equal(t, int32(1), a.ConsecutiveTxFailures())
}

func TestSendTripleSpacingAndOrdering(t *testing.T) {
	a, b := loopbackPair(t)
	tr := &Transport{Ctl: b}

	triple := [3][7]byte{
		{0xCC, 0x5A, 0x01},
		{0xCC, 0x5A, 0x02},
		{0xCC, 0x5A, 0x03},
	}

	start := time.Now()
	require.NoError(t, tr.SendTriple(triple))
	assert.GreaterOrEqual(t, time.Since(start), 2*tripleSpacing)

	require.NoError(t, a.conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 16)
	for seq := byte(1); seq <= 3; seq++ {
		got, err := a.Recv(buf)
		require.NoError(t, err)
		assert.Equal(t, seq, got[2], "triple packets must arrive in sequence order")
	}
}

func TestEndpointCloseIsIdempotent(t *testing.T) {
	a, _ := loopbackPair(t)
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
