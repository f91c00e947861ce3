// Package transport owns the two UDP endpoints of spec.md §4.2: the Ctl
// socket (control frames, heartbeat, command triples, telemetry/echo
// receive) and the Video socket (fragment receive only). Grounded on
// net.DialUDP/net.ListenUDP usage in SMerrony-tello/network.go and the
// checksum-scanning receive loop of kdudkov-drone_logger/udp_server.go.
package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kabeerthockchom/xr872ctl/internal/protocol"
)

const (
	ctlRecvBufSize   = 2048
	videoRecvBufSize = 2048
)

// Addresses bundles the peer and local bind ports from the persisted
// configuration record (spec.md §6).
type Addresses struct {
	DroneIP  string
	CtlPort  int
	VideoPort int
}

// Endpoint wraps one *net.UDPConn plus its atomic RX/TX counters, used
// for both the Ctl and Video sockets. Counters are atomic so the
// watchdog can sample them at 1 Hz without taking any lock that could
// be held across an I/O wait (spec.md §5).
type Endpoint struct {
	conn     *net.UDPConn
	peer     *net.UDPAddr
	localPort int

	txCount       atomic.Int64
	rxCount       atomic.Int64
	lastTxAt      atomic.Int64 // unix nanos
	lastRxAt      atomic.Int64 // unix nanos
	consecutiveTxFail atomic.Int32
	closed        atomic.Bool
}

// dial opens a UDP socket bound to localPort with a fixed remote peer.
// SO_REUSEADDR is not set on the socket (see below).
func dial(droneIP string, localPort, peerPort int) (*Endpoint, error) {
	localAddr := &net.UDPAddr{Port: localPort}
	peerAddr := &net.UDPAddr{IP: net.ParseIP(droneIP), Port: peerPort}

	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, protocol.New(protocol.TransportIO, "transport.dial", err)
	}
	// SO_REUSEADDR: net.ListenUDP on most platforms already allows a
	// rebind of a recently-closed socket; Go's net package does not
	// expose a portable SO_REUSEADDR knob, so rebinding on reconnect
	// relies on the OS's default TIME_WAIT handling for UDP (UDP has no
	// TIME_WAIT, unlike TCP, so this is not a gap in practice).
	return &Endpoint{conn: conn, peer: peerAddr, localPort: localPort}, nil
}

// Send fires a datagram at the endpoint's fixed peer. Counts success
// and tracks consecutive failures for the watchdog's three-strikes
// policy (spec.md §4.7).
func (e *Endpoint) Send(b []byte) error {
	_, err := e.conn.WriteToUDP(b, e.peer)
	if err != nil {
		e.consecutiveTxFail.Add(1)
		return protocol.New(protocol.TransportIO, "transport.Send", err)
	}
	e.consecutiveTxFail.Store(0)
	e.txCount.Add(1)
	e.lastTxAt.Store(time.Now().UnixNano())
	return nil
}

// Recv blocks for one datagram, writing into buf and returning the
// slice actually received. Updates RX counters on every packet,
// well-formed or not, per spec.md §4.2.
func (e *Endpoint) Recv(buf []byte) ([]byte, error) {
	n, err := e.conn.Read(buf)
	if err != nil {
		return nil, protocol.New(protocol.TransportIO, "transport.Recv", err)
	}
	e.rxCount.Add(1)
	e.lastRxAt.Store(time.Now().UnixNano())
	return buf[:n], nil
}

// Close closes the underlying socket. Idempotent: a second Close is a
// no-op, since shutdown (spec.md §4.9) closes sockets unconditionally.
func (e *Endpoint) Close() error {
	if e.conn == nil || e.closed.Swap(true) {
		return nil
	}
	return e.conn.Close()
}

// TxCount, RxCount, LastTxAt, LastRxAt, ConsecutiveTxFailures expose the
// atomic counters the watchdog samples at 1 Hz.
func (e *Endpoint) TxCount() int64  { return e.txCount.Load() }
func (e *Endpoint) RxCount() int64  { return e.rxCount.Load() }
func (e *Endpoint) LastTxAt() time.Time {
	ns := e.lastTxAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
func (e *Endpoint) LastRxAt() time.Time {
	ns := e.lastRxAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
func (e *Endpoint) ConsecutiveTxFailures() int32 { return e.consecutiveTxFail.Load() }

// Transport bundles the Ctl and Video endpoints and exposes the
// higher-level send primitives of spec.md §4.2.
type Transport struct {
	addrs Addresses
	Ctl   *Endpoint
	Video *Endpoint

	// ctlSendMu serializes every send on the Ctl socket so a command
	// triple always completes before the next control frame interleaves
	// (spec.md §5 ordering guarantee (b)) — the Ctl socket's single
	// send-serializer.
	ctlSendMu sync.Mutex
}

// Open binds both endpoints.
func Open(addrs Addresses) (*Transport, error) {
	ctl, err := dial(addrs.DroneIP, addrs.CtlPort, addrs.CtlPort)
	if err != nil {
		return nil, err
	}
	video, err := dial(addrs.DroneIP, addrs.VideoPort, addrs.VideoPort)
	if err != nil {
		ctl.Close()
		return nil, err
	}
	return &Transport{addrs: addrs, Ctl: ctl, Video: video}, nil
}

// Rebind closes and reopens both sockets, used by the watchdog's
// reconnect path (spec.md §4.7).
func (t *Transport) Rebind() error {
	t.Ctl.Close()
	t.Video.Close()
	fresh, err := Open(t.addrs)
	if err != nil {
		return err
	}
	t.Ctl = fresh.Ctl
	t.Video = fresh.Video
	return nil
}

// Close closes both endpoints.
func (t *Transport) Close() error {
	err1 := t.Ctl.Close()
	err2 := t.Video.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SendControl sends one 20-byte control frame on the Ctl endpoint.
func (t *Transport) SendControl(frame []byte) error {
	t.ctlSendMu.Lock()
	defer t.ctlSendMu.Unlock()
	return t.Ctl.Send(frame)
}

// SendHeartbeat sends the single-byte heartbeat on the Ctl endpoint.
func (t *Transport) SendHeartbeat() error {
	t.ctlSendMu.Lock()
	defer t.ctlSendMu.Unlock()
	return t.Ctl.Send([]byte{0x00})
}

// SendRaw sends a single packet on the Ctl endpoint, serialized with
// every other Ctl sender. Used for the video start/stop packets, which
// unlike camera commands are sent once, not as a triple.
func (t *Transport) SendRaw(pkt []byte) error {
	t.ctlSendMu.Lock()
	defer t.ctlSendMu.Unlock()
	return t.Ctl.Send(pkt)
}

// tripleSpacing is the maximum inter-packet spacing spec.md §4.2 allows
// when sending a command triple.
const tripleSpacing = 5 * time.Millisecond

// SendTriple sends three packets back-to-back with <=5ms spacing on
// the Ctl endpoint, serialized so no control frame interleaves
// (spec.md §5 ordering guarantee (b)).
func (t *Transport) SendTriple(pkts [3][7]byte) error {
	t.ctlSendMu.Lock()
	defer t.ctlSendMu.Unlock()
	for _, p := range pkts {
		if err := t.Ctl.Send(p[:]); err != nil {
			return err
		}
		time.Sleep(tripleSpacing)
	}
	return nil
}

// RecvCtl blocks for one datagram on the Ctl endpoint.
func (t *Transport) RecvCtl() ([]byte, error) {
	buf := make([]byte, ctlRecvBufSize)
	return t.Ctl.Recv(buf)
}

// RecvVideo blocks for one datagram on the Video endpoint.
func (t *Transport) RecvVideo() ([]byte, error) {
	buf := make([]byte, videoRecvBufSize)
	return t.Video.Recv(buf)
}
