// Package transport implements the UDP transport a participant sends
// and receives RTPS datagrams over (spec §6): one socket per locator,
// with unicast and multicast variants, feeding a single inbound channel
// the participant's message receiver drains.
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/internal/worker"
)

// readPollInterval bounds how long a blocked read waits before checking
// HaltCh again, since net.UDPConn has no select-based cancellation.
const readPollInterval = 500 * time.Millisecond

func readDeadline() time.Time {
	return time.Now().Add(readPollInterval)
}

// MaxDatagramSize bounds a single read, matching common UDP MTU
// practice (spec §6 notes RTPS messages are not expected to exceed this
// without fragmentation via DATAFRAG).
const MaxDatagramSize = 65507

// Datagram is one received UDP payload plus the locator it arrived on
// and the locator it came from.
type Datagram struct {
	From    types.Locator
	On      types.Locator
	Payload []byte
}

// Transport owns a set of UDP sockets (one per configured locator) and
// delivers every inbound datagram on a single channel (spec §6).
type Transport struct {
	worker.Worker

	conns   []*net.UDPConn
	inbound chan Datagram
}

// NewTransport constructs a Transport with no sockets yet open; call
// Listen for each locator that should receive traffic.
func NewTransport(inboundBuffer int) *Transport {
	return &Transport{inbound: make(chan Datagram, inboundBuffer)}
}

// Inbound returns the channel every opened socket's datagrams arrive on.
func (t *Transport) Inbound() <-chan Datagram {
	return t.inbound
}

// Listen opens a UDP socket for loc (unicast or multicast) and starts a
// goroutine delivering its datagrams to Inbound.
func (t *Transport) Listen(loc types.Locator) error {
	addr := loc.UDPAddr()
	if addr == nil {
		return fmt.Errorf("transport: unsupported locator kind %d", loc.Kind)
	}

	var conn *net.UDPConn
	var err error
	if loc.IsMulticast() {
		conn, err = net.ListenMulticastUDP("udp", nil, addr)
	} else {
		conn, err = net.ListenUDP("udp", addr)
	}
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	t.conns = append(t.conns, conn)

	t.Go(func() {
		t.readLoop(conn, loc)
	})
	return nil
}

func (t *Transport) readLoop(conn *net.UDPConn, on types.Locator) {
	buf := make([]byte, MaxDatagramSize)
	for {
		conn.SetReadDeadline(readDeadline())
		n, raddr, err := conn.ReadFromUDP(buf)
		select {
		case <-t.HaltCh():
			return
		default:
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		from := locatorFromUDPAddr(raddr)
		select {
		case t.inbound <- Datagram{From: from, On: on, Payload: payload}:
		case <-t.HaltCh():
			return
		}
	}
}

func locatorFromUDPAddr(addr *net.UDPAddr) types.Locator {
	return types.NewLocatorUDPv4(addr.IP, uint32(addr.Port))
}

// Send writes payload to loc over whichever socket is appropriate; since
// a UDP socket can send to any destination regardless of which address
// it's bound to, the first open socket suffices (spec §6 does not
// require per-destination sockets for sending).
func (t *Transport) Send(loc types.Locator, payload []byte) error {
	addr := loc.UDPAddr()
	if addr == nil {
		return fmt.Errorf("transport: unsupported locator kind %d", loc.Kind)
	}
	if len(t.conns) == 0 {
		return fmt.Errorf("transport: no socket open to send from")
	}
	_, err := t.conns[0].WriteToUDP(payload, addr)
	return err
}

// Close halts the read loops and closes every socket.
func (t *Transport) Close() error {
	t.Halt()
	var firstErr error
	for _, c := range t.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.Wait()
	return firstErr
}
