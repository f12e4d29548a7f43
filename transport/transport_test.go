package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/types"
)

func TestTransportSendReceiveLoopback(t *testing.T) {
	rx := NewTransport(4)
	loc := types.NewLocatorUDPv4(net.IPv4(127, 0, 0, 1), 0)
	require.NoError(t, rx.Listen(loc))
	defer rx.Close()

	boundPort := rx.conns[0].LocalAddr().(*net.UDPAddr).Port
	dest := types.NewLocatorUDPv4(net.IPv4(127, 0, 0, 1), uint32(boundPort))

	tx := NewTransport(1)
	require.NoError(t, tx.Listen(types.NewLocatorUDPv4(net.IPv4(127, 0, 0, 1), 0)))
	defer tx.Close()

	require.NoError(t, tx.Send(dest, []byte("hello")))

	select {
	case dg := <-rx.Inbound():
		require.Equal(t, "hello", string(dg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestTransportSendFailsWithNoSocket(t *testing.T) {
	tx := NewTransport(1)
	err := tx.Send(types.NewLocatorUDPv4(net.IPv4(127, 0, 0, 1), 9999), []byte("x"))
	require.Error(t, err)
}
