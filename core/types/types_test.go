package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWellKnownPorts(t *testing.T) {
	p := DefaultPortParams()
	require.EqualValues(t, 7400, p.SpdpMulticastPort(0))
	require.EqualValues(t, 7650, p.SpdpMulticastPort(1))
	require.EqualValues(t, 7410, p.MetatrafficUnicastPort(0, 0))
	require.EqualValues(t, 7412, p.MetatrafficUnicastPort(0, 1))
	require.EqualValues(t, 7401, p.UserMulticastPort(0))
	require.EqualValues(t, 7411, p.UserUnicastPort(0, 0))
}

func TestSequenceNumberHalves(t *testing.T) {
	n := SequenceNumber(0x1_0000_0002)
	require.EqualValues(t, 1, n.High())
	require.EqualValues(t, 2, n.Low())
	require.Equal(t, n, SequenceNumberFromHalves(n.High(), n.Low()))
}

func TestSequenceNumberSet(t *testing.T) {
	s := NewSequenceNumberSet(5)
	s.Add(7)
	s.Add(6)
	s.Add(9)
	require.True(t, s.Contains(6))
	require.False(t, s.Contains(8))
	require.Equal(t, []SequenceNumber{6, 7, 9}, s.Sorted())
}

func TestCountWrapAware(t *testing.T) {
	var c Count = 0xffffffff
	require.True(t, c.Precedes(0))
	require.False(t, Count(0).Precedes(c))
}

func TestInstanceHandleFromKey(t *testing.T) {
	a := InstanceHandleFromKey([]byte{1, 2, 3})
	b := InstanceHandleFromKey([]byte{1, 2, 3})
	c := InstanceHandleFromKey([]byte{1, 2, 4})
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
