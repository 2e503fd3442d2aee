package frame

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestResetFrame(t *testing.T) {
	f := NewReset(42)
	require.True(t, f.IsReset())
	require.False(t, f.IsEntangled())
	require.Equal(t, uint32(42), f.GetNonce())
}

func TestEntangledFrameRoundTrip(t *testing.T) {
	id := NewTreeID(7)
	f := NewEntangled(id, TECK, TICK)
	require.True(t, f.IsEntangled())
	require.Equal(t, TECK, f.GetIState())
	require.Equal(t, TICK, f.GetUState())
	require.False(t, f.HasPayload())

	p := NewPayload(id, []byte("hi"))
	f.SetPayload(p)
	require.True(t, f.HasPayload())
	if diff := cmp.Diff(p.Data, f.GetPayload().Data); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestPayloadCloneDoesNotShareBackingArray(t *testing.T) {
	id := NewTreeID(1)
	original := NewPayload(id, []byte("hello"))
	clone := original.Clone()
	clone.Data[0] = 'H'
	require.Equal(t, byte('h'), original.Data[0])
}

func TestTreeIDEquality(t *testing.T) {
	require.Equal(t, NewTreeID(5), NewTreeID(5))
	require.NotEqual(t, NewTreeID(5), NewTreeID(6))
}
