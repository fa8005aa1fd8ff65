package player

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hbit/hbit-server/internal/proto"
)

func TestClaimUsernameOnce(t *testing.T) {
	p := New(uuid.New())
	require.True(t, p.ClaimUsername("alice"))
	require.False(t, p.ClaimUsername("bob"))
	require.Equal(t, "alice", p.Username())
}

func TestSupportedExtensionsSetOnce(t *testing.T) {
	p := New(uuid.New())
	require.True(t, p.SetSupportedExtensions(Extensions{FullCP437: true}))
	require.False(t, p.SetSupportedExtensions(Extensions{LongerMessages: true}))
	require.True(t, p.SupportedExtensions().FullCP437)
}

func TestAtomicLocationRoundTrip(t *testing.T) {
	loc := proto.Location{
		Position: proto.Vector3X16{X: 100, Y: 200, Z: 300},
		Yaw:      10,
		Pitch:    20,
	}
	a := NewAtomicLocation(loc)
	require.Equal(t, loc, a.Load())

	loc2 := proto.Location{Position: proto.Vector3X16{X: 1, Y: 2, Z: 3}, Yaw: 5, Pitch: 6}
	a.Store(loc2)
	require.Equal(t, loc2, a.Load())
}

func TestHandleAnyDroppedTracksMarkDropped(t *testing.T) {
	p := New(uuid.New())
	h := p.Handle()
	require.False(t, h.AnyDropped())
	p.MarkDropped()
	require.True(t, h.AnyDropped())
}

func TestHandleSendUnblocksOnMarkDropped(t *testing.T) {
	p := New(uuid.New())
	h := p.Handle()
	for i := 0; i < OutboundQueueCapacity; i++ {
		h.Send(NotifyExtensions{})
	}

	done := make(chan struct{})
	go func() {
		h.Send(NotifyExtensions{}) // queue is full, blocks until MarkDropped
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Send returned before the queue had room or the player was dropped")
	case <-time.After(20 * time.Millisecond):
	}

	p.MarkDropped()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after MarkDropped")
	}
}
