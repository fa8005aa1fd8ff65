package player

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hbit/hbit-server/internal/proto"
)

// Handle is a non-owning counterpart to a Player: everything a world
// roster or the server's connected-players map needs in order to fan
// packets out to a player and to garbage-collect it once it disconnects,
// without holding a strong reference that would keep the Player's
// goroutines pinned alive.
//
// Go has no weak pointers; per the design notes this uses the
// ID/flag-based liveness scheme the spec blesses as an acceptable
// substitute: Outbound is the same channel the owning Player reads
// from, and dropped is a pointer to the Player's own atomic flag, so
// AnyDropped observes MarkDropped the instant it runs.
type Handle struct {
	ID       int8
	Username string
	UUID     uuid.UUID
	Location *AtomicLocation
	Outbound chan<- Command

	dropped   *atomic.Bool
	quit      <-chan struct{}
	worldName *atomic.Pointer[string]
}

// AnyDropped reports whether the underlying Player has been torn down.
func (h *Handle) AnyDropped() bool {
	if h.dropped == nil {
		return true
	}
	return h.dropped.Load()
}

// WorldName returns the name of the world the player currently belongs
// to, tracking transfers live since it reads the same cell the owning
// Player writes via SetWorldName.
func (h *Handle) WorldName() string {
	if h.worldName == nil {
		return ""
	}
	if v := h.worldName.Load(); v != nil {
		return *v
	}
	return ""
}

// Send enqueues cmd on the handle's outbound queue, preserving FIFO
// delivery order for this recipient. It blocks only until either the
// queue has room or the underlying player is torn down (MarkDropped),
// so a fan-out loop must run each Send in its own goroutine to keep a
// slow peer from stalling delivery to everyone else.
func (h *Handle) Send(cmd Command) {
	select {
	case h.Outbound <- cmd:
	case <-h.quit:
	}
}

// PacketSink is implemented by a connection's write path. World-level
// code (specifically level transfer, which must hold the world-data
// lock across the whole stream) writes packets directly through it
// instead of routing through the Command queue, matching the "writer
// task" framing in the spec while staying on the calling goroutine.
type PacketSink interface {
	SendPacket(pkt *proto.Packet) error
}
