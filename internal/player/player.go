// Package player defines the per-connection player record: identity,
// pose, and the queues a connection's tasks communicate through.
package player

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hbit/hbit-server/internal/proto"
)

// Queue capacities, per §5: bounded queues provide backpressure between
// a connection's reader, writer, and block-queue tasks.
const (
	OutboundQueueCapacity = 128
	BlockQueueCapacity    = 256
)

// BlockEdit is one pending block change a client asked for, queued for
// the block-queue task to apply against the world.
type BlockEdit struct {
	Position proto.Vector3U16
	Block    uint8
}

// Player is the owning record for one connected client. World-level and
// server-level code that needs a non-owning reference uses a Handle
// instead (see Handle), so dropping a Player's owning goroutines is
// enough to make every Handle observe it as gone.
type Player struct {
	UUID uuid.UUID

	id atomic.Int32 // holds an int8; -1 until assigned by World.AddPlayer

	username atomic.Pointer[string] // one-shot: set once by Initialize
	exts     atomic.Pointer[Extensions]

	Location *AtomicLocation

	connected atomic.Bool
	dropped   atomic.Bool // flipped exactly once, at cleanup
	quitOnce  sync.Once
	quit      chan struct{} // closed when dropped, unblocks pending Handle.Send calls

	worldName atomic.Pointer[string] // current world, looked up by name

	Outbound   chan Command
	BlockQueue chan BlockEdit
}

// New creates a Player in the not-yet-connected state.
func New(id uuid.UUID) *Player {
	p := &Player{
		UUID:       id,
		Location:   NewAtomicLocation(proto.Location{}),
		Outbound:   make(chan Command, OutboundQueueCapacity),
		BlockQueue: make(chan BlockEdit, BlockQueueCapacity),
		quit:       make(chan struct{}),
	}
	p.id.Store(-1)
	p.connected.Store(true)
	return p
}

// ID returns the player's world-assigned id, or -1 if unassigned.
func (p *Player) ID() int8 { return int8(p.id.Load()) }

// SetID assigns the player's world-assigned id.
func (p *Player) SetID(id int8) { p.id.Store(int32(id)) }

// Username returns the claimed username, or "" if Initialize has not
// run yet.
func (p *Player) Username() string {
	if v := p.username.Load(); v != nil {
		return *v
	}
	return ""
}

// ClaimUsername sets the username exactly once; subsequent calls are
// no-ops. Returns false if a username was already set.
func (p *Player) ClaimUsername(name string) bool {
	return p.username.CompareAndSwap(nil, &name)
}

// SupportedExtensions returns the negotiated CPE extension set, or the
// zero value if CPE negotiation never ran.
func (p *Player) SupportedExtensions() Extensions {
	if v := p.exts.Load(); v != nil {
		return *v
	}
	return Extensions{}
}

// SetSupportedExtensions records the negotiated extension set exactly
// once.
func (p *Player) SetSupportedExtensions(e Extensions) bool {
	return p.exts.CompareAndSwap(nil, &e)
}

// Connected reports the single source-of-truth liveness flag every
// per-connection loop samples to decide whether to keep running.
func (p *Player) Connected() bool { return p.connected.Load() }

// Disconnect flips Connected to false. Idempotent.
func (p *Player) Disconnect() { p.connected.Store(false) }

// Done returns a channel closed once MarkDropped runs, so a helper
// goroutine waiting on this player's queues can stop selecting on them.
func (p *Player) Done() <-chan struct{} { return p.quit }

// MarkDropped flips the liveness probe every Handle derived from this
// player observes, and releases any fan-out goroutine blocked trying to
// send to it. Called once, from the connection's terminal cleanup; safe
// to call more than once.
func (p *Player) MarkDropped() {
	p.dropped.Store(true)
	p.quitOnce.Do(func() { close(p.quit) })
}

// WorldName returns the name of the world this player currently belongs
// to, or "" if unset.
func (p *Player) WorldName() string {
	if v := p.worldName.Load(); v != nil {
		return *v
	}
	return ""
}

// SetWorldName updates the player's current-world backreference. This
// is the "swappable per-player world" cell from the design notes: a
// plain name, looked up in the orchestrator's world registry, rather
// than a strong or weak pointer.
func (p *Player) SetWorldName(name string) {
	p.worldName.Store(&name)
}

// Handle returns a non-owning reference to this player, suitable for
// storing in a World roster or the server's connected-players map.
func (p *Player) Handle() *Handle {
	return &Handle{
		ID:        p.ID(),
		Username:  p.Username(),
		UUID:      p.UUID,
		Location:  p.Location,
		Outbound:  p.Outbound,
		dropped:   &p.dropped,
		quit:      p.quit,
		worldName: &p.worldName,
	}
}
