package player

import (
	"sync/atomic"

	"github.com/hbit/hbit-server/internal/proto"
)

// AtomicLocation is a lock-free pose exchange: position and orientation
// cells updated with relaxed ordering. A concurrent reader may observe
// a snapshot with fields from different writes torn across each other;
// that's acceptable here because the protocol resyncs on every
// TeleportPlayer/UpdatePlayerLocation fan-out.
type AtomicLocation struct {
	x, y, z    atomic.Uint32
	yaw, pitch atomic.Uint32
}

// NewAtomicLocation creates an AtomicLocation initialized to loc.
func NewAtomicLocation(loc proto.Location) *AtomicLocation {
	a := &AtomicLocation{}
	a.Store(loc)
	return a
}

// Store writes every field of loc.
func (a *AtomicLocation) Store(loc proto.Location) {
	a.x.Store(uint32(loc.Position.X))
	a.y.Store(uint32(loc.Position.Y))
	a.z.Store(uint32(loc.Position.Z))
	a.yaw.Store(uint32(loc.Yaw))
	a.pitch.Store(uint32(loc.Pitch))
}

// Load reconstructs a consistent-per-field snapshot.
func (a *AtomicLocation) Load() proto.Location {
	return proto.Location{
		Position: proto.Vector3X16{
			X: proto.X16(a.x.Load()),
			Y: proto.X16(a.y.Load()),
			Z: proto.X16(a.z.Load()),
		},
		Yaw:   proto.U8(a.yaw.Load()),
		Pitch: proto.U8(a.pitch.Load()),
	}
}
