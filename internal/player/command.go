package player

import "github.com/hbit/hbit-server/internal/proto"

// Command is one item on a connection's outbound command queue: a
// single-consumer, bounded channel the connection's command loop drains
// to drive both outgoing packets and internal state transitions (world
// transfer, disconnection, ...).
type Command interface {
	isCommand()
}

// Disconnect asks the connection to flush a Disconnect packet and tear
// itself down with reason.
type Disconnect struct{ Reason string }

func (Disconnect) isCommand() {}

// Initialize runs the post-handshake join sequence for Username.
type Initialize struct{ Username string }

func (Initialize) isCommand() {}

// SendTo asks the connection to transfer to the world named World.
type SendTo struct{ World string }

func (SendTo) isCommand() {}

// SetBlockCmd asks the connection to encode an authoritative SetBlock.
type SetBlockCmd struct {
	Position proto.Vector3U16
	Block    uint8
}

func (SetBlockCmd) isCommand() {}

// SetLocationCmd asks the connection to encode a TeleportPlayer for
// itself (used after a world transfer, to place the player at spawn).
type SetLocationCmd struct{ Location proto.Location }

func (SetLocationCmd) isCommand() {}

// NotifyLeave asks the connection to encode a DespawnPlayer for id.
type NotifyLeave struct{ ID int8 }

func (NotifyLeave) isCommand() {}

// NotifyMove asks the connection to encode a TeleportPlayer for id.
type NotifyMove struct {
	ID       int8
	Location proto.Location
}

func (NotifyMove) isCommand() {}

// NotifyJoin asks the connection to encode a SpawnPlayer for id.
type NotifyJoin struct {
	ID       int8
	Location proto.Location
	Name     string
}

func (NotifyJoin) isCommand() {}

// MessageCmd asks the connection to encode one or more chat fragments.
// The wire Message packet's id byte carries no sender attribution (that
// lives in the text, e.g. "name: message"); it is repurposed by
// LongerMessages as a pure continuation flag, so there is no sender id
// to carry here.
type MessageCmd struct {
	Text string
}

func (MessageCmd) isCommand() {}

// NotifyExtensions asks the connection to (re-)send its ExtInfo.
type NotifyExtensions struct{}

func (NotifyExtensions) isCommand() {}

// SetOperatorCmd asks the connection to encode an UpdateUser.
type SetOperatorCmd struct{ Operator bool }

func (SetOperatorCmd) isCommand() {}

// PingCmd asks the connection to encode a Ping; the heartbeat task
// enqueues this rather than writing to the socket itself, since the
// command loop is the connection's only writer.
type PingCmd struct{}

func (PingCmd) isCommand() {}
