package conn

import (
	"github.com/hbit/hbit-server/internal/command"
	"github.com/hbit/hbit-server/internal/config"
	"github.com/hbit/hbit-server/internal/player"
	"github.com/hbit/hbit-server/internal/proto"
)

// WorldHandle is the subset of World's behaviour a connection needs in
// order to transfer a player into and out of a level. *world.World
// satisfies this structurally, so this package never imports world and
// there is no import cycle with the orchestrator that owns both.
type WorldHandle interface {
	AddPlayer(p *player.Player, sink player.PacketSink) error
	RemovePlayer(id int8)
	SetBlock(pos proto.Vector3U16, block uint8, by int8) bool
	MovePlayer(id int8, loc proto.Location)
}

// ServerHandle is everything a connection needs from the running
// server: config, world lookup, the username/player roster, and chat
// fan-out. It embeds command.ServerHandle so the same implementation
// (the orchestrator) satisfies both the connection's needs and the
// slash-command interpreter's.
type ServerHandle interface {
	command.ServerHandle

	Config() *config.Config
	DefaultWorldName() string
	LookupWorld(name string) (WorldHandle, bool)

	ClaimUsername(username string, h *player.Handle) bool
	ReleaseUsername(username string)
	PlayerCount() int
	Broadcast(text string)

	SaltSnapshot() []string
}
