package proto

import (
	"bytes"
	"io"
)

// Outbound packet discriminators (server -> client).
const (
	DiscServerIdentification = 0x00
	DiscPing                 = 0x01
	DiscLevelInit             = 0x02
	DiscLevelDataChunk       = 0x03
	DiscLevelFinalize        = 0x04
	DiscSetBlockOut          = 0x06
	DiscSpawnPlayer          = 0x07
	DiscTeleportPlayer       = 0x08
	DiscUpdatePlayerLocation = 0x09
	DiscUpdatePlayerPosition = 0x0A
	DiscUpdatePlayerRotation = 0x0B
	DiscDespawnPlayer        = 0x0C
	DiscMessageOut           = 0x0D
	DiscDisconnect           = 0x0E
	DiscUpdateUser           = 0x0F
	DiscExtInfoOut           = 0x10
	DiscExtEntryOut          = 0x11
)

// Operator flags carried by ServerIdentification / UpdateUser.
const (
	OperatorFlagOn  = 0x64
	OperatorFlagOff = 0x00
)

// Packet buffers a discriminator-prefixed outbound message before it is
// flushed to the wire in one Write call, so a writer-side timeout never
// observes a half-written packet.
type Packet struct {
	disc U8
	buf  bytes.Buffer
}

// NewPacket builds a Packet from a discriminator and its fields, encoded
// in order.
func NewPacket(disc byte, fields ...io.WriterTo) *Packet {
	p := &Packet{disc: U8(disc)}
	for _, f := range fields {
		_, _ = f.WriteTo(&p.buf)
	}
	return p
}

// Encode writes the full packet (discriminator + payload) to w.
func (p *Packet) Encode(w io.Writer) error {
	var out bytes.Buffer
	if _, err := p.disc.WriteTo(&out); err != nil {
		return err
	}
	if _, err := p.buf.WriteTo(&out); err != nil {
		return err
	}
	_, err := out.WriteTo(w)
	return err
}

// ServerIdentification is the server's handshake reply.
func ServerIdentification(name, motd string, operator bool) *Packet {
	flag := byte(OperatorFlagOff)
	if operator {
		flag = OperatorFlagOn
	}
	return NewPacket(DiscServerIdentification,
		U8(ProtocolVersion), String(name), String(motd), U8(flag))
}

// Ping carries no payload.
func Ping() *Packet { return NewPacket(DiscPing) }

// LevelInit carries no payload.
func LevelInit() *Packet { return NewPacket(DiscLevelInit) }

// LevelDataChunk is one 1024-byte slice of the gzipped level payload.
func LevelDataChunk(data ChunkPayload, length uint16, percent uint8) *Packet {
	return NewPacket(DiscLevelDataChunk, U16(length), data, U8(percent))
}

// LevelFinalize announces the level's dimensions.
func LevelFinalize(dims Vector3U16) *Packet {
	return NewPacket(DiscLevelFinalize, dims)
}

// SetBlockOut announces an authoritative block change.
func SetBlockOut(pos Vector3U16, block uint8) *Packet {
	return NewPacket(DiscSetBlockOut, pos, U8(block))
}

// SpawnPlayer introduces a player entity to the recipient.
func SpawnPlayer(id int8, name string, loc Location) *Packet {
	return NewPacket(DiscSpawnPlayer, I8(id), String(name), loc)
}

// TeleportPlayer forces an absolute pose update for id.
func TeleportPlayer(id int8, loc Location) *Packet {
	return NewPacket(DiscTeleportPlayer, I8(id), loc)
}

// UpdatePlayerLocation is a relative position + orientation delta.
func UpdatePlayerLocation(id int8, delta Vector3X8, yaw, pitch uint8) *Packet {
	return NewPacket(DiscUpdatePlayerLocation, I8(id), delta, U8(yaw), U8(pitch))
}

// UpdatePlayerPosition is a relative position-only delta.
func UpdatePlayerPosition(id int8, delta Vector3X8) *Packet {
	return NewPacket(DiscUpdatePlayerPosition, I8(id), delta)
}

// UpdatePlayerRotation is an orientation-only update.
func UpdatePlayerRotation(id int8, yaw, pitch uint8) *Packet {
	return NewPacket(DiscUpdatePlayerRotation, I8(id), U8(yaw), U8(pitch))
}

// DespawnPlayer removes a player entity from the recipient's view.
func DespawnPlayer(id int8) *Packet {
	return NewPacket(DiscDespawnPlayer, I8(id))
}

// MessageOut is one 64-byte chat fragment. The connection uses the id
// byte as the LongerMessages continuation flag: 1 when more fragments
// follow, 0 for the final one.
func MessageOut(id int8, payload [64]byte) *Packet {
	return NewPacket(DiscMessageOut, I8(id), rawBytes(payload[:]))
}

// Disconnect terminates the connection with reason.
func Disconnect(reason string) *Packet {
	return NewPacket(DiscDisconnect, String(reason))
}

// UpdateUser toggles the recipient's own operator flag.
func UpdateUser(operator bool) *Packet {
	flag := byte(OperatorFlagOff)
	if operator {
		flag = OperatorFlagOn
	}
	return NewPacket(DiscUpdateUser, U8(flag))
}

// ExtEntryOut is one advertised extension, ready to append to ExtInfoOut.
type ExtEntryOut struct {
	Name    string
	Version uint32
}

func (e ExtEntryOut) WriteTo(w io.Writer) (int64, error) {
	disc := U8(DiscExtEntryOut)
	n1, err := disc.WriteTo(w)
	if err != nil {
		return n1, err
	}
	n2, err := String(e.Name).WriteTo(w)
	if err != nil {
		return n1 + n2, err
	}
	n3, err := U32(e.Version).WriteTo(w)
	return n1 + n2 + n3, err
}

// ExtInfoOut announces our supported extension set.
func ExtInfoOut(appName string, entries []ExtEntryOut) *Packet {
	fields := make([]io.WriterTo, 0, 2+len(entries))
	fields = append(fields, String(appName), U16(len(entries)))
	for _, e := range entries {
		fields = append(fields, e)
	}
	return NewPacket(DiscExtInfoOut, fields...)
}

// rawBytes writes a fixed byte slice verbatim; used for already-encoded
// chat payloads where the caller has already handled CP437 fallback.
type rawBytes []byte

func (b rawBytes) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b)
	return int64(n), err
}
