package proto

import (
	"fmt"
	"io"

	"github.com/hbit/hbit-server/internal/protoerr"
)

// Inbound packet discriminators (client -> server).
const (
	DiscPlayerIdentification = 0x00
	DiscSetBlock             = 0x05
	DiscSetLocationIn        = 0x08
	DiscMessageIn            = 0x0D
	DiscExtInfoIn            = 0x10
	DiscExtEntryIn           = 0x11
)

// CPEMagic is the PlayerIdentification byte signalling the client
// speaks the Classic Protocol Extension.
const CPEMagic = 0x42

// Inbound is implemented by every client->server packet payload.
type Inbound interface {
	inbound()
}

// PlayerIdentification is the first packet any client must send.
type PlayerIdentification struct {
	Version  U8
	Username String
	Key      String
	CPEMagic U8
}

func (PlayerIdentification) inbound() {}

// IsCPE reports whether the client announced CPE support.
func (p PlayerIdentification) IsCPE() bool { return p.CPEMagic == CPEMagic }

// SetBlockIn is the client's requested block edit.
type SetBlockIn struct {
	Position Vector3U16
	Mode     U8
	Block    U8
}

func (SetBlockIn) inbound() {}

// DecodedBlock returns the block value to apply: Block when Mode != 0,
// else air (0), per the base-protocol destroy semantics in §4.1. The
// Mode bit itself is preserved on the struct for callers (e.g. future
// CPE extensions) that want to distinguish "place" from "destroy" for
// an air result.
func (s SetBlockIn) DecodedBlock() U8 {
	if s.Mode == 0 {
		return 0
	}
	return s.Block
}

// SetLocationIn carries the client's claimed pose.
type SetLocationIn struct {
	Location Location
}

func (SetLocationIn) inbound() {}

// MessageIn is one 64-byte chat fragment.
type MessageIn struct {
	Append  U8
	Payload [64]byte
}

func (MessageIn) inbound() {}

// IsContinuation reports whether more fragments follow this one.
func (m MessageIn) IsContinuation() bool { return m.Append == 1 }

// Text decodes the payload as CP437, trimming trailing spaces (other
// whitespace is kept).
func (m MessageIn) Text() string {
	var s String
	for i := len(m.Payload); i > 0; i-- {
		if m.Payload[i-1] != ' ' {
			s = String(DecodeCP437(m.Payload[:i]))
			return string(s)
		}
	}
	return ""
}

// ExtEntry is one advertised extension name/version pair.
type ExtEntry struct {
	Name    String
	Version U32
}

// ExtInfoIn is the client's extension negotiation reply.
type ExtInfoIn struct {
	AppName String
	Count   U16
	Entries []ExtEntry
}

func (ExtInfoIn) inbound() {}

// DecodePacket reads exactly one inbound packet from r, dispatching on
// its one-byte discriminator.
func DecodePacket(r io.Reader) (Inbound, error) {
	var disc U8
	if _, err := disc.ReadFrom(r); err != nil {
		return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
	}

	switch byte(disc) {
	case DiscPlayerIdentification:
		var p PlayerIdentification
		if _, err := p.Version.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		if _, err := p.Username.ReadFrom(r); err != nil {
			return nil, err
		}
		if _, err := p.Key.ReadFrom(r); err != nil {
			return nil, err
		}
		if _, err := p.CPEMagic.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		return p, nil

	case DiscSetBlock:
		var s SetBlockIn
		if _, err := s.Position.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		if _, err := s.Mode.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		if _, err := s.Block.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		return s, nil

	case DiscSetLocationIn:
		var discard U8
		if _, err := discard.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		var s SetLocationIn
		if _, err := s.Location.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		return s, nil

	case DiscMessageIn:
		var m MessageIn
		if _, err := m.Append.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		if _, err := io.ReadFull(r, m.Payload[:]); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		return m, nil

	case DiscExtInfoIn:
		var e ExtInfoIn
		if _, err := e.AppName.ReadFrom(r); err != nil {
			return nil, err
		}
		if _, err := e.Count.ReadFrom(r); err != nil {
			return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
		}
		e.Entries = make([]ExtEntry, 0, e.Count)
		for i := U16(0); i < e.Count; i++ {
			var entryDisc U8
			if _, err := entryDisc.ReadFrom(r); err != nil {
				return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
			}
			if byte(entryDisc) != DiscExtEntryIn {
				return nil, protoerr.Wrap(protoerr.ErrBadDiscriminator, fmt.Errorf("ExtEntry 0x%02x", entryDisc))
			}
			var ent ExtEntry
			if _, err := ent.Name.ReadFrom(r); err != nil {
				return nil, err
			}
			if _, err := ent.Version.ReadFrom(r); err != nil {
				return nil, protoerr.Wrap(protoerr.ErrShortRead, err)
			}
			e.Entries = append(e.Entries, ent)
		}
		return e, nil

	default:
		return nil, protoerr.Wrap(protoerr.ErrBadDiscriminator, fmt.Errorf("0x%02x", disc))
	}
}
