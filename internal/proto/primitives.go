// Package proto implements the Classic Minecraft / ClassiCube wire
// protocol (version 0x07) plus its Classic Protocol Extension handshake:
// framed binary encoding and decoding of every packet in the protocol.
package proto

import (
	"io"

	"golang.org/x/text/encoding/charmap"
)

// Protocol version this server speaks.
const ProtocolVersion = 0x07

// StringLen is the fixed on-wire width of a protocol String.
const StringLen = 64

// ChunkPayloadLen is the fixed on-wire width of a level data chunk.
const ChunkPayloadLen = 1024

// Wire primitive types. All multi-byte integers are big-endian. Each
// type implements io.WriterTo with a value receiver and a ReadFrom
// method with a pointer receiver, mirroring how Go's binary.Write/Read
// pair works for fixed-size values.
type (
	// U8 is an unsigned 8-bit integer.
	U8 uint8
	// I8 is a signed 8-bit integer, two's complement.
	I8 int8
	// U16 is an unsigned 16-bit integer.
	U16 uint16
	// I16 is a signed 16-bit integer, two's complement.
	I16 int16
	// U32 is an unsigned 32-bit integer.
	U32 uint32

	// X8 is a signed 8-bit fixed-point number with 5 fractional bits.
	// Used for position deltas.
	X8 int8
	// X16 is an unsigned 16-bit fixed-point number with 5 fractional
	// bits. Used for absolute positions.
	X16 uint16
)

func (v U8) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write([]byte{byte(v)})
	return int64(n), err
}

func (v *U8) ReadFrom(r io.Reader) (int64, error) {
	b, err := readByte(r)
	*v = U8(b)
	return 1, err
}

func (v I8) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write([]byte{byte(v)})
	return int64(n), err
}

func (v *I8) ReadFrom(r io.Reader) (int64, error) {
	b, err := readByte(r)
	*v = I8(b)
	return 1, err
}

func (v U16) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write([]byte{byte(v >> 8), byte(v)})
	return int64(n), err
}

func (v *U16) ReadFrom(r io.Reader) (int64, error) {
	var buf [2]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(n), err
	}
	*v = U16(buf[0])<<8 | U16(buf[1])
	return int64(n), nil
}

func (v I16) WriteTo(w io.Writer) (int64, error) {
	return U16(v).WriteTo(w)
}

func (v *I16) ReadFrom(r io.Reader) (int64, error) {
	return (*U16)(v).ReadFrom(r)
}

func (v U32) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	return int64(n), err
}

func (v *U32) ReadFrom(r io.Reader) (int64, error) {
	var buf [4]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(n), err
	}
	*v = U32(buf[0])<<24 | U32(buf[1])<<16 | U32(buf[2])<<8 | U32(buf[3])
	return int64(n), nil
}

func (v X8) WriteTo(w io.Writer) (int64, error) {
	return I8(v).WriteTo(w)
}

func (v *X8) ReadFrom(r io.Reader) (int64, error) {
	return (*I8)(v).ReadFrom(r)
}

func (v X16) WriteTo(w io.Writer) (int64, error) {
	return U16(v).WriteTo(w)
}

func (v *X16) ReadFrom(r io.Reader) (int64, error) {
	return (*U16)(v).ReadFrom(r)
}

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

// cp437 is the code page used for every protocol String and chat
// message. ClassiCube clients render it with a custom font (historically
// nicknamed the "Wingdings variant") but the byte<->codepoint mapping is
// standard CP437, so we defer to the decoder in golang.org/x/text rather
// than hand-rolling a 256-entry table.
var cp437 = charmap.CodePage437

// EncodeCP437 converts a UTF-8 string to CP437 bytes, replacing any
// character the code page cannot represent with '?'.
func EncodeCP437(s string) []byte {
	enc := cp437.NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err == nil {
		return out
	}
	// Fall back to a byte-at-a-time pass so a single bad rune doesn't
	// drop the whole string.
	runes := []rune(s)
	buf := make([]byte, 0, len(runes))
	for _, r := range runes {
		if b, ok := encodeRuneCP437(r); ok {
			buf = append(buf, b)
		} else {
			buf = append(buf, '?')
		}
	}
	return buf
}

func encodeRuneCP437(r rune) (byte, bool) {
	enc := cp437.NewEncoder()
	out, err := enc.Bytes([]byte(string(r)))
	if err != nil || len(out) != 1 {
		return 0, false
	}
	return out[0], true
}

// DecodeCP437 converts CP437 bytes to a UTF-8 string.
func DecodeCP437(b []byte) string {
	dec := cp437.NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
