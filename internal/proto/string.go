package proto

import (
	"bytes"
	"io"

	"github.com/hbit/hbit-server/internal/protoerr"
)

// String is the protocol's fixed-width, space-padded CP437 string.
// It is always exactly StringLen bytes on the wire.
type String string

// WriteTo encodes s as CP437, space-padded or truncated to StringLen
// bytes. A string that cannot be represented in CP437 has the
// unrepresentable characters replaced with '?' one at a time (see
// EncodeCP437); it is never rejected at this layer.
func (s String) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, StringLen)
	for i := range buf {
		buf[i] = ' '
	}
	enc := EncodeCP437(string(s))
	copy(buf, enc)
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom decodes a fixed-width CP437 string and trims trailing ASCII
// whitespace (spaces, from the padding).
func (s *String) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, StringLen)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return int64(n), protoerr.Wrap(protoerr.ErrShortRead, err)
	}
	trimmed := bytes.TrimRight(buf, " \t\r\n\x00")
	*s = String(DecodeCP437(trimmed))
	return int64(n), nil
}

// ChunkPayload is a fixed 1024-byte level data chunk.
type ChunkPayload [ChunkPayloadLen]byte

func (c ChunkPayload) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c[:])
	return int64(n), err
}

func (c *ChunkPayload) ReadFrom(r io.Reader) (int64, error) {
	n, err := io.ReadFull(r, c[:])
	if err != nil {
		return int64(n), protoerr.Wrap(protoerr.ErrShortRead, err)
	}
	return int64(n), nil
}
