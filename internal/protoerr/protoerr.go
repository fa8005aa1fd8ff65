// Package protoerr defines the sentinel errors the connection state
// machine maps to disconnect reasons, per the framing-error taxonomy.
package protoerr

import (
	"errors"
	"fmt"
)

var (
	// ErrShortRead is returned when a packet ends before a field is
	// fully read off the wire.
	ErrShortRead = errors.New("short read")
	// ErrBadDiscriminator is returned when a packet's leading byte does
	// not match any known packet.
	ErrBadDiscriminator = errors.New("invalid discriminator")
	// ErrBadString is returned when a String field cannot be decoded.
	ErrBadString = errors.New("invalid string encoding")
)

// Wrap annotates err with sentinel so callers can errors.Is against the
// taxonomy while still seeing the underlying cause.
func Wrap(sentinel, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
