// Package levelfile implements load/save of the native ".hbit" world
// file format, plus read-only import of the legacy Java-serialized
// ".mine"/".dat" format.
package levelfile

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hbit/hbit-server/internal/leveldata"
	"github.com/hbit/hbit-server/internal/proto"
)

// Magic is the native format's leading identifier.
var Magic = [7]byte{'H', 'O', 'N', 'E', 'Y', 'L', 'V'}

// Version is the only native format version this server writes or
// accepts.
const Version = 0x00

// MaxNameLen is the largest CP437 level name the native format allows.
const MaxNameLen = 64

// WorldData is a fully loaded level: its voxel grid, spawn point, and
// display name.
type WorldData struct {
	Level      *leveldata.LevelData
	SpawnPoint proto.Location
	Name       string
}

// Save encodes data in the native format:
//
//	magic[7] | version | dims[3*u16] | spawn_pos[3*u16 as x16] |
//	yaw | pitch | name_len (<=64) | name[name_len, CP437] |
//	raw_length: u64 | gzipped(raw_data)
func Save(w io.Writer, data *WorldData) error {
	if len(data.Name) > MaxNameLen {
		return fmt.Errorf("levelfile: name %q exceeds %d bytes", data.Name, MaxNameLen)
	}
	nameBytes := proto.EncodeCP437(data.Name)
	if len(nameBytes) > MaxNameLen {
		nameBytes = nameBytes[:MaxNameLen]
	}

	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(Version)

	dims := data.Level.Dims
	if err := binary.Write(&buf, binary.BigEndian, [3]uint16{dims.X, dims.Y, dims.Z}); err != nil {
		return err
	}
	spawn := data.SpawnPoint.Position
	if err := binary.Write(&buf, binary.BigEndian, [3]uint16{uint16(spawn.X), uint16(spawn.Y), uint16(spawn.Z)}); err != nil {
		return err
	}
	buf.WriteByte(byte(data.SpawnPoint.Yaw))
	buf.WriteByte(byte(data.SpawnPoint.Pitch))
	buf.WriteByte(byte(len(nameBytes)))
	buf.Write(nameBytes)

	if err := binary.Write(&buf, binary.BigEndian, uint64(len(data.Level.Raw))); err != nil {
		return err
	}

	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data.Level.Raw); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Load decodes the native format. See Save for the layout.
func Load(r io.Reader) (*WorldData, error) {
	var magic [7]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("levelfile: reading magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("levelfile: bad magic %q", magic)
	}

	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, fmt.Errorf("levelfile: reading version: %w", err)
	}
	if version[0] != Version {
		return nil, fmt.Errorf("levelfile: unsupported version %d", version[0])
	}

	var dims [3]uint16
	if err := binary.Read(r, binary.BigEndian, &dims); err != nil {
		return nil, fmt.Errorf("levelfile: reading dimensions: %w", err)
	}

	var spawn [3]uint16
	if err := binary.Read(r, binary.BigEndian, &spawn); err != nil {
		return nil, fmt.Errorf("levelfile: reading spawn position: %w", err)
	}

	var yawPitch [2]byte
	if _, err := io.ReadFull(r, yawPitch[:]); err != nil {
		return nil, fmt.Errorf("levelfile: reading spawn rotation: %w", err)
	}

	var nameLen [1]byte
	if _, err := io.ReadFull(r, nameLen[:]); err != nil {
		return nil, fmt.Errorf("levelfile: reading name length: %w", err)
	}
	if nameLen[0] > MaxNameLen {
		return nil, fmt.Errorf("levelfile: name length %d exceeds %d", nameLen[0], MaxNameLen)
	}
	nameBytes := make([]byte, nameLen[0])
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return nil, fmt.Errorf("levelfile: reading name: %w", err)
	}

	var rawLength uint64
	if err := binary.Read(r, binary.BigEndian, &rawLength); err != nil {
		return nil, fmt.Errorf("levelfile: reading raw length: %w", err)
	}
	if rawLength > math.MaxInt {
		return nil, fmt.Errorf("levelfile: raw length %d too large for this platform", rawLength)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("levelfile: opening gzip stream: %w", err)
	}
	defer gz.Close()

	raw := make([]byte, rawLength)
	if _, err := io.ReadFull(gz, raw); err != nil {
		return nil, fmt.Errorf("levelfile: reading level data: %w", err)
	}

	level, err := leveldata.FromRaw(raw, leveldata.Dimensions{X: dims[0], Y: dims[1], Z: dims[2]})
	if err != nil {
		return nil, fmt.Errorf("levelfile: %w", err)
	}

	return &WorldData{
		Level: level,
		SpawnPoint: proto.Location{
			Position: proto.Vector3X16{X: proto.X16(spawn[0]), Y: proto.X16(spawn[1]), Z: proto.X16(spawn[2])},
			Yaw:      proto.U8(yawPitch[0]),
			Pitch:    proto.U8(yawPitch[1]),
		},
		Name: proto.DecodeCP437(nameBytes),
	}, nil
}
