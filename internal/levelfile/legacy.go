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

// javaStreamMarker is the two-byte start of a Java ObjectOutputStream
// object header (STREAM_MAGIC), which the legacy importer scans for
// inside the gunzipped payload.
var javaStreamMarker = []byte{0xAC, 0xED}

// Java object stream type codes relevant to the single flat class this
// importer knows how to read. Not a general-purpose deserializer: it
// supports exactly the primitive/String/byte-array field shapes the
// historical world-save class used.
const (
	tcNull          = 0x70
	tcReference     = 0x71
	tcClassDesc     = 0x72
	tcObject        = 0x73
	tcString        = 0x74
	tcArray         = 0x75
	tcEndBlockData  = 0x78
	scSerializable  = 0x02
)

type fieldDesc struct {
	typeCode byte
	name     string
}

// LoadLegacy imports a historical client's serialized world save. The
// file's last four bytes give the uncompressed size of the gzip member
// that spans the rest of the file; the decompressed buffer is then
// scanned for the start of a Java object stream, which is parsed far
// enough to recover the named fields this server cares about.
func LoadLegacy(r io.ReaderAt, size int64) (*WorldData, error) {
	if size < 4 {
		return nil, fmt.Errorf("levelfile: legacy file too small")
	}

	var lenBuf [4]byte
	if _, err := r.ReadAt(lenBuf[:], size-4); err != nil {
		return nil, fmt.Errorf("levelfile: reading legacy trailer: %w", err)
	}
	uncompressedLen := binary.BigEndian.Uint32(lenBuf[:])

	body := make([]byte, size)
	if _, err := r.ReadAt(body, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("levelfile: reading legacy file: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("levelfile: legacy file is not gzipped: %w", err)
	}
	defer gz.Close()

	buf := make([]byte, 0, uncompressedLen)
	out := bytes.NewBuffer(buf)
	if _, err := io.Copy(out, gz); err != nil {
		return nil, fmt.Errorf("levelfile: decompressing legacy file: %w", err)
	}

	decoded := out.Bytes()
	start := bytes.Index(decoded, javaStreamMarker)
	if start < 0 {
		return nil, fmt.Errorf("levelfile: could not find Java object stream header")
	}

	rec, err := decodeJavaWorld(bytes.NewReader(decoded[start:]))
	if err != nil {
		return nil, fmt.Errorf("levelfile: decoding legacy world record: %w", err)
	}

	// Dimensions map (width, depth, height) -> (x, y, z).
	dims := leveldata.Dimensions{X: uint16(rec.width), Y: uint16(rec.depth), Z: uint16(rec.height)}
	level, err := leveldata.FromRaw(rec.blocks, dims)
	if err != nil {
		return nil, fmt.Errorf("levelfile: %w", err)
	}

	yaw := uint8(rec.rotSpawn / 360.0 * 256.0)
	return &WorldData{
		Level: level,
		SpawnPoint: proto.Location{
			Position: proto.Vector3X16{
				X: proto.X16(uint16(rec.xSpawn)),
				Y: proto.X16(uint16(rec.ySpawn)),
				Z: proto.X16(uint16(rec.zSpawn)),
			},
			Yaw:   proto.U8(yaw),
			Pitch: 0,
		},
		Name: rec.name,
	}, nil
}

type javaWorldRecord struct {
	width, height, depth            int32
	blocks                          []byte
	name                             string
	xSpawn, ySpawn, zSpawn           int32
	rotSpawn                         float32
}

// decodeJavaWorld reads a single serialized object with fields
// width/height/depth/blocks/name/xSpawn/ySpawn/zSpawn/rotSpawn (order
// on the wire is whatever the writing class descriptor declares; we
// read the descriptor to find out instead of assuming it).
func decodeJavaWorld(r io.Reader) (*javaWorldRecord, error) {
	var magic [2]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	var streamVersion [2]byte
	if _, err := io.ReadFull(r, streamVersion[:]); err != nil {
		return nil, err
	}

	tag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if tag != tcObject {
		return nil, fmt.Errorf("expected TC_OBJECT, got 0x%02x", tag)
	}

	classTag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if classTag != tcClassDesc {
		return nil, fmt.Errorf("expected TC_CLASSDESC, got 0x%02x", classTag)
	}

	if _, err := readJavaUTF(r); err != nil { // className
		return nil, err
	}
	var serialVersionUID [8]byte
	if _, err := io.ReadFull(r, serialVersionUID[:]); err != nil {
		return nil, err
	}
	flags, err := readByte(r)
	if err != nil {
		return nil, err
	}
	_ = flags // expected scSerializable; not load-bearing for decoding

	var fieldCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldCount); err != nil {
		return nil, err
	}

	fields := make([]fieldDesc, fieldCount)
	for i := range fields {
		typeCode, err := readByte(r)
		if err != nil {
			return nil, err
		}
		name, err := readJavaUTF(r)
		if err != nil {
			return nil, err
		}
		fields[i] = fieldDesc{typeCode: typeCode, name: name}
		if typeCode == '[' || typeCode == 'L' {
			// Field type string: a TC_STRING object reference (or, for
			// a repeated type, TC_REFERENCE; this importer only ever
			// sees each field type once so TC_STRING is expected).
			refTag, err := readByte(r)
			if err != nil {
				return nil, err
			}
			switch refTag {
			case tcString:
				if _, err := readJavaUTF(r); err != nil {
					return nil, err
				}
			case tcReference:
				var handle [4]byte
				if _, err := io.ReadFull(r, handle[:]); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("unexpected field type descriptor tag 0x%02x", refTag)
			}
		}
	}

	// classAnnotation: TC_ENDBLOCKDATA expected (no block data written
	// for a plain serializable class).
	endTag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if endTag != tcEndBlockData {
		return nil, fmt.Errorf("expected TC_ENDBLOCKDATA, got 0x%02x", endTag)
	}

	// superClassDesc: expected TC_NULL (no superclass data).
	superTag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if superTag != tcNull {
		return nil, fmt.Errorf("unsupported superclass descriptor tag 0x%02x", superTag)
	}

	values := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f.typeCode {
		case 'I':
			var v int32
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			values[f.name] = v
		case 'F':
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, err
			}
			values[f.name] = math.Float32frombits(bits)
		case 'J':
			var v int64
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			values[f.name] = v
		case 'S':
			var v int16
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			values[f.name] = v
		case 'Z':
			b, err := readByte(r)
			if err != nil {
				return nil, err
			}
			values[f.name] = b != 0
		case 'B':
			b, err := readByte(r)
			if err != nil {
				return nil, err
			}
			values[f.name] = b
		case 'L': // object field: only String is expected here (name)
			s, err := readJavaObjectString(r)
			if err != nil {
				return nil, err
			}
			values[f.name] = s
		case '[': // array field: only byte[] is expected here (blocks)
			b, err := readJavaByteArray(r)
			if err != nil {
				return nil, err
			}
			values[f.name] = b
		default:
			return nil, fmt.Errorf("unsupported field type code %q for field %q", f.typeCode, f.name)
		}
	}

	get32 := func(name string) int32 {
		v, _ := values[name].(int32)
		return v
	}

	rec := &javaWorldRecord{
		width:    get32("width"),
		height:   get32("height"),
		depth:    get32("depth"),
		xSpawn:   get32("xSpawn"),
		ySpawn:   get32("ySpawn"),
		zSpawn:   get32("zSpawn"),
	}
	if v, ok := values["rotSpawn"].(float32); ok {
		rec.rotSpawn = v
	}
	if v, ok := values["name"].(string); ok {
		rec.name = v
	}
	if v, ok := values["blocks"].([]byte); ok {
		rec.blocks = v
	}
	return rec, nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

// readJavaUTF reads the modified-UTF8 string format used for class and
// field names: a u16 length prefix followed by the bytes (ASCII-only
// names are byte-identical to UTF-8, which covers every name this
// importer looks up).
func readJavaUTF(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readJavaObjectString(r io.Reader) (string, error) {
	tag, err := readByte(r)
	if err != nil {
		return "", err
	}
	switch tag {
	case tcNull:
		return "", nil
	case tcString:
		return readJavaUTF(r)
	default:
		return "", fmt.Errorf("unsupported string object tag 0x%02x", tag)
	}
}

func readJavaByteArray(r io.Reader) ([]byte, error) {
	tag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if tag != tcArray {
		return nil, fmt.Errorf("expected TC_ARRAY, got 0x%02x", tag)
	}
	// Array class descriptor: TC_CLASSDESC ("[B") or TC_REFERENCE to a
	// previously seen one. Either way we just need to skip past it to
	// reach the element count and data.
	classTag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	switch classTag {
	case tcClassDesc:
		if _, err := readJavaUTF(r); err != nil { // "[B"
			return nil, err
		}
		var serialVersionUID [8]byte
		if _, err := io.ReadFull(r, serialVersionUID[:]); err != nil {
			return nil, err
		}
		if _, err := readByte(r); err != nil { // classDescFlags
			return nil, err
		}
		var fieldCount uint16
		if err := binary.Read(r, binary.BigEndian, &fieldCount); err != nil {
			return nil, err
		}
		// A primitive array class has no fields.
		endTag, err := readByte(r)
		if err != nil {
			return nil, err
		}
		if endTag != tcEndBlockData {
			return nil, fmt.Errorf("expected TC_ENDBLOCKDATA after array class desc, got 0x%02x", endTag)
		}
		superTag, err := readByte(r)
		if err != nil {
			return nil, err
		}
		if superTag != tcNull {
			return nil, fmt.Errorf("unsupported array superclass descriptor tag 0x%02x", superTag)
		}
	case tcReference:
		var handle [4]byte
		if _, err := io.ReadFull(r, handle[:]); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unexpected array class descriptor tag 0x%02x", classTag)
	}

	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	data := make([]byte, count)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
