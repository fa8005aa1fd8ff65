package levelfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hbit/hbit-server/internal/leveldata"
	"github.com/hbit/hbit-server/internal/proto"
)

func sampleWorldData(t *testing.T) *WorldData {
	t.Helper()
	dims := leveldata.Dimensions{X: 4, Y: 3, Z: 2}
	level := leveldata.New(dims)
	for i := range level.Raw {
		level.Raw[i] = byte(i % 7)
	}
	return &WorldData{
		Level: level,
		SpawnPoint: proto.Location{
			Position: proto.Vector3X16{X: 10 << 5, Y: 20 << 5, Z: 30 << 5},
			Yaw:      64,
			Pitch:    32,
		},
		Name: "spawn",
	}
}

func TestNativeRoundTrip(t *testing.T) {
	data := sampleWorldData(t)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, data))

	got, err := Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.Equal(t, data.Level.Dims, got.Level.Dims)
	require.Equal(t, data.Level.Raw, got.Level.Raw)
	require.Equal(t, data.SpawnPoint, got.SpawnPoint)
	require.Equal(t, data.Name, got.Name)
}

func TestNativeRoundTripByteForByte(t *testing.T) {
	data := sampleWorldData(t)

	var first bytes.Buffer
	require.NoError(t, Save(&first, data))

	loaded, err := Load(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)

	var second bytes.Buffer
	require.NoError(t, Save(&second, loaded))

	require.Equal(t, first.Bytes(), second.Bytes())
}

func TestLoadRejectsBadMagic(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("NOTMAGIC")))
	require.Error(t, err)
}

func TestLoadRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(0x09)
	_, err := Load(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
}
