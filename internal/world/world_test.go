package world

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hbit/hbit-server/internal/leveldata"
	"github.com/hbit/hbit-server/internal/levelfile"
	"github.com/hbit/hbit-server/internal/player"
	"github.com/hbit/hbit-server/internal/proto"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink captures every packet's discriminator byte, for
// assertions that a transfer sent the expected packet sequence.
type recordingSink struct {
	mu   sync.Mutex
	discs []byte
}

func (s *recordingSink) SendPacket(pkt *proto.Packet) error {
	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		return err
	}
	s.mu.Lock()
	s.discs = append(s.discs, buf.Bytes()[0])
	s.mu.Unlock()
	return nil
}

func smallWorld(t *testing.T) *World {
	t.Helper()
	dims := leveldata.Dimensions{X: 4, Y: 2, Z: 4}
	level := leveldata.New(dims)
	data := &levelfile.WorldData{
		Level:      level,
		SpawnPoint: proto.Location{Position: proto.Vector3X16{X: 2 << 5, Y: 1 << 5, Z: 2 << 5}},
		Name:       "test",
	}
	return New("test", data, discardLogger())
}

func TestAddPlayerStreamsLevelThenRegisters(t *testing.T) {
	w := smallWorld(t)
	p := player.New(uuid.New())
	sink := &recordingSink{}

	require.NoError(t, w.AddPlayer(p, sink))
	require.GreaterOrEqual(t, p.ID(), int8(-128))
	require.Contains(t, w.roster, p.ID())

	require.Contains(t, sink.discs, byte(proto.DiscLevelInit))
	require.Contains(t, sink.discs, byte(proto.DiscLevelDataChunk))
	require.Contains(t, sink.discs, byte(proto.DiscLevelFinalize))
	require.Contains(t, sink.discs, byte(proto.DiscTeleportPlayer))
}

func TestAddPlayerRejectsCorruptLevel(t *testing.T) {
	w := smallWorld(t)
	w.data.Level.Raw = w.data.Level.Raw[:len(w.data.Level.Raw)-1]

	p := player.New(uuid.New())
	sink := &recordingSink{}

	err := w.AddPlayer(p, sink)
	require.Error(t, err)
	require.Contains(t, sink.discs, byte(proto.DiscDisconnect))
}

func TestAddPlayerFillsWorldEventually(t *testing.T) {
	w := smallWorld(t)
	w.ids = &IDPool{free: []int8{5}} // leave exactly one slot

	sink := &recordingSink{}
	require.NoError(t, w.AddPlayer(player.New(uuid.New()), sink))
	require.True(t, w.IsFull())

	sink2 := &recordingSink{}
	err := w.AddPlayer(player.New(uuid.New()), sink2)
	require.ErrorIs(t, err, ErrPoolFull)
	require.Contains(t, sink2.discs, byte(proto.DiscDisconnect))
}

func TestRemovePlayerFreesIDAndFansOut(t *testing.T) {
	w := smallWorld(t)

	p1 := player.New(uuid.New())
	require.NoError(t, w.AddPlayer(p1, &recordingSink{}))

	p2 := player.New(uuid.New())
	sink2 := &recordingSink{}
	require.NoError(t, w.AddPlayer(p2, sink2))

	// AddPlayer(p2) already fanned a NotifyJoin for p2 into p1's queue.
	join := (<-p1.Outbound).(player.NotifyJoin)
	require.Equal(t, p2.ID(), join.ID)

	w.RemovePlayer(p2.ID())

	leave := (<-p1.Outbound).(player.NotifyLeave)
	require.Equal(t, p2.ID(), leave.ID)

	next, err := w.ids.Pop()
	require.NoError(t, err)
	require.Equal(t, p2.ID(), next)
}

func TestSetBlockAppliesAndFansOut(t *testing.T) {
	w := smallWorld(t)
	p := player.New(uuid.New())
	require.NoError(t, w.AddPlayer(p, &recordingSink{}))

	pos := proto.Vector3U16{X: 1, Y: 0, Z: 1}
	ok := w.SetBlock(pos, 42, p.ID())
	require.True(t, ok)

	block, present := w.data.Level.Get(1, 0, 1)
	require.True(t, present)
	require.Equal(t, byte(42), block)

	cmd := <-p.Outbound
	set, ok := cmd.(player.SetBlockCmd)
	require.True(t, ok)
	require.Equal(t, uint8(42), set.Block)
}

func TestCollectGarbageEvictsDroppedPlayers(t *testing.T) {
	w := smallWorld(t)
	p1 := player.New(uuid.New())
	require.NoError(t, w.AddPlayer(p1, &recordingSink{}))

	p2 := player.New(uuid.New())
	require.NoError(t, w.AddPlayer(p2, &recordingSink{}))
	drain(p1)

	p2.MarkDropped()
	w.CollectGarbage()

	require.True(t, w.roster[p1.ID()] != nil)
	_, stillThere := w.roster[p2.ID()]
	require.False(t, stillThere)
}

// drain empties a player's outbound queue in the background so fan-out
// sends in other tests don't block on it.
func drain(p *player.Player) {
	go func() {
		for range p.Outbound {
		}
	}()
}
