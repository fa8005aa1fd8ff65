// Package world implements per-level authority: the voxel grid, the
// player roster for that level, and the level-transfer stream a newly
// joining player receives.
package world

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hbit/hbit-server/internal/leveldata"
	"github.com/hbit/hbit-server/internal/levelfile"
	"github.com/hbit/hbit-server/internal/player"
	"github.com/hbit/hbit-server/internal/proto"
)

// chunkSize is the payload size of one LevelDataChunk packet.
const chunkSize = 1024

// World is the authority for one level: its block grid, its spawn
// point, and the set of players currently in it.
//
// The roster uses a synchronous critical-section lock (rosterMu): every
// holder does in-memory work only, so a plain Mutex is the right tool.
// The level data uses a lock held across blocking I/O during transfer,
// so dataMu is acquired for the whole of AddPlayer's streaming phase
// rather than released between steps.
type World struct {
	Name string

	log *slog.Logger

	dataMu sync.Mutex
	data   *levelfile.WorldData

	rosterMu sync.Mutex
	roster   map[int8]*player.Handle
	ids      *IDPool
}

// New creates a World named name, owning data.
func New(name string, data *levelfile.WorldData, log *slog.Logger) *World {
	return &World{
		Name:   name,
		log:    log,
		data:   data,
		roster: make(map[int8]*player.Handle),
		ids:    NewIDPool(),
	}
}

// IsFull reports whether every id in the world's 256-slot range is
// currently assigned.
func (w *World) IsFull() bool {
	w.rosterMu.Lock()
	defer w.rosterMu.Unlock()
	return w.ids.IsFull()
}

// Dimensions returns the level's block-space size.
func (w *World) Dimensions() leveldata.Dimensions {
	w.dataMu.Lock()
	defer w.dataMu.Unlock()
	return w.data.Level.Dims
}

// EncodeSnapshot serializes the current level in the native format
// under the data lock, so a concurrent SetBlock can never race a save
// and produce a torn file.
func (w *World) EncodeSnapshot() ([]byte, error) {
	w.dataMu.Lock()
	defer w.dataMu.Unlock()
	var buf bytes.Buffer
	if err := levelfile.Save(&buf, w.data); err != nil {
		return nil, fmt.Errorf("world %q: encoding snapshot: %w", w.Name, err)
	}
	return buf.Bytes(), nil
}

// AddPlayer streams the level to newcomer over sink, holding the
// world-data lock for the whole transfer, then registers the player in
// the roster, sends newcomer a TeleportPlayer to the spawn point, and
// exchanges SpawnPlayer packets with everyone already present.
func (w *World) AddPlayer(newcomer *player.Player, sink player.PacketSink) error {
	w.CollectGarbage()

	w.dataMu.Lock()
	defer w.dataMu.Unlock()

	dims := w.data.Level.Dims
	raw := w.data.Level.Raw
	if len(raw) != dims.Volume() {
		_ = sink.SendPacket(proto.Disconnect("Level data is corrupt"))
		return fmt.Errorf("world %q: level data length %d does not match volume %d", w.Name, len(raw), dims.Volume())
	}

	if err := sink.SendPacket(proto.LevelInit()); err != nil {
		return err
	}
	if err := w.streamLevel(raw, sink); err != nil {
		return err
	}
	if err := sink.SendPacket(proto.LevelFinalize(proto.Vector3U16{
		X: proto.U16(dims.X), Y: proto.U16(dims.Y), Z: proto.U16(dims.Z),
	})); err != nil {
		return err
	}

	w.rosterMu.Lock()
	id, err := w.ids.Pop()
	if err != nil {
		w.rosterMu.Unlock()
		_ = sink.SendPacket(proto.Disconnect("Server is full"))
		return err
	}
	newcomer.SetID(id)
	newHandle := newcomer.Handle()
	w.roster[id] = newHandle

	others := make([]*player.Handle, 0, len(w.roster)-1)
	for otherID, h := range w.roster {
		if otherID != id {
			others = append(others, h)
		}
	}
	w.rosterMu.Unlock()

	spawn := w.data.SpawnPoint
	newcomer.Location.Store(spawn)
	if err := sink.SendPacket(proto.TeleportPlayer(id, spawn)); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, other := range others {
		wg.Add(1)
		go func(other *player.Handle) {
			defer wg.Done()
			if other.AnyDropped() {
				return
			}
			other.Send(player.NotifyJoin{ID: id, Location: newHandle.Location.Load(), Name: newHandle.Username})
		}(other)
	}
	wg.Wait()

	for _, other := range others {
		if other.AnyDropped() {
			continue
		}
		newHandle.Send(player.NotifyJoin{ID: other.ID, Location: other.Location.Load(), Name: other.Username})
	}

	w.log.Info("player joined world", "world", w.Name, "id", id, "username", newHandle.Username)
	return nil
}

// streamLevel writes dims-aware payload: a u32 big-endian length
// followed by the gzip-compressed raw block array, chunked into
// 1024-byte LevelDataChunk payloads with a truncated percent-complete.
func (w *World) streamLevel(raw []byte, sink player.PacketSink) error {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("world %q: compressing level: %w", w.Name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("world %q: compressing level: %w", w.Name, err)
	}

	var stream bytes.Buffer
	if err := binary.Write(&stream, binary.BigEndian, uint32(gz.Len())); err != nil {
		return err
	}
	stream.Write(gz.Bytes())

	payload := stream.Bytes()
	total := len(payload)
	if total == 0 {
		return nil
	}

	var sent int
	for sent < total {
		end := sent + chunkSize
		if end > total {
			end = total
		}
		var chunk proto.ChunkPayload
		n := copy(chunk[:], payload[sent:end])
		sent = end

		percent := uint8(sent * 100 / total)
		if err := sink.SendPacket(proto.LevelDataChunk(chunk, uint16(n), percent)); err != nil {
			return err
		}
	}
	return nil
}

// RemovePlayer returns id to the pool, removes it from the roster, and
// fans out DespawnPlayer to everyone left.
func (w *World) RemovePlayer(id int8) {
	w.rosterMu.Lock()
	delete(w.roster, id)
	w.ids.Push(id)
	remaining := w.snapshotRoster()
	w.rosterMu.Unlock()

	fanOut(remaining, player.NotifyLeave{ID: id})
	w.CollectGarbage()
}

// SetBlock attempts a non-blocking acquire of the data lock; on
// contention it returns false so the caller (the block-queue task) can
// retry after a short sleep. On success it mutates the voxel grid and
// fans SetBlockOut out to the roster.
func (w *World) SetBlock(pos proto.Vector3U16, block uint8, by int8) bool {
	if !w.dataMu.TryLock() {
		return false
	}
	w.data.Level.Set(uint16(pos.X), uint16(pos.Y), uint16(pos.Z), block)
	w.dataMu.Unlock()

	w.rosterMu.Lock()
	recipients := w.snapshotRoster()
	w.rosterMu.Unlock()

	fanOut(recipients, player.SetBlockCmd{Position: pos, Block: block})
	return true
}

// MovePlayer fans TeleportPlayer out to the roster.
func (w *World) MovePlayer(id int8, loc proto.Location) {
	w.rosterMu.Lock()
	recipients := w.snapshotRoster()
	w.rosterMu.Unlock()

	fanOut(recipients, player.NotifyMove{ID: id, Location: loc})
}

// CollectGarbage evicts roster entries whose handle reports any dropped
// cell, firing a DespawnPlayer for each.
func (w *World) CollectGarbage() {
	w.rosterMu.Lock()
	var evicted []int8
	for id, h := range w.roster {
		if h.AnyDropped() {
			evicted = append(evicted, id)
			delete(w.roster, id)
			w.ids.Push(id)
		}
	}
	remaining := w.snapshotRoster()
	w.rosterMu.Unlock()

	for _, id := range evicted {
		fanOut(remaining, player.NotifyLeave{ID: id})
	}
}

// snapshotRoster must be called with rosterMu held.
func (w *World) snapshotRoster() []*player.Handle {
	out := make([]*player.Handle, 0, len(w.roster))
	for _, h := range w.roster {
		out = append(out, h)
	}
	return out
}

// fanOut spawns one goroutine per recipient so a single slow peer can
// never stall delivery to the rest of the roster.
func fanOut(recipients []*player.Handle, cmd player.Command) {
	var wg sync.WaitGroup
	for _, h := range recipients {
		if h.AnyDropped() {
			continue
		}
		wg.Add(1)
		go func(h *player.Handle) {
			defer wg.Done()
			h.Send(cmd)
		}(h)
	}
	wg.Wait()
}
