package conn

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hbit/hbit-server/internal/config"
	"github.com/hbit/hbit-server/internal/player"
	"github.com/hbit/hbit-server/internal/proto"
)

// fakeWorld is a minimal WorldHandle that records SetBlock attempts and
// can be told to report contention for the first N calls, mirroring the
// non-blocking TryLock/retry contract World.SetBlock documents.
type fakeWorld struct {
	mu          sync.Mutex
	failCount   int
	calls       []proto.Vector3U16
	lastBlock   uint8
	lastBy      int8
}

func (w *fakeWorld) AddPlayer(p *player.Player, sink player.PacketSink) error { return nil }
func (w *fakeWorld) RemovePlayer(id int8)                                    {}
func (w *fakeWorld) MovePlayer(id int8, loc proto.Location)                  {}

func (w *fakeWorld) SetBlock(pos proto.Vector3U16, block uint8, by int8) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, pos)
	w.lastBlock, w.lastBy = block, by
	if w.failCount > 0 {
		w.failCount--
		return false
	}
	return true
}

func (w *fakeWorld) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

// fakeServer is a no-op ServerHandle, sufficient for the tests in this
// file which only need Config() to be honored.
type fakeServer struct {
	cfg *config.Config
}

func (f *fakeServer) WorldNames() []string                                { return nil }
func (f *fakeServer) SaveWorld(name string) error                         { return nil }
func (f *fakeServer) PlayerNames() []string                               { return nil }
func (f *fakeServer) LookupPlayer(string) (*player.Handle, bool)          { return nil, false }
func (f *fakeServer) IsOperator(string) bool                              { return false }
func (f *fakeServer) SetOperator(string, bool) bool                       { return false }
func (f *fakeServer) Ban(string, string) bool                             { return false }
func (f *fakeServer) Unban(string) bool                                   { return false }
func (f *fakeServer) Kick(string, string) bool                            { return false }
func (f *fakeServer) Stop()                                               {}
func (f *fakeServer) Config() *config.Config                              { return f.cfg }
func (f *fakeServer) DefaultWorldName() string                            { return f.cfg.DefaultWorld }
func (f *fakeServer) LookupWorld(string) (WorldHandle, bool)              { return nil, false }
func (f *fakeServer) ClaimUsername(string, *player.Handle) bool           { return true }
func (f *fakeServer) ReleaseUsername(string)                              {}
func (f *fakeServer) PlayerCount() int                                    { return 0 }
func (f *fakeServer) Broadcast(string)                                    {}
func (f *fakeServer) SaltSnapshot() []string                              { return nil }

func newTestConnection(cfg *config.Config) *Connection {
	c := &Connection{
		server: &fakeServer{cfg: cfg},
		player: player.New(uuid.New()),
	}
	return c
}

func TestBlockQueueLoopAppliesEdits(t *testing.T) {
	c := newTestConnection(config.Default())
	w := &fakeWorld{}
	c.setCurrentWorld("main", w)

	done := make(chan struct{})
	go func() { c.blockQueueLoop(); close(done) }()

	edit := player.BlockEdit{Position: proto.Vector3U16{X: 1, Y: 2, Z: 3}, Block: 7}
	c.player.BlockQueue <- edit

	require.Eventually(t, func() bool { return w.callCount() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, uint8(7), w.lastBlock)

	c.player.MarkDropped()
	<-done
}

func TestBlockQueueLoopRetriesOnContention(t *testing.T) {
	c := newTestConnection(config.Default())
	w := &fakeWorld{failCount: 2}
	c.setCurrentWorld("main", w)

	done := make(chan struct{})
	go func() { c.blockQueueLoop(); close(done) }()

	c.player.BlockQueue <- player.BlockEdit{Position: proto.Vector3U16{X: 4, Y: 5, Z: 6}, Block: 1}

	require.Eventually(t, func() bool { return w.callCount() == 3 }, time.Second, time.Millisecond)

	c.player.MarkDropped()
	<-done
}

func TestBlockQueueLoopExitsOnDone(t *testing.T) {
	c := newTestConnection(config.Default())
	w := &fakeWorld{}
	c.setCurrentWorld("main", w)

	done := make(chan struct{})
	go func() { c.blockQueueLoop(); close(done) }()

	c.player.MarkDropped()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blockQueueLoop did not exit after MarkDropped")
	}
}

func TestHeartbeatLoopEnqueuesPingCmd(t *testing.T) {
	cfg := config.Default()
	cfg.PingSpacing = 5 * time.Millisecond
	cfg.PacketTimeout = 200 * time.Millisecond
	c := newTestConnection(cfg)

	done := make(chan struct{})
	go func() { c.heartbeatLoop(); close(done) }()

	select {
	case cmd := <-c.player.Outbound:
		require.IsType(t, player.PingCmd{}, cmd)
	case <-time.After(time.Second):
		t.Fatal("heartbeatLoop never enqueued a PingCmd")
	}

	c.player.MarkDropped()
	<-done
}

func TestHeartbeatLoopDisconnectsOnEnqueueTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.PingSpacing = 2 * time.Millisecond
	cfg.PacketTimeout = 5 * time.Millisecond
	c := newTestConnection(cfg)

	// Fill the outbound queue so the heartbeat task's enqueue attempt
	// can never succeed, forcing it down the PacketTimeout path.
	for i := 0; i < player.OutboundQueueCapacity; i++ {
		c.player.Outbound <- player.PingCmd{}
	}

	done := make(chan struct{})
	go func() { c.heartbeatLoop(); close(done) }()

	// Only start draining once the heartbeat task has ticked and hit its
	// PacketTimeout; its Disconnect then waits for room in the queue.
	time.Sleep(50 * time.Millisecond)

	var disconnected atomic.Bool
	go func() {
		for {
			select {
			case cmd := <-c.player.Outbound:
				if _, ok := cmd.(player.Disconnect); ok {
					disconnected.Store(true)
					return
				}
			case <-c.player.Done():
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeatLoop did not return after a timed-out enqueue")
	}

	require.Eventually(t, disconnected.Load, time.Second, time.Millisecond)
}
