package command

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hbit/hbit-server/internal/player"
)

type fakeServer struct {
	worlds    []string
	players   map[string]*player.Handle
	operators map[string]bool
	banned    map[string]string
	kicked    map[string]string
	saved     []string
	saveErr   error
	stopped   bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		players:   map[string]*player.Handle{},
		operators: map[string]bool{},
		banned:    map[string]string{},
		kicked:    map[string]string{},
	}
}

func (f *fakeServer) WorldNames() []string { return f.worlds }

func (f *fakeServer) SaveWorld(name string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, name)
	return nil
}

func (f *fakeServer) PlayerNames() []string {
	names := make([]string, 0, len(f.players))
	for n := range f.players {
		names = append(names, n)
	}
	return names
}

func (f *fakeServer) LookupPlayer(username string) (*player.Handle, bool) {
	h, ok := f.players[username]
	return h, ok
}

func (f *fakeServer) IsOperator(username string) bool { return f.operators[username] }

func (f *fakeServer) SetOperator(username string, operator bool) bool {
	if _, ok := f.players[username]; !ok {
		return false
	}
	f.operators[username] = operator
	return true
}

func (f *fakeServer) Ban(username, reason string) bool {
	f.banned[username] = reason
	return true
}

func (f *fakeServer) Unban(username string) bool {
	delete(f.banned, username)
	return true
}

func (f *fakeServer) Kick(username, reason string) bool {
	if _, ok := f.players[username]; !ok {
		return false
	}
	f.kicked[username] = reason
	return true
}

func (f *fakeServer) Stop() { f.stopped = true }

func newCaller(t *testing.T) *player.Handle {
	t.Helper()
	p := player.New(uuid.New())
	p.ClaimUsername("alice")
	return p.Handle()
}

func TestWorldJoinSendsSendToRegardlessOfExistence(t *testing.T) {
	srv := newFakeServer()
	p := player.New(uuid.New())
	p.ClaimUsername("alice")

	Interpret(srv, p.Handle(), "/world join nowhere")

	cmd := <-p.Outbound
	sendTo, ok := cmd.(player.SendTo)
	require.True(t, ok)
	require.Equal(t, "nowhere", sendTo.World)
}

func TestWorldSaveRequiresOperator(t *testing.T) {
	srv := newFakeServer()
	caller := newCaller(t)

	Interpret(srv, caller, "/world save")

	require.Empty(t, srv.saved)
}

func TestWorldSaveSavesCurrentWorld(t *testing.T) {
	srv := newFakeServer()
	p := player.New(uuid.New())
	p.ClaimUsername("alice")
	p.SetWorldName("main")
	srv.operators["alice"] = true

	Interpret(srv, p.Handle(), "/world save")

	require.Equal(t, []string{"main"}, srv.saved)
}

func TestBanRequiresOperator(t *testing.T) {
	srv := newFakeServer()
	caller := newCaller(t)

	Interpret(srv, caller, "/ban bob griefing")

	require.Empty(t, srv.banned)
}

func TestBanAsOperator(t *testing.T) {
	srv := newFakeServer()
	srv.operators["alice"] = true
	caller := newCaller(t)

	Interpret(srv, caller, "/ban bob griefing the spawn")

	require.Equal(t, "griefing the spawn", srv.banned["bob"])
}

func TestKickUnknownPlayerReportsFailure(t *testing.T) {
	srv := newFakeServer()
	srv.operators["alice"] = true
	p := player.New(uuid.New())
	p.ClaimUsername("alice")

	Interpret(srv, p.Handle(), "/kick ghost")

	require.Empty(t, srv.kicked)
	msg, ok := (<-p.Outbound).(player.MessageCmd)
	require.True(t, ok)
	require.Equal(t, "No such player: ghost", msg.Text)
}

func TestStopRequiresOperator(t *testing.T) {
	srv := newFakeServer()
	caller := newCaller(t)

	Interpret(srv, caller, "/stop")

	require.False(t, srv.stopped)
}

func TestWorldSaveErrorIsReported(t *testing.T) {
	srv := newFakeServer()
	srv.saveErr = errors.New("disk full")
	p := player.New(uuid.New())
	p.ClaimUsername("alice")
	p.SetWorldName("main")
	srv.operators["alice"] = true

	Interpret(srv, p.Handle(), "/world save")

	require.Empty(t, srv.saved)
	msg, ok := (<-p.Outbound).(player.MessageCmd)
	require.True(t, ok)
	require.Equal(t, "Save failed: disk full", msg.Text)
}
