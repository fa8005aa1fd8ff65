package orchestrator

import (
	"github.com/hbit/hbit-server/internal/command"
	"github.com/hbit/hbit-server/internal/conn"
	"github.com/hbit/hbit-server/internal/config"
	"github.com/hbit/hbit-server/internal/player"
)

// The methods in this file satisfy both command.ServerHandle and
// conn.ServerHandle, making *Server the single concrete type the rest
// of the module programs against through those narrower interfaces.
var (
	_ command.ServerHandle = (*Server)(nil)
	_ conn.ServerHandle    = (*Server)(nil)
)

func (s *Server) WorldNames() []string {
	s.worldsMu.Lock()
	defer s.worldsMu.Unlock()
	names := make([]string, 0, len(s.worlds))
	for name := range s.worlds {
		names = append(names, name)
	}
	return names
}

// SaveWorld encodes the named world and writes it to disk, backing up
// any existing file to name.hbit~ first, per §6.
func (s *Server) SaveWorld(name string) error {
	s.worldsMu.Lock()
	entry, ok := s.worlds[name]
	s.worldsMu.Unlock()
	if !ok {
		return errUnknownWorld(name)
	}
	return saveWorldFile(entry)
}

func (s *Server) PlayerNames() []string {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	names := make([]string, 0, len(s.players))
	for name, h := range s.players {
		if !h.AnyDropped() {
			names = append(names, name)
		}
	}
	return names
}

func (s *Server) LookupPlayer(username string) (*player.Handle, bool) {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	h, ok := s.players[username]
	if !ok || h.AnyDropped() {
		return nil, false
	}
	return h, true
}

func (s *Server) IsOperator(username string) bool {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	return s.cfg.IsOperator(username)
}

// SetOperator mutates config.operators and, if the target is online,
// sends it an UpdateUser. It reports false (and leaves config
// untouched) when the target is not currently connected.
func (s *Server) SetOperator(username string, operator bool) bool {
	h, ok := s.LookupPlayer(username)
	if !ok {
		return false
	}

	s.configMu.Lock()
	s.cfg.Operators[username] = operator
	s.configMu.Unlock()

	h.Send(player.SetOperatorCmd{Operator: operator})
	return true
}

func (s *Server) Ban(username, reason string) bool {
	s.configMu.Lock()
	s.cfg.BannedUsers[username] = reason
	s.configMu.Unlock()

	if h, ok := s.LookupPlayer(username); ok {
		h.Send(player.Disconnect{Reason: "Banned: " + reason})
	}
	return true
}

func (s *Server) Unban(username string) bool {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	delete(s.cfg.BannedUsers, username)
	return true
}

func (s *Server) Kick(username, reason string) bool {
	h, ok := s.LookupPlayer(username)
	if !ok {
		return false
	}
	h.Send(player.Disconnect{Reason: "Kicked: " + reason})
	return true
}

// Stop enqueues a Stop command. It blocks only while the command queue
// is full, and returns at once if the server has already stopped.
func (s *Server) Stop() {
	select {
	case s.commands <- Stop{}:
	case <-s.stopped:
	}
}

func (s *Server) Config() *config.Config {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	cfg := *s.cfg
	return &cfg
}

func (s *Server) DefaultWorldName() string {
	return s.snapshotConfig().DefaultWorld
}

func (s *Server) LookupWorld(name string) (conn.WorldHandle, bool) {
	s.worldsMu.Lock()
	defer s.worldsMu.Unlock()
	entry, ok := s.worlds[name]
	if !ok {
		return nil, false
	}
	return entry.w, true
}

func (s *Server) ClaimUsername(username string, h *player.Handle) bool {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	if existing, ok := s.players[username]; ok && !existing.AnyDropped() {
		return false
	}
	s.players[username] = h
	return true
}

func (s *Server) ReleaseUsername(username string) {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	delete(s.players, username)
}

func (s *Server) PlayerCount() int {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	n := 0
	for _, h := range s.players {
		if !h.AnyDropped() {
			n++
		}
	}
	return n
}

// Broadcast enqueues a chat line onto the command loop, matching every
// other chat-originating path through the same FIFO.
func (s *Server) Broadcast(text string) {
	select {
	case s.commands <- SendChatMessage{Text: text}:
	case <-s.stopped:
	}
}

func (s *Server) SaltSnapshot() []string {
	return s.salts.Snapshot()
}

type unknownWorldError string

func (e unknownWorldError) Error() string { return "orchestrator: unknown world " + string(e) }

func errUnknownWorld(name string) error { return unknownWorldError(name) }
