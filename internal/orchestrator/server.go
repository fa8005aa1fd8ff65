// Package orchestrator owns the running server: the world registry,
// the connected-player roster, the accept loop, the command loop, and
// the heartbeat loop described in §4.6. It is the single concrete type
// implementing both conn.ServerHandle and command.ServerHandle, so it
// is the only package that imports conn, command, world, player, proto,
// config, salt, and heartbeat all at once.
package orchestrator

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hbit/hbit-server/internal/conn"
	"github.com/hbit/hbit-server/internal/config"
	"github.com/hbit/hbit-server/internal/player"
	"github.com/hbit/hbit-server/internal/proto"
	"github.com/hbit/hbit-server/internal/salt"
	"github.com/hbit/hbit-server/internal/world"
)

// ServerCommand is one item on the command loop's queue (§4.6).
type ServerCommand interface {
	isServerCommand()
}

// SendChatMessage asks the command loop to fan a server-authored chat
// line out to every connected player.
type SendChatMessage struct{ Text string }

func (SendChatMessage) isServerCommand() {}

// Stop asks the command loop to disconnect everyone and shut down.
type Stop struct{}

func (Stop) isServerCommand() {}

// commandQueueCapacity matches the bounded-queue guidance in §5.
const commandQueueCapacity = 100

// Server is the running orchestrator: config, the world registry, the
// connected-player roster, and the command/heartbeat/accept loops.
type Server struct {
	log *slog.Logger

	// configMu guards cfg: the command interpreter is the only mutator,
	// and only ever under this lock; everyone else snapshots fields.
	configMu sync.Mutex
	cfg      *config.Config

	worldsMu sync.Mutex
	worlds   map[string]*worldEntry

	playersMu sync.Mutex
	players   map[string]*player.Handle

	salts *salt.Ring
	url   atomic.Pointer[string]

	commands chan ServerCommand
	stopOnce sync.Once
	stopped  chan struct{}
	listener atomic.Pointer[net.Listener]

	heartbeat *heartbeatClient
}

type worldEntry struct {
	w    *world.World
	path string
}

// New builds a Server around cfg and an already-loaded world registry
// (name -> world, plus the file path each was loaded from, so SaveWorld
// can round-trip it). The default world named by cfg.DefaultWorld must
// be present.
func New(cfg *config.Config, worlds map[string]*world.World, paths map[string]string, log *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, ok := worlds[cfg.DefaultWorld]; !ok {
		return nil, fmt.Errorf("orchestrator: default world %q does not exist", cfg.DefaultWorld)
	}

	entries := make(map[string]*worldEntry, len(worlds))
	for name, w := range worlds {
		entries[name] = &worldEntry{w: w, path: paths[name]}
	}

	return &Server{
		log:       log,
		cfg:       cfg,
		worlds:    entries,
		players:   make(map[string]*player.Handle),
		salts:     salt.NewRing(cfg.KeptSalts),
		commands:  make(chan ServerCommand, commandQueueCapacity),
		stopped:   make(chan struct{}),
		heartbeat: newHeartbeatClient(),
	}, nil
}

// Run binds the listener and blocks running the accept, command, and
// (if configured) heartbeat loops until Stop is called.
func (s *Server) Run(port uint16) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("orchestrator: listen on port %d: %w", port, err)
	}
	defer listener.Close()
	s.listener.Store(&listener)
	s.log.Info("listening", "port", port)

	go s.runCommandLoop()

	if s.snapshotConfig().HeartbeatURL != "" {
		go s.runHeartbeatLoop()
	}

	return s.runAcceptLoop(listener)
}

func (s *Server) snapshotConfig() config.Config {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	return *s.cfg
}

func (s *Server) runAcceptLoop(listener net.Listener) error {
	for {
		s.collectGarbage()

		netConn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				return nil
			default:
				s.log.Warn("accept failed", "error", err)
				continue
			}
		}

		go s.acceptConnection(netConn)
	}
}

func (s *Server) acceptConnection(netConn net.Conn) {
	cfg := s.snapshotConfig()

	host, _, _ := net.SplitHostPort(netConn.RemoteAddr().String())
	if reason, banned := cfg.BanReasonForIP(host); banned {
		s.log.Info("banned IP attempted to join", "ip", host)
		if cfg.PacketTimeout > 0 {
			_ = netConn.SetWriteDeadline(time.Now().Add(cfg.PacketTimeout))
		}
		_ = proto.Disconnect("Banned: " + reason).Encode(netConn)
		_ = netConn.Close()
		return
	}

	c := conn.New(netConn, s, s.log.With("addr", netConn.RemoteAddr().String()))
	c.Run()
}

// collectGarbage evicts dropped entries from the connected-players
// roster; called on every accept, per §4.8.
func (s *Server) collectGarbage() {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	for name, h := range s.players {
		if h.AnyDropped() {
			delete(s.players, name)
		}
	}
}

func (s *Server) runCommandLoop() {
	for cmd := range s.commands {
		switch v := cmd.(type) {
		case SendChatMessage:
			s.handleSendChatMessage(v.Text)
		case Stop:
			s.handleStop()
			return
		}
	}
}

func (s *Server) handleSendChatMessage(text string) {
	text = trimTrailingAmpersand(text)
	s.log.Info("chat", "text", text)

	s.playersMu.Lock()
	recipients := make([]*player.Handle, 0, len(s.players))
	for _, h := range s.players {
		recipients = append(recipients, h)
	}
	s.playersMu.Unlock()

	var wg sync.WaitGroup
	for _, h := range recipients {
		if h.AnyDropped() {
			continue
		}
		wg.Add(1)
		go func(h *player.Handle) {
			defer wg.Done()
			h.Send(player.MessageCmd{Text: text})
		}(h)
	}
	wg.Wait()
}

// trimTrailingAmpersand drops a dangling colour-escape lead-in that
// would otherwise crash vanilla clients.
func trimTrailingAmpersand(text string) string {
	if len(text) > 0 && text[len(text)-1] == '&' {
		return text[:len(text)-1]
	}
	return text
}

func (s *Server) handleStop() {
	s.log.Info("stopping server")

	s.playersMu.Lock()
	recipients := make([]*player.Handle, 0, len(s.players))
	for _, h := range s.players {
		recipients = append(recipients, h)
	}
	s.playersMu.Unlock()

	var wg sync.WaitGroup
	for _, h := range recipients {
		if h.AnyDropped() {
			continue
		}
		wg.Add(1)
		go func(h *player.Handle) {
			defer wg.Done()
			h.Send(player.Disconnect{Reason: "Server closed"})
		}(h)
	}
	wg.Wait()

	s.stopOnce.Do(func() {
		close(s.stopped)
		if l := s.listener.Load(); l != nil {
			_ = (*l).Close()
		}
	})
}

// Stopped returns a channel closed once Stop has fully run, for an
// entry point to await before exiting.
func (s *Server) Stopped() <-chan struct{} { return s.stopped }
