// Package conn implements the per-connection reader/writer/heartbeat/
// block-queue tasks described in §4.5: the state machine that carries a
// raw TCP connection from handshake through gameplay to teardown.
package conn

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hbit/hbit-server/internal/command"
	"github.com/hbit/hbit-server/internal/player"
	"github.com/hbit/hbit-server/internal/proto"
	"github.com/hbit/hbit-server/internal/protoerr"
)

// worldRef pairs a world name with the handle used to act on it, stored
// behind an atomic pointer so the reader goroutine (SetLocation) and the
// command-loop goroutine (transfers, teardown) can both touch it without
// a mutex.
type worldRef struct {
	name string
	w    WorldHandle
}

// Connection drives one client's lifecycle: handshake, CPE negotiation,
// join, steady-state packet routing, and teardown. Exactly one
// goroutine (the command loop, started by Run) ever writes to the
// underlying net.Conn, so packet framing is never interleaved.
type Connection struct {
	netConn net.Conn
	server  ServerHandle
	log     *slog.Logger

	player *player.Player

	world    atomic.Pointer[worldRef]
	msgBuf   strings.Builder // touched only by the reader goroutine
}

// New wraps an accepted TCP connection, ready to Run.
func New(netConn net.Conn, server ServerHandle, log *slog.Logger) *Connection {
	return &Connection{
		netConn: netConn,
		server:  server,
		log:     log,
		player:  player.New(uuid.New()),
	}
}

// SendPacket implements player.PacketSink: it encodes pkt directly to
// the socket, bounded by the configured packet timeout. During the
// handshake Run's own goroutine calls it; once the command loop has
// started, only the command-loop goroutine (and, transitively,
// World.AddPlayer's transfer stream running on that same goroutine)
// calls it.
func (c *Connection) SendPacket(pkt *proto.Packet) error {
	if timeout := c.server.Config().PacketTimeout; timeout > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return pkt.Encode(c.netConn)
}

// Run drives the connection to completion. It blocks until the
// connection is torn down, either by protocol error, a server-issued
// Disconnect, or an underlying I/O failure. Intended to be the body of
// the goroutine the orchestrator spawns per accepted connection.
func (c *Connection) Run() {
	defer func() {
		c.player.MarkDropped()
		_ = c.netConn.Close()
	}()

	ident, err := c.awaitIdent()
	if err != nil {
		c.log.Debug("handshake failed", "error", err)
		return
	}

	exts := player.Extensions{}
	if ident.IsCPE() {
		exts, err = c.cpeNegotiate()
		if err != nil {
			c.log.Debug("cpe negotiation failed", "error", err)
			return
		}
	}
	c.player.SetSupportedExtensions(exts)

	if !c.authenticate(string(ident.Username), string(ident.Key)) {
		_ = c.SendPacket(proto.Disconnect("Failed to connect: Unauthorized"))
		return
	}

	go c.writeLoop()
	go c.heartbeatLoop()
	go c.blockQueueLoop()

	select {
	case c.player.Outbound <- player.Initialize{Username: string(ident.Username)}:
	case <-c.player.Done():
		return
	}

	c.readLoop()
}

func (c *Connection) awaitIdent() (proto.PlayerIdentification, error) {
	pkt, err := proto.DecodePacket(c.netConn)
	if err != nil {
		return proto.PlayerIdentification{}, err
	}
	ident, ok := pkt.(proto.PlayerIdentification)
	if !ok {
		return proto.PlayerIdentification{}, fmt.Errorf("conn: expected PlayerIdentification, got %T", pkt)
	}
	if byte(ident.Version) != proto.ProtocolVersion {
		_ = c.SendPacket(proto.Disconnect(fmt.Sprintf("Failed to connect: Incorrect protocol version %d", ident.Version)))
		return proto.PlayerIdentification{}, fmt.Errorf("conn: unsupported protocol version %d", ident.Version)
	}
	return ident, nil
}

func (c *Connection) cpeNegotiate() (player.Extensions, error) {
	offered := player.Offered()
	entries := make([]proto.ExtEntryOut, 0, len(offered))
	for _, o := range offered {
		entries = append(entries, proto.ExtEntryOut{Name: o.Name, Version: uint32(o.Version)})
	}
	if err := c.SendPacket(proto.ExtInfoOut(c.server.Config().Name, entries)); err != nil {
		return player.Extensions{}, err
	}

	pkt, err := proto.DecodePacket(c.netConn)
	if err != nil {
		return player.Extensions{}, err
	}
	info, ok := pkt.(proto.ExtInfoIn)
	if !ok {
		return player.Extensions{}, fmt.Errorf("conn: expected ExtInfo during negotiation, got %T", pkt)
	}

	clientExts := make(map[string]int, len(info.Entries))
	for _, e := range info.Entries {
		clientExts[string(e.Name)] = int(e.Version)
	}
	return player.Negotiate(clientExts), nil
}

// authenticate accepts unconditionally when the server runs without
// verification (kept_salts == 0); otherwise it accepts a key matching
// md5(salt||username) for any currently retained salt.
func (c *Connection) authenticate(username, key string) bool {
	cfg := c.server.Config()
	if cfg.KeptSalts <= 0 {
		return true
	}
	for _, salt := range c.server.SaltSnapshot() {
		sum := md5.Sum([]byte(salt + username))
		if hex.EncodeToString(sum[:]) == key {
			return true
		}
	}
	return false
}

// readLoop is the Ready-state packet dispatcher. It runs on the same
// goroutine that executed the handshake, after the writer/heartbeat/
// block-queue tasks have been spawned.
func (c *Connection) readLoop() {
	for {
		pkt, err := proto.DecodePacket(c.netConn)
		if err != nil {
			if errors.Is(err, protoerr.ErrShortRead) || errors.Is(err, protoerr.ErrBadDiscriminator) || errors.Is(err, protoerr.ErrBadString) {
				c.requestDisconnect("Connection died: " + err.Error())
			} else {
				c.requestDisconnect("Connection lost")
			}
			return
		}

		switch v := pkt.(type) {
		case proto.SetBlockIn:
			edit := player.BlockEdit{Position: v.Position, Block: byte(v.DecodedBlock())}
			select {
			case c.player.BlockQueue <- edit:
			case <-c.player.Done():
				return
			}

		case proto.SetLocationIn:
			c.player.Location.Store(v.Location)
			if w := c.currentWorld(); w != nil {
				w.MovePlayer(c.player.ID(), v.Location)
			}

		case proto.MessageIn:
			c.handleChatFragment(v)

		case proto.ExtInfoIn:
			c.requestDisconnect("Unexpected ExtInfo")
			return

		default:
			c.requestDisconnect("Protocol error")
			return
		}
	}
}

func (c *Connection) handleChatFragment(m proto.MessageIn) {
	cfg := c.server.Config()
	text := m.Text()

	room := cfg.MaxMessageLength - c.msgBuf.Len()
	if room > 0 {
		if len(text) > room {
			text = text[:room]
		}
		c.msgBuf.WriteString(text)
	}

	if m.IsContinuation() {
		return
	}

	full := c.msgBuf.String()
	c.msgBuf.Reset()
	if full == "" {
		return
	}

	if strings.HasPrefix(full, "/") {
		command.Interpret(c.server, c.player.Handle(), full)
		return
	}

	c.server.Broadcast(fmt.Sprintf("%s: %s", c.player.Username(), full))
}

func (c *Connection) requestDisconnect(reason string) {
	select {
	case c.player.Outbound <- player.Disconnect{Reason: reason}:
	case <-c.player.Done():
	}
}

// heartbeatLoop is the connection's ping task (§4.5): every PingSpacing
// it enqueues a PingCmd for the writer to encode. The enqueue itself is
// bounded by PacketTimeout, since a wedged writer (a stalled client that
// never drains Outbound) would otherwise leave this goroutine blocked
// forever instead of detecting the dead connection.
func (c *Connection) heartbeatLoop() {
	spacing := c.server.Config().PingSpacing
	ticker := time.NewTicker(spacing)
	defer ticker.Stop()

	for {
		select {
		case <-c.player.Done():
			return
		case <-ticker.C:
			select {
			case c.player.Outbound <- player.PingCmd{}:
			case <-time.After(c.server.Config().PacketTimeout):
				c.requestDisconnect("Timed out")
				return
			case <-c.player.Done():
				return
			}
		}
	}
}

// blockQueueLoop is the connection's block-queue task (§4.5): it drains
// BlockEdits the reader enqueued and applies each one against the
// player's current world. World.SetBlock uses a non-blocking TryLock
// and reports contention by returning false; per §9 ("Blocking
// primitives inside async") the retry sleeps 10ms rather than parking
// on the lock, so this goroutine never blocks the reader that feeds it.
func (c *Connection) blockQueueLoop() {
	for {
		select {
		case <-c.player.Done():
			return
		case edit, ok := <-c.player.BlockQueue:
			if !ok {
				return
			}
			c.applyBlockEdit(edit)
		}
	}
}

func (c *Connection) applyBlockEdit(edit player.BlockEdit) {
	for {
		w := c.currentWorld()
		if w == nil {
			return
		}
		if w.SetBlock(edit.Position, edit.Block, c.player.ID()) {
			return
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-c.player.Done():
			return
		}
	}
}

func (c *Connection) currentWorld() WorldHandle {
	if ref := c.world.Load(); ref != nil {
		return ref.w
	}
	return nil
}

func (c *Connection) setCurrentWorld(name string, w WorldHandle) {
	c.world.Store(&worldRef{name: name, w: w})
	c.player.SetWorldName(name)
}

// writeLoop is the connection's sole command-loop/writer task: it
// drains the outbound command queue and either encodes directly or
// drives a level transfer, which itself encodes directly on this same
// goroutine.
func (c *Connection) writeLoop() {
	for {
		select {
		case cmd, ok := <-c.player.Outbound:
			if !ok {
				return
			}
			if !c.handleCommand(cmd) {
				return
			}
		case <-c.player.Done():
			return
		}
	}
}

func (c *Connection) handleCommand(cmd player.Command) bool {
	switch v := cmd.(type) {
	case player.Initialize:
		return c.handleInitialize(v.Username)

	case player.Disconnect:
		_ = c.SendPacket(proto.Disconnect(v.Reason))
		c.teardown()
		return false

	case player.SendTo:
		c.transferTo(v.World)

	case player.SetBlockCmd:
		_ = c.SendPacket(proto.SetBlockOut(v.Position, v.Block))

	case player.SetLocationCmd:
		_ = c.SendPacket(proto.TeleportPlayer(c.player.ID(), v.Location))

	case player.NotifyLeave:
		_ = c.SendPacket(proto.DespawnPlayer(v.ID))

	case player.NotifyMove:
		_ = c.SendPacket(proto.TeleportPlayer(v.ID, v.Location))

	case player.NotifyJoin:
		_ = c.SendPacket(proto.SpawnPlayer(v.ID, v.Name, v.Location))

	case player.MessageCmd:
		c.sendChatFragments(v.Text)

	case player.NotifyExtensions:
		c.sendExtInfo()

	case player.SetOperatorCmd:
		_ = c.SendPacket(proto.UpdateUser(v.Operator))

	case player.PingCmd:
		if err := c.SendPacket(proto.Ping()); err != nil {
			c.requestDisconnect("timed out")
		}
	}
	return true
}

func (c *Connection) sendExtInfo() {
	offered := player.Offered()
	entries := make([]proto.ExtEntryOut, 0, len(offered))
	for _, o := range offered {
		entries = append(entries, proto.ExtEntryOut{Name: o.Name, Version: uint32(o.Version)})
	}
	_ = c.SendPacket(proto.ExtInfoOut(c.server.Config().Name, entries))
}

// handleInitialize runs the post-handshake join sequence (§4.5 step 3):
// fullness/ban/whitespace checks, username claim, ServerIdentification,
// a join broadcast, and a request to transfer into the default world.
func (c *Connection) handleInitialize(username string) bool {
	cfg := c.server.Config()

	if strings.ContainsAny(username, " \t") {
		_ = c.SendPacket(proto.Disconnect("Usernames cannot contain whitespace"))
		c.teardown()
		return false
	}
	if reason, banned := cfg.BanReasonForUser(username); banned {
		_ = c.SendPacket(proto.Disconnect("Banned: " + reason))
		c.teardown()
		return false
	}
	if c.server.PlayerCount() >= cfg.MaxPlayers {
		_ = c.SendPacket(proto.Disconnect("Server is full"))
		c.teardown()
		return false
	}
	if !c.player.ClaimUsername(username) {
		_ = c.SendPacket(proto.Disconnect("Internal error: username already set"))
		c.teardown()
		return false
	}

	if err := c.SendPacket(proto.ServerIdentification(cfg.Name, cfg.MOTD, cfg.IsOperator(username))); err != nil {
		c.teardown()
		return false
	}

	if !c.server.ClaimUsername(username, c.player.Handle()) {
		_ = c.SendPacket(proto.Disconnect("Player with same username already connected"))
		c.teardown()
		return false
	}

	c.server.Broadcast(fmt.Sprintf("&e%s joined the game", username))

	select {
	case c.player.Outbound <- player.SendTo{World: cfg.DefaultWorld}:
	case <-c.player.Done():
		return false
	}
	return true
}

func (c *Connection) transferTo(name string) {
	wh, ok := c.server.LookupWorld(name)
	if !ok {
		return
	}
	if old := c.currentWorld(); old != nil {
		old.RemovePlayer(c.player.ID())
	}
	if err := wh.AddPlayer(c.player, c); err != nil {
		c.log.Warn("level transfer failed", "world", name, "error", err)
		c.requestDisconnect("Level transfer failed")
		return
	}
	c.setCurrentWorld(name, wh)
}

// teardown runs the connection's one-time cleanup: leave the current
// world, release the claimed username, broadcast a leave line, and
// release every Handle waiting on this player.
func (c *Connection) teardown() {
	if w := c.currentWorld(); w != nil {
		w.RemovePlayer(c.player.ID())
	}
	if username := c.player.Username(); username != "" {
		c.server.ReleaseUsername(username)
		c.server.Broadcast(fmt.Sprintf("&e%s left the game", username))
	}
	c.player.Disconnect()
	c.player.MarkDropped()
	_ = c.netConn.Close()
}

// sendChatFragments splits text per the negotiated LongerMessages
// extension and encodes each fragment as its own MessageOut, with the
// packet's id byte repurposed as a continuation flag: 1 for every
// non-final fragment, 0 for the final (or only) one.
func (c *Connection) sendChatFragments(text string) {
	exts := c.player.SupportedExtensions()
	fragments := splitChatFragments(text, exts.LongerMessages)

	for i, frag := range fragments {
		isFinal := i == len(fragments)-1
		payload := encodeChatFragment(frag, exts)
		id := int8(1)
		if isFinal {
			id = 0
		}
		if err := c.SendPacket(proto.MessageOut(id, payload)); err != nil {
			return
		}
	}
}

// splitChatFragments breaks text into 64-character pieces. Without
// LongerMessages only the first piece is ever sent, per §4.5.
func splitChatFragments(text string, longer bool) []string {
	runes := []rune(text)
	if !longer {
		if len(runes) > proto.StringLen {
			runes = runes[:proto.StringLen]
		}
		return []string{string(runes)}
	}

	var frags []string
	for len(runes) > 0 {
		n := proto.StringLen
		if n > len(runes) {
			n = len(runes)
		}
		frags = append(frags, string(runes[:n]))
		runes = runes[n:]
	}
	if len(frags) == 0 {
		frags = append(frags, "")
	}
	return frags
}

// encodeChatFragment CP437-encodes frag into a fixed 64-byte payload,
// applying the negotiated extension set's character fallback first.
func encodeChatFragment(frag string, exts player.Extensions) [proto.StringLen]byte {
	var payload [proto.StringLen]byte
	for i := range payload {
		payload[i] = ' '
	}
	enc := proto.EncodeCP437(filterChatRunes(frag, exts))
	copy(payload[:], enc)
	return payload
}

// filterChatRunes replaces characters the negotiated extension set
// cannot display with '?', per the encoding-failure policy in §4.5:
// FullCP437 allows the whole code page; EmoteFix additionally allows
// ASCII control characters through (but still replaces non-ASCII);
// with neither, both non-ASCII and ASCII controls are replaced.
func filterChatRunes(text string, exts player.Extensions) string {
	if exts.FullCP437 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r > 127:
			b.WriteByte('?')
		case r < 32 && !exts.EmoteFix:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
