// Package config defines the server's configuration schema. Reading
// and writing it to disk is an external collaborator's job (see
// cmd/hbitd); this package only describes the shape and defaults.
package config

import "time"

// Config holds every tunable the orchestrator, connection state
// machine, and command interpreter consult. Durations are represented
// as floating-point seconds on the wire format (TOML); Config itself
// stores them as time.Duration for ergonomic use once loaded.
type Config struct {
	Name string `toml:"name"`
	MOTD string `toml:"motd"`
	Port uint16 `toml:"port"`

	DefaultWorld string `toml:"default_world"`

	MaxPlayers int  `toml:"max_players"`
	Public     bool `toml:"public"`

	MaxMessageLength int `toml:"max_message_length"`

	PacketTimeout time.Duration `toml:"-"`
	PacketTimeoutSeconds float64 `toml:"packet_timeout"`

	PingSpacing        time.Duration `toml:"-"`
	PingSpacingSeconds float64       `toml:"ping_spacing"`

	KeptSalts int `toml:"kept_salts"`

	HeartbeatURL            string        `toml:"heartbeat_url"`
	HeartbeatSpacing        time.Duration `toml:"-"`
	HeartbeatSpacingSeconds float64       `toml:"heartbeat_spacing"`
	HeartbeatTimeout        time.Duration `toml:"-"`
	HeartbeatTimeoutSeconds float64       `toml:"heartbeat_timeout"`

	BannedIPs   map[string]string `toml:"banned_ips"`
	BannedUsers map[string]string `toml:"banned_users"`
	Operators   map[string]bool   `toml:"operators"`
}

// Default returns sane defaults for a fresh install, grounded on the
// teacher's NewServer default-port pattern.
func Default() *Config {
	return &Config{
		Name:                    "A HoneyBit Server",
		MOTD:                    "Welcome!",
		Port:                    25565,
		DefaultWorld:            "main",
		MaxPlayers:              32,
		Public:                  false,
		MaxMessageLength:        512,
		PacketTimeout:           5 * time.Second,
		PacketTimeoutSeconds:    5,
		PingSpacing:             2 * time.Second,
		PingSpacingSeconds:      2,
		KeptSalts:               0,
		HeartbeatSpacing:        45 * time.Second,
		HeartbeatSpacingSeconds: 45,
		HeartbeatTimeout:        10 * time.Second,
		HeartbeatTimeoutSeconds: 10,
		BannedIPs:               map[string]string{},
		BannedUsers:             map[string]string{},
		Operators:               map[string]bool{},
	}
}

// ResolveDurations populates the time.Duration fields from their
// float-seconds counterparts. Call after unmarshalling from TOML.
func (c *Config) ResolveDurations() {
	c.PacketTimeout = secondsToDuration(c.PacketTimeoutSeconds)
	c.PingSpacing = secondsToDuration(c.PingSpacingSeconds)
	c.HeartbeatSpacing = secondsToDuration(c.HeartbeatSpacingSeconds)
	c.HeartbeatTimeout = secondsToDuration(c.HeartbeatTimeoutSeconds)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// IsOperator reports whether username is a configured operator.
func (c *Config) IsOperator(username string) bool {
	return c.Operators[username]
}

// BanReasonForIP returns the ban reason for ip, if any.
func (c *Config) BanReasonForIP(ip string) (string, bool) {
	reason, ok := c.BannedIPs[ip]
	return reason, ok
}

// BanReasonForUser returns the ban reason for username, if any.
func (c *Config) BanReasonForUser(username string) (string, bool) {
	reason, ok := c.BannedUsers[username]
	return reason, ok
}

// Validate enforces the startup invariants from §4.6: verification
// (kept_salts > 0) needs a heartbeat_url, since salts are only generated
// by the heartbeat loop; a public listing with no verification is
// refused outright; and a default world must be named.
func (c *Config) Validate() error {
	if c.HeartbeatURL == "" && c.KeptSalts > 0 {
		return errInvalidConfig("heartbeat_url is empty but kept_salts > 0: clients could never authenticate")
	}
	if c.KeptSalts == 0 && c.Public {
		return errInvalidConfig("public is true but kept_salts is 0: refusing to list an unauthenticated public server")
	}
	if c.DefaultWorld == "" {
		return errInvalidConfig("default_world must not be empty")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalidConfig(msg string) error { return configError("config: " + msg) }
