// Command hbitd is the thin entry point described in §6: it owns
// everything the core explicitly leaves to an external collaborator —
// reading config.toml and worlds/*.hbit off disk, opening the log
// file, and wiring OS SIGINT to a graceful shutdown — then hands
// control to internal/orchestrator.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hbit/hbit-server/internal/config"
	"github.com/hbit/hbit-server/internal/levelfile"
	"github.com/hbit/hbit-server/internal/orchestrator"
	"github.com/hbit/hbit-server/internal/world"
)

func main() {
	os.Exit(run())
}

func run() int {
	dataDir, err := resolveDataDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hbitd:", err)
		return 1
	}

	log, closeLog, err := openLogger(dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hbitd:", err)
		return 1
	}
	defer closeLog()

	if err := setUpDefaults(dataDir); err != nil {
		log.Error("setting up data directory", "error", err)
		return 1
	}

	cfg, err := loadConfig(dataDir)
	if err != nil {
		log.Error("loading config", "error", err)
		return 1
	}

	worlds, paths, err := loadWorlds(dataDir, log)
	if err != nil {
		log.Error("loading worlds", "error", err)
		return 1
	}

	srv, err := orchestrator.New(cfg, worlds, paths, log)
	if err != nil {
		log.Error("starting server", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT)
	defer cancel()
	go func() {
		<-ctx.Done()
		log.Info("shutdown requested")
		srv.Stop()
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(cfg.Port) }()

	select {
	case err := <-runErr:
		if err != nil {
			log.Error("server error", "error", err)
			return 1
		}
	case <-srv.Stopped():
	}

	if failures := srv.SaveAllWorlds(); len(failures) > 0 {
		for name, err := range failures {
			log.Error("saving world on shutdown", "world", name, "error", err)
		}
	}
	if err := saveConfig(dataDir, cfg); err != nil {
		log.Error("saving config on shutdown", "error", err)
	}

	log.Info("shut down cleanly")
	return 0
}

// resolveDataDir honors the single positional CLI argument, falling
// back to the OS's local config directory plus "hbit" when absent.
func resolveDataDir() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no data directory given and no OS local directory available: %w", err)
	}
	return filepath.Join(base, "hbit"), nil
}

// openLogger writes structured logs to both stderr and a fresh
// logs/<rfc3339>.log file, per §6's persisted-state layout.
func openLogger(dataDir string) (*slog.Logger, func(), error) {
	logsDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating logs directory: %w", err)
	}

	logPath := filepath.Join(logsDir, time.Now().Format(time.RFC3339)+".log")
	f, err := os.Create(logPath)
	if err != nil {
		return nil, nil, fmt.Errorf("creating log file: %w", err)
	}

	out := io.MultiWriter(os.Stderr, f)
	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return log, func() { _ = f.Close() }, nil
}

// setUpDefaults creates config.toml and the worlds directory on first
// run, mirroring the original implementation's set_up_defaults.
func setUpDefaults(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configPath := filepath.Join(dataDir, "config.toml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := saveConfig(dataDir, config.Default()); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	}

	worldsDir := filepath.Join(dataDir, "worlds")
	if err := os.MkdirAll(worldsDir, 0o755); err != nil {
		return fmt.Errorf("creating worlds directory: %w", err)
	}
	return nil
}

func loadConfig(dataDir string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := toml.DecodeFile(filepath.Join(dataDir, "config.toml"), cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}
	cfg.ResolveDurations()
	return cfg, nil
}

func saveConfig(dataDir string, cfg *config.Config) error {
	path := filepath.Join(dataDir, "config.toml")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// loadWorlds reads every non-backup file in worlds/, guessing its
// format (native or legacy), and returns it keyed by its in-file name.
func loadWorlds(dataDir string, log *slog.Logger) (map[string]*world.World, map[string]string, error) {
	worldsDir := filepath.Join(dataDir, "worlds")
	entries, err := os.ReadDir(worldsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading worlds directory: %w", err)
	}

	worlds := make(map[string]*world.World)
	paths := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), "~") || entry.Name() == "desktop.ini" {
			continue
		}

		path := filepath.Join(worldsDir, entry.Name())
		data, err := levelfile.GuessLoad(path)
		if err != nil {
			log.Warn("failed to load world file, skipping", "path", path, "error", err)
			continue
		}

		if existing, ok := worlds[data.Name]; ok {
			log.Warn("two world files share a name, keeping the first", "name", data.Name, "path", path)
			_ = existing
			continue
		}

		worlds[data.Name] = world.New(data.Name, data, log.With("world", data.Name))
		paths[data.Name] = path
	}

	return worlds, paths, nil
}
