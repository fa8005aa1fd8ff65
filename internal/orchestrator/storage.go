package orchestrator

import (
	"fmt"
	"os"
)

// saveWorldFile encodes entry's world and writes it to entry.path,
// first backing up any existing file to path+"~", per §6: "atomic
// rename via name.hbit~ backup then overwrite". Grounded on
// go-theft-craft-server's Storage.atomicWriteJSON temp-file pattern,
// adapted to the spec's backup-then-overwrite shape rather than
// write-to-temp-then-rename.
func saveWorldFile(entry *worldEntry) error {
	data, err := entry.w.EncodeSnapshot()
	if err != nil {
		return err
	}

	if _, err := os.Stat(entry.path); err == nil {
		if err := os.Rename(entry.path, entry.path+"~"); err != nil {
			return fmt.Errorf("orchestrator: backing up %s: %w", entry.path, err)
		}
	}

	if err := os.WriteFile(entry.path, data, 0o644); err != nil {
		return fmt.Errorf("orchestrator: writing %s: %w", entry.path, err)
	}
	return nil
}

// SaveAllWorlds persists every registered world, used on graceful
// shutdown (§6). Errors are collected rather than aborting early, so
// one bad world doesn't stop the rest from being saved.
func (s *Server) SaveAllWorlds() map[string]error {
	s.worldsMu.Lock()
	entries := make(map[string]*worldEntry, len(s.worlds))
	for name, e := range s.worlds {
		entries[name] = e
	}
	s.worldsMu.Unlock()

	failures := make(map[string]error)
	for name, e := range entries {
		if err := saveWorldFile(e); err != nil {
			failures[name] = err
		}
	}
	return failures
}
