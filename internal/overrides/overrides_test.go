package overrides

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nearbyhq/presenced/config"
)

func writeOverrideFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestNew_LoadsFileSynchronously(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.json")
	writeOverrideFile(t, path, `{"quarantine": ["AA:BB:CC:DD:EE:01"], "forceStatus": {"AA:BB:CC:DD:EE:02": "present"}}`)

	s := New(&config.OverridesConfig{File: path})

	if !s.Quarantined("AA:BB:CC:DD:EE:01") {
		t.Error("expected AA:BB:CC:DD:EE:01 to be quarantined")
	}
	present, ok := s.ForceStatus("AA:BB:CC:DD:EE:02")
	if !ok || !present {
		t.Errorf("ForceStatus() = (%v, %v), want (true, true)", present, ok)
	}
}

func TestNew_MissingFileLeavesEmptyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.json")

	s := New(&config.OverridesConfig{File: path})

	if s.Quarantined("AA:BB:CC:DD:EE:01") {
		t.Error("expected no quarantine entries when file is missing")
	}
}

func TestNew_MalformedFileLeavesEmptyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.json")
	writeOverrideFile(t, path, `not json`)

	s := New(&config.OverridesConfig{File: path})

	if s.Quarantined("AA:BB:CC:DD:EE:01") {
		t.Error("expected no quarantine entries when file is malformed")
	}
}

func TestForceStatus_AbsentValueResolvesFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.json")
	writeOverrideFile(t, path, `{"forceStatus": {"AA:BB:CC:DD:EE:03": "absent"}}`)

	s := New(&config.OverridesConfig{File: path})

	present, ok := s.ForceStatus("AA:BB:CC:DD:EE:03")
	if !ok || present {
		t.Errorf("ForceStatus() = (%v, %v), want (false, true)", present, ok)
	}
}

func TestStart_PicksUpFileEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.json")
	writeOverrideFile(t, path, `{"quarantine": []}`)

	s := New(&config.OverridesConfig{File: path, RefreshSeconds: 0})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	writeOverrideFile(t, path, `{"quarantine": ["AA:BB:CC:DD:EE:09"]}`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Quarantined("AA:BB:CC:DD:EE:09") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("expected fsnotify-driven reload to pick up the edited override file within 2s")
}

func TestStart_NoPathIsNoop(t *testing.T) {
	s := New(&config.OverridesConfig{File: ""})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Stop()
}
