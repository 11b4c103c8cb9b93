package bans

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "bans.json")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, path
}

func TestBanByAddressAndName(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.AddBan("10.0.0.1", "spam", "console", 0); err != nil {
		t.Fatalf("add ip ban: %v", err)
	}
	if err := m.AddBanByName("Griefer", "abuse", "console", 0); err != nil {
		t.Fatalf("add name ban: %v", err)
	}

	if banned, ban := m.IsBanned("10.0.0.1"); !banned || ban.Reason != "spam" {
		t.Fatalf("expected address ban, got %v %+v", banned, ban)
	}
	if banned, _ := m.IsBanned("10.0.0.2"); banned {
		t.Fatalf("unrelated address banned")
	}
	if banned, _ := m.IsBannedByName("griefer"); !banned {
		t.Fatalf("nickname bans should ignore case")
	}

	if err := m.RemoveBanByName("GRIEFER"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if banned, _ := m.IsBannedByName("Griefer"); banned {
		t.Fatalf("ban not removed")
	}

	if err := m.AddBan("", "x", "y", 0); err == nil {
		t.Fatalf("expected empty address to be rejected")
	}
}

func TestBansPersist(t *testing.T) {
	m, path := newTestManager(t)
	if err := m.AddBan("10.0.0.1", "spam", "console", 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.AddBanByName("snek", "", "console", time.Hour); err != nil {
		t.Fatalf("add: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := reloaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(reloaded.List()); got != 2 {
		t.Fatalf("expected 2 bans after reload, got %d", got)
	}
	if banned, ban := reloaded.IsBannedByName("snek"); !banned || ban.Permanent {
		t.Fatalf("expected temporary name ban, got %v %+v", banned, ban)
	}
}

func TestExpiredBans(t *testing.T) {
	m, path := newTestManager(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.AddBan("10.0.0.1", "", "console", time.Minute); err != nil {
		t.Fatalf("add: %v", err)
	}
	if banned, _ := m.IsBanned("10.0.0.1"); !banned {
		t.Fatalf("fresh ban not active")
	}

	now = now.Add(2 * time.Minute)
	if banned, _ := m.IsBanned("10.0.0.1"); banned {
		t.Fatalf("expired ban still active")
	}
	if len(m.List()) != 0 {
		t.Fatalf("expired ban listed")
	}

	if err := m.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected empty ban file after cleanup, got %s", data)
	}
}

func TestLoadMissingAndMalformed(t *testing.T) {
	m, path := newTestManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("missing file should load cleanly: %v", err)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.Load(); err == nil {
		t.Fatalf("expected malformed file to fail")
	}
}
