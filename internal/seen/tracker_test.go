package seen

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
)

func message(id, sender, subject string) *core.EmailMessage {
	return &core.EmailMessage{
		ID:         id,
		Sender:     sender,
		Subject:    subject,
		ReceivedAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestFilterNewSkipsSeenMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	tracker, err := NewTracker(path, 24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected tracker to load, got %v", err)
	}

	batch := []*core.EmailMessage{
		message("1", "alice@example.com", "hello"),
		message("2", "bob@example.com", "offer"),
	}

	fresh := tracker.FilterNew(batch)
	if len(fresh) != 2 {
		t.Fatalf("Expected 2 fresh messages, got %d", len(fresh))
	}

	again := tracker.FilterNew(batch)
	if len(again) != 0 {
		t.Errorf("Expected 0 fresh messages on replay, got %d", len(again))
	}

	mixed := tracker.FilterNew([]*core.EmailMessage{
		message("2", "bob@example.com", "offer"),
		message("3", "carol@example.com", "invoice"),
	})
	if len(mixed) != 1 || mixed[0].ID != "3" {
		t.Errorf("Expected only the new message to pass, got %d", len(mixed))
	}
}

func TestTrackerPersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")

	tracker, err := NewTracker(path, 24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected tracker to load, got %v", err)
	}
	tracker.FilterNew([]*core.EmailMessage{message("1", "alice@example.com", "hello")})
	if err := tracker.Save(); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}

	reloaded, err := NewTracker(path, 24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected tracker to reload, got %v", err)
	}
	if reloaded.Count() != 1 {
		t.Errorf("Expected 1 persisted fingerprint, got %d", reloaded.Count())
	}

	fresh := reloaded.FilterNew([]*core.EmailMessage{message("1", "alice@example.com", "hello")})
	if len(fresh) != 0 {
		t.Errorf("Expected persisted message to be skipped, got %d fresh", len(fresh))
	}
}

func TestFilterNewReadmitsExpiredMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	tracker, err := NewTracker(path, time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected tracker to load, got %v", err)
	}

	tracker.FilterNew([]*core.EmailMessage{message("1", "alice@example.com", "hello")})
	time.Sleep(5 * time.Millisecond)

	fresh := tracker.FilterNew([]*core.EmailMessage{message("1", "alice@example.com", "hello")})
	if len(fresh) != 1 {
		t.Errorf("Expected expired fingerprint to be readmitted, got %d fresh", len(fresh))
	}
}

func TestMarkSeenAndIsSeen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	tracker, err := NewTracker(path, 24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected tracker to load, got %v", err)
	}

	msg := message("1", "alice@example.com", "hello")
	if tracker.IsSeen(msg) {
		t.Error("Expected a new message to be unseen")
	}

	tracker.MarkSeen(msg)
	if !tracker.IsSeen(msg) {
		t.Error("Expected a marked message to be seen")
	}
}

func TestFingerprintDistinguishesMessages(t *testing.T) {
	a := Fingerprint(message("1", "alice@example.com", "hello"))
	b := Fingerprint(message("1", "alice@example.com", "hello"))
	c := Fingerprint(message("1", "alice@example.com", "other subject"))

	if a != b {
		t.Error("Expected identical messages to share a fingerprint")
	}
	if a == c {
		t.Error("Expected differing subjects to change the fingerprint")
	}
}
