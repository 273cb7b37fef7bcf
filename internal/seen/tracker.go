package seen

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
)

// Tracker manages a persistent store of message fingerprints to prevent
// reprocessing the same messages across polling cycles
type Tracker struct {
	filePath string
	seen     map[string]time.Time
	mu       sync.RWMutex
	maxAge   time.Duration
	logger   *zap.Logger
}

type seenRecord struct {
	Fingerprint string    `json:"fingerprint"`
	SeenAt      time.Time `json:"seen_at"`
}

// NewTracker creates a tracker backed by a JSON file
func NewTracker(filePath string, maxAge time.Duration, logger *zap.Logger) (*Tracker, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create tracker directory: %w", err)
		}
	}

	tracker := &Tracker{
		filePath: filePath,
		seen:     make(map[string]time.Time),
		maxAge:   maxAge,
		logger:   logger,
	}

	// Load existing data
	if err := tracker.load(); err != nil {
		return nil, fmt.Errorf("failed to load seen-message data: %w", err)
	}

	// Clean up old entries
	tracker.prune()

	return tracker, nil
}

// Fingerprint derives a stable identity for a message. Sources without
// native message ids still dedupe on sender, subject and receive time.
func Fingerprint(msg *core.EmailMessage) string {
	raw := msg.ID + "|" + msg.Sender + "|" + msg.Subject + "|" + msg.ReceivedAt.UTC().Format(time.RFC3339)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IsSeen reports whether the message was processed within maxAge
func (t *Tracker) IsSeen(msg *core.EmailMessage) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seenAt, ok := t.seen[Fingerprint(msg)]
	return ok && time.Since(seenAt) < t.maxAge
}

// MarkSeen records the message as processed
func (t *Tracker) MarkSeen(msg *core.EmailMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[Fingerprint(msg)] = time.Now()
}

// FilterNew returns the messages not seen within maxAge and marks them seen
func (t *Tracker) FilterNew(msgs []*core.EmailMessage) []*core.EmailMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	fresh := make([]*core.EmailMessage, 0, len(msgs))
	for _, msg := range msgs {
		fp := Fingerprint(msg)
		if seenAt, ok := t.seen[fp]; ok && now.Sub(seenAt) < t.maxAge {
			continue
		}
		t.seen[fp] = now
		fresh = append(fresh, msg)
	}

	if skipped := len(msgs) - len(fresh); skipped > 0 {
		t.logger.Debug("Skipped already-seen messages", zap.Int("skipped", skipped))
	}
	return fresh
}

// Save persists the seen set
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune()
	return t.save()
}

// Count returns the number of tracked fingerprints
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.seen)
}

// prune removes entries older than maxAge. Callers hold the lock.
func (t *Tracker) prune() {
	cutoff := time.Now().Add(-t.maxAge)

	for fp, seenAt := range t.seen {
		if seenAt.Before(cutoff) {
			delete(t.seen, fp)
		}
	}
}

// load reads the seen set from the JSON file
func (t *Tracker) load() error {
	file, err := os.Open(t.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist yet, start with empty tracker
			return nil
		}
		return fmt.Errorf("failed to open tracker file: %w", err)
	}
	defer file.Close()

	var records []seenRecord
	if err := json.NewDecoder(file).Decode(&records); err != nil {
		return fmt.Errorf("failed to decode tracker data: %w", err)
	}

	for _, rec := range records {
		t.seen[rec.Fingerprint] = rec.SeenAt
	}

	return nil
}

// save writes the seen set to the JSON file
func (t *Tracker) save() error {
	records := make([]seenRecord, 0, len(t.seen))
	for fp, seenAt := range t.seen {
		records = append(records, seenRecord{
			Fingerprint: fp,
			SeenAt:      seenAt,
		})
	}

	file, err := os.Create(t.filePath)
	if err != nil {
		return fmt.Errorf("failed to create tracker file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}
