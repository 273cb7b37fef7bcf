package mailfile

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
)

// Source reads messages from a directory of .eml files. Useful for local
// testing and for inboxes delivered by fetchmail-style tooling.
type Source struct {
	dir    string
	logger *zap.Logger
}

// NewSource creates a new .eml directory source
func NewSource(dir string, logger *zap.Logger) *Source {
	return &Source{
		dir:    dir,
		logger: logger,
	}
}

// ListRecentMessages parses up to limit .eml files, newest last.
// Recency follows file modification time.
func (s *Source) ListRecentMessages(ctx context.Context, limit int) ([]*core.EmailMessage, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mail directory: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var files []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".eml") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{
			path:    filepath.Join(s.dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	if limit > 0 && len(files) > limit {
		files = files[len(files)-limit:]
	}

	var msgs []*core.EmailMessage
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}

		msg, err := ReadFile(file.path)
		if err != nil {
			s.logger.Warn("Skipping unparseable mail file", zap.String("path", file.path), zap.Error(err))
			continue
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = file.modTime
		}
		msgs = append(msgs, msg)
	}

	s.logger.Info("Read mail files", zap.Int("messages", len(msgs)), zap.String("dir", s.dir))
	return msgs, nil
}

// ReadFile parses a single .eml file into a message
func ReadFile(path string) (*core.EmailMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mail file: %w", err)
	}
	defer f.Close()

	env, err := enmime.ReadEnvelope(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail file: %w", err)
	}

	msg := &core.EmailMessage{
		ID:       messageID(env, path),
		Sender:   senderAddress(env),
		Subject:  env.GetHeader("Subject"),
		Body:     env.Text,
		HTMLBody: env.HTML,
	}
	if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		msg.ReceivedAt = date
	}

	return msg, nil
}

// messageID uses the Message-ID header, falling back to the file name
func messageID(env *enmime.Envelope, path string) string {
	if id := strings.Trim(env.GetHeader("Message-ID"), "<>"); id != "" {
		return id
	}
	return filepath.Base(path)
}

// senderAddress extracts the bare address from the From header
func senderAddress(env *enmime.Envelope) string {
	from := env.GetHeader("From")
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}
