package mailfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const invoiceMail = `From: Alice <alice@example.com>
To: bob@example.com
Subject: Invoice attached
Date: Wed, 19 Aug 2026 10:00:00 +0000
Message-ID: <invoice-1@example.com>
Content-Type: text/plain; charset=utf-8

Please review https://billing.example.com/invoice/42 before Friday.
`

const resetMail = `From: support@example.net
To: bob@example.com
Subject: Password reset
Date: Thu, 20 Aug 2026 09:30:00 +0000
Message-ID: <reset-7@example.net>
Content-Type: text/plain; charset=utf-8

Reset your password at https://example.net/reset?token=abc123
`

func writeMail(t *testing.T, dir, name, content string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write mail file: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("Failed to set mail file times: %v", err)
	}
	return path
}

func TestListRecentMessagesParsesEnvelopes(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeMail(t, dir, "invoice.eml", invoiceMail, now.Add(-2*time.Hour))
	writeMail(t, dir, "reset.eml", resetMail, now.Add(-time.Hour))

	source := NewSource(dir, zap.NewNop())
	msgs, err := source.ListRecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecentMessages returned error: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}

	first := msgs[0]
	if first.ID != "invoice-1@example.com" {
		t.Errorf("Expected message ID invoice-1@example.com, got %q", first.ID)
	}
	if first.Sender != "alice@example.com" {
		t.Errorf("Expected sender alice@example.com, got %q", first.Sender)
	}
	if first.Subject != "Invoice attached" {
		t.Errorf("Expected subject 'Invoice attached', got %q", first.Subject)
	}
	if want := "https://billing.example.com/invoice/42"; !strings.Contains(first.Body, want) {
		t.Errorf("Expected body to contain %q, got %q", want, first.Body)
	}
	if first.ReceivedAt.UTC().Format("2006-01-02") != "2026-08-19" {
		t.Errorf("Expected Date header to set ReceivedAt, got %v", first.ReceivedAt)
	}

	// Newest file last
	if msgs[1].ID != "reset-7@example.net" {
		t.Errorf("Expected newest message last, got %q", msgs[1].ID)
	}
}

func TestListRecentMessagesHonorsLimit(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeMail(t, dir, "old.eml", invoiceMail, now.Add(-3*time.Hour))
	writeMail(t, dir, "new.eml", resetMail, now.Add(-time.Hour))

	source := NewSource(dir, zap.NewNop())
	msgs, err := source.ListRecentMessages(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListRecentMessages returned error: %v", err)
	}

	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != "reset-7@example.net" {
		t.Errorf("Expected the most recent message, got %q", msgs[0].ID)
	}
}

func TestListRecentMessagesSkipsNonMailFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeMail(t, dir, "ok.eml", invoiceMail, now)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a mail"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	source := NewSource(dir, zap.NewNop())
	msgs, err := source.ListRecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecentMessages returned error: %v", err)
	}

	if len(msgs) != 1 {
		t.Errorf("Expected 1 message, got %d", len(msgs))
	}
}

func TestListRecentMessagesMissingDirectory(t *testing.T) {
	source := NewSource(filepath.Join(t.TempDir(), "absent"), zap.NewNop())
	if _, err := source.ListRecentMessages(context.Background(), 10); err == nil {
		t.Error("Expected error for missing directory")
	}
}
