package gmailapi

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
)

func encodeBody(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestBuildMessageFlattensMimeTree(t *testing.T) {
	m := &gmail.Message{
		Id:           "m-100",
		InternalDate: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC).UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "subject", Value: "Quarterly report"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{
							MimeType: "text/plain",
							Body:     &gmail.MessagePartBody{Data: encodeBody("See https://example.com/report")},
						},
						{
							MimeType: "text/html",
							Body:     &gmail.MessagePartBody{Data: encodeBody(`<a href="https://example.com/report">report</a>`)},
						},
					},
				},
			},
		},
	}

	msg := buildMessage(m)

	if msg.ID != "m-100" {
		t.Errorf("Expected ID m-100, got %q", msg.ID)
	}
	if msg.Sender != "alice@example.com" {
		t.Errorf("Expected sender alice@example.com, got %q", msg.Sender)
	}
	if msg.Subject != "Quarterly report" {
		t.Errorf("Expected subject to match case-insensitively, got %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "https://example.com/report") {
		t.Errorf("Expected plain body from nested part, got %q", msg.Body)
	}
	if !strings.Contains(msg.HTMLBody, "<a href=") {
		t.Errorf("Expected html body from nested part, got %q", msg.HTMLBody)
	}
	if msg.ReceivedAt.UTC().Hour() != 12 {
		t.Errorf("Expected InternalDate to set ReceivedAt, got %v", msg.ReceivedAt)
	}
}

func TestBuildMessageFallsBackToSnippet(t *testing.T) {
	m := &gmail.Message{
		Id:      "m-200",
		Snippet: "Your package is waiting",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "courier@example.net"},
			},
		},
	}

	msg := buildMessage(m)

	if msg.Body != "Your package is waiting" {
		t.Errorf("Expected snippet fallback body, got %q", msg.Body)
	}
	if msg.Sender != "courier@example.net" {
		t.Errorf("Expected bare address kept, got %q", msg.Sender)
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected string
	}{
		{
			name:     "unpadded base64url",
			data:     base64.RawURLEncoding.EncodeToString([]byte("hello")),
			expected: "hello",
		},
		{
			name:     "padded base64url",
			data:     base64.URLEncoding.EncodeToString([]byte("hello")),
			expected: "hello",
		},
		{
			name:     "empty",
			data:     "",
			expected: "",
		},
		{
			name:     "garbage",
			data:     "%%%",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeBody(tt.data); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		expected string
	}{
		{
			name:     "display name form",
			from:     "Bob Smith <bob@example.com>",
			expected: "bob@example.com",
		},
		{
			name:     "bare address",
			from:     "bob@example.com",
			expected: "bob@example.com",
		},
		{
			name:     "unparseable kept as-is",
			from:     "no reply",
			expected: "no reply",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := senderAddress(tt.from); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
