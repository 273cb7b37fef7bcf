package allowlist

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestIsAllowlisted(t *testing.T) {
	checker, err := NewChecker(true, []string{"Example.com", " trusted.org "}, "", zap.NewNop())
	if err != nil {
		t.Fatalf("Expected checker to build, got %v", err)
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "exact host", url: "https://example.com/page", want: true},
		{name: "subdomain", url: "https://mail.example.com/inbox", want: true},
		{name: "second domain", url: "http://trusted.org/", want: true},
		{name: "unrelated host", url: "https://evil.example.net/", want: false},
		{name: "suffix but not subdomain", url: "https://notexample.com/", want: false},
		{name: "no host", url: "https:///path-only", want: false},
		{name: "unparseable", url: "://broken", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.IsAllowlisted(tt.url); got != tt.want {
				t.Errorf("Expected %v for %s, got %v", tt.want, tt.url, got)
			}
		})
	}
}

func TestCheckerDisabled(t *testing.T) {
	checker, err := NewChecker(false, []string{"example.com"}, "", zap.NewNop())
	if err != nil {
		t.Fatalf("Expected checker to build, got %v", err)
	}
	if checker.IsAllowlisted("https://example.com/") {
		t.Error("Expected disabled checker to allow nothing")
	}
}

func TestCheckerLoadsDomainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.txt")
	content := "# corporate domains\nexample.com\n\n.dotted.example\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write allowlist file: %v", err)
	}

	checker, err := NewChecker(true, nil, path, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected checker to build, got %v", err)
	}

	if !checker.IsAllowlisted("https://example.com/") {
		t.Error("Expected file-loaded domain to be trusted")
	}
	if !checker.IsAllowlisted("https://sub.dotted.example/") {
		t.Error("Expected leading dot to be stripped from file entries")
	}
	if checker.IsAllowlisted("https://other.example.net/") {
		t.Error("Expected unlisted host to stay untrusted")
	}
}

func TestCheckerMissingFile(t *testing.T) {
	if _, err := NewChecker(true, nil, "/nonexistent/allowlist.txt", zap.NewNop()); err == nil {
		t.Error("Expected error for missing allowlist file")
	}
}
