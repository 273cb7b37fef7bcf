package gmailapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// Source reads messages through the Gmail REST API. Credentials come from
// a Google OAuth client file; the token is cached on disk and refreshed
// automatically.
type Source struct {
	svc    *gmail.Service
	cfg    config.GmailAPIConfig
	logger *zap.Logger
}

// NewSource creates a new Gmail API source. When no usable token is cached
// the device authorization flow runs once and the result is persisted.
func NewSource(cfg config.GmailAPIConfig, logger *zap.Logger) (*Source, error) {
	ctx := context.Background()

	credBytes, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(credBytes, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	source := &Source{cfg: cfg, logger: logger}

	token, err := source.getToken(oauthConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth token: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, &tokenSaver{
		config:    oauthConfig,
		token:     token,
		tokenFile: cfg.TokenFile,
		logger:    logger,
	})

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	source.svc = svc

	logger.Info("Gmail API source initialized", zap.String("query", cfg.Query))
	return source, nil
}

// ListRecentMessages fetches up to limit messages matching the configured
// query, newest last.
func (s *Source) ListRecentMessages(ctx context.Context, limit int) ([]*core.EmailMessage, error) {
	resp, err := s.svc.Users.Messages.List(gmailUser).
		Q(s.cfg.Query).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var msgs []*core.EmailMessage
	// The API lists newest first; walk backwards so callers see newest last
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}

		full, err := s.svc.Users.Messages.Get(gmailUser, resp.Messages[i].Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			s.logger.Warn("Failed to fetch message", zap.String("id", resp.Messages[i].Id), zap.Error(err))
			continue
		}
		msgs = append(msgs, buildMessage(full))
	}

	s.logger.Info("Fetched messages from Gmail API", zap.Int("messages", len(msgs)))
	return msgs, nil
}

func buildMessage(m *gmail.Message) *core.EmailMessage {
	msg := &core.EmailMessage{
		ID:      m.Id,
		Sender:  senderAddress(headerValue(m.Payload, "From")),
		Subject: headerValue(m.Payload, "Subject"),
	}
	if m.InternalDate > 0 {
		msg.ReceivedAt = time.UnixMilli(m.InternalDate)
	}
	msg.Body, msg.HTMLBody = extractBodies(m.Payload)
	if msg.Body == "" && m.Snippet != "" {
		msg.Body = m.Snippet
	}
	return msg
}

// extractBodies walks the MIME tree for the first text/plain and text/html
// leaves. Nested multiparts are common, so the walk recurses.
func extractBodies(part *gmail.MessagePart) (text, html string) {
	if part == nil {
		return "", ""
	}

	switch part.MimeType {
	case "text/plain":
		if part.Body != nil {
			text = decodeBody(part.Body.Data)
		}
	case "text/html":
		if part.Body != nil {
			html = decodeBody(part.Body.Data)
		}
	}

	for _, child := range part.Parts {
		childText, childHTML := extractBodies(child)
		if text == "" {
			text = childText
		}
		if html == "" {
			html = childHTML
		}
	}

	return text, html
}

func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

func headerValue(part *gmail.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, header := range part.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func senderAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

// getToken loads the cached token, starting the device flow when no
// refreshable token exists
func (s *Source) getToken(conf *oauth2.Config) (*oauth2.Token, error) {
	tok, err := tokenFromFile(s.cfg.TokenFile)
	if err == nil {
		// An expired token with a refresh token still works: the token
		// source refreshes it on first use
		if tok.RefreshToken != "" || tok.Valid() {
			return tok, nil
		}
	}

	tok, err = tokenFromDeviceFlow(conf)
	if err != nil {
		return nil, err
	}
	if err := saveToken(s.cfg.TokenFile, tok); err != nil {
		s.logger.Warn("Failed to save OAuth token", zap.Error(err))
	}
	return tok, nil
}

func tokenFromDeviceFlow(conf *oauth2.Config) (*oauth2.Token, error) {
	ctx := context.Background()

	resp, err := conf.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("unable to start device authorization: %w", err)
	}

	fmt.Printf("Visit %s and enter code %s to authorize mailbox access.\n", resp.VerificationURI, resp.UserCode)
	fmt.Println("Waiting for authorization to complete...")

	tok, err := conf.DeviceAccessToken(ctx, resp, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization did not complete: %w", err)
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// tokenSaver wraps the OAuth token source so refreshed tokens survive
// restarts
type tokenSaver struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenFile string
	logger    *zap.Logger
	mu        sync.Mutex
}

func (ts *tokenSaver) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	newToken, err := ts.config.TokenSource(context.Background(), ts.token).Token()
	if err != nil {
		return nil, err
	}

	if newToken.AccessToken != ts.token.AccessToken {
		ts.logger.Info("OAuth token refreshed")
		ts.token = newToken
		if err := saveToken(ts.tokenFile, newToken); err != nil {
			ts.logger.Warn("Failed to save refreshed token", zap.Error(err))
		}
	}

	return newToken, nil
}
