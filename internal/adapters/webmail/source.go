package webmail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
)

// ErrLoginFailed indicates the webmail session could not be authenticated
var ErrLoginFailed = errors.New("webmail login failed")

const (
	selectorTimeout  = 5 * time.Second
	clickTimeout     = 2 * time.Second
	nodeQueryTimeout = 500 * time.Millisecond
	minBodyLength    = 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Source reads recent messages from a webmail inbox through a headless browser.
// Selector chains come from configuration so interface changes can be absorbed
// without a rebuild.
type Source struct {
	cfg    config.WebmailConfig
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context
	loggedIn      bool
}

// NewSource creates a new webmail source. The browser session starts lazily
// on the first fetch.
func NewSource(cfg config.WebmailConfig, logger *zap.Logger) *Source {
	return &Source{
		cfg:    cfg,
		logger: logger,
	}
}

// ListRecentMessages logs in when needed and reads up to limit messages
// from the top of the inbox.
func (s *Source) ListRecentMessages(ctx context.Context, limit int) ([]*core.EmailMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSession(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.NavTimeout)
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	if err := chromedp.Run(runCtx, chromedp.Navigate(s.cfg.InboxURL)); err != nil {
		return nil, fmt.Errorf("failed to open inbox: %w", err)
	}

	rowSel, err := s.firstVisible(runCtx, s.cfg.RowSelectors, selectorTimeout)
	if err != nil {
		s.logger.Info("No message rows found in inbox")
		return nil, nil
	}

	var msgs []*core.EmailMessage
	for i := 0; i < limit; i++ {
		if runCtx.Err() != nil {
			break
		}

		// Re-query rows every pass: opening a message and navigating back
		// invalidates previously resolved nodes
		var rows []*cdp.Node
		if err := chromedp.Run(runCtx, chromedp.Nodes(rowSel, &rows, chromedp.ByQueryAll)); err != nil {
			return nil, fmt.Errorf("failed to list message rows: %w", err)
		}
		if i >= len(rows) {
			break
		}

		msg, err := s.readMessage(runCtx, rows[i], rowSel)
		if err != nil {
			s.logger.Warn("Failed to read message row", zap.Int("row", i), zap.Error(err))
			if err := s.returnToInbox(runCtx, rowSel); err != nil {
				return msgs, nil
			}
			continue
		}
		msgs = append(msgs, msg)
	}

	s.logger.Info("Fetched inbox messages", zap.Int("messages", len(msgs)))
	return msgs, nil
}

// Stop closes the browser session
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeBrowser()
}

func (s *Source) ensureSession(ctx context.Context) error {
	if s.browserCtx != nil && s.browserCtx.Err() != nil {
		s.logger.Warn("Browser session died, restarting")
		s.closeBrowser()
	}

	if s.browserCtx == nil {
		if err := s.startBrowser(); err != nil {
			return err
		}
	}

	if !s.loggedIn {
		loginCtx, cancel := context.WithTimeout(s.browserCtx, 2*s.cfg.NavTimeout)
		defer cancel()
		defer context.AfterFunc(ctx, cancel)()

		if err := s.login(loginCtx); err != nil {
			return err
		}
		s.loggedIn = true
	}

	return nil
}

func (s *Source) startBrowser() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1200, 800),
		chromedp.UserAgent(browserUserAgent),
	)
	if !s.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Launch the browser now so a broken Chrome install fails fast
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	s.allocCancel = allocCancel
	s.browserCancel = browserCancel
	s.browserCtx = browserCtx
	s.logger.Info("Browser session started", zap.Bool("headless", s.cfg.Headless))
	return nil
}

func (s *Source) closeBrowser() {
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	if s.browserCtx != nil {
		s.browserCtx = nil
		s.logger.Info("Browser session closed")
	}
	s.loggedIn = false
}

// login walks the credential form using the configured selector chains
func (s *Source) login(ctx context.Context) error {
	s.logger.Info("Logging in to webmail", zap.String("url", s.cfg.URL))

	if err := chromedp.Run(ctx, chromedp.Navigate(s.cfg.URL)); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	userSel, err := s.firstVisible(ctx, s.cfg.UsernameSelectors, selectorTimeout)
	if err != nil {
		return fmt.Errorf("%w: username field not found", ErrLoginFailed)
	}
	if err := chromedp.Run(ctx, chromedp.SendKeys(userSel, s.cfg.Username, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	s.submitForm(ctx, userSel)

	passSel, err := s.firstVisible(ctx, s.cfg.PasswordSelectors, selectorTimeout)
	if err != nil {
		return fmt.Errorf("%w: password field not found", ErrLoginFailed)
	}
	if err := chromedp.Run(ctx, chromedp.SendKeys(passSel, s.cfg.Password, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	s.submitForm(ctx, passSel)

	// Security challenges and 2FA prompts also end up here: the inbox
	// never appears and the cycle aborts for a retry later
	if _, err := s.firstVisible(ctx, s.cfg.InboxMarkers, selectorTimeout); err != nil {
		return fmt.Errorf("%w: inbox did not load, check credentials or pending verification", ErrLoginFailed)
	}

	s.logger.Info("Webmail login succeeded", zap.String("username", s.cfg.Username))
	return nil
}

// submitForm clicks the first matching submit control, falling back to
// pressing Enter in the given field
func (s *Source) submitForm(ctx context.Context, fieldSel string) {
	for _, sel := range s.cfg.SubmitSelectors {
		attempt, cancel := context.WithTimeout(ctx, clickTimeout)
		err := chromedp.Run(attempt, chromedp.Click(sel, chromedp.ByQuery))
		cancel()
		if err == nil {
			return
		}
	}

	attempt, cancel := context.WithTimeout(ctx, clickTimeout)
	defer cancel()
	if err := chromedp.Run(attempt, chromedp.SendKeys(fieldSel, kb.Enter, chromedp.ByQuery)); err != nil {
		s.logger.Warn("Failed to submit login form", zap.Error(err))
	}
}

// firstVisible returns the first selector in the chain that becomes visible
func (s *Source) firstVisible(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	for _, sel := range selectors {
		attempt, cancel := context.WithTimeout(ctx, timeout)
		err := chromedp.Run(attempt, chromedp.WaitVisible(sel, chromedp.ByQuery))
		cancel()
		if err == nil {
			return sel, nil
		}
	}
	return "", fmt.Errorf("no selector matched out of %d", len(selectors))
}

// readMessage extracts header fields from a row, opens it for the body,
// and returns to the inbox.
func (s *Source) readMessage(ctx context.Context, row *cdp.Node, rowSel string) (*core.EmailMessage, error) {
	// ReceivedAt stays zero: the inbox only shows relative timestamps,
	// and a synthetic time would defeat cross-cycle dedup
	msg := &core.EmailMessage{
		ID:      rowID(row),
		Sender:  s.senderFromNode(ctx, row),
		Subject: s.textFromNode(ctx, row, s.cfg.SubjectSelectors),
	}

	if err := chromedp.Run(ctx, chromedp.MouseClickNode(row)); err != nil {
		return nil, fmt.Errorf("failed to open message: %w", err)
	}

	body, err := s.readOpenMessageBody(ctx)
	if err != nil {
		return nil, err
	}
	msg.Body = body

	if err := s.returnToInbox(ctx, rowSel); err != nil {
		return nil, err
	}

	return msg, nil
}

func (s *Source) readOpenMessageBody(ctx context.Context) (string, error) {
	for _, sel := range s.cfg.BodySelectors {
		attempt, cancel := context.WithTimeout(ctx, selectorTimeout)
		var text string
		err := chromedp.Run(attempt,
			chromedp.WaitVisible(sel, chromedp.ByQuery),
			chromedp.Text(sel, &text, chromedp.ByQuery),
		)
		cancel()
		if err == nil && len(strings.TrimSpace(text)) >= minBodyLength {
			return text, nil
		}
	}

	// Fall back to everything in the main pane
	attempt, cancel := context.WithTimeout(ctx, selectorTimeout)
	defer cancel()
	var text string
	if err := chromedp.Run(attempt, chromedp.Text("div[role='main']", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read message body: %w", err)
	}
	return text, nil
}

func (s *Source) returnToInbox(ctx context.Context, rowSel string) error {
	if err := chromedp.Run(ctx,
		chromedp.Navigate(s.cfg.InboxURL),
		chromedp.WaitVisible(rowSel, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to return to inbox: %w", err)
	}
	return nil
}

var senderAttrs = []string{"email", "data-tooltip", "title", "aria-label"}

// senderFromNode prefers address-carrying attributes over display text
func (s *Source) senderFromNode(ctx context.Context, row *cdp.Node) string {
	for _, sel := range s.cfg.SenderSelectors {
		for _, attr := range senderAttrs {
			attempt, cancel := context.WithTimeout(ctx, nodeQueryTimeout)
			var value string
			var ok bool
			err := chromedp.Run(attempt,
				chromedp.AttributeValue(sel, attr, &value, &ok, chromedp.ByQuery, chromedp.FromNode(row)))
			cancel()
			if err == nil && ok && strings.Contains(value, "@") {
				return strings.TrimSpace(value)
			}
		}
	}
	return s.textFromNode(ctx, row, s.cfg.SenderSelectors)
}

func (s *Source) textFromNode(ctx context.Context, row *cdp.Node, selectors []string) string {
	for _, sel := range selectors {
		attempt, cancel := context.WithTimeout(ctx, nodeQueryTimeout)
		var text string
		err := chromedp.Run(attempt, chromedp.Text(sel, &text, chromedp.ByQuery, chromedp.FromNode(row)))
		cancel()
		text = strings.TrimSpace(text)
		if err == nil && text != "" {
			return text
		}
	}
	return ""
}

// rowID pulls a stable thread identifier off the row element
func rowID(row *cdp.Node) string {
	for _, attr := range []string{"id", "data-legacy-thread-id", "data-thread-id"} {
		if id := row.AttributeValue(attr); id != "" {
			return strings.TrimPrefix(id, "thread-")
		}
	}
	return ""
}
