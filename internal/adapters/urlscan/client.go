package urlscan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/lookalike"
	"github.com/mikey/mail-sentinel/internal/scoring"
	"go.uber.org/zap"
)

// ErrNoResults is returned by Search when the service has no prior scan for a URL
var ErrNoResults = errors.New("no prior scan results")

// Client is an implementation of the ThreatScanner interface using the
// urlscan.io submit/poll API.
type Client struct {
	cfg        config.ScannerConfig
	base       string
	scorer     *scoring.Scorer
	lookalike  *lookalike.Detector
	httpClient *http.Client
	logger     *zap.Logger
}

type submitRequest struct {
	URL        string `json:"url"`
	Visibility string `json:"visibility,omitempty"`
}

type submitResponse struct {
	UUID    string `json:"uuid"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

type taskData struct {
	UUID      string `json:"uuid"`
	Time      string `json:"time"`
	URL       string `json:"url"`
	ReportURL string `json:"reportURL"`
}

type pageData struct {
	Title   string `json:"title"`
	Server  string `json:"server"`
	IP      string `json:"ip"`
	Country string `json:"country"`
}

type statsData struct {
	Malicious int `json:"malicious"`
	Requests  int `json:"requests"`
	Domains   int `json:"domains"`
}

type listsData struct {
	IPs        []string `json:"ips"`
	Countries  []string `json:"countries"`
	Domains    []string `json:"domains"`
	URLs       []string `json:"urls"`
	Categories []string `json:"categories"`
}

type resultResponse struct {
	Task  taskData  `json:"task"`
	Page  pageData  `json:"page"`
	Stats statsData `json:"stats"`
	Lists listsData `json:"lists"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
	Total   int         `json:"total"`
}

type searchHit struct {
	ID   string   `json:"_id"`
	Task taskData `json:"task"`
	Page pageData `json:"page"`
}

// NewClient creates a new urlscan.io client
func NewClient(
	cfg config.ScannerConfig,
	scorer *scoring.Scorer,
	detector *lookalike.Detector,
	logger *zap.Logger,
) *Client {
	if cfg.APIKey != "" {
		logger.Info("URL scanner initialized with API key")
	} else {
		logger.Info("URL scanner initialized without API key (limited rate)")
	}

	return &Client{
		cfg:       cfg,
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		scorer:    scorer,
		lookalike: detector,
		httpClient: &http.Client{
			Timeout: cfg.SubmitTimeout,
		},
		logger: logger,
	}
}

// Scan submits a URL, waits for the scan to finish and translates the
// result into a verdict.
func (c *Client) Scan(ctx context.Context, rawURL string) (*core.ScanVerdict, error) {
	c.logger.Info("Submitting URL for scanning", zap.String("url", rawURL))

	uuid, err := c.submit(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("URL submitted", zap.String("url", rawURL), zap.String("uuid", uuid))

	res, err := c.waitForResult(ctx, rawURL, uuid)
	if err != nil {
		return nil, err
	}

	verdict := c.buildVerdict(rawURL, uuid, res)
	c.logger.Info("Scan completed",
		zap.String("url", rawURL),
		zap.Int("score", verdict.Score),
		zap.Bool("malicious", verdict.Malicious))
	return verdict, nil
}

// Search looks up the most recent finished scan for a URL without
// submitting a new one. Returns ErrNoResults when the service has none.
func (c *Client) Search(ctx context.Context, rawURL string) (*core.ScanVerdict, error) {
	q := url.Values{}
	q.Set("q", `url:"`+rawURL+`"`)
	endpoint := fmt.Sprintf("%s/search/?%s", c.base, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, core.NewScanError(core.FailureTransport, rawURL, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransport(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.NewScanError(core.FailureTransport, rawURL,
			fmt.Errorf("search returned status %d: %s", resp.StatusCode, readBodyPreview(resp.Body)))
	}

	var search searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, core.NewScanError(core.FailureMalformedResponse, rawURL, err)
	}
	if len(search.Results) == 0 {
		return nil, ErrNoResults
	}

	hit := search.Results[0]
	uuid := hit.ID
	if uuid == "" {
		uuid = hit.Task.UUID
	}
	if uuid == "" {
		return nil, core.NewScanError(core.FailureMalformedResponse, rawURL,
			errors.New("search result carries no scan id"))
	}

	res, pending, err := c.fetchResult(ctx, rawURL, uuid)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrNoResults
	}
	return c.buildVerdict(rawURL, uuid, res), nil
}

// submit posts the URL to the scan endpoint and returns the scan uuid.
// Rate limiting is retried with a backoff up to MaxRetries attempts.
func (c *Client) submit(ctx context.Context, rawURL string) (string, error) {
	payload, err := json.Marshal(submitRequest{URL: rawURL, Visibility: c.cfg.Visibility})
	if err != nil {
		return "", core.NewScanError(core.FailureTransport, rawURL, err)
	}
	endpoint := c.base + "/scan/"

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return "", core.NewScanError(core.FailureTransport, rawURL, err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", c.classifyTransport(rawURL, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			if attempt >= c.cfg.MaxRetries {
				return "", core.NewScanError(core.FailureRateLimited, rawURL,
					fmt.Errorf("rate limited after %d attempts", attempt+1))
			}
			c.logger.Warn("Scan submission rate limited, backing off",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", c.cfg.RetryBackoff))
			select {
			case <-ctx.Done():
				return "", core.NewScanError(core.FailureTransport, rawURL, ctx.Err())
			case <-time.After(c.cfg.RetryBackoff):
			}
			continue
		}

		uuid, err := c.decodeSubmit(rawURL, resp)
		resp.Body.Close()
		return uuid, err
	}
}

func (c *Client) decodeSubmit(rawURL string, resp *http.Response) (string, error) {
	switch resp.StatusCode {
	case http.StatusOK:
		var submit submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&submit); err != nil {
			return "", core.NewScanError(core.FailureMalformedResponse, rawURL, err)
		}
		if submit.UUID == "" {
			return "", core.NewScanError(core.FailureMalformedResponse, rawURL,
				errors.New("submit response carries no uuid"))
		}
		return submit.UUID, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", core.NewScanError(core.FailureAuth, rawURL,
			fmt.Errorf("submission rejected with status %d: %s", resp.StatusCode, readBodyPreview(resp.Body)))
	default:
		return "", core.NewScanError(core.FailureTransport, rawURL,
			fmt.Errorf("submission returned status %d: %s", resp.StatusCode, readBodyPreview(resp.Body)))
	}
}

// waitForResult polls the result endpoint until the scan finishes or the
// wait budget runs out. Transient poll errors are tolerated until the
// deadline; a malformed or unauthorized response stops the wait early.
func (c *Client) waitForResult(ctx context.Context, rawURL, uuid string) (*resultResponse, error) {
	deadline := time.Now().Add(c.cfg.MaxWait)

	for {
		res, pending, err := c.fetchResult(ctx, rawURL, uuid)
		if err == nil && !pending {
			return res, nil
		}
		if err != nil {
			if !retryablePoll(err) {
				return nil, err
			}
			c.logger.Warn("Result poll failed, will retry",
				zap.String("uuid", uuid), zap.Error(err))
		} else {
			c.logger.Debug("Scan still in progress", zap.String("uuid", uuid))
		}

		if !time.Now().Before(deadline) {
			return nil, core.NewScanError(core.FailureTimeout, rawURL,
				fmt.Errorf("scan %s not finished after %s", uuid, c.cfg.MaxWait))
		}
		select {
		case <-ctx.Done():
			return nil, core.NewScanError(core.FailureTransport, rawURL, ctx.Err())
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// fetchResult retrieves the scan result once. The second return value is
// true while the service reports the scan as not finished yet.
func (c *Client) fetchResult(ctx context.Context, rawURL, uuid string) (*resultResponse, bool, error) {
	endpoint := fmt.Sprintf("%s/result/%s/", c.base, uuid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, core.NewScanError(core.FailureTransport, rawURL, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, c.classifyTransport(rawURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var res resultResponse
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, false, core.NewScanError(core.FailureMalformedResponse, rawURL, err)
		}
		return &res, false, nil
	case http.StatusNotFound, http.StatusTooManyRequests:
		return nil, true, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, false, core.NewScanError(core.FailureAuth, rawURL,
			fmt.Errorf("result request rejected with status %d", resp.StatusCode))
	default:
		return nil, false, core.NewScanError(core.FailureTransport, rawURL,
			fmt.Errorf("result returned status %d", resp.StatusCode))
	}
}

// buildVerdict scores the finished scan and assembles the verdict
func (c *Client) buildVerdict(rawURL, uuid string, res *resultResponse) *core.ScanVerdict {
	sig := scoring.Signals{
		BlacklistedIPs:       len(res.Lists.IPs),
		BlacklistedCountries: len(res.Lists.Countries),
		BlacklistedDomains:   len(res.Lists.Domains),
		BlacklistedURLs:      len(res.Lists.URLs),
		Categories:           res.Lists.Categories,
		MaliciousFlag:        res.Stats.Malicious > 0,
		RequestCount:         res.Stats.Requests,
		DomainCount:          res.Stats.Domains,
		LookalikeBrand:       c.lookalike.Match(rawURL),
	}
	score, indicators := c.scorer.Score(sig)

	if res.Task.UUID != "" {
		uuid = res.Task.UUID
	}
	scannedAt := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, res.Task.Time); err == nil {
		scannedAt = t
	}

	return &core.ScanVerdict{
		URL:         rawURL,
		Score:       score,
		Categories:  res.Lists.Categories,
		Malicious:   c.scorer.IsMalicious(score),
		ScanUUID:    uuid,
		ReportURL:   res.Task.ReportURL,
		PageTitle:   res.Page.Title,
		PageIP:      res.Page.IP,
		PageCountry: res.Page.Country,
		Indicators:  indicators,
		ScannedAt:   scannedAt,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("API-Key", c.cfg.APIKey)
	}
}

func (c *Client) classifyTransport(rawURL string, err error) *core.ScanError {
	if isTimeout(err) {
		return core.NewScanError(core.FailureTimeout, rawURL, err)
	}
	return core.NewScanError(core.FailureTransport, rawURL, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// retryablePoll reports whether a poll error is worth another attempt
// within the wait budget
func retryablePoll(err error) bool {
	var scanErr *core.ScanError
	if !errors.As(err, &scanErr) {
		return false
	}
	return scanErr.Kind == core.FailureTransport || scanErr.Kind == core.FailureTimeout
}

func readBodyPreview(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
