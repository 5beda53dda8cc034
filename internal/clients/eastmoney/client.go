// Package eastmoney provides a client for the public Eastmoney and fundgz fund data endpoints
package eastmoney

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
)

const (
	DefaultEstimateBaseURL = "https://fundgz.1234567.com.cn/js"
	DefaultRealBaseURL     = "https://fundf10.eastmoney.com"
	DefaultSearchBaseURL   = "https://fundsuggest.eastmoney.com"
	DefaultTimeout         = 8 * time.Second
	DefaultRateLimit       = 10 // requests per second

	maxBodySize = 1 << 20
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// Client implements interfaces.QuoteClient against the provider's public endpoints.
type Client struct {
	estimateBaseURL string
	realBaseURL     string
	searchBaseURL   string
	timeout         time.Duration
	httpClient      *http.Client
	logger          *common.Logger
	limiter         *rate.Limiter
	now             func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithEstimateBaseURL sets the estimate endpoint base URL
func WithEstimateBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.estimateBaseURL = u
	}
}

// WithRealBaseURL sets the historical NAV endpoint base URL
func WithRealBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.realBaseURL = u
	}
}

// WithSearchBaseURL sets the search endpoint base URL
func WithSearchBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.searchBaseURL = u
	}
}

// WithBaseURL points every endpoint at one host. Used by tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.estimateBaseURL = u + "/js"
		c.realBaseURL = u
		c.searchBaseURL = u
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout bounds each call, including rate-limit wait
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClock injects the time source used for cache-busting and timestamps
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new provider client.
// No API key is required.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		estimateBaseURL: DefaultEstimateBaseURL,
		realBaseURL:     DefaultRealBaseURL,
		searchBaseURL:   DefaultSearchBaseURL,
		timeout:         DefaultTimeout,
		httpClient:      &http.Client{},
		limiter:         rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:          common.NewSilentLogger(),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig builds a client from the [clients.eastmoney] section.
func NewClientFromConfig(cfg common.EastmoneyConfig, logger *common.Logger) *Client {
	opts := []ClientOption{
		WithLogger(logger),
		WithTimeout(cfg.GetTimeout()),
		WithRateLimit(cfg.RateLimit),
	}
	if cfg.EstimateBaseURL != "" {
		opts = append(opts, WithEstimateBaseURL(cfg.EstimateBaseURL))
	}
	if cfg.RealBaseURL != "" {
		opts = append(opts, WithRealBaseURL(cfg.RealBaseURL))
	}
	if cfg.SearchBaseURL != "" {
		opts = append(opts, WithSearchBaseURL(cfg.SearchBaseURL))
	}
	return NewClient(opts...)
}

// ValidCode reports whether code is a six-digit fund code.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// get performs a bounded GET and maps failures onto the quote error kinds.
func (c *Client) get(ctx context.Context, op, code, reqURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classify(op, code, fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, common.NewQuoteError(op, code, common.ErrInvalidArgument, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://fund.eastmoney.com/")

	c.logger.Debug().Str("op", op).Str("code", code).Msg("Provider request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Str("code", code).Dur("elapsed", elapsed).Msg("Provider request failed")
		return nil, classify(op, code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Str("op", op).Str("code", code).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("Provider non-OK response")
		return nil, common.NewQuoteError(op, code, common.ErrTransportFailure, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classify(op, code, fmt.Errorf("read body: %w", err))
	}

	c.logger.Debug().Str("op", op).Str("code", code).Int("bytes", len(body)).Dur("elapsed", elapsed).Msg("Provider call")
	return body, nil
}

func classify(op, code string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewQuoteError(op, code, common.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return common.NewQuoteError(op, code, common.ErrTimeout, err)
	}
	return common.NewQuoteError(op, code, common.ErrTransportFailure, err)
}

// Ensure Client implements QuoteClient
var _ interfaces.QuoteClient = (*Client)(nil)
