// Package relay carries quote requests over the host messaging envelope.
//
// The host side (Dispatcher) answers fetchFundJson, fetchFundRealPercent and
// searchFund messages with {ok, data, error}. Client speaks the same envelope
// to a remote host over HTTP and presents it as an ordinary QuoteClient.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/fundwatch/internal/clients/eastmoney"
	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
)

const (
	DefaultTimeout   = 8 * time.Second
	DefaultRateLimit = 10
	MessagePath      = "/api/message"
)

// Client implements interfaces.QuoteClient by posting envelopes to a host.
type Client struct {
	hostURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *common.Logger
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout bounds each call
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
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

// NewClient creates a relay client for the host at hostURL (scheme://host:port).
func NewClient(hostURL string, opts ...ClientOption) *Client {
	c := &Client{
		hostURL:    strings.TrimRight(hostURL, "/"),
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts one envelope and returns the decoded answer. Only transport problems are errors;
// an answer with ok=false is returned as-is.
func (c *Client) Send(ctx context.Context, msg models.MessageRequest) (*models.MessageResponse, error) {
	op := opName(msg.Type)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classify(op, msg.Code, fmt.Errorf("rate limit wait: %w", err))
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, common.NewQuoteError(op, msg.Code, common.ErrInvalidArgument, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hostURL+MessagePath, bytes.NewReader(payload))
	if err != nil {
		return nil, common.NewQuoteError(op, msg.Code, common.ErrInvalidArgument, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Warn().Err(err).Str("type", msg.Type).Str("code", msg.Code).Dur("elapsed", elapsed).Msg("Relay request failed")
		return nil, classify(op, msg.Code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, common.NewQuoteError(op, msg.Code, common.ErrTransportFailure, fmt.Errorf("relay status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classify(op, msg.Code, err)
	}

	var out models.MessageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, common.NewQuoteError(op, msg.Code, common.ErrMalformedResponse, err)
	}

	c.logger.Debug().Str("type", msg.Type).Str("code", msg.Code).Bool("ok", out.OK).Dur("elapsed", elapsed).Msg("Relay call")
	return &out, nil
}

// call sends msg and returns the data of a successful answer, mapping failures to quote errors.
func (c *Client) call(ctx context.Context, msg models.MessageRequest) (json.RawMessage, error) {
	op := opName(msg.Type)
	resp, err := c.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, common.NewQuoteError(op, msg.Code, kindFromLabel(resp.Kind), errors.New(resp.Error))
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, common.NewQuoteError(op, msg.Code, common.ErrMalformedResponse, fmt.Errorf("empty data"))
	}
	return resp.Data, nil
}

// FetchEstimate asks the host for the raw fund payload and reads gszzl from it.
func (c *Client) FetchEstimate(ctx context.Context, code string) (*models.QuotePercent, error) {
	p, err := c.fetchPayload(ctx, "estimate", code)
	if err != nil {
		return nil, err
	}
	percent, err := p.EstimatePercent()
	if err != nil {
		return nil, common.NewQuoteError("estimate", code, common.ErrMalformedResponse, err)
	}
	return &models.QuotePercent{Code: code, Percent: percent, Kind: models.KindEstimate, FetchedAt: c.now()}, nil
}

// FetchInfo asks the host for the raw fund payload.
func (c *Client) FetchInfo(ctx context.Context, code string) (*models.FundInfo, error) {
	p, err := c.fetchPayload(ctx, "info", code)
	if err != nil {
		return nil, err
	}
	info, err := p.Info(code)
	if err != nil {
		return nil, common.NewQuoteError("info", code, common.ErrMalformedResponse, err)
	}
	return info, nil
}

func (c *Client) fetchPayload(ctx context.Context, op, code string) (*eastmoney.FundPayload, error) {
	if !eastmoney.ValidCode(code) {
		return nil, common.NewQuoteError(op, code, common.ErrInvalidArgument, nil)
	}
	data, err := c.call(ctx, models.MessageRequest{Type: models.MessageFetchEstimate, Code: code})
	if err != nil {
		return nil, err
	}
	var p eastmoney.FundPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, common.NewQuoteError(op, code, common.ErrMalformedResponse, err)
	}
	return &p, nil
}

// FetchReal asks the host for the latest published value.
func (c *Client) FetchReal(ctx context.Context, code string) (*models.QuotePercent, error) {
	if !eastmoney.ValidCode(code) {
		return nil, common.NewQuoteError("real", code, common.ErrInvalidArgument, nil)
	}
	data, err := c.call(ctx, models.MessageRequest{Type: models.MessageFetchReal, Code: code})
	if err != nil {
		return nil, err
	}
	var rp models.RealPercentData
	if err := json.Unmarshal(data, &rp); err != nil {
		return nil, common.NewQuoteError("real", code, common.ErrMalformedResponse, err)
	}
	if rp.Date == "" {
		return nil, common.NewQuoteError("real", code, common.ErrMalformedResponse, fmt.Errorf("missing date"))
	}
	return &models.QuotePercent{Code: code, Percent: rp.Percent, Kind: models.KindReal, AsOfDate: rp.Date, FetchedAt: c.now()}, nil
}

// SearchFunds asks the host to search.
func (c *Client) SearchFunds(ctx context.Context, keyword string) ([]models.FundSearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, common.NewQuoteError("search", "", common.ErrInvalidArgument, fmt.Errorf("empty keyword"))
	}
	data, err := c.call(ctx, models.MessageRequest{Type: models.MessageSearchFund, Keyword: keyword})
	if err != nil {
		return nil, err
	}
	var results []models.FundSearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, common.NewQuoteError("search", "", common.ErrMalformedResponse, err)
	}
	return results, nil
}

func opName(messageType string) string {
	switch messageType {
	case models.MessageFetchEstimate:
		return "estimate"
	case models.MessageFetchReal:
		return "real"
	case models.MessageSearchFund:
		return "search"
	default:
		return messageType
	}
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

// kindFromLabel maps the envelope's kind label back to a sentinel.
// Hosts that omit it get treated as transport failures.
func kindFromLabel(label string) error {
	switch label {
	case "invalid_argument":
		return common.ErrInvalidArgument
	case "timeout":
		return common.ErrTimeout
	case "malformed_response":
		return common.ErrMalformedResponse
	case "not_yet_published":
		return common.ErrNotYetPublished
	default:
		return common.ErrTransportFailure
	}
}

// Ensure Client implements QuoteClient
var _ interfaces.QuoteClient = (*Client)(nil)
