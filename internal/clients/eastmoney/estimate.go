package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
)

var jsonpPattern = regexp.MustCompile(`(?s)^jsonpgz\((.*)\);?$`)

// FundPayload is the body of the fundgz JSONP callback. All values are strings.
// It is also the data carried by fetchFundJson relay answers.
type FundPayload struct {
	FundCode string `json:"fundcode"`
	Name     string `json:"name"`
	NAVDate  string `json:"jzrq"`
	NAV      string `json:"dwjz"`
	Estimate string `json:"gsz"`
	Percent  string `json:"gszzl"`
	Time     string `json:"gztime"`
}

// EstimatePercent parses gszzl.
func (p *FundPayload) EstimatePercent() (float64, error) {
	v, ok := parsePercent(p.Percent)
	if !ok {
		return 0, fmt.Errorf("gszzl %q is not numeric", p.Percent)
	}
	return v, nil
}

// Info converts the payload. Numeric fields that fail to parse are left as zero.
func (p *FundPayload) Info(code string) (*models.FundInfo, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("missing fund name")
	}
	info := &models.FundInfo{
		Code:         code,
		Name:         p.Name,
		NAVDate:      p.NAVDate,
		EstimateTime: p.Time,
	}
	info.NAV, _ = parsePercent(p.NAV)
	info.EstimateNAV, _ = parsePercent(p.Estimate)
	info.EstimatePercent, _ = parsePercent(p.Percent)
	return info, nil
}

// FetchPayload retrieves and unwraps the raw estimate payload.
func (c *Client) FetchPayload(ctx context.Context, code string) (*FundPayload, error) {
	return c.fetchPayload(ctx, "info", code)
}

func (c *Client) fetchPayload(ctx context.Context, op, code string) (*FundPayload, error) {
	if !ValidCode(code) {
		return nil, common.NewQuoteError(op, code, common.ErrInvalidArgument, nil)
	}

	reqURL := fmt.Sprintf("%s/%s.js?rt=%d", c.estimateBaseURL, code, c.now().UnixMilli())
	body, err := c.get(ctx, op, code, reqURL)
	if err != nil {
		return nil, err
	}

	m := jsonpPattern.FindSubmatch([]byte(strings.TrimSpace(string(body))))
	if m == nil || len(strings.TrimSpace(string(m[1]))) == 0 {
		return nil, common.NewQuoteError(op, code, common.ErrMalformedResponse, fmt.Errorf("body is not a jsonpgz callback"))
	}

	var p FundPayload
	if err := json.Unmarshal(m[1], &p); err != nil {
		return nil, common.NewQuoteError(op, code, common.ErrMalformedResponse, err)
	}
	return &p, nil
}

// FetchEstimate retrieves the intraday estimated percent change (gszzl).
func (c *Client) FetchEstimate(ctx context.Context, code string) (*models.QuotePercent, error) {
	p, err := c.fetchPayload(ctx, "estimate", code)
	if err != nil {
		return nil, err
	}

	percent, err := p.EstimatePercent()
	if err != nil {
		return nil, common.NewQuoteError("estimate", code, common.ErrMalformedResponse, err)
	}

	c.logger.Debug().Str("code", code).Float64("percent", percent).Msg("Estimate fetched")

	return &models.QuotePercent{
		Code:      code,
		Percent:   percent,
		Kind:      models.KindEstimate,
		FetchedAt: c.now(),
	}, nil
}

// FetchInfo retrieves the full estimate payload.
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

func parsePercent(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
