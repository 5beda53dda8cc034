package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
)

var (
	contentPattern  = regexp.MustCompile(`content:"([\s\S]*?)",records:`)
	firstRowPattern = regexp.MustCompile(`<tbody[^>]*>[\s\S]*?<tr>([\s\S]*?)</tr>`)
	cellPattern     = regexp.MustCompile(`<td[^>]*>([\s\S]*?)</td>`)
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// FetchReal retrieves the most recent published NAV change from the historical NAV table.
// The as-of date is returned as-is; callers decide whether it is current.
func (c *Client) FetchReal(ctx context.Context, code string) (*models.QuotePercent, error) {
	if !ValidCode(code) {
		return nil, common.NewQuoteError("real", code, common.ErrInvalidArgument, nil)
	}

	q := url.Values{}
	q.Set("type", "lsjz")
	q.Set("code", code)
	q.Set("page", "1")
	q.Set("per", "1")
	reqURL := fmt.Sprintf("%s/F10DataApi.aspx?%s", c.realBaseURL, q.Encode())

	body, err := c.get(ctx, "real", code, reqURL)
	if err != nil {
		return nil, err
	}

	date, percent, err := parseNAVTable(string(body))
	if err != nil {
		return nil, common.NewQuoteError("real", code, common.ErrMalformedResponse, err)
	}

	c.logger.Debug().Str("code", code).Str("date", date).Float64("percent", percent).Msg("Real value fetched")

	return &models.QuotePercent{
		Code:      code,
		Percent:   percent,
		Kind:      models.KindReal,
		AsOfDate:  date,
		FetchedAt: c.now(),
	}, nil
}

// parseNAVTable extracts the date (column 0) and daily growth (column 3) of the first row.
func parseNAVTable(body string) (string, float64, error) {
	m := contentPattern.FindStringSubmatch(body)
	if m == nil {
		return "", 0, fmt.Errorf("content block not found")
	}

	row := firstRowPattern.FindStringSubmatch(m[1])
	if row == nil {
		return "", 0, fmt.Errorf("no data row")
	}

	matches := cellPattern.FindAllStringSubmatch(row[1], -1)
	if len(matches) < 4 {
		return "", 0, fmt.Errorf("expected at least 4 cells, got %d", len(matches))
	}

	cells := make([]string, len(matches))
	for i, cm := range matches {
		cells[i] = cleanCell(cm[1])
	}

	date := cells[0]
	if !datePattern.MatchString(date) {
		return "", 0, fmt.Errorf("invalid date cell %q", date)
	}

	percent, ok := parsePercent(cells[3])
	if !ok {
		return "", 0, fmt.Errorf("invalid growth cell %q", cells[3])
	}
	return date, percent, nil
}

func cleanCell(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&nbsp;", "")
	return strings.TrimSpace(s)
}
