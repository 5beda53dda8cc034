package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
)

type searchResponse struct {
	ErrCode int            `json:"ErrCode"`
	ErrMsg  string         `json:"ErrMsg"`
	Datas   []searchRecord `json:"Datas"`
}

type searchRecord struct {
	Code         string `json:"CODE"`
	Name         string `json:"NAME"`
	CategoryDesc string `json:"CATEGORYDESC"`
}

// SearchFunds queries the fund suggestion endpoint. Results without a code are dropped.
func (c *Client) SearchFunds(ctx context.Context, keyword string) ([]models.FundSearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, common.NewQuoteError("search", "", common.ErrInvalidArgument, fmt.Errorf("empty keyword"))
	}

	reqURL := fmt.Sprintf("%s/FundSearch/api/FundSearchAPI.ashx?m=1&key=%s", c.searchBaseURL, url.QueryEscape(keyword))
	body, err := c.get(ctx, "search", "", reqURL)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, common.NewQuoteError("search", "", common.ErrMalformedResponse, err)
	}
	if resp.ErrCode != 0 {
		return nil, common.NewQuoteError("search", "", common.ErrMalformedResponse, fmt.Errorf("provider error %d: %s", resp.ErrCode, resp.ErrMsg))
	}

	results := make([]models.FundSearchResult, 0, len(resp.Datas))
	for _, d := range resp.Datas {
		if d.Code == "" {
			continue
		}
		results = append(results, models.FundSearchResult{
			Code:     d.Code,
			Name:     d.Name,
			Category: d.CategoryDesc,
		})
	}

	c.logger.Debug().Str("keyword", keyword).Int("results", len(results)).Msg("Fund search")
	return results, nil
}
