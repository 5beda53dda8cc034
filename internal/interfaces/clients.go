// Package interfaces defines service contracts for fundwatch
package interfaces

import (
	"context"

	"github.com/bobmcallan/fundwatch/internal/models"
)

// QuoteClient fetches fund quotes from the data provider, directly or through a relay.
// Errors carry a common.QuoteError kind.
type QuoteClient interface {
	// FetchEstimate returns the intraday estimated percent change
	FetchEstimate(ctx context.Context, code string) (*models.QuotePercent, error)

	// FetchReal returns the latest published percent change with its as-of date
	FetchReal(ctx context.Context, code string) (*models.QuotePercent, error)

	// FetchInfo returns the full estimate payload, including the fund name
	FetchInfo(ctx context.Context, code string) (*models.FundInfo, error)

	// SearchFunds looks up funds by code, name or pinyin abbreviation
	SearchFunds(ctx context.Context, keyword string) ([]models.FundSearchResult, error)
}
