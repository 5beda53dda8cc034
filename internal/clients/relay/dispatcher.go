package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bobmcallan/fundwatch/internal/clients/eastmoney"
	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
)

// PayloadFetcher returns the raw provider payload for fetchFundJson.
type PayloadFetcher interface {
	FetchPayload(ctx context.Context, code string) (*eastmoney.FundPayload, error)
	FetchReal(ctx context.Context, code string) (*models.QuotePercent, error)
	SearchFunds(ctx context.Context, keyword string) ([]models.FundSearchResult, error)
}

// Hooks handle the host-local message types. Either may be nil.
type Hooks struct {
	UpdateBadge     func(badge models.Badge)
	HoldingsUpdated func()
}

// Dispatcher is the host side of the envelope protocol.
type Dispatcher struct {
	fetcher PayloadFetcher
	hooks   Hooks
	logger  *common.Logger
}

// NewDispatcher creates a dispatcher that answers fetch messages with fetcher.
func NewDispatcher(fetcher PayloadFetcher, hooks Hooks, logger *common.Logger) *Dispatcher {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Dispatcher{fetcher: fetcher, hooks: hooks, logger: logger}
}

type badgeMessage struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Handle answers one raw envelope. It never returns a Go error; failures are encoded in the answer.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) models.MessageResponse {
	var msg models.MessageRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		return failure(common.NewQuoteError("message", "", common.ErrInvalidArgument, err))
	}

	switch msg.Type {
	case models.MessageFetchEstimate:
		p, err := d.fetcher.FetchPayload(ctx, msg.Code)
		if err != nil {
			return d.fail(msg, err)
		}
		return success(p)

	case models.MessageFetchReal:
		q, err := d.fetcher.FetchReal(ctx, msg.Code)
		if err != nil {
			return d.fail(msg, err)
		}
		return success(models.RealPercentData{Percent: q.Percent, Date: q.AsOfDate})

	case models.MessageSearchFund:
		results, err := d.fetcher.SearchFunds(ctx, msg.Keyword)
		if err != nil {
			return d.fail(msg, err)
		}
		return success(results)

	case models.MessageUpdateBadge:
		var b badgeMessage
		if err := json.Unmarshal(raw, &b); err != nil {
			return d.fail(msg, common.NewQuoteError("message", "", common.ErrInvalidArgument, err))
		}
		if d.hooks.UpdateBadge != nil {
			d.hooks.UpdateBadge(models.Badge{Text: b.Text, Color: b.Color})
		}
		return models.MessageResponse{OK: true}

	case models.MessageHoldingsUpdated:
		if d.hooks.HoldingsUpdated != nil {
			d.hooks.HoldingsUpdated()
		}
		return models.MessageResponse{OK: true}

	default:
		return failure(common.NewQuoteError("message", "", common.ErrInvalidArgument, fmt.Errorf("unknown message type %q", msg.Type)))
	}
}

func (d *Dispatcher) fail(msg models.MessageRequest, err error) models.MessageResponse {
	d.logger.Debug().Err(err).Str("type", msg.Type).Str("code", msg.Code).Msg("Message failed")
	return failure(err)
}

func success(v interface{}) models.MessageResponse {
	data, err := json.Marshal(v)
	if err != nil {
		return failure(common.NewQuoteError("message", "", common.ErrMalformedResponse, err))
	}
	return models.MessageResponse{OK: true, Data: data}
}

func failure(err error) models.MessageResponse {
	return models.MessageResponse{OK: false, Error: err.Error(), Kind: common.ErrorKind(err)}
}
