// Package coordinator coalesces concurrent identical quote requests and retries transient failures.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
)

// DefaultRetryDelay separates attempts.
const DefaultRetryDelay = time.Second

// Service implements interfaces.RequestCoordinator.
//
// Callers sharing a key share the first attempt. Retries run under their own
// sub-keys (key#retry-N), so a caller arriving during a retry joins that retry
// instead of starting the whole sequence again.
type Service struct {
	group      singleflight.Group
	retryDelay time.Duration
	logger     *common.Logger
}

// NewService creates a coordinator.
func NewService(retryDelay time.Duration, logger *common.Logger) *Service {
	if retryDelay < 0 {
		retryDelay = 0
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{retryDelay: retryDelay, logger: logger}
}

// Do runs op under key, retrying up to maxRetries times on Timeout or TransportFailure.
// Non-transient failures are returned after the first attempt.
//
// The shared attempt runs on the ctx of the caller that started it. A joining caller
// stops waiting when its own ctx ends, without cancelling the attempt for others.
func (s *Service) Do(ctx context.Context, key string, op interfaces.QuoteOp, maxRetries int) (*models.QuotePercent, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	return s.share(ctx, key, func() (interface{}, error) {
		return s.attempt(ctx, key, op, 0, maxRetries)
	})
}

// share runs fn once per in-flight key and waits for it or for ctx, whichever ends first.
func (s *Service) share(ctx context.Context, key string, fn func() (interface{}, error)) (*models.QuotePercent, error) {
	ch := s.group.DoChan(key, fn)
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wait %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Shared {
			s.logger.Debug().Str("key", key).Msg("Joined in-flight request")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.QuotePercent), nil
	}
}

// attempt runs op once and on transient failure schedules the next attempt under its own sub-key.
func (s *Service) attempt(ctx context.Context, key string, op interfaces.QuoteOp, n, maxRetries int) (*models.QuotePercent, error) {
	q, err := op(ctx)
	if err == nil {
		if q == nil {
			return nil, common.NewQuoteError("coordinate", key, common.ErrMalformedResponse, fmt.Errorf("nil result"))
		}
		return q, nil
	}

	if !common.IsTransient(err) || n >= maxRetries {
		s.logger.Debug().Err(err).Str("key", key).Int("attempt", n+1).Str("kind", common.ErrorKind(err)).Msg("Request failed")
		return nil, err
	}

	s.logger.Debug().Err(err).Str("key", key).Int("attempt", n+1).Dur("delay", s.retryDelay).Msg("Retrying request")

	if err := sleep(ctx, s.retryDelay); err != nil {
		return nil, fmt.Errorf("retry %s: %w", key, err)
	}

	retryKey := fmt.Sprintf("%s#retry-%d", key, n+1)
	return s.share(ctx, retryKey, func() (interface{}, error) {
		return s.attempt(ctx, key, op, n+1, maxRetries)
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Key builds the coordination key for a fund code and quote kind.
func Key(kind models.QuoteKind, code string) string {
	return string(kind) + ":" + code
}

var _ interfaces.RequestCoordinator = (*Service)(nil)
