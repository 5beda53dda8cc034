// Package trend keeps the same-day total profit curve.
package trend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/session"
)

// DefaultMaxPoints covers a full day at one point per minute across both windows.
const DefaultMaxPoints = 480

// Service records one point per minute and resets on a new UTC+8 day.
type Service struct {
	store     interfaces.StorageManager
	maxPoints int
	logger    *common.Logger
	mu        sync.Mutex
}

// NewService creates a trend recorder. maxPoints <= 0 uses DefaultMaxPoints.
func NewService(store interfaces.StorageManager, maxPoints int, logger *common.Logger) *Service {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{store: store, maxPoints: maxPoints, logger: logger}
}

// Record appends {HH:MM, profit}, replacing a point already recorded for the same minute.
func (s *Service) Record(ctx context.Context, now time.Time, profit float64) (*models.TrendHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := now.In(session.China)
	today := local.Format("2006-01-02")
	point := models.TrendPoint{Time: local.Format("15:04"), Profit: profit}

	h, err := s.store.LoadTrend(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trend: %w", err)
	}
	if h == nil || h.Date != today {
		h = &models.TrendHistory{Date: today}
	}

	if n := len(h.Points); n > 0 && h.Points[n-1].Time == point.Time {
		h.Points[n-1] = point
	} else {
		h.Points = append(h.Points, point)
	}
	if len(h.Points) > s.maxPoints {
		h.Points = append([]models.TrendPoint(nil), h.Points[len(h.Points)-s.maxPoints:]...)
	}

	if err := s.store.SaveTrend(ctx, h); err != nil {
		return nil, fmt.Errorf("save trend: %w", err)
	}
	return h, nil
}

// History returns today's curve; a stored curve from another day reads as empty.
func (s *Service) History(ctx context.Context, now time.Time) (*models.TrendHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := now.In(session.China).Format("2006-01-02")
	h, err := s.store.LoadTrend(ctx)
	if err != nil {
		return nil, err
	}
	if h == nil || h.Date != today {
		return &models.TrendHistory{Date: today, Points: []models.TrendPoint{}}, nil
	}
	return h, nil
}

// PublishSnapshot records the snapshot's total profit.
func (s *Service) PublishSnapshot(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	if _, err := s.Record(context.Background(), snap.GeneratedAt, snap.Result.Totals.TotalProfit); err != nil {
		s.logger.Warn().Err(err).Str("cycle_id", snap.CycleID).Msg("Failed to record trend point")
	}
}

// PublishNotice is a no-op; notices do not affect the curve.
func (s *Service) PublishNotice(models.Notice) {}

var _ interfaces.SnapshotSink = (*Service)(nil)
