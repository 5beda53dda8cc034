package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/fundwatch/internal/models"
)

// QuoteOp is a single attempt at a coordinated fetch.
type QuoteOp func(ctx context.Context) (*models.QuotePercent, error)

// RequestCoordinator coalesces concurrent identical requests and retries transient failures.
type RequestCoordinator interface {
	Do(ctx context.Context, key string, op QuoteOp, maxRetries int) (*models.QuotePercent, error)
}

// SessionClock maps wall-clock time to market phases in UTC+8.
type SessionClock interface {
	Current(now time.Time) models.SessionState
	IsTradingDay(now time.Time) bool
	EstimateOnly(now time.Time) bool
	IsManualRealFetchTime(now time.Time) bool
	ExpectedTradingDate(now time.Time) string
	Today(now time.Time) string
	Info(now time.Time) models.SessionInfo
}

// ProfitAggregator computes per-row and total daily profit.
type ProfitAggregator interface {
	Compute(holdings []models.Holding, percents map[string]models.DisplayedPercent) models.AggregateResult
	Badge(totalProfit float64) models.Badge
}

// HoldingsService manages the user's fund list.
type HoldingsService interface {
	List(ctx context.Context) ([]models.Holding, error)
	Add(ctx context.Context, h models.Holding) (*models.Holding, error)
	Update(ctx context.Context, h models.Holding) (*models.Holding, error)
	Remove(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, holdings []models.Holding) ([]models.Holding, error)
	SortPreference(ctx context.Context) (*models.SortPreference, error)
	SetSortPreference(ctx context.Context, pref *models.SortPreference) error
	CycleSort(ctx context.Context, field models.SortField) (*models.SortPreference, error)
}

// SnapshotSink receives every published snapshot and notice.
type SnapshotSink interface {
	PublishSnapshot(snap *models.Snapshot)
	PublishNotice(notice models.Notice)
}

// RefreshScheduler runs the fetch cycles.
type RefreshScheduler interface {
	Start(ctx context.Context) error
	Tick(ctx context.Context, now time.Time)
	Refresh(ctx context.Context) (*models.Snapshot, error)
	RunEstimateCycle(ctx context.Context, userInitiated bool) (*models.Snapshot, error)
	RunRealCycle(ctx context.Context, userInitiated bool) (*models.Snapshot, error)
	RequestRecalculate()
	Latest() *models.Snapshot
	Running() bool
}
