// Package refresh schedules estimate and real-value fetch cycles and publishes profit snapshots.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/coordinator"
	"github.com/bobmcallan/fundwatch/internal/services/holdings"
)

// ErrCycleRunning is returned when a trigger arrives while another cycle is in flight.
var ErrCycleRunning = errors.New("refresh cycle already running")

// State is the scheduler's activity.
type State int32

const (
	StateIdle State = iota
	StateEstimateCycle
	StateRealCycle
)

func (s State) String() string {
	switch s {
	case StateEstimateCycle:
		return "ESTIMATE_CYCLE"
	case StateRealCycle:
		return "REAL_CYCLE"
	default:
		return "IDLE"
	}
}

// Notice messages.
const (
	NoticeNoCodes      = "no fund codes entered, add a 6-digit code to a holding"
	NoticeNoEstimates  = "no estimated values could be fetched, try again later"
	NoticeNoRealValues = "no values could be fetched, try again later"
)

const defaultRecalcDebounce = 60 * time.Millisecond

// Service implements interfaces.RefreshScheduler.
type Service struct {
	holdings interfaces.HoldingsService
	quotes   interfaces.QuoteClient
	coord    interfaces.RequestCoordinator
	clock    interfaces.SessionClock
	profit   interfaces.ProfitAggregator
	store    interfaces.StorageManager
	logger   *common.Logger

	maxRetries int
	now        func() time.Time
	sinks      []interfaces.SnapshotSink
	recalc     *common.Debouncer

	running atomic.Bool
	state   atomic.Int32

	mu        sync.Mutex
	display   map[string]models.DisplayedPercent
	latest    *models.Snapshot
	realDone  bool
	lastState models.SessionState

	publishMu sync.Mutex
}

// Option configures the scheduler.
type Option func(*Service)

// WithMaxRetries sets the retry bound passed to the coordinator.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRecalcDebounce sets the trailing-edge window for RequestRecalculate.
func WithRecalcDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.recalc = common.NewDebouncer(d, s.recalculate)
		}
	}
}

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSinks registers snapshot subscribers.
func WithSinks(sinks ...interfaces.SnapshotSink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// NewService creates a scheduler. store may be nil, in which case real values are not persisted.
func NewService(
	holdingsSvc interfaces.HoldingsService,
	quotes interfaces.QuoteClient,
	coord interfaces.RequestCoordinator,
	clock interfaces.SessionClock,
	profit interfaces.ProfitAggregator,
	store interfaces.StorageManager,
	logger *common.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	s := &Service{
		holdings:   holdingsSvc,
		quotes:     quotes,
		coord:      coord,
		clock:      clock,
		profit:     profit,
		store:      store,
		logger:     logger,
		maxRetries: 3,
		now:        time.Now,
		display:    make(map[string]models.DisplayedPercent),
	}
	s.recalc = common.NewDebouncer(defaultRecalcDebounce, s.recalculate)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSink registers a snapshot subscriber after construction.
func (s *Service) AddSink(sink interfaces.SnapshotSink) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// State returns the current activity.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Running reports whether a fetch cycle is in flight.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Latest returns the most recent snapshot, or nil before the first cycle.
func (s *Service) Latest() *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// RealDone reports whether every coded holding shows a published value for today.
func (s *Service) RealDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realDone
}

// Displayed returns a copy of the displayed percent per code.
func (s *Service) Displayed() map[string]models.DisplayedPercent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.DisplayedPercent, len(s.display))
	for k, v := range s.display {
		out[k] = v
	}
	return out
}

// Start restores persisted real values and runs the startup cycle.
func (s *Service) Start(ctx context.Context) error {
	now := s.now()

	if !s.clock.EstimateOnly(now) {
		if err := s.restore(ctx, now); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to restore percent status")
		}
	}

	st := s.clock.Current(now)
	s.mu.Lock()
	s.lastState = st
	s.mu.Unlock()

	var err error
	switch {
	case st == models.SessionEstimate:
		_, err = s.RunEstimateCycle(ctx, false)
	case st == models.SessionReal:
		_, err = s.RunRealCycle(ctx, false)
	case s.clock.IsManualRealFetchTime(now) || !s.clock.IsTradingDay(now):
		_, err = s.RunRealCycle(ctx, false)
	default:
		_, err = s.RunEstimateCycle(ctx, false)
	}
	if errors.Is(err, ErrCycleRunning) {
		return nil
	}
	return err
}

func (s *Service) restore(ctx context.Context, now time.Time) error {
	if s.store == nil {
		return nil
	}
	status, err := s.store.LoadPercentStatus(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for code, st := range status {
		if !st.IsReal || math.IsNaN(st.Percent) {
			continue
		}
		s.display[code] = models.DisplayedPercent{Percent: st.Percent, IsReal: true, UpdatedAt: st.Time}
		n++
	}
	s.logger.Debug().Int("restored", n).Msg("Restored real values")
	return nil
}

// Tick is the periodic trigger.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	st := s.clock.Current(now)

	s.mu.Lock()
	prev := s.lastState
	s.lastState = st
	if st == models.SessionEstimate {
		s.realDone = false
	}
	done := s.realDone
	s.mu.Unlock()

	var err error
	switch st {
	case models.SessionEstimate:
		_, err = s.RunEstimateCycle(ctx, false)
	case models.SessionReal:
		if prev != models.SessionReal || !done {
			_, err = s.RunRealCycle(ctx, false)
		}
	}

	if err != nil && !errors.Is(err, ErrCycleRunning) {
		s.logger.Warn().Err(err).Str("session", string(st)).Msg("Periodic refresh failed")
	}
}

// Refresh is the user-initiated trigger. It prefers published values in the real window,
// during manual-real hours and on non-trading days.
func (s *Service) Refresh(ctx context.Context) (*models.Snapshot, error) {
	now := s.now()
	if s.clock.Current(now) == models.SessionReal || s.clock.IsManualRealFetchTime(now) || !s.clock.IsTradingDay(now) {
		return s.RunRealCycle(ctx, true)
	}
	return s.RunEstimateCycle(ctx, true)
}

type fetchResult struct {
	code    string
	percent float64
	real    bool
	err     error
}

// RunEstimateCycle fetches intraday estimates for every coded holding.
// Rows showing a real value are skipped unless estimate-only applies.
func (s *Service) RunEstimateCycle(ctx context.Context, userInitiated bool) (*models.Snapshot, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer s.running.Store(false)
	s.state.Store(int32(StateEstimateCycle))
	defer s.state.Store(int32(StateIdle))

	start := s.now()
	estimateOnly := s.clock.EstimateOnly(start)

	list, err := s.holdings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("estimate cycle: %w", err)
	}

	coded := codes(list)
	if len(coded) == 0 {
		if userInitiated {
			s.notify("warn", NoticeNoCodes)
		}
		return s.publish(ctx, models.CycleEstimate, 0, 0)
	}

	current := s.Displayed()
	var targets []string
	for _, code := range coded {
		if d, ok := current[code]; ok && d.IsReal && !estimateOnly {
			continue
		}
		targets = append(targets, code)
	}

	results := s.fanOut(ctx, targets, s.fetchEstimate)

	now := s.now()
	succeeded := 0
	s.mu.Lock()
	for _, r := range results {
		switch {
		case r.err == nil:
			s.display[r.code] = models.DisplayedPercent{Percent: r.percent, UpdatedAt: now}
			succeeded++
		case estimateOnly:
			s.display[r.code] = models.DisplayedPercent{Percent: 0, UpdatedAt: now}
			succeeded++
		}
	}
	s.mu.Unlock()

	s.logger.Info().
		Int("attempted", len(targets)).
		Int("succeeded", succeeded).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Estimate cycle complete")

	if userInitiated && len(targets) > 0 && succeeded == 0 {
		s.notify("warn", NoticeNoEstimates)
	}
	return s.publish(ctx, models.CycleEstimate, succeeded, len(targets))
}

// RunRealCycle fetches published values, falling back to the estimate for funds
// whose value for the expected date is not out yet.
func (s *Service) RunRealCycle(ctx context.Context, userInitiated bool) (*models.Snapshot, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer s.running.Store(false)
	s.state.Store(int32(StateRealCycle))
	defer s.state.Store(int32(StateIdle))

	start := s.now()
	expected := s.clock.ExpectedTradingDate(start)

	list, err := s.holdings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("real cycle: %w", err)
	}

	coded := codes(list)
	if len(coded) == 0 {
		s.mu.Lock()
		s.realDone = true
		s.mu.Unlock()
		if userInitiated {
			s.notify("warn", NoticeNoCodes)
		}
		return s.publish(ctx, models.CycleReal, 0, 0)
	}

	results := s.fanOut(ctx, coded, func(ctx context.Context, code string) (float64, bool, error) {
		q, err := s.fetchReal(ctx, code, expected)
		if err == nil {
			return q.Percent, true, nil
		}
		s.logger.Debug().Err(err).Str("code", code).Str("kind", common.ErrorKind(err)).Msg("Falling back to estimate")
		return s.fetchEstimate(ctx, code)
	})

	now := s.now()
	succeeded, realCount := 0, 0
	persist := make(map[string]models.PercentStatus)
	s.mu.Lock()
	for _, r := range results {
		if r.err != nil {
			continue
		}
		succeeded++
		s.display[r.code] = models.DisplayedPercent{Percent: r.percent, IsReal: r.real, UpdatedAt: now}
		if r.real {
			realCount++
			persist[r.code] = models.PercentStatus{Percent: r.percent, IsReal: true, Time: now}
		}
	}
	allDone := true
	for _, code := range coded {
		if d, ok := s.display[code]; !ok || !d.IsReal {
			allDone = false
			break
		}
	}
	if allDone {
		s.realDone = true
	}
	s.mu.Unlock()

	if len(persist) > 0 {
		if err := s.savePercentStatus(ctx, persist); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist real values")
		}
	}

	s.logger.Info().
		Int("attempted", len(coded)).
		Int("succeeded", succeeded).
		Int("real", realCount).
		Bool("all_done", allDone).
		Str("expected_date", expected).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Real cycle complete")

	if userInitiated && succeeded == 0 {
		s.notify("warn", NoticeNoRealValues)
	}
	return s.publish(ctx, models.CycleReal, succeeded, len(coded))
}

func (s *Service) fetchEstimate(ctx context.Context, code string) (float64, bool, error) {
	q, err := s.coord.Do(ctx, coordinator.Key(models.KindEstimate, code), func(ctx context.Context) (*models.QuotePercent, error) {
		return s.quotes.FetchEstimate(ctx, code)
	}, s.maxRetries)
	if err != nil {
		return math.NaN(), false, err
	}
	return q.Percent, false, nil
}

// fetchReal returns the published value only when it carries the expected date.
func (s *Service) fetchReal(ctx context.Context, code, expected string) (*models.QuotePercent, error) {
	q, err := s.coord.Do(ctx, coordinator.Key(models.KindReal, code), func(ctx context.Context) (*models.QuotePercent, error) {
		return s.quotes.FetchReal(ctx, code)
	}, s.maxRetries)
	if err != nil {
		return nil, err
	}
	if q.AsOfDate != expected {
		return nil, common.NewQuoteError("real", code, common.ErrNotYetPublished,
			fmt.Errorf("as of %s, expected %s", q.AsOfDate, expected))
	}
	return q, nil
}

func (s *Service) fanOut(ctx context.Context, targets []string, fetch func(context.Context, string) (float64, bool, error)) []fetchResult {
	results := make([]fetchResult, len(targets))
	var wg sync.WaitGroup
	for i, code := range targets {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			p, isReal, err := fetch(ctx, code)
			results[i] = fetchResult{code: code, percent: p, real: isReal, err: err}
			if err != nil {
				s.logger.Debug().Err(err).Str("code", code).Str("kind", common.ErrorKind(err)).Msg("Fetch failed")
			}
		}(i, code)
	}
	wg.Wait()
	return results
}

func (s *Service) savePercentStatus(ctx context.Context, updates map[string]models.PercentStatus) error {
	if s.store == nil {
		return nil
	}
	status, err := s.store.LoadPercentStatus(ctx)
	if err != nil {
		return err
	}
	if status == nil {
		status = make(map[string]models.PercentStatus)
	}
	for code, st := range updates {
		status[code] = st
	}
	return s.store.SavePercentStatus(ctx, status)
}

// RequestRecalculate schedules a debounced aggregation pass without fetching.
func (s *Service) RequestRecalculate() {
	s.recalc.Trigger()
}

// Stop cancels a pending recalculation.
func (s *Service) Stop() {
	s.recalc.Stop()
}

func (s *Service) recalculate() {
	if _, err := s.publish(context.Background(), models.CycleRecalc, 0, 0); err != nil {
		s.logger.Warn().Err(err).Msg("Recalculation failed")
	}
}

// Recalculate runs an aggregation pass immediately.
func (s *Service) Recalculate(ctx context.Context) (*models.Snapshot, error) {
	return s.publish(ctx, models.CycleRecalc, 0, 0)
}

// publish aggregates the displayed values, applies the sort preference and notifies sinks.
func (s *Service) publish(ctx context.Context, kind models.CycleKind, succeeded, attempted int) (*models.Snapshot, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	list, err := s.holdings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	pref, err := s.holdings.SortPreference(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load sort preference")
		pref = nil
	}

	now := s.now()
	result := s.profit.Compute(list, s.Displayed())

	s.mu.Lock()
	snap := &models.Snapshot{
		CycleID:     uuid.New().String(),
		Kind:        kind,
		Session:     s.clock.Current(now),
		Result:      result,
		Order:       holdings.Order(result.Rows, pref),
		Sort:        pref,
		Badge:       s.profit.Badge(result.Totals.TotalProfit),
		Succeeded:   succeeded,
		Attempted:   attempted,
		RealDone:    s.realDone,
		GeneratedAt: now,
	}
	s.latest = snap
	s.mu.Unlock()

	s.logger.Debug().
		Str("cycle_id", snap.CycleID).
		Str("kind", string(kind)).
		Float64("total_profit", result.Totals.TotalProfit).
		Msg("Snapshot published")

	for _, sink := range s.sinks {
		sink.PublishSnapshot(snap)
	}
	return snap, nil
}

func (s *Service) notify(level, message string) {
	n := models.Notice{Level: level, Message: message, Time: s.now()}
	s.publishMu.Lock()
	sinks := s.sinks
	s.publishMu.Unlock()
	for _, sink := range sinks {
		sink.PublishNotice(n)
	}
}

// codes returns the distinct valid codes in holding order.
func codes(list []models.Holding) []string {
	seen := make(map[string]bool, len(list))
	var out []string
	for _, h := range list {
		if h.Code == "" || seen[h.Code] {
			continue
		}
		seen[h.Code] = true
		out = append(out, h.Code)
	}
	return out
}

var _ interfaces.RefreshScheduler = (*Service)(nil)
