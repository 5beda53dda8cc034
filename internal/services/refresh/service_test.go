package refresh

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/coordinator"
	"github.com/bobmcallan/fundwatch/internal/services/holdings"
	"github.com/bobmcallan/fundwatch/internal/services/profit"
	"github.com/bobmcallan/fundwatch/internal/services/session"
	"github.com/bobmcallan/fundwatch/internal/storage"
	"github.com/bobmcallan/fundwatch/internal/storage/memory"
)

// --- Mocks ---

type mockQuotes struct {
	mu            sync.Mutex
	estimates     map[string]float64
	reals         map[string]models.QuotePercent
	estimateCalls map[string]int
	realCalls     map[string]int
	block         chan struct{}
	entered       chan struct{}
}

func newMockQuotes() *mockQuotes {
	return &mockQuotes{
		estimates:     map[string]float64{},
		reals:         map[string]models.QuotePercent{},
		estimateCalls: map[string]int{},
		realCalls:     map[string]int{},
	}
}

func (m *mockQuotes) FetchEstimate(ctx context.Context, code string) (*models.QuotePercent, error) {
	if m.block != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimateCalls[code]++
	p, ok := m.estimates[code]
	if !ok {
		return nil, common.NewQuoteError("estimate", code, common.ErrMalformedResponse, nil)
	}
	return &models.QuotePercent{Code: code, Percent: p, Kind: models.KindEstimate}, nil
}

func (m *mockQuotes) FetchReal(_ context.Context, code string) (*models.QuotePercent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realCalls[code]++
	q, ok := m.reals[code]
	if !ok {
		return nil, common.NewQuoteError("real", code, common.ErrMalformedResponse, nil)
	}
	return &q, nil
}

func (m *mockQuotes) FetchInfo(_ context.Context, code string) (*models.FundInfo, error) {
	return nil, common.NewQuoteError("info", code, common.ErrMalformedResponse, nil)
}

func (m *mockQuotes) SearchFunds(_ context.Context, _ string) ([]models.FundSearchResult, error) {
	return nil, nil
}

func (m *mockQuotes) setEstimate(code string, p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimates[code] = p
}

func (m *mockQuotes) clearEstimates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimates = map[string]float64{}
}

func (m *mockQuotes) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.estimateCalls {
		n += c
	}
	for _, c := range m.realCalls {
		n += c
	}
	return n
}

func (m *mockQuotes) realCallCount(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realCalls[code]
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
	notices   []models.Notice
}

func (r *recordingSink) PublishSnapshot(s *models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recordingSink) PublishNotice(n models.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingSink) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func (r *recordingSink) countKind(kind models.CycleKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.snapshots {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	svc    *Service
	quotes *mockQuotes
	sink   *recordingSink
	clock  *clock
	store  *storage.Manager
	hold   *holdings.Service
}

// 2024-03-04 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, 3, day, hour, minute, 0, 0, session.China)
}

func newFixture(t *testing.T, start time.Time, rows ...models.Holding) *fixture {
	t.Helper()
	store := storage.NewManager(memory.NewStore(), common.NewSilentLogger())
	hold := holdings.NewService(store, nil, nil)
	if len(rows) > 0 {
		_, err := hold.ReplaceAll(context.Background(), rows)
		require.NoError(t, err)
	}

	quotes := newMockQuotes()
	sink := &recordingSink{}
	clk := &clock{t: start}

	svc := NewService(hold, quotes, coordinator.NewService(0, nil), session.NewDefaultService(),
		profit.NewService(), store, nil,
		WithMaxRetries(0),
		WithClock(clk.now),
		WithSinks(sink),
		WithRecalcDebounce(10*time.Millisecond),
	)
	return &fixture{svc: svc, quotes: quotes, sink: sink, clock: clk, store: store, hold: hold}
}

func twoFunds() []models.Holding {
	return []models.Holding{
		{Name: "161725  招商中证白酒指数", Code: "161725", CapitalA: 1000, CapitalB: 1000},
		{Name: "005827  易方达蓝筹精选", Code: "005827", CapitalA: 500},
	}
}

func rowFor(t *testing.T, snap *models.Snapshot, code string) models.ProfitRow {
	t.Helper()
	for _, r := range snap.Result.Rows {
		if r.Code == code {
			return r
		}
	}
	t.Fatalf("no row for %s", code)
	return models.ProfitRow{}
}

// --- Tests ---

func TestRunEstimateCycle_Aggregates(t *testing.T) {
	f := newFixture(t, at(4, 10, 0), twoFunds()...)
	f.quotes.setEstimate("161725", 1.5)
	f.quotes.setEstimate("005827", -2)

	snap, err := f.svc.RunEstimateCycle(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, models.CycleEstimate, snap.Kind)
	assert.Equal(t, models.SessionEstimate, snap.Session)
	assert.Equal(t, 2, snap.Succeeded)
	assert.Equal(t, 2, snap.Attempted)
	assert.InDelta(t, 30-10, snap.Result.Totals.TotalProfit, 1e-9)
	assert.InDelta(t, 2500, snap.Result.Totals.TotalCapital, 1e-9)
	assert.Equal(t, "20", snap.Badge.Text)
	assert.Same(t, snap, f.svc.Latest())
	assert.Equal(t, 1, f.sink.countKind(models.CycleEstimate))
	assert.Equal(t, 0, f.sink.noticeCount())
	assert.Equal(t, StateIdle, f.svc.State())
}

func TestRunEstimateCycle_AppliesSortPreference(t *testing.T) {
	f := newFixture(t, at(4, 10, 0), twoFunds()...)
	f.quotes.setEstimate("161725", -1)
	f.quotes.setEstimate("005827", 3)
	require.NoError(t, f.hold.SetSortPreference(context.Background(),
		&models.SortPreference{Field: models.SortByPercent, Order: models.SortDesc}))

	snap, err := f.svc.RunEstimateCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, snap.Order)
	require.NotNil(t, snap.Sort)
}

func TestRunEstimateCycle_EmptyCodeMakesNoCall(t *testing.T) {
	f := newFixture(t, at(4, 10, 0), models.Holding{Name: "my fund", CapitalA: 100})

	snap, err := f.svc.RunEstimateCycle(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 0, f.quotes.totalCalls())
	require.Len(t, snap.Result.Rows, 1)
	assert.True(t, math.IsNaN(snap.Result.Rows[0].Percent))
	assert.Zero(t, snap.Result.Totals.TotalProfit)
	require.Equal(t, 1, f.sink.noticeCount())
	assert.Equal(t, NoticeNoCodes, f.sink.notices[0].Message)
}

func TestRunEstimateCycle_FailureKeepsPreviousValue(t *testing.T) {
	// Saturday: estimate-only does not apply.
	f := newFixture(t, at(9, 10, 0), twoFunds()...)
	f.quotes.setEstimate("161725", 1)
	f.quotes.setEstimate("005827", 1)
	_, err := f.svc.RunEstimateCycle(context.Background(), false)
	require.NoError(t, err)

	f.quotes.clearEstimates()
	snap, err := f.svc.RunEstimateCycle(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Succeeded)
	assert.InDelta(t, 1, rowFor(t, snap, "161725").Percent, 1e-9)
	assert.Equal(t, 0, f.sink.noticeCount(), "background cycles stay silent")
}

func TestRunEstimateCycle_EstimateOnlyFailureResetsToZero(t *testing.T) {
	f := newFixture(t, at(4, 10, 0), twoFunds()...)
	f.quotes.setEstimate("161725", 2)
	f.quotes.setEstimate("005827", 2)
	_, err := f.svc.RunEstimateCycle(context.Background(), false)
	require.NoError(t, err)

	f.quotes.clearEstimates()
	snap, err := f.svc.RunEstimateCycle(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Succeeded)
	assert.Equal(t, 0.0, rowFor(t, snap, "161725").Percent)
	assert.Zero(t, snap.Result.Totals.TotalProfit)
	assert.Equal(t, 0, f.sink.noticeCount())
}

func TestRunEstimateCycle_NoticeOnlyWhenUserInitiated(t *testing.T) {
	f := newFixture(t, at(9, 10, 0), twoFunds()...)

	_, err := f.svc.RunEstimateCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, f.sink.noticeCount())

	_, err = f.svc.RunEstimateCycle(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, f.sink.noticeCount())
	assert.Equal(t, NoticeNoEstimates, f.sink.notices[0].Message)
}

func TestRunEstimateCycle_SkipsRealRowsOutsideEstimateOnly(t *testing.T) {
	f := newFixture(t, at(9, 10, 0), twoFunds()...)
	f.quotes.reals["161725"] = models.QuotePercent{Code: "161725", Percent: 0.8, Kind: models.KindReal, AsOfDate: "2024-03-08"}
	f.quotes.setEstimate("005827", 1)
	_, err := f.svc.RunRealCycle(context.Background(), false)
	require.NoError(t, err)

	f.quotes.setEstimate("161725", 5)
	snap, err := f.svc.RunEstimateCycle(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Attempted)
	row := rowFor(t, snap, "161725")
	assert.True(t, row.IsReal)
	assert.InDelta(t, 0.8, row.Percent, 1e-9)
}

func TestRunRealCycle_StaleDateFallsBackToEstimate(t *testing.T) {
	f := newFixture(t, at(4, 19, 0), twoFunds()...)
	f.quotes.reals["161725"] = models.QuotePercent{Code: "161725", Percent: 1.1, Kind: models.KindReal, AsOfDate: "2024-03-04"}
	f.quotes.reals["005827"] = models.QuotePercent{Code: "005827", Percent: 9.9, Kind: models.KindReal, AsOfDate: "2024-03-01"}
	f.quotes.setEstimate("005827", -0.5)

	snap, err := f.svc.RunRealCycle(context.Background(), false)
	require.NoError(t, err)

	fresh := rowFor(t, snap, "161725")
	assert.True(t, fresh.IsReal)
	assert.InDelta(t, 1.1, fresh.Percent, 1e-9)

	stale := rowFor(t, snap, "005827")
	assert.False(t, stale.IsReal)
	assert.InDelta(t, -0.5, stale.Percent, 1e-9)

	assert.False(t, snap.RealDone)
	assert.False(t, f.svc.RealDone())

	status, err := f.store.LoadPercentStatus(context.Background())
	require.NoError(t, err)
	require.Contains(t, status, "161725")
	assert.NotContains(t, status, "005827")
	assert.True(t, status["161725"].IsReal)
}

func TestRunRealCycle_AllDoneStopsPolling(t *testing.T) {
	f := newFixture(t, at(4, 18, 30), twoFunds()...)
	f.quotes.reals["161725"] = models.QuotePercent{Code: "161725", Percent: 1, AsOfDate: "2024-03-04"}
	f.quotes.reals["005827"] = models.QuotePercent{Code: "005827", Percent: 2, AsOfDate: "2024-03-04"}

	ctx := context.Background()
	f.svc.Tick(ctx, at(4, 18, 30))
	assert.True(t, f.svc.RealDone())
	assert.Equal(t, 1, f.quotes.realCallCount("161725"))

	f.svc.Tick(ctx, at(4, 18, 31))
	assert.Equal(t, 1, f.quotes.realCallCount("161725"), "done real window stops polling")

	// The next morning's estimate window resets the marker.
	f.clock.set(at(5, 9, 30))
	f.quotes.setEstimate("161725", 0.1)
	f.quotes.setEstimate("005827", 0.2)
	f.svc.Tick(ctx, at(5, 9, 30))
	assert.False(t, f.svc.RealDone())
}

func TestRunRealCycle_NoCodesIsDone(t *testing.T) {
	f := newFixture(t, at(4, 19, 0))
	snap, err := f.svc.RunRealCycle(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, snap.RealDone)
	assert.Equal(t, 0, f.sink.noticeCount())
}

func TestTick_PausedDoesNothing(t *testing.T) {
	f := newFixture(t, at(4, 16, 0), twoFunds()...)
	f.svc.Tick(context.Background(), at(4, 16, 0))
	assert.Equal(t, 0, f.quotes.totalCalls())
	assert.Nil(t, f.svc.Latest())
}

func TestGuard_OverlappingTriggerIsNoop(t *testing.T) {
	f := newFixture(t, at(4, 10, 0), twoFunds()[:1]...)
	f.quotes.setEstimate("161725", 1)
	f.quotes.block = make(chan struct{})
	f.quotes.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RunEstimateCycle(context.Background(), false)
		done <- err
	}()

	select {
	case <-f.quotes.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never started")
	}
	assert.True(t, f.svc.Running())
	assert.Equal(t, StateEstimateCycle, f.svc.State())

	_, err := f.svc.RunRealCycle(context.Background(), true)
	assert.ErrorIs(t, err, ErrCycleRunning)
	_, err = f.svc.RunEstimateCycle(context.Background(), true)
	assert.ErrorIs(t, err, ErrCycleRunning)

	close(f.quotes.block)
	require.NoError(t, <-done)
	assert.False(t, f.svc.Running())
	assert.Equal(t, 1, f.sink.countKind(models.CycleEstimate))
}

func TestRefresh_ChoosesCycle(t *testing.T) {
	f := newFixture(t, at(4, 10, 0), twoFunds()...)
	f.quotes.setEstimate("161725", 1)
	f.quotes.setEstimate("005827", 1)

	snap, err := f.svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CycleEstimate, snap.Kind)

	// Saturday is not a trading day.
	f.clock.set(at(9, 11, 0))
	snap, err = f.svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CycleReal, snap.Kind)

	// Weekday after the evening window counts as manual-real time.
	f.clock.set(at(5, 23, 0))
	snap, err = f.svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CycleReal, snap.Kind)
}

func TestStart_RestoresRealValues(t *testing.T) {
	f := newFixture(t, at(4, 8, 0), twoFunds()...)
	require.NoError(t, f.store.SavePercentStatus(context.Background(), map[string]models.PercentStatus{
		"161725": {Percent: 1.2, IsReal: true, Time: at(1, 20, 0)},
	}))

	require.NoError(t, f.svc.Start(context.Background()))

	snap := f.svc.Latest()
	require.NotNil(t, snap)
	assert.Equal(t, models.CycleReal, snap.Kind)
	row := rowFor(t, snap, "161725")
	assert.True(t, row.IsReal)
	assert.InDelta(t, 1.2, row.Percent, 1e-9)
	assert.InDelta(t, 24, snap.Result.Totals.TotalProfit, 1e-9)
}

func TestStart_EstimateOnlySkipsRestore(t *testing.T) {
	f := newFixture(t, at(4, 10, 0), twoFunds()...)
	require.NoError(t, f.store.SavePercentStatus(context.Background(), map[string]models.PercentStatus{
		"161725": {Percent: 1.2, IsReal: true},
	}))
	f.quotes.setEstimate("161725", 0.3)
	f.quotes.setEstimate("005827", 0.3)

	require.NoError(t, f.svc.Start(context.Background()))

	snap := f.svc.Latest()
	require.NotNil(t, snap)
	assert.Equal(t, models.CycleEstimate, snap.Kind)
	row := rowFor(t, snap, "161725")
	assert.False(t, row.IsReal)
	assert.InDelta(t, 0.3, row.Percent, 1e-9)
}

func TestRequestRecalculate_Coalesces(t *testing.T) {
	f := newFixture(t, at(4, 10, 0), twoFunds()...)

	for i := 0; i < 5; i++ {
		f.svc.RequestRecalculate()
	}

	assert.Eventually(t, func() bool {
		return f.sink.countKind(models.CycleRecalc) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.sink.countKind(models.CycleRecalc))
	assert.Equal(t, 0, f.quotes.totalCalls())
}
