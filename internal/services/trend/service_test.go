package trend

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/session"
	"github.com/bobmcallan/fundwatch/internal/storage"
	"github.com/bobmcallan/fundwatch/internal/storage/memory"
)

func newTestService(maxPoints int) *Service {
	return NewService(storage.NewManager(memory.NewStore(), nil), maxPoints, common.NewSilentLogger())
}

func at(day, hour, min, sec int) time.Time {
	return time.Date(2024, 3, day, hour, min, sec, 0, session.China)
}

func TestRecord_ReplacesSameMinute(t *testing.T) {
	svc := newTestService(0)
	ctx := context.Background()

	_, err := svc.Record(ctx, at(5, 10, 0, 5), 10)
	require.NoError(t, err)
	_, err = svc.Record(ctx, at(5, 10, 0, 50), 12)
	require.NoError(t, err)
	h, err := svc.Record(ctx, at(5, 10, 1, 0), 15)
	require.NoError(t, err)

	require.Len(t, h.Points, 2)
	assert.Equal(t, models.TrendPoint{Time: "10:00", Profit: 12}, h.Points[0])
	assert.Equal(t, "10:01", h.Points[1].Time)
	assert.Equal(t, "2024-03-05", h.Date)
}

func TestRecord_ResetsOnNewDay(t *testing.T) {
	svc := newTestService(0)
	ctx := context.Background()

	svc.Record(ctx, at(5, 14, 0, 0), 100)
	h, err := svc.Record(ctx, at(6, 9, 30, 0), -5)
	require.NoError(t, err)
	require.Len(t, h.Points, 1)
	assert.Equal(t, "2024-03-06", h.Date)
}

func TestRecord_CapsLength(t *testing.T) {
	svc := newTestService(3)
	ctx := context.Background()

	var h *models.TrendHistory
	for i := 0; i < 5; i++ {
		h, _ = svc.Record(ctx, at(5, 10, i, 0), float64(i))
	}
	require.Len(t, h.Points, 3)
	assert.Equal(t, "10:02", h.Points[0].Time)
	assert.Equal(t, "10:04", h.Points[2].Time)
}

func TestHistory_StaleDayReadsEmpty(t *testing.T) {
	svc := newTestService(0)
	ctx := context.Background()
	svc.Record(ctx, at(5, 10, 0, 0), 1)

	h, err := svc.History(ctx, at(6, 8, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, h.Points)
	assert.Equal(t, "2024-03-06", h.Date)
}

func TestPublishSnapshot_RecordsTotal(t *testing.T) {
	svc := newTestService(0)
	snap := &models.Snapshot{GeneratedAt: at(5, 11, 0, 0)}
	snap.Result.Totals.TotalProfit = 42.5
	svc.PublishSnapshot(snap)

	h, err := svc.History(context.Background(), at(5, 11, 5, 0))
	require.NoError(t, err)
	require.Len(t, h.Points, 1)
	assert.Equal(t, 42.5, h.Points[0].Profit)
}

func TestRenderChart(t *testing.T) {
	_, err := RenderChart(&models.TrendHistory{Date: "2024-03-05"})
	assert.True(t, errors.Is(err, ErrNoData))

	png, err := RenderChart(&models.TrendHistory{
		Date: "2024-03-05",
		Points: []models.TrendPoint{
			{Time: "09:30", Profit: 10},
			{Time: "10:00", Profit: -20},
			{Time: "10:30", Profit: 35},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	single, err := RenderChart(&models.TrendHistory{Date: "2024-03-05", Points: []models.TrendPoint{{Time: "09:30", Profit: 5}}})
	require.NoError(t, err)
	assert.NotEmpty(t, single)
}
