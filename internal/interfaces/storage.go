package interfaces

import (
	"context"
	"errors"

	"github.com/bobmcallan/fundwatch/internal/models"
)

// ErrNotFound is returned by KVStore.Get for missing keys.
var ErrNotFound = errors.New("key not found")

// KVStore is the raw string key-value backend.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
	Close() error
}

// StorageManager provides typed access to persisted state.
type StorageManager interface {
	LoadHoldings(ctx context.Context) ([]models.Holding, error)
	SaveHoldings(ctx context.Context, holdings []models.Holding) error

	LoadPercentStatus(ctx context.Context) (map[string]models.PercentStatus, error)
	SavePercentStatus(ctx context.Context, status map[string]models.PercentStatus) error

	LoadSortPreference(ctx context.Context) (*models.SortPreference, error)
	SaveSortPreference(ctx context.Context, pref *models.SortPreference) error

	LoadTrend(ctx context.Context) (*models.TrendHistory, error)
	SaveTrend(ctx context.Context, history *models.TrendHistory) error

	Close() error
}
