// Package storage provides the typed StorageManager over a key-value backend.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
)

// Storage keys. Values are JSON documents.
const (
	KeyHoldings      = "fund_holdings_v1"
	KeyPercentStatus = "fund_percent_status_v1"
	KeySortStatus    = "fund_sort_status_v1"
	KeyTrendHistory  = "fund_trend_history_v1"
)

// Manager implements interfaces.StorageManager.
// Unreadable documents are logged and treated as absent so a corrupt value never blocks startup.
type Manager struct {
	kv     interfaces.KVStore
	logger *common.Logger
}

// NewManager wraps kv.
func NewManager(kv interfaces.KVStore, logger *common.Logger) *Manager {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Manager{kv: kv, logger: logger}
}

// NewManagerFromConfig opens the configured backend.
func NewManagerFromConfig(logger *common.Logger, config *common.Config) (*Manager, error) {
	kv, err := NewKVStore(logger, config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv store: %w", err)
	}

	logger.Info().
		Str("backend", config.Storage.Backend).
		Str("path", config.Storage.Path).
		Msg("Storage manager initialized")

	return NewManager(kv, logger), nil
}

// KV exposes the raw backend.
func (m *Manager) KV() interfaces.KVStore {
	return m.kv
}

// load decodes key into v. It returns false when the key is missing or unreadable.
func (m *Manager) load(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, err := m.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if raw == "" || raw == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Discarding unreadable stored value")
		return false, nil
	}
	return true, nil
}

func (m *Manager) save(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return m.kv.Set(ctx, key, string(data))
}

func (m *Manager) LoadHoldings(ctx context.Context) ([]models.Holding, error) {
	var holdings []models.Holding
	if _, err := m.load(ctx, KeyHoldings, &holdings); err != nil {
		return nil, err
	}
	if holdings == nil {
		holdings = []models.Holding{}
	}
	return holdings, nil
}

func (m *Manager) SaveHoldings(ctx context.Context, holdings []models.Holding) error {
	if holdings == nil {
		holdings = []models.Holding{}
	}
	return m.save(ctx, KeyHoldings, holdings)
}

func (m *Manager) LoadPercentStatus(ctx context.Context) (map[string]models.PercentStatus, error) {
	status := map[string]models.PercentStatus{}
	if _, err := m.load(ctx, KeyPercentStatus, &status); err != nil {
		return nil, err
	}
	if status == nil {
		status = map[string]models.PercentStatus{}
	}
	return status, nil
}

func (m *Manager) SavePercentStatus(ctx context.Context, status map[string]models.PercentStatus) error {
	return m.save(ctx, KeyPercentStatus, status)
}

func (m *Manager) LoadSortPreference(ctx context.Context) (*models.SortPreference, error) {
	var pref models.SortPreference
	ok, err := m.load(ctx, KeySortStatus, &pref)
	if err != nil || !ok || pref.Field == "" {
		return nil, err
	}
	return &pref, nil
}

// SaveSortPreference stores pref; nil clears it.
func (m *Manager) SaveSortPreference(ctx context.Context, pref *models.SortPreference) error {
	if pref == nil {
		return m.kv.Delete(ctx, KeySortStatus)
	}
	return m.save(ctx, KeySortStatus, pref)
}

func (m *Manager) LoadTrend(ctx context.Context) (*models.TrendHistory, error) {
	var h models.TrendHistory
	ok, err := m.load(ctx, KeyTrendHistory, &h)
	if err != nil || !ok {
		return nil, err
	}
	return &h, nil
}

func (m *Manager) SaveTrend(ctx context.Context, history *models.TrendHistory) error {
	if history == nil {
		return m.kv.Delete(ctx, KeyTrendHistory)
	}
	return m.save(ctx, KeyTrendHistory, history)
}

func (m *Manager) Close() error {
	return m.kv.Close()
}

var _ interfaces.StorageManager = (*Manager)(nil)
