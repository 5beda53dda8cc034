package holdings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bobmcallan/fundwatch/internal/models"
)

// ConfigVersion is the only export format understood by Import.
const ConfigVersion = 1

// ExportedConfig is the portable holdings document.
type ExportedConfig struct {
	Version    int              `json:"version"`
	ExportDate string           `json:"exportDate"`
	Holdings   []models.Holding `json:"holdings"`
}

// Export snapshots the current holdings.
func (s *Service) Export(ctx context.Context) (*ExportedConfig, error) {
	list, err := s.store.LoadHoldings(ctx)
	if err != nil {
		return nil, err
	}
	return &ExportedConfig{
		Version:    ConfigVersion,
		ExportDate: s.now().Format("2006-01-02 15:04:05"),
		Holdings:   list,
	}, nil
}

// Import replaces all holdings with the document's list.
func (s *Service) Import(ctx context.Context, data []byte) ([]models.Holding, error) {
	var cfg ExportedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config document: %w", err)
	}
	if cfg.Holdings == nil {
		return nil, fmt.Errorf("invalid config document: missing holdings")
	}
	if cfg.Version > ConfigVersion {
		return nil, fmt.Errorf("unsupported config version %d", cfg.Version)
	}
	return s.ReplaceAll(ctx, cfg.Holdings)
}
