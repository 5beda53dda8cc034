package storage

import (
	"fmt"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/storage/badger"
	"github.com/bobmcallan/fundwatch/internal/storage/memory"
)

// Backend type constants.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// NewKVStore creates a key-value store based on the configuration.
// Supported backends: "badger" (default), "memory".
func NewKVStore(logger *common.Logger, config common.StorageConfig) (interfaces.KVStore, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendBadger
	}

	switch backend {
	case BackendBadger:
		if config.Path == "" {
			return nil, fmt.Errorf("badger backend requires storage.path")
		}
		return badger.NewKVStorage(logger, config.Path)

	case BackendMemory:
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: badger, memory)", backend)
	}
}
