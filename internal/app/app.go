// Package app wires configuration, storage, quote clients and services into one runtime.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/fundwatch/internal/clients/eastmoney"
	"github.com/bobmcallan/fundwatch/internal/clients/relay"
	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/coordinator"
	"github.com/bobmcallan/fundwatch/internal/services/events"
	"github.com/bobmcallan/fundwatch/internal/services/holdings"
	"github.com/bobmcallan/fundwatch/internal/services/profit"
	"github.com/bobmcallan/fundwatch/internal/services/refresh"
	"github.com/bobmcallan/fundwatch/internal/services/session"
	"github.com/bobmcallan/fundwatch/internal/services/trend"
	"github.com/bobmcallan/fundwatch/internal/storage"
)

// App holds all initialized services, clients, and the MCP server.
// It is the shared core used by the serve command and the one-shot CLI commands.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	Provider    *eastmoney.Client
	Quotes      interfaces.QuoteClient
	Coordinator *coordinator.Service
	Session     *session.Service
	Profit      *profit.Service
	Holdings    *holdings.Service
	Trend       *trend.Service
	Events      *events.Hub
	Refresh     *refresh.Service
	Dispatcher  *relay.Dispatcher
	MCPServer   *server.MCPServer
	StartupTime time.Time

	now func() time.Time

	mu        sync.Mutex
	hostBadge *models.Badge

	schedulerCancel context.CancelFunc
	cron            *cron.Cron
	schedulerDone   chan struct{}
}

// Option customises App construction.
type Option func(*options)

type options struct {
	quotes interfaces.QuoteClient
	now    func() time.Time
}

// WithQuoteClient replaces the configured quote client.
func WithQuoteClient(q interfaces.QuoteClient) Option {
	return func(o *options) {
		o.quotes = q
	}
}

// WithClock injects the wall clock used by the scheduler.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: explicit path, FUNDWATCH_CONFIG, binary dir, then config/.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FUNDWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "fundwatch.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/fundwatch.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and initializes every component.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string, opts ...Option) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)
	return New(config, logger, opts...)
}

// New initializes every component from an already loaded configuration.
func New(config *common.Config, logger *common.Logger, opts ...Option) (*App, error) {
	startupStart := time.Now()

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	storageManager, err := storage.NewManagerFromConfig(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emCfg := config.Clients.Eastmoney
	provider := eastmoney.NewClientFromConfig(emCfg, logger.WithComponent("eastmoney"))

	quotes := o.quotes
	if quotes == nil {
		if emCfg.Transport == "relay" {
			quotes = relay.NewClient(emCfg.RelayURL,
				relay.WithLogger(logger.WithComponent("relay")),
				relay.WithTimeout(emCfg.GetTimeout()),
				relay.WithRateLimit(emCfg.RateLimit),
			)
		} else {
			quotes = provider
		}
	}

	sessionClock, err := session.NewService(config.Session)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	coord := coordinator.NewService(config.Refresh.GetRetryDelay(), logger.WithComponent("coordinator"))
	profitSvc := profit.NewService()
	holdingsSvc := holdings.NewService(storageManager, quotes, logger.WithComponent("holdings"))
	trendSvc := trend.NewService(storageManager, config.Refresh.TrendMaxPoints, logger.WithComponent("trend"))
	hub := events.NewHub(logger.WithComponent("events"))

	refreshSvc := refresh.NewService(holdingsSvc, quotes, coord, sessionClock, profitSvc, storageManager,
		logger.WithComponent("refresh"),
		refresh.WithMaxRetries(config.Refresh.MaxRetries),
		refresh.WithRecalcDebounce(config.Refresh.GetRecalcDebounce()),
		refresh.WithClock(o.now),
		refresh.WithSinks(trendSvc, hub),
	)
	holdingsSvc.OnChange(refreshSvc.RequestRecalculate)

	mcpServer := server.NewMCPServer(
		"fundwatch",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Provider:    provider,
		Quotes:      quotes,
		Coordinator: coord,
		Session:     sessionClock,
		Profit:      profitSvc,
		Holdings:    holdingsSvc,
		Trend:       trendSvc,
		Events:      hub,
		Refresh:     refreshSvc,
		MCPServer:   mcpServer,
		StartupTime: startupStart,
		now:         o.now,
	}

	a.Dispatcher = relay.NewDispatcher(provider, relay.Hooks{
		UpdateBadge:     a.setHostBadge,
		HoldingsUpdated: refreshSvc.RequestRecalculate,
	}, logger.WithComponent("dispatcher"))

	a.registerTools()

	logger.Info().
		Str("transport", emCfg.Transport).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Now returns the app's wall-clock time.
func (a *App) Now() time.Time {
	return a.now()
}

func (a *App) setHostBadge(b models.Badge) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hostBadge = &b
	a.Logger.Debug().Str("text", b.Text).Str("color", b.Color).Msg("Host badge updated")
}

// HostBadge returns the last badge pushed through the messaging endpoint, if any.
func (a *App) HostBadge() *models.Badge {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostBadge
}

// Snapshot returns the latest published snapshot, aggregating on demand before the first cycle.
func (a *App) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	if snap := a.Refresh.Latest(); snap != nil {
		return snap, nil
	}
	return a.Refresh.Recalculate(ctx)
}

// Close releases all resources held by the App.
// Shutdown order: stop schedulers, stop the event hub, close storage.
func (a *App) Close() {
	a.StopScheduler()
	if a.Refresh != nil {
		a.Refresh.Stop()
	}
	if a.Events != nil {
		a.Events.Stop()
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.Storage = nil
	}
}
