package server

import (
	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// setupRoutes registers all REST API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// System
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/version", s.handleVersion)
	r.Get("/api/session", s.handleSession)

	// Holdings
	r.Route("/api/holdings", func(r chi.Router) {
		r.Get("/", s.handleHoldingsList)
		r.Put("/", s.handleHoldingsReplace)
		r.Post("/", s.handleHoldingAdd)
		r.Get("/export", s.handleHoldingsExport)
		r.Post("/import", s.handleHoldingsImport)
		r.Post("/from-search", s.handleHoldingsFromSearch)
		r.Put("/{id}", s.handleHoldingUpdate)
		r.Delete("/{id}", s.handleHoldingDelete)
	})

	// Profit
	r.Get("/api/profit", s.handleProfit)
	r.Post("/api/refresh", s.handleRefresh)
	r.Get("/api/badge", s.handleBadge)
	r.Get("/api/report", s.handleReport)

	// Sorting
	r.Get("/api/sort", s.handleSortGet)
	r.Put("/api/sort", s.handleSortSet)
	r.Post("/api/sort/cycle", s.handleSortCycle)

	// Trend
	r.Get("/api/trend", s.handleTrend)
	r.Get("/api/trend/chart.png", s.handleTrendChart)

	// Funds
	r.Get("/api/search", s.handleSearch)

	// Host messaging, live events and MCP
	r.Post("/api/message", s.handleMessage)
	r.Get("/api/ws", s.app.Events.ServeWS)
	r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.app.MCPServer,
		mcpserver.WithStateLess(true),
	))
}
