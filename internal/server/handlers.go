package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/holdings"
	"github.com/bobmcallan/fundwatch/internal/services/refresh"
	"github.com/bobmcallan/fundwatch/internal/services/report"
	"github.com/bobmcallan/fundwatch/internal/services/trend"
)

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
		"clients": s.app.Events.ClientCount(),
	})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, common.VersionInfo())
}

// handleSession handles GET /api/session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session":   s.app.Session.Info(s.app.Now()),
		"state":     s.app.Refresh.State().String(),
		"running":   s.app.Refresh.Running(),
		"real_done": s.app.Refresh.RealDone(),
	})
}

// handleHoldingsList handles GET /api/holdings.
func (s *Server) handleHoldingsList(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.Holdings.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.Holding{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// handleHoldingsReplace handles PUT /api/holdings: save the whole table.
func (s *Server) handleHoldingsReplace(w http.ResponseWriter, r *http.Request) {
	var list []models.Holding
	if !DecodeJSON(w, r, &list) {
		return
	}
	saved, err := s.app.Holdings.ReplaceAll(r.Context(), list)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, saved)
}

// handleHoldingAdd handles POST /api/holdings.
func (s *Server) handleHoldingAdd(w http.ResponseWriter, r *http.Request) {
	var h models.Holding
	if !DecodeJSON(w, r, &h) {
		return
	}
	added, err := s.app.Holdings.Add(r.Context(), h)
	if err != nil {
		writeHoldingError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, added)
}

// handleHoldingUpdate handles PUT /api/holdings/{id}.
func (s *Server) handleHoldingUpdate(w http.ResponseWriter, r *http.Request) {
	var h models.Holding
	if !DecodeJSON(w, r, &h) {
		return
	}
	h.ID = chi.URLParam(r, "id")
	updated, err := s.app.Holdings.Update(r.Context(), h)
	if err != nil {
		writeHoldingError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// handleHoldingDelete handles DELETE /api/holdings/{id}.
func (s *Server) handleHoldingDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Holdings.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeHoldingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHoldingsExport handles GET /api/holdings/export.
func (s *Server) handleHoldingsExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.app.Holdings.Export(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="fundwatch-holdings.json"`)
	WriteJSON(w, http.StatusOK, doc)
}

// handleHoldingsImport handles POST /api/holdings/import.
func (s *Server) handleHoldingsImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read body: "+err.Error())
		return
	}
	list, err := s.app.Holdings.Import(r.Context(), data)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// handleHoldingsFromSearch handles POST /api/holdings/from-search with the selected search results.
func (s *Server) handleHoldingsFromSearch(w http.ResponseWriter, r *http.Request) {
	var picks []models.FundSearchResult
	if !DecodeJSON(w, r, &picks) {
		return
	}
	added, dupes, err := s.app.Holdings.AddFromSearch(r.Context(), picks)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"added": added, "duplicates": dupes})
}

func writeHoldingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, holdings.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, holdings.ErrDuplicateCode):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, holdings.ErrEmptyHolding):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleProfit handles GET /api/profit.
func (s *Server) handleProfit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Snapshot(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// handleRefresh handles POST /api/refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Refresh.Refresh(r.Context())
	if errors.Is(err, refresh.ErrCycleRunning) {
		WriteErrorWithCode(w, http.StatusConflict, err.Error(), "cycle_running")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// handleBadge handles GET /api/badge.
func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Snapshot(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, snap.Badge)
}

// handleReport handles GET /api/report as plain text.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Snapshot(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, report.Summary(snap, s.app.Now()))
}

// handleSortGet handles GET /api/sort.
func (s *Server) handleSortGet(w http.ResponseWriter, r *http.Request) {
	pref, err := s.app.Holdings.SortPreference(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, pref)
}

// handleSortSet handles PUT /api/sort. A null body restores stored order.
func (s *Server) handleSortSet(w http.ResponseWriter, r *http.Request) {
	var pref *models.SortPreference
	if !DecodeJSON(w, r, &pref) {
		return
	}
	if pref != nil && !validSort(pref.Field, pref.Order) {
		WriteError(w, http.StatusBadRequest, "field must be percent or profit and order desc or asc")
		return
	}
	if err := s.app.Holdings.SetSortPreference(r.Context(), pref); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, pref)
}

// handleSortCycle handles POST /api/sort/cycle: none → desc → asc → none.
func (s *Server) handleSortCycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field models.SortField `json:"field"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !validSort(req.Field, models.SortDesc) {
		WriteError(w, http.StatusBadRequest, "field must be percent or profit")
		return
	}
	pref, err := s.app.Holdings.CycleSort(r.Context(), req.Field)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, pref)
}

func validSort(field models.SortField, order models.SortOrder) bool {
	return (field == models.SortByPercent || field == models.SortByProfit) &&
		(order == models.SortDesc || order == models.SortAsc)
}

// handleTrend handles GET /api/trend.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	h, err := s.app.Trend.History(r.Context(), s.app.Now())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h)
}

// handleTrendChart handles GET /api/trend/chart.png.
func (s *Server) handleTrendChart(w http.ResponseWriter, r *http.Request) {
	h, err := s.app.Trend.History(r.Context(), s.app.Now())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	png, err := trend.RenderChart(h)
	if errors.Is(err, trend.ErrNoData) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// handleSearch handles GET /api/search?q=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		WriteError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	results, err := s.app.Quotes.SearchFunds(r.Context(), q)
	if err != nil {
		WriteQuoteError(w, err)
		return
	}
	if results == nil {
		results = []models.FundSearchResult{}
	}
	WriteJSON(w, http.StatusOK, results)
}

// handleMessage handles POST /api/message, the host side of the relay envelope.
// Failures are reported inside the envelope, so the status is always 200 once the body is read.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read body: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, s.app.Dispatcher.Handle(r.Context(), raw))
}
