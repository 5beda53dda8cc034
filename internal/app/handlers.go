package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/holdings"
	"github.com/bobmcallan/fundwatch/internal/services/refresh"
	"github.com/bobmcallan/fundwatch/internal/services/report"
)

func handleGetVersion() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := fmt.Sprintf("fundwatch\nVersion: %s\nBuild: %s\nCommit: %s\nStatus: OK",
			common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		return textResult(result), nil
	}
}

func handleGetProfit(a *App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := a.Snapshot(ctx)
		if err != nil {
			a.Logger.Error().Err(err).Msg("Profit lookup failed")
			return errorResult(fmt.Sprintf("Profit error: %v", err)), nil
		}
		return textResult(formatSnapshot(snap)), nil
	}
}

func handleRefresh(a *App, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := a.Refresh.Refresh(ctx)
		if errors.Is(err, refresh.ErrCycleRunning) {
			return errorResult("A refresh is already running, try again shortly"), nil
		}
		if err != nil {
			logger.Error().Err(err).Msg("Refresh failed")
			return errorResult(fmt.Sprintf("Refresh error: %v", err)), nil
		}
		return textResult(formatSnapshot(snap)), nil
	}
}

func handleListHoldings(svc interfaces.HoldingsService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := svc.List(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("List holdings failed")
			return errorResult(fmt.Sprintf("Holdings error: %v", err)), nil
		}
		if len(list) == 0 {
			return textResult("No holdings."), nil
		}

		var sb strings.Builder
		sb.WriteString("| Code | Name | Capital A | Capital B |\n|---|---|---|---|\n")
		for _, h := range list {
			fmt.Fprintf(&sb, "| %s | %s | %.2f | %.2f |\n", h.Code, h.Name, h.CapitalA, h.CapitalB)
		}
		return textResult(sb.String()), nil
	}
}

func handleAddHolding(svc interfaces.HoldingsService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil || code == "" {
			return errorResult("Error: code parameter is required"), nil
		}

		h, err := svc.Add(ctx, models.Holding{
			Name:     strings.TrimSpace(code),
			Code:     holdings.ParseCode(code),
			CapitalA: request.GetFloat("capital_a", 0),
			CapitalB: request.GetFloat("capital_b", 0),
		})
		switch {
		case errors.Is(err, holdings.ErrDuplicateCode):
			return errorResult(fmt.Sprintf("Fund %s is already in the list", code)), nil
		case errors.Is(err, holdings.ErrEmptyHolding):
			return errorResult("Error: code must be 6 digits"), nil
		case err != nil:
			logger.Error().Err(err).Str("code", code).Msg("Add holding failed")
			return errorResult(fmt.Sprintf("Add error: %v", err)), nil
		}
		return textResult(fmt.Sprintf("Added %s (id %s)", h.Name, h.ID)), nil
	}
}

func handleRemoveHolding(svc interfaces.HoldingsService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil || code == "" {
			return errorResult("Error: code parameter is required"), nil
		}

		list, err := svc.List(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("Holdings error: %v", err)), nil
		}
		for _, h := range list {
			if h.Code != strings.TrimSpace(code) {
				continue
			}
			if err := svc.Remove(ctx, h.ID); err != nil {
				logger.Error().Err(err).Str("code", code).Msg("Remove holding failed")
				return errorResult(fmt.Sprintf("Remove error: %v", err)), nil
			}
			return textResult(fmt.Sprintf("Removed %s", h.Name)), nil
		}
		return errorResult(fmt.Sprintf("Fund %s is not in the list", code)), nil
	}
}

func handleSearchFunds(quotes interfaces.QuoteClient, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keyword, err := request.RequireString("keyword")
		if err != nil || strings.TrimSpace(keyword) == "" {
			return errorResult("Error: keyword parameter is required"), nil
		}
		limit := request.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		results, err := quotes.SearchFunds(ctx, keyword)
		if err != nil {
			logger.Warn().Err(err).Str("keyword", keyword).Msg("Fund search failed")
			return errorResult(fmt.Sprintf("Search error: %v", err)), nil
		}
		if len(results) == 0 {
			return textResult("No matching funds."), nil
		}
		if len(results) > limit {
			results = results[:limit]
		}

		var sb strings.Builder
		for _, r := range results {
			fmt.Fprintf(&sb, "- %s", r.Label())
			if r.Category != "" {
				fmt.Fprintf(&sb, " (%s)", r.Category)
			}
			sb.WriteString("\n")
		}
		return textResult(sb.String()), nil
	}
}

func handleSessionStatus(a *App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		info := a.Session.Info(a.Now())
		text := fmt.Sprintf("Session: %s\nTime: %s\nTrading day: %t\nExpected date: %s\nRefresh state: %s",
			info.State, info.Now.Format("2006-01-02 15:04"), info.TradingDay, info.ExpectedDate, a.Refresh.State())
		return textResult(text), nil
	}
}

func handleGetReport(a *App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := a.Snapshot(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("Report error: %v", err)), nil
		}
		return textResult(report.Summary(snap, a.Now())), nil
	}
}

// formatSnapshot renders rows in display order as a markdown table.
func formatSnapshot(snap *models.Snapshot) string {
	var sb strings.Builder
	t := snap.Result.Totals
	fmt.Fprintf(&sb, "**Total profit:** %.2f (%.2f%%) on %.2f  \n", t.TotalProfit, t.TotalPercent, t.TotalCapital)
	fmt.Fprintf(&sb, "**Session:** %s, %d/%d fetched\n\n", snap.Session, snap.Succeeded, snap.Attempted)

	if len(snap.Result.Rows) == 0 {
		sb.WriteString("No holdings.\n")
		return sb.String()
	}

	sb.WriteString("| Fund | Percent | Profit |\n|---|---|---|\n")
	for _, i := range snap.Order {
		r := snap.Result.Rows[i]
		pct := "--"
		if !math.IsNaN(r.Percent) {
			pct = fmt.Sprintf("%.2f%%", r.Percent)
			if r.IsReal {
				pct += " (real)"
			}
		}
		fmt.Fprintf(&sb, "| %s | %s | %.2f |\n", r.Name, pct, r.RowProfit)
	}
	return sb.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}
