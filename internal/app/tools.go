package app

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers all MCP tools on the App's MCPServer.
func (a *App) registerTools() {
	s := a.MCPServer
	logger := a.Logger

	s.AddTool(createGetVersionTool(), handleGetVersion())
	s.AddTool(createGetProfitTool(), handleGetProfit(a))
	s.AddTool(createRefreshTool(), handleRefresh(a, logger))
	s.AddTool(createListHoldingsTool(), handleListHoldings(a.Holdings, logger))
	s.AddTool(createAddHoldingTool(), handleAddHolding(a.Holdings, logger))
	s.AddTool(createRemoveHoldingTool(), handleRemoveHolding(a.Holdings, logger))
	s.AddTool(createSearchFundsTool(), handleSearchFunds(a.Quotes, logger))
	s.AddTool(createSessionStatusTool(), handleSessionStatus(a))
	s.AddTool(createGetReportTool(), handleGetReport(a))
}

func createGetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the fundwatch server version and status. Use this to verify connectivity."),
	)
}

func createGetProfitTool() mcp.Tool {
	return mcp.NewTool("get_profit",
		mcp.WithDescription("Get today's profit for every holding and the totals, from the latest refresh cycle."),
	)
}

func createRefreshTool() mcp.Tool {
	return mcp.NewTool("refresh",
		mcp.WithDescription("Fetch fresh percentages now. Uses published values in the evening window and on non-trading days, intraday estimates otherwise."),
	)
}

func createListHoldingsTool() mcp.Tool {
	return mcp.NewTool("list_holdings",
		mcp.WithDescription("List the tracked funds with their capital per account."),
	)
}

func createAddHoldingTool() mcp.Tool {
	return mcp.NewTool("add_holding",
		mcp.WithDescription("Add a fund by its 6-digit code. The fund name is resolved automatically."),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("6-digit fund code (e.g., '161725')"),
		),
		mcp.WithNumber("capital_a",
			mcp.Description("Yesterday's position value in account A (default: 0)"),
		),
		mcp.WithNumber("capital_b",
			mcp.Description("Yesterday's position value in account B (default: 0)"),
		),
	)
}

func createRemoveHoldingTool() mcp.Tool {
	return mcp.NewTool("remove_holding",
		mcp.WithDescription("Remove a fund from the list by its 6-digit code."),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("6-digit fund code"),
		),
	)
}

func createSearchFundsTool() mcp.Tool {
	return mcp.NewTool("search_funds",
		mcp.WithDescription("Search funds by code, name or pinyin abbreviation."),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Search text (e.g., '白酒', 'zzbj', '1617')"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 10, max: 50)"),
		),
	)
}

func createSessionStatusTool() mcp.Tool {
	return mcp.NewTool("session_status",
		mcp.WithDescription("Show the current market session window and the trading date published values must carry."),
	)
}

func createGetReportTool() mcp.Tool {
	return mcp.NewTool("get_report",
		mcp.WithDescription("Get a plain-text daily profit report for all holdings."),
	)
}
