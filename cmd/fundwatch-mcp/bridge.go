package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/fundwatch/internal/common"
)

const remoteTimeout = 90 * time.Second

// Bridge serves the remote server's tool list locally and forwards every call.
type Bridge struct {
	remote *client.Client
	local  *server.MCPServer
	logger *common.Logger
}

// Connect initializes a session with the server at baseURL and mirrors its tools.
func Connect(ctx context.Context, baseURL string, logger *common.Logger) (*Bridge, error) {
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	remote, err := client.NewStreamableHttpClient(
		strings.TrimRight(baseURL, "/")+"/mcp",
		transport.WithHTTPTimeout(remoteTimeout),
	)
	if err != nil {
		return nil, err
	}
	if err := remote.Start(ctx); err != nil {
		return nil, fmt.Errorf("start remote client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "fundwatch-mcp", Version: common.GetVersion()}
	info, err := remote.Initialize(ctx, initReq)
	if err != nil {
		remote.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	tools, err := remote.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		remote.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	b := &Bridge{
		remote: remote,
		local: server.NewMCPServer(info.ServerInfo.Name, info.ServerInfo.Version,
			server.WithToolCapabilities(false),
		),
		logger: logger,
	}
	for _, tool := range tools.Tools {
		b.local.AddTool(tool, b.forward(tool.Name))
	}

	logger.Info().
		Str("server", info.ServerInfo.Name).
		Str("version", info.ServerInfo.Version).
		Int("tools", len(tools.Tools)).
		Msg("Connected")
	return b, nil
}

func (b *Bridge) forward(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := b.remote.CallTool(ctx, req)
		if err != nil {
			b.logger.Warn().Err(err).Str("tool", name).Msg("Remote call failed")
			return mcp.NewToolResultError(fmt.Sprintf("fundwatch server: %v", err)), nil
		}
		return res, nil
	}
}

// Serve answers MCP requests on r/w until r ends or ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return server.NewStdioServer(b.local).Listen(ctx, r, w)
}

// Close ends the remote session.
func (b *Bridge) Close() error {
	return b.remote.Close()
}
