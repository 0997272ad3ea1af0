package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/pdfquery-mcp/internal/engine"
	"github.com/dshills/pdfquery-mcp/internal/handler"
)

const (
	// ServerName is the MCP server name
	ServerName = "pdfquery-mcp"
	// ServerVersion is reported when no build version is set
	ServerVersion = "1.0.0"
)

// Options wires a Server
type Options struct {
	Engine    *engine.Engine
	Query     *handler.QueryHandler // Nil disables the query_pdf tool
	Retrieval *handler.RetrievalHandler
	Version   string
	Logger    *slog.Logger
}

// Server exposes the engine as MCP tools
type Server struct {
	mcp       *server.MCPServer
	engine    *engine.Engine
	query     *handler.QueryHandler
	retrieval *handler.RetrievalHandler
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := opts.Version
	if version == "" {
		version = ServerVersion
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:       mcpServer,
		engine:    opts.Engine,
		query:     opts.Query,
		retrieval: opts.Retrieval,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// Serve runs the stdio transport until ctx is cancelled or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("mcp_server_started", "name", ServerName)
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	if s.query != nil {
		s.mcp.AddTool(queryPDFTool(), s.handleQueryPDF)
	}
	s.mcp.AddTool(retrieveDocumentsTool(), s.handleRetrieveDocuments)
	s.mcp.AddTool(indexDocumentsTool(), s.handleIndexDocuments)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
