package mcp

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/jobs"
	"github.com/dshills/docindex-mcp/internal/logging"
)

const (
	// ServerName is the MCP server name
	ServerName = "docindex-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	indexer *indexer.Indexer
	jobs    *jobs.Registry
	logger  *log.Logger
}

// NewServer creates a new MCP server instance
func NewServer(idx *indexer.Indexer, registry *jobs.Registry, logger *log.Logger) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:     mcpServer,
		indexer: idx,
		jobs:    registry,
		logger:  logging.OrDiscard(logger),
	}

	s.registerTools()

	return s
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))
	s.logger.Info("MCP server ready, listening on stdio")
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexDocumentTool(), s.handleIndexDocument)
	s.mcp.AddTool(indexFolderTool(), s.handleIndexFolder)
	s.mcp.AddTool(getJobStatusTool(), s.handleGetJobStatus)
}
