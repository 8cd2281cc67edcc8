// Package mcp exposes the question-answering pipeline over the Model
// Context Protocol so external agents can ask questions, search, and
// read files through stdio.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeqa/codeqa/internal/answer"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/scanner"
	"github.com/codeqa/codeqa/internal/search"
	"github.com/codeqa/codeqa/internal/telemetry"
	"github.com/codeqa/codeqa/pkg/version"
)

// ServerConfig wires the pipeline into the MCP server. Root, Snapshot,
// Engine and Loop are required; Scanner defaults to a fresh scanner and
// Telemetry may be nil.
type ServerConfig struct {
	// Root is the absolute project root list_files and read_file
	// operate under.
	Root string

	Snapshot *index.Snapshot
	Engine   *search.Engine
	Loop     *answer.Loop
	Scanner  *scanner.Scanner

	Telemetry *telemetry.Recorder
}

// Server bridges MCP clients to the answer loop and hybrid search.
type Server struct {
	mcp    *mcp.Server
	cfg    ServerConfig
	logger *slog.Logger
}

// NewServer creates the MCP server and registers the five tools.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Root == "" {
		return nil, qaerrors.InvalidArg("mcp server requires a project root")
	}
	if cfg.Snapshot == nil || cfg.Engine == nil || cfg.Loop == nil {
		return nil, qaerrors.InvalidArg("mcp server requires a snapshot, search engine and answer loop")
	}
	if cfg.Scanner == nil {
		sc, err := scanner.New()
		if err != nil {
			return nil, err
		}
		cfg.Scanner = sc
	}

	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "codeqa",
				Version: version.Short(),
			},
			nil,
		),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask",
		Description: "Ask a natural-language question about the codebase. Retrieves the most relevant code and answers with citations. Use this when you need an explanation, not just matching locations.",
	}, s.handleAsk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid keyword plus semantic search over the indexed codebase. Returns ranked chunks with file locations. Use this to locate code before reading it.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_files",
		Description: "List the indexable files under the project root, honoring .gitignore and the default excludes.",
	}, s.handleListFiles)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "read_file",
		Description: "Read a file relative to the project root, optionally limited to a line range.",
	}, s.handleReadFile)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index health: file and chunk counts, the embedder that built it, build time and usage counters. Use before searching to verify the index is ready.",
	}, s.handleIndexStatus)

	s.logger.Debug("mcp tools registered", "count", 5)
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", "stdio")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("mcp server stopped", "error", err)
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}
