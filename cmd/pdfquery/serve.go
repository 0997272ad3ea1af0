package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/pdfquery-mcp/internal/mcp"
	"github.com/dshills/pdfquery-mcp/internal/storage"
)

var serveEager bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server on stdin/stdout. Logs go to stderr.

The index is built on the first query unless --eager is given. A persisted
index built with the same embedding model is served without rebuilding unless
index.reuse_existing is false (PDFQUERY_REUSE_INDEX=false).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveEager, "eager", false, "build the index before accepting requests")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("pdfquery_starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"vector_extension", storage.VectorExtensionAvailable)

	a, err := newApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if a.query == nil {
		logger.Warn("generation_disabled", "reason", "query_pdf is not available")
	}

	if addr := cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr); err != nil {
				logger.Error("metrics_listener_failed", "addr", addr, "error", err)
			}
		}()
		logger.Info("metrics_listening", "addr", addr)
	}

	if serveEager {
		if err := a.engine.EnsureReady(ctx); err != nil {
			return err
		}
	}

	server := mcp.NewServer(mcp.Options{
		Engine:    a.engine,
		Query:     a.query,
		Retrieval: a.retrieval,
		Version:   version,
		Logger:    logger,
	})

	err = server.Serve(ctx, os.Stdin, os.Stdout)
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("server_stopped")
	return nil
}

// commandContext cancels on interrupt for the one-shot commands
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
