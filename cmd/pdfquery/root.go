package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/pdfquery-mcp/internal/config"
	"github.com/dshills/pdfquery-mcp/internal/logging"
)

var (
	cfgFile      string
	documentsDir string
	indexDir     string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pdfquery",
	Short: "Question answering over a folder of PDF and Markdown documents",
	Long: `pdfquery indexes PDF and Markdown documents into a hybrid (BM25 + embedding)
search index and answers questions over them, either from the command line or
as an MCP server.

Example usage:
  pdfquery index                          # Build the index
  pdfquery query "How do I reset it?"     # Answer a question
  pdfquery retrieve "reset button"        # Show the ranked passages
  pdfquery serve                          # Run the MCP server on stdio`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if documentsDir != "" {
			cfg.Documents.Dir = documentsDir
		}
		if indexDir != "" {
			cfg.Index.Dir = indexDir
		}

		logger = logging.New("pdfquery", cfg.Logging.Level, cfg.Logging.Format)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&documentsDir, "documents", "d", "", "documents directory (overrides "+config.EnvDocumentsDir+")")
	rootCmd.PersistentFlags().StringVar(&indexDir, "index-dir", "", "index directory (overrides "+config.EnvIndexDir+")")
}
