package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored index and per-document results",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the JSON status")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	status, err := a.engine.Status(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(os.Stdout, status)
	}

	if status.Corpus == nil {
		fmt.Printf("No index at %s. Run `pdfquery index` to build one.\n", cfg.DatabasePath())
		return nil
	}

	c := status.Corpus
	fmt.Printf("Index:      %s\n", cfg.DatabasePath())
	fmt.Printf("Build:      %s (%s)\n", c.BuildID, c.BuiltAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Printf("Embeddings: %s/%s, %d dims\n", c.EmbeddingProvider, c.EmbeddingModel, c.EmbeddingDimension)
	fmt.Printf("Documents:  %d (%d failed)\n", status.Statistics.Documents, status.Statistics.FailedDocuments)
	fmt.Printf("Chunks:     %d (%d duplicates dropped)\n", status.Statistics.Chunks, c.DuplicateCount)
	fmt.Printf("Size:       %s MB\n", status.Statistics.IndexSizeMB)

	if len(status.Documents) > 0 {
		fmt.Println()
		for _, d := range status.Documents {
			fmt.Printf("  %-8s %4d  %s\n", d.Status, d.Chunks, d.Path)
			if d.Error != "" {
				fmt.Printf("           %s\n", d.Error)
			}
		}
	}
	return nil
}
