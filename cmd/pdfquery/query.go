package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/pdfquery-mcp/internal/handler"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

var (
	maxChunks  int
	jsonOutput bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieve the passages relevant to a question and generate an answer with
citations. Requires OPENAI_API_KEY.

Examples:
  pdfquery query "How do I reset the device?"
  pdfquery query --max-chunks 8 --json "What is the warranty period?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Show the ranked passages for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRetrieve,
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, retrieveCmd} {
		c.Flags().IntVarP(&maxChunks, "max-chunks", "k", 0, "maximum chunks to retrieve (default from config)")
		c.Flags().BoolVar(&jsonOutput, "json", false, "print the JSON response")
		rootCmd.AddCommand(c)
	}
}

func maxChunksFlag(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("max-chunks") {
		return nil
	}
	return &maxChunks
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if a.query == nil {
		return reportError(types.NewError(types.ErrConfiguration, "query", "generation is disabled; use retrieve"))
	}

	question := strings.Join(args, " ")
	if err := a.query.Validate(question, maxChunksFlag(cmd)); err != nil {
		return reportError(err)
	}
	if err := a.engine.EnsureReady(ctx); err != nil {
		return reportError(err)
	}
	resp, err := a.query.Handle(ctx, question, maxChunksFlag(cmd))
	if err != nil {
		return reportError(err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, resp)
	}
	printAnswer(os.Stdout, resp)
	return nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	query := strings.Join(args, " ")
	if err := a.retrieval.Validate(query, maxChunksFlag(cmd)); err != nil {
		return reportError(err)
	}
	if err := a.engine.EnsureReady(ctx); err != nil {
		return reportError(err)
	}
	resp, err := a.retrieval.Handle(ctx, query, maxChunksFlag(cmd))
	if err != nil {
		return reportError(err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, resp)
	}
	printChunks(os.Stdout, resp)
	return nil
}

// reportError prints the uniform payload in JSON mode and returns err
func reportError(err error) error {
	if jsonOutput {
		_ = printJSON(os.Stdout, handler.ErrorPayload(err))
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAnswer(w io.Writer, resp *types.QueryResponse) {
	fmt.Fprintf(w, "%s\n", resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintf(w, "\nSources:\n")
		for i, s := range resp.Sources {
			fmt.Fprintf(w, "  [%d] %s%s\n", i+1, s.DocumentName, pageSuffix(s.PageNumber))
		}
	}
	if resp.ConfidenceScore != nil {
		fmt.Fprintf(w, "\nConfidence: %.2f\n", *resp.ConfidenceScore)
	}
}

func printChunks(w io.Writer, resp *types.RetrievalResponse) {
	if resp.TotalChunks == 0 {
		fmt.Fprintf(w, "No matching passages for %q\n", resp.Query)
		return
	}
	for i, c := range resp.Chunks {
		fmt.Fprintf(w, "[%d] %s%s", i+1, c.DocumentName, pageSuffix(c.PageNumber))
		if path, ok := c.Metadata["heading_path"].([]string); ok && len(path) > 0 {
			fmt.Fprintf(w, " > %s", strings.Join(path, " > "))
		}
		if score, ok := c.Metadata["score"].(float64); ok {
			fmt.Fprintf(w, " (score %.4f)", score)
		}
		fmt.Fprintf(w, "\n%s\n\n", handler.Preview(c.Content, cfg.Retrieval.PreviewLength))
	}
}

func pageSuffix(page *int) string {
	if page == nil {
		return ""
	}
	return fmt.Sprintf(" p.%d", *page)
}
