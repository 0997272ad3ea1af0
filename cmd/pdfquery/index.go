package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/pdfquery-mcp/internal/indexer"
)

var indexQuiet bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the document index",
	Long: `Rebuild the whole index from the documents directory. The previous index is
kept when the build fails.

Examples:
  pdfquery index
  pdfquery index -d ./manuals`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexQuiet, "quiet", "q", false, "hide the progress bar")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	fmt.Printf("Indexing %s...\n", cfg.Documents.Dir)

	var progress indexer.ProgressFunc
	if !indexQuiet {
		progress = newProgressReporter().report
	}

	stats, err := a.engine.Rebuild(ctx, progress)
	if err != nil {
		if stats != nil {
			fmt.Print(stats.Summary())
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndexing complete:\n%s", stats.Summary())
	fmt.Printf("\nIndex stored at: %s\n", cfg.DatabasePath())
	return nil
}

// progressReporter draws one bar per build stage
type progressReporter struct {
	mu        sync.Mutex
	stage     indexer.Stage
	bar       *progressbar.ProgressBar
	startTime time.Time
}

func newProgressReporter() *progressReporter {
	return &progressReporter{}
}

func (p *progressReporter) report(stage indexer.Stage, processed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || stage != p.stage {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		p.stage = stage
		p.startTime = time.Now()
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(stageLabel(stage)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Println()
			}),
		)
	}

	_ = p.bar.Set(processed)

	if processed > 0 && processed < total {
		elapsed := time.Since(p.startTime)
		rate := float64(processed) / elapsed.Seconds()
		if rate > 0 {
			eta := time.Duration(float64(total-processed)/rate) * time.Second
			p.bar.Describe(fmt.Sprintf("%s ETA: %s", stageLabel(stage), eta.Round(time.Second)))
		}
	}
}

func stageLabel(stage indexer.Stage) string {
	switch stage {
	case indexer.StageConvert:
		return "[cyan]Converting[reset]"
	case indexer.StageEmbed:
		return "[cyan]Embedding[reset]"
	default:
		return "[cyan]" + string(stage) + "[reset]"
	}
}
