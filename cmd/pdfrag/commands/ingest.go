package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/pdfrag-go/internal/extract"
	"github.com/54b3r/pdfrag-go/internal/ingestion"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/metrics"
)

// NewIngestCmd constructs the `pdfrag ingest` command, which provisions the
// collection and indexes every PDF under the source directory.
func NewIngestCmd() *cobra.Command {
	var dir string
	var force bool
	var workers int
	var quiet bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index the PDF documents of a directory into Qdrant",
		Long: `Discover every *.pdf file under the source directory (recursively),
split the extracted text into overlapping chunks, embed each chunk and upsert
it into the configured Qdrant collection. The collection is created first if
it does not exist.

Documents whose content is unchanged since their last successful ingest are
skipped unless --force is given. A failed chunk never aborts its document;
failures are listed in the final report.

Relevant environment variables:
  PDFRAG_SOURCE_DIR        Source directory (default: data)
  QDRANT_HOST / QDRANT_PORT / QDRANT_COLLECTION
  EMBEDDING_PROVIDER       ollama, openai or azure (default: ollama)
  CHUNK_MAX_SIZE / CHUNK_OVERLAP
  INGEST_DUPLICATE_POLICY  replace or append (default: replace)
  PDFRAG_METRICS_ADDR      Expose Prometheus metrics while ingesting

Examples:
  pdfrag ingest
  pdfrag ingest --dir ./handbooks --workers 4
  pdfrag ingest --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if cmd.Flags().Changed("dir") {
				s.SourceDir = dir
			}
			if cmd.Flags().Changed("workers") {
				s.Workers = workers
			}

			docs, err := ingestion.DiscoverDocuments(s.SourceDir)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(docs) == 0 {
				color.Yellow("No PDF documents found under %s\n", s.SourceDir)
				return nil
			}
			log.Info("documents discovered", slog.String("dir", s.SourceDir), slog.Int("documents", len(docs)))

			emb, err := newEmbedder(s, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			store, err := openStore(s, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			spec := s.CollectionSpec()
			if err := store.EnsureCollection(ctx, spec); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			log.Info("collection ready",
				slog.String("collection", spec.Name),
				slog.Uint64("dimension", spec.Dimension),
				slog.String("distance", string(spec.Distance)),
			)

			cfg := s.IngestConfig()
			cfg.Force = force

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			opts := []ingestion.Option{
				ingestion.WithLogger(log),
				ingestion.WithMetrics(m),
			}

			ledger, err := openManifest(s)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if ledger != nil {
				defer ledger.Close()
				opts = append(opts, ingestion.WithManifest(ledger))
			}

			var bar *progressbar.ProgressBar
			if !quiet {
				bar = newProgressBar(len(docs), os.Stderr)
				opts = append(opts, ingestion.WithProgress(progressReporter(bar)))
			}

			pipeline, err := ingestion.NewPipeline(extract.NewPDFExtractor(), emb, store, cfg, opts...)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			metricsCtx, stopMetrics := context.WithCancel(gctx)
			if s.MetricsAddr != "" {
				g.Go(serveMetrics(metricsCtx, s.MetricsAddr, reg, log))
			}

			var report *ingestion.Report
			g.Go(func() error {
				defer stopMetrics()
				var ierr error
				report, ierr = pipeline.Ingest(gctx, docs)
				return ierr
			})
			runErr := g.Wait()
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(os.Stderr)
			}

			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if runErr != nil {
				return fmt.Errorf("ingest: %w", runErr)
			}
			if report.HasFailures() {
				return errors.New("ingest: completed with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to discover PDF documents in (default: PDFRAG_SOURCE_DIR or data)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest documents even when their content is unchanged")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Chunks embedded and upserted concurrently per document")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Disable the progress bar")

	return cmd
}

// serveMetrics returns an errgroup task exposing reg on addr. A listener
// failure is logged and swallowed so it never cancels the ingest sharing
// the group.
func serveMetrics(ctx context.Context, addr string, reg prometheus.Gatherer, log *slog.Logger) func() error {
	return func() error {
		if err := metrics.Serve(ctx, addr, reg, log); err != nil {
			log.Warn("metrics: listener failed, continuing without metrics",
				slog.String("addr", addr), slog.Any("error", err))
		}
		return nil
	}
}

// newProgressBar renders one step per document.
func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString("Ingesting")),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// progressReporter maps pipeline events onto the bar. It relies on
// ingestion.WithProgress serialising calls across chunk workers.
func progressReporter(bar *progressbar.ProgressBar) func(ingestion.Event) {
	done := 0
	return func(ev ingestion.Event) {
		switch ev.Kind {
		case ingestion.EventDocumentStarted:
			done = 0
			bar.Describe(color.BlueString("%s: extracting", ev.DocumentID))
		case ingestion.EventChunkDone:
			done++
			bar.Describe(color.BlueString("%s: chunk %d/%d", ev.DocumentID, done, ev.Chunks))
		case ingestion.EventDocumentDone:
			_ = bar.Add(1)
		}
	}
}

// printReport writes the per-document outcome and any chunk failures.
func printReport(w io.Writer, r *ingestion.Report) {
	for _, d := range r.Documents {
		line := fmt.Sprintf("  %-10s %s (%d/%d chunks)", d.Status, d.DocumentID, d.Written, d.Chunks)
		switch d.Status {
		case ingestion.StatusIngested:
			fmt.Fprintln(w, color.GreenString("%s", line))
		case ingestion.StatusFailed:
			fmt.Fprintln(w, color.RedString("%s: %v", line, d.Err))
		case ingestion.StatusPartial, ingestion.StatusCancelled:
			fmt.Fprintln(w, color.YellowString("%s", line))
		default:
			fmt.Fprintln(w, line)
		}
	}
	for _, f := range r.ChunkFailures {
		fmt.Fprintln(w, color.RedString("  failed     %s", f.Error()))
	}
	fmt.Fprintf(w, "\n%d documents: %d ingested, %d partial, %d cancelled, %d unchanged, %d empty, %d failed; %d points written\n",
		len(r.Documents),
		r.Count(ingestion.StatusIngested),
		r.Count(ingestion.StatusPartial),
		r.Count(ingestion.StatusCancelled),
		r.Count(ingestion.StatusUnchanged),
		r.Count(ingestion.StatusEmpty),
		r.Count(ingestion.StatusFailed),
		r.PointsWritten,
	)
}
