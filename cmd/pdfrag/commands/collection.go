package commands

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// NewCollectionCmd constructs the `pdfrag collection` command group.
func NewCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Inspect or delete the configured Qdrant collection",
	}
	cmd.AddCommand(newCollectionInfoCmd(), newCollectionDeleteCmd())
	return cmd
}

func newCollectionInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the point count and ingested documents of the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("collection info: %w", err)
			}

			store, err := openStore(s, log)
			if err != nil {
				return fmt.Errorf("collection info: %w", err)
			}
			defer store.Close()

			count, err := store.Count(ctx)
			if err != nil {
				return fmt.Errorf("collection info: %w", err)
			}

			out := cmd.OutOrStdout()
			spec := s.CollectionSpec()
			fmt.Fprintf(out, "collection: %s\n", spec.Name)
			fmt.Fprintf(out, "qdrant:     %s:%d\n", s.Qdrant.Host, s.Qdrant.Port)
			fmt.Fprintf(out, "distance:   %s\n", spec.Distance)
			fmt.Fprintf(out, "dimension:  %d\n", spec.Dimension)
			fmt.Fprintf(out, "points:     %d\n", count)

			ledger, err := openManifest(s)
			if err != nil {
				log.Warn("manifest unavailable", slog.String("error", err.Error()))
				return nil
			}
			if ledger == nil {
				return nil
			}
			defer ledger.Close()

			entries, err := ledger.List(ctx, spec.Name)
			if err != nil {
				return fmt.Errorf("collection info: %w", err)
			}
			fmt.Fprintf(out, "documents:  %d\n", len(entries))
			for _, e := range entries {
				fmt.Fprintf(out, "  - %s (%d chunks, %s)\n", e.DocumentID, e.Chunks, e.SourcePath)
			}
			return nil
		},
	}
}

func newCollectionDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the collection and every point in it",
		Long: `Delete the configured collection. Ingested documents are also removed
from the manifest so the next ingest re-indexes them.

Without --yes the command asks for confirmation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("collection delete: %w", err)
			}
			name := s.Qdrant.Collection

			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete collection %q?", name)) {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}

			store, err := openStore(s, log)
			if err != nil {
				return fmt.Errorf("collection delete: %w", err)
			}
			defer store.Close()

			if err := store.DeleteCollection(ctx, name); err != nil {
				return fmt.Errorf("collection delete: %w", err)
			}

			ledger, err := openManifest(s)
			if err != nil {
				log.Warn("manifest unavailable", slog.String("error", err.Error()))
			} else if ledger != nil {
				defer ledger.Close()
				if err := ledger.ForgetCollection(ctx, name); err != nil {
					log.Warn("manifest: forget collection failed", slog.String("error", err.Error()))
				}
			}

			color.Green("Deleted collection %s\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// confirm asks a yes/no question and reports whether the answer was yes.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
