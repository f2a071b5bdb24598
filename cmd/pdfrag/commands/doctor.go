package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/health"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/provider"
)

// NewDoctorCmd constructs the `pdfrag doctor` command, which checks that
// Qdrant and the embedding and chat backends are reachable.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to Qdrant and the model backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("doctor: %w", err)
			}
			out := cmd.OutOrStdout()

			var pingers []health.Pinger
			var setup []health.Result

			store, err := openStore(s, log)
			if err != nil {
				setup = append(setup, health.Result{Name: "qdrant", Err: err})
			} else {
				defer store.Close()
				pingers = append(pingers, store)
			}

			emb, err := newEmbedder(s, log)
			if err != nil {
				setup = append(setup, health.Result{Name: "embedder", Err: err})
			} else {
				pingers = append(pingers, health.NewEmbedderPinger(emb, s.Embedding.Resilience.Dimension, "embedder/"+s.Embedding.Provider))
			}

			chatName := "chat/" + string(s.Chat.Backend)
			if err := s.Chat.Validate(); err != nil {
				setup = append(setup, health.Result{Name: chatName, Err: err})
			} else if chatModel, err := provider.New(ctx, &s.Chat); err != nil {
				setup = append(setup, health.Result{Name: chatName, Err: err})
			} else {
				pingers = append(pingers, health.NewLLMPinger(chatModel, provider.NewHealthCheck(&s.Chat, nil), chatName))
			}

			results := append(setup, health.NewMultiPinger(pingers...).Check(ctx)...)
			if failed := printResults(out, results); failed > 0 {
				return errors.New("doctor: one or more checks failed")
			}
			return nil
		},
	}
}

// printResults renders one line per probe and returns the failure count.
func printResults(w io.Writer, results []health.Result) int {
	failed := 0
	for _, r := range results {
		if r.OK {
			fmt.Fprintf(w, "%s %-24s %s\n", color.GreenString("ok  "), r.Name, r.Duration.Round(time.Millisecond))
			continue
		}
		failed++
		fmt.Fprintf(w, "%s %-24s %v\n", color.RedString("FAIL"), r.Name, r.Err)
	}
	return failed
}
