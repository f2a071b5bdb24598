package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/chat"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/tracing"
)

// NewAskCmd constructs the `pdfrag ask` command, which answers a single
// question and exits.
func NewAskCmd() *cobra.Command {
	var topK int
	var stream bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question about the ingested documents",
		Long: `Answer one question from the ingested collection and print the answer
followed by the documents it was grounded on.

Examples:
  pdfrag ask "what is the notice period in the employee handbook?"
  pdfrag ask --top-k 3 "summarise the security policy"
  pdfrag ask --stream "list the onboarding steps"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			flush := tracing.Install(s.Tracing)
			defer flush()

			session, closeSession, err := buildSession(ctx, s, topK, nil, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeSession()

			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			var answer *chat.Answer
			if stream {
				answer, err = session.AskStream(ctx, question, out)
				fmt.Fprintln(out)
			} else {
				answer, err = session.Ask(ctx, question)
			}
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if !stream {
				fmt.Fprintln(out, answer.Text)
			}
			printSources(out, answer.Sources)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunks retrieved (default: RAG_TOP_K or 6)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the answer as the model produces it")

	return cmd
}
