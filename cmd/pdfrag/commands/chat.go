package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/chat"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/tracing"
)

// asker is the part of chat.Session the REPL drives.
type asker interface {
	Ask(ctx context.Context, question string) (*chat.Answer, error)
	AskStream(ctx context.Context, question string, w io.Writer) (*chat.Answer, error)
}

// NewChatCmd constructs the `pdfrag chat` command, an interactive loop over
// the ingested collection that keeps the conversation history.
func NewChatCmd() *cobra.Command {
	var topK int
	var stream bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the ingested documents",
		Long: `Start an interactive chat. Each question retrieves the most relevant
chunks from the collection and sends them, together with the conversation so
far, to the chat model.

Type exit, quit, :q or bye (or press Ctrl-D) to leave. A failed question is
reported and the conversation continues.

Examples:
  pdfrag chat
  pdfrag chat --top-k 10
  pdfrag chat --stream
  MODEL_PROVIDER=openai pdfrag chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			flush := tracing.Install(s.Tracing)
			defer flush()
			log.Info("langfuse tracing", slog.Bool("enabled", s.Tracing.Enabled()))

			session, closeSession, err := buildSession(ctx, s, topK, nil, log)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer closeSession()

			color.Cyan("\nChat with %s (type 'exit' to quit)", s.Qdrant.Collection)
			return runREPL(ctx, os.Stdin, cmd.OutOrStdout(), session, stream, log)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunks retrieved per question (default: RAG_TOP_K or 6)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print answers as the model produces them")

	return cmd
}

// runREPL reads questions line by line until EOF, an exit word or ctx is
// cancelled. With stream set, answers are written as they arrive.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, a asker, stream bool, log *slog.Logger) error {
	scanner := bufio.NewScanner(in)
	userPrompt := color.New(color.FgGreen)
	assistantPrompt := color.New(color.FgCyan)
	errPrompt := color.New(color.FgRed)

	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		if chat.IsExit(line) {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		var answer *chat.Answer
		var err error
		if stream {
			assistantPrompt.Fprint(out, "\nAssistant: ")
			answer, err = a.AskStream(ctx, line, out)
			fmt.Fprintln(out)
		} else {
			answer, err = a.Ask(ctx, line)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, chat.ErrEmptyQuestion) {
				continue
			}
			log.Debug("chat: exchange failed", slog.String("error", err.Error()))
			errPrompt.Fprintf(out, "Error: %v\n", err)
			continue
		}

		if !stream {
			assistantPrompt.Fprint(out, "\nAssistant: ")
			fmt.Fprintln(out, answer.Text)
		}
		printSources(out, answer.Sources)
	}
}

// printSources lists the documents an answer was grounded on.
func printSources(out io.Writer, sources []chat.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	fmt.Fprintln(out, chat.FormatSources(sources))
}
