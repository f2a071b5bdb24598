// Package commands defines all Cobra CLI commands for the pdfrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/audit"
	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envPath holds the --env-file flag value.
var envPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdfrag",
		Short: "pdfrag: chat with a folder of PDF documents",
		Long: `pdfrag indexes PDF documents into a Qdrant collection and answers
questions about them with a chat model grounded on the retrieved passages.

Typical workflow:
  pdfrag ingest --dir ./data
  pdfrag chat

Settings come from (lowest to highest precedence) built-in defaults, a YAML
config file (~/.pdfrag/config.yaml), a .env file and the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// .env and YAML only fill variables the environment leaves unset,
			// so the environment always wins.
			if err := config.LoadDotEnv(envPath, log); err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// LOG_LEVEL may have come from the file; rebuild the logger.
			log = logging.New()

			s, err := config.FromEnv()
			if err != nil {
				audit.LogCommandStart(cmd.Context(), log, cmd.CommandPath(), loadedConfigPath, nil)
				return err
			}
			audit.LogCommandStart(cmd.Context(), log, cmd.CommandPath(), loadedConfigPath, s)

			cmd.SetContext(withRuntime(cmd.Context(), log, s))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pdfrag/config.yaml)")
	root.PersistentFlags().StringVar(&envPath, "env-file", ".env", "Path to a .env file; missing files are ignored")

	root.AddCommand(
		NewIngestCmd(),
		NewChatCmd(),
		NewAskCmd(),
		NewCollectionCmd(),
		NewDoctorCmd(),
		NewVersionCmd(),
	)

	return root
}
