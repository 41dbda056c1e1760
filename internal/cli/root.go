// Package cli implements the triagectl command line tool.
package cli

import (
	"fmt"
	"os"

	"github.com/darktomcat119/Health-AI-MVP/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type options struct {
	cfg *config.Config
}

// NewRootCmd builds the triagectl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "triagectl",
		Short:         "Score and triage chat messages offline",
		Long:          "Runs the risk scorer and triage rules on messages without a server,\nusing the same configuration and lexicon files as the chat service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.AddCommand(newScoreCmd(opts), newLexiconCmd(opts), newHealthCmd(opts))
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "triagectl: %v\n", err)
		os.Exit(1)
	}
}
