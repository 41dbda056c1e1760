package cli

import (
	"fmt"

	"github.com/darktomcat119/Health-AI-MVP/internal/lexicon"
	"github.com/spf13/cobra"
)

func newLexiconCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lexicon",
		Short: "Show the loaded risk keywords and crisis resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			k, err := lexicon.LoadKeywords(cfg.Lexicon.KeywordsPath)
			if err != nil {
				return err
			}
			resources, err := lexicon.LoadResources(cfg.Lexicon.ResourcesPath)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "keywords: %s (%d phrases)\n", sourceName(cfg.Lexicon.KeywordsPath), k.PhraseCount())
			for _, t := range k.Tiers {
				fmt.Fprintf(w, "  %-10s weight=%-3d phrases=%d\n", t.Name, t.WeightMax, len(t.Phrases))
			}
			fmt.Fprintf(w, "crisis resources: %s (%d)\n", sourceName(cfg.Lexicon.ResourcesPath), len(resources))
			for _, r := range resources {
				fmt.Fprintf(w, "  %s %s (%s)\n", r.Name, r.Number, r.Hours)
			}
			return nil
		},
	}
}

func sourceName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
