package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/darktomcat119/Health-AI-MVP/internal/lexicon"
	"github.com/darktomcat119/Health-AI-MVP/internal/risk"
	"github.com/darktomcat119/Health-AI-MVP/internal/triage"
	"github.com/spf13/cobra"
)

type scoreResult struct {
	Message   string                  `json:"message"`
	Score     int                     `json:"risk_score"`
	Level     domain.RiskLevel        `json:"risk_level"`
	Breakdown *risk.Breakdown         `json:"breakdown,omitempty"`
	Activated bool                    `json:"triage_activated"`
	Handoff   bool                    `json:"human_handoff"`
	Reason    domain.HandoffReason    `json:"handoff_reason,omitempty"`
	Override  string                  `json:"override,omitempty"`
	Resources []domain.CrisisResource `json:"crisis_resources,omitempty"`
}

func newScoreCmd(opts *options) *cobra.Command {
	var (
		explain bool
		format  string
	)
	cmd := &cobra.Command{
		Use:   "score MESSAGE...",
		Short: "Score messages as consecutive turns of one session",
		Long: "Each argument is treated as the next user message of a new session.\n" +
			"Prints the risk score, level and triage decision for every turn.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := scoreTurns(opts, args, explain)
			if err != nil {
				return err
			}
			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			case "text":
				writeScoreText(cmd.OutOrStdout(), results)
				return nil
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "Include the per-signal breakdown")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text|json)")
	return cmd
}

func scoreTurns(opts *options, messages []string, explain bool) ([]scoreResult, error) {
	cfg := opts.cfg
	keywords, err := lexicon.LoadKeywords(cfg.Lexicon.KeywordsPath)
	if err != nil {
		return nil, err
	}
	resources, err := lexicon.LoadResources(cfg.Lexicon.ResourcesPath)
	if err != nil {
		return nil, err
	}
	scorer, err := risk.NewScorer(keywords, risk.Thresholds{High: cfg.Risk.High, Critical: cfg.Risk.Critical}, nil)
	if err != nil {
		return nil, err
	}
	evaluator, err := triage.NewEvaluator(resources, triage.Config{
		High:         cfg.Risk.High,
		Critical:     cfg.Risk.Critical,
		CheckinAfter: cfg.Risk.CheckinAfter,
	}, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := domain.NewSession("cli", now)
	results := make([]scoreResult, 0, len(messages))
	for _, msg := range messages {
		var res scoreResult
		if explain {
			b, err := scorer.Explain(msg, session)
			if err != nil {
				return nil, err
			}
			res.Breakdown = &b
			res.Score = b.Total()
		} else {
			score, err := scorer.Compute(msg, session)
			if err != nil {
				return nil, err
			}
			res.Score = score
		}
		res.Message = msg
		res.Level = scorer.Classify(res.Score)

		session.AppendUser(msg, res.Score, res.Level, now)
		tr, err := evaluator.Evaluate(msg, res.Score, res.Level, session)
		if err != nil {
			return nil, err
		}
		session.Apply(tr)
		// Stand-in assistant turn so counts match a live session.
		session.AppendAssistant(tr.Override, now)

		res.Activated = tr.Activated
		res.Handoff = tr.Handoff
		res.Reason = tr.Reason
		res.Override = tr.Override
		res.Resources = tr.Resources
		results = append(results, res)
	}
	return results, nil
}

func writeScoreText(w io.Writer, results []scoreResult) {
	for i, r := range results {
		fmt.Fprintf(w, "turn %d: score=%d level=%s", i+1, r.Score, r.Level)
		if r.Activated {
			fmt.Fprint(w, " triage=on")
		}
		if r.Handoff {
			fmt.Fprintf(w, " handoff=%s", r.Reason)
		}
		fmt.Fprintln(w)
		if r.Breakdown != nil {
			b := r.Breakdown
			fmt.Fprintf(w, "  keyword=%d sentiment=%d behavioral=%d escalation=%d history=%d\n",
				b.Keyword, b.Sentiment, b.Behavioral, b.Escalation, b.History)
		}
		if r.Override != "" {
			fmt.Fprintf(w, "  reply: %s\n", strings.ReplaceAll(r.Override, "\n", " "))
		}
		for _, res := range r.Resources {
			fmt.Fprintf(w, "  resource: %s %s (%s)\n", res.Name, res.Number, res.Hours)
		}
	}
}
