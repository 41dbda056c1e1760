// Package risk computes a deterministic 0-100 risk score for a user message
// from five independently capped signals.
package risk

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/darktomcat119/Health-AI-MVP/internal/lexicon"
)

// Per-signal caps.
const (
	MaxKeywordScore    = 30
	MaxSentimentScore  = 20
	MaxBehavioralScore = 20
	MaxEscalationScore = 15
	MaxHistoryScore    = 15
	MaxTotalScore      = 100
)

// Behavioral thresholds and points.
const (
	longMessageChars  = 300
	punctuationMarks  = 3
	capsRatio         = 0.30
	longMessagePoints = 5
	punctuationPoints = 5
	capsPoints        = 10
)

// History thresholds and points.
const (
	highRiskCountThreshold  = 2
	cumulativeRiskThreshold = 100
	averageRiskThreshold    = 30
	minMessagesForAverage   = 5
	highRiskHistoryPoints   = 15
	cumulativeHistoryPoints = 10
	averageHistoryPoints    = 8
)

const (
	sentimentPointsPerWord = 5
	mediumThreshold        = 30
)

// NegativeSentimentWords are counted once each when present.
var NegativeSentimentWords = []string{
	"terrible", "awful", "worst", "horrible", "miserable",
	"worthless", "useless", "empty", "numb", "broken",
	"crying", "panic", "nightmare", "suffering", "agony",
	"hate", "disgusting", "pathetic", "failure", "stupid",
}

// EscalationPhrases indicate acute distress; any match awards the full signal.
var EscalationPhrases = []string{
	"i can't anymore",
	"there's no point",
	"what's the use",
	"i'm done",
	"nothing matters",
	"i can't breathe",
	"i give up",
	"no one understands",
}

// Thresholds are the score boundaries for the HIGH and CRITICAL bands.
type Thresholds struct {
	High     int
	Critical int
}

// DefaultThresholds returns the stock 60/80 boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 60, Critical: 80}
}

// Breakdown holds the value of each signal for one computation.
type Breakdown struct {
	Keyword    int `json:"keyword"`
	Sentiment  int `json:"sentiment"`
	Behavioral int `json:"behavioral"`
	Escalation int `json:"escalation"`
	History    int `json:"history"`
}

// Total returns the clamped sum of all signals.
func (b Breakdown) Total() int {
	return min(b.Keyword+b.Sentiment+b.Behavioral+b.Escalation+b.History, MaxTotalScore)
}

// Scorer is safe for concurrent use. The keyword lexicon can be swapped at
// runtime with SetKeywords.
type Scorer struct {
	keywords   atomic.Pointer[lexicon.Keywords]
	thresholds Thresholds
	logger     *slog.Logger
}

// NewScorer validates its inputs; a nil or empty lexicon is an
// initialization failure, never an empty signal.
func NewScorer(keywords *lexicon.Keywords, thresholds Thresholds, logger *slog.Logger) (*Scorer, error) {
	if keywords == nil || len(keywords.Tiers) == 0 {
		return nil, fmt.Errorf("%w: keyword lexicon is empty", domain.ErrRiskScoring)
	}
	if thresholds.High <= 0 || thresholds.Critical <= thresholds.High || thresholds.Critical > MaxTotalScore {
		return nil, fmt.Errorf("%w: invalid thresholds high=%d critical=%d",
			domain.ErrRiskScoring, thresholds.High, thresholds.Critical)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scorer{thresholds: thresholds, logger: logger}
	s.keywords.Store(keywords)
	return s, nil
}

// SetKeywords replaces the keyword lexicon. Nil or empty lexicons are ignored.
func (s *Scorer) SetKeywords(k *lexicon.Keywords) {
	if k == nil || len(k.Tiers) == 0 {
		s.logger.Warn("ignoring empty keyword lexicon")
		return
	}
	s.keywords.Store(k)
}

// Thresholds returns the configured band boundaries.
func (s *Scorer) Thresholds() Thresholds {
	return s.thresholds
}

// Compute scores message against the session state as it was before the
// message is appended. The session is not modified.
func (s *Scorer) Compute(message string, session *domain.Session) (int, error) {
	b, err := s.Explain(message, session)
	if err != nil {
		return 0, err
	}
	total := b.Total()
	s.logger.Debug("risk signals",
		"session_id", session.ID,
		"keyword", b.Keyword,
		"sentiment", b.Sentiment,
		"behavioral", b.Behavioral,
		"escalation", b.Escalation,
		"history", b.History,
	)
	s.logger.Info("risk score computed", "session_id", session.ID, "score", total)
	return total, nil
}

// Explain returns the individual signal values behind Compute.
func (s *Scorer) Explain(message string, session *domain.Session) (b Breakdown, err error) {
	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapSession("risk.compute", sessionID, fmt.Errorf("%w: %v", domain.ErrRiskScoring, r))
		}
	}()

	if session == nil {
		return Breakdown{}, domain.WrapSession("risk.compute", "", fmt.Errorf("%w: nil session", domain.ErrRiskScoring))
	}
	keywords := s.keywords.Load()
	if keywords == nil {
		return Breakdown{}, domain.WrapSession("risk.compute", sessionID, fmt.Errorf("%w: no keyword lexicon", domain.ErrRiskScoring))
	}

	lower := lexicon.Normalize(message)
	return Breakdown{
		Keyword:    s.scoreKeywords(keywords, lower),
		Sentiment:  scoreSentiment(lower),
		Behavioral: scoreBehavioral(message),
		Escalation: scoreEscalation(lower),
		History:    scoreHistory(session),
	}, nil
}

// Classify maps a score onto a risk band. Boundary values belong to the
// higher band.
func (s *Scorer) Classify(score int) domain.RiskLevel {
	return Classify(score, s.thresholds)
}

// Classify maps a score onto a risk band using t.
func Classify(score int, t Thresholds) domain.RiskLevel {
	switch {
	case score >= t.Critical:
		return domain.RiskCritical
	case score >= t.High:
		return domain.RiskHigh
	case score >= mediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// scoreKeywords takes the highest weight among matching tiers, not the sum.
func (s *Scorer) scoreKeywords(k *lexicon.Keywords, lower string) int {
	highest := 0
	for _, tier := range k.Tiers {
		for _, phrase := range tier.Phrases {
			if strings.Contains(lower, phrase) {
				highest = max(highest, tier.WeightMax)
				s.logger.Debug("keyword tier matched", "tier", tier.Name, "weight", tier.WeightMax)
				break
			}
		}
	}
	return min(highest, MaxKeywordScore)
}

func scoreSentiment(lower string) int {
	count := 0
	for _, w := range NegativeSentimentWords {
		if strings.Contains(lower, w) {
			count++
		}
	}
	return min(count*sentimentPointsPerWord, MaxSentimentScore)
}

// scoreBehavioral inspects the original-case message.
func scoreBehavioral(message string) int {
	score := 0

	if utf8.RuneCountInString(message) > longMessageChars {
		score += longMessagePoints
	}

	if strings.Count(message, "!")+strings.Count(message, "?") >= punctuationMarks {
		score += punctuationPoints
	}

	letters, upper := 0, 0
	for _, r := range message {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters > 0 && float64(upper)/float64(letters) > capsRatio {
		score += capsPoints
	}

	return min(score, MaxBehavioralScore)
}

func scoreEscalation(lower string) int {
	for _, p := range EscalationPhrases {
		if strings.Contains(lower, p) {
			return MaxEscalationScore
		}
	}
	return 0
}

// scoreHistory checks the prior session state; first match wins.
func scoreHistory(session *domain.Session) int {
	if session.HighRiskCount >= highRiskCountThreshold {
		return highRiskHistoryPoints
	}
	if session.CumulativeRisk > cumulativeRiskThreshold {
		return cumulativeHistoryPoints
	}
	if n := len(session.RiskScores); n >= minMessagesForAverage {
		sum := 0
		for _, v := range session.RiskScores {
			sum += v
		}
		if float64(sum)/float64(n) > averageRiskThreshold {
			return averageHistoryPoints
		}
	}
	return 0
}
