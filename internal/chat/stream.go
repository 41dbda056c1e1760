package chat

import (
	"context"
	"strings"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
)

// Stream event types, in emission order.
const (
	EventMetadata = "metadata"
	EventCrisis   = "crisis"
	EventToken    = "token"
	EventDone     = "done"
)

// StreamEvent is one element of a streamed turn. Data is JSON-encodable.
type StreamEvent struct {
	Type string
	Data any
}

// MetadataEvent opens a stream.
type MetadataEvent struct {
	Type            string               `json:"type"`
	SessionID       string               `json:"session_id"`
	RiskScore       int                  `json:"risk_score"`
	RiskLevel       domain.RiskLevel     `json:"risk_level"`
	TriageActivated bool                 `json:"triage_activated"`
	HumanHandoff    bool                 `json:"human_handoff"`
	HandoffReason   domain.HandoffReason `json:"handoff_reason,omitempty"`
}

// CrisisEvent carries the crisis resources of a critical turn.
type CrisisEvent struct {
	Type      string                  `json:"type"`
	Resources []domain.CrisisResource `json:"resources"`
}

// TokenEvent is one word of the reply, including its trailing space.
type TokenEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// DoneEvent closes a stream.
type DoneEvent struct {
	Type         string    `json:"type"`
	MessageCount int       `json:"session_message_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// ProcessTurnStream runs a full turn and then emits it as metadata, an
// optional crisis event, word tokens and done. The turn is committed before
// the first event, so a failing emit never leaves a half-applied turn.
func (s *Service) ProcessTurnStream(ctx context.Context, req TurnRequest, emit func(StreamEvent) error) (*TurnResult, error) {
	res, err := s.ProcessTurn(ctx, req)
	if err != nil {
		return nil, err
	}
	return res, EmitTurn(ctx, res, emit)
}

// EmitTurn writes res as a sequence of stream events.
func EmitTurn(ctx context.Context, res *TurnResult, emit func(StreamEvent) error) error {
	events := []StreamEvent{{Type: EventMetadata, Data: MetadataEvent{
		Type:            EventMetadata,
		SessionID:       res.SessionID,
		RiskScore:       res.RiskScore,
		RiskLevel:       res.RiskLevel,
		TriageActivated: res.TriageActivated,
		HumanHandoff:    res.HumanHandoff,
		HandoffReason:   res.HandoffReason,
	}}}
	if len(res.Resources) > 0 {
		events = append(events, StreamEvent{Type: EventCrisis, Data: CrisisEvent{
			Type:      EventCrisis,
			Resources: res.Resources,
		}})
	}
	for _, tok := range Tokens(res.Reply) {
		events = append(events, StreamEvent{Type: EventToken, Data: TokenEvent{Type: EventToken, Content: tok}})
	}
	events = append(events, StreamEvent{Type: EventDone, Data: DoneEvent{
		Type:         EventDone,
		MessageCount: res.MessageCount,
		Timestamp:    res.Timestamp,
	}})

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}

// Tokens splits text on spaces, keeping each separator with the preceding
// word so that concatenating the tokens yields text.
func Tokens(text string) []string {
	parts := strings.SplitAfter(text, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
