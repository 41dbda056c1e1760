package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
)

// SystemPrompt frames every provider call.
const SystemPrompt = "You are a compassionate, empathetic mental health support chatbot. " +
	"You are NOT a licensed therapist or medical professional. " +
	"Your role is to listen actively, validate feelings, and provide emotional support.\n\n" +
	"Guidelines:\n" +
	"- Never diagnose conditions or recommend medication\n" +
	"- Never minimize feelings or tell users to 'just calm down'\n" +
	"- Use empathetic, validating language\n" +
	"- Ask open-ended questions to understand the user better\n" +
	"- If someone is in crisis, encourage them to contact emergency services or a crisis hotline\n" +
	"- Keep responses concise but warm (2-4 sentences)\n" +
	"- Respond in the same language the user writes in\n" +
	"- User messages may contain privacy placeholders like [NAME], [EMAIL], [PHONE], or [ADDRESS]. " +
	"Never repeat these placeholders in your response. Simply skip over them naturally " +
	"and do not ask the user for their personal information."

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// OpenAI calls a chat completions API over HTTP.
type OpenAI struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAI requires an API key; the other fields have defaults.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai provider requires an API key", domain.ErrProvider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAI{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Temperature         *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:               o.cfg.Model,
		Messages:            buildMessages(req),
		MaxCompletionTokens: o.cfg.MaxTokens,
		Temperature:         o.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", domain.ErrProvider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", domain.ErrProvider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: chat request: %w", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: rate limited (429)", domain.ErrProvider)
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", fmt.Errorf("%w: service unavailable (%d)", domain.ErrProvider, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: unexpected status %d", domain.ErrProvider, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", domain.ErrProvider, err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("%w: parse response: %w", domain.ErrProvider, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", domain.ErrProvider, errEmptyReply)
	}

	choice := chatResp.Choices[0]
	slog.Info("provider reply received",
		"session_id", req.SessionID,
		"finish_reason", choice.FinishReason,
		"content_length", len(choice.Message.Content))
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrProvider, errEmptyReply)
	}
	return choice.Message.Content, nil
}

var errEmptyReply = errors.New("empty reply")

// buildMessages lays out the system prompt, the most recent history and the
// current message.
func buildMessages(req Request) []chatMessage {
	history := req.History
	if len(history) > MaxContextMessages {
		history = history[len(history)-MaxContextMessages:]
	}
	msgs := make([]chatMessage, 0, len(history)+2)
	msgs = append(msgs, chatMessage{Role: "system", Content: SystemPrompt})
	for _, m := range history {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: m.Content})
	}
	return append(msgs, chatMessage{Role: "user", Content: req.Message})
}
