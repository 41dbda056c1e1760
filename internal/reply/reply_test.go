package reply

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRules(t *testing.T) {
	t.Parallel()
	m := NewMock()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"first greeting", Request{Message: "Hello", FirstContact: true}, mockGreetingFirst},
		{"returning greeting", Request{Message: "hola"}, mockGreetingReturning},
		{"farewell beats greeting", Request{Message: "hi, gotta go now"}, mockFarewell},
		{"sleep beats stress", Request{Message: "I'm stressed and can't sleep"}, mockSleep},
		{"stress", Request{Message: "I feel so anxious"}, mockStress},
		{"sadness", Request{Message: "I've been crying a lot"}, mockSadness},
		{"relationship", Request{Message: "my partner left"}, mockRelationship},
		{"work", Request{Message: "my boss yells at me"}, mockWorkSchool},
		{"positive", Request{Message: "today was great"}, mockPositive},
		{"hi inside a word is not a greeting", Request{Message: "nothing in this makes sense"}, mockDefault},
		{"default", Request{Message: "hmm"}, mockDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := m.Generate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMockRepliesPassValidation(t *testing.T) {
	t.Parallel()
	for _, s := range []string{
		mockGreetingFirst, mockGreetingReturning, mockStress, mockSadness, mockPositive,
		mockSleep, mockRelationship, mockWorkSchool, mockFarewell, mockDefault, SafeFallback,
	} {
		assert.Empty(t, Validate(s), s)
	}
}

func TestMockHonoursCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock().Generate(ctx, Request{Message: "hello"})
	require.ErrorIs(t, err, domain.ErrProvider)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "diagnosis", Validate("It sounds like YOU HAVE depression."))
	assert.Equal(t, "medication", Validate("Maybe take 20 mg of something"))
	assert.Equal(t, "minimizing", Validate("Just relax, it will pass."))
	assert.Empty(t, Validate("That sounds really hard. I'm here with you."))
}

type stubGenerator struct {
	text string
	err  error
}

func (s stubGenerator) Generate(context.Context, Request) (string, error) {
	return s.text, s.err
}

func TestValidatedReplacesUnsafeReplies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	got, err := NewValidated(stubGenerator{text: "You should take a pill."}, nil).Generate(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, SafeFallback, got)

	got, err = NewValidated(stubGenerator{text: "I'm listening."}, nil).Generate(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "I'm listening.", got)

	boom := errors.New("boom")
	_, err = NewValidated(stubGenerator{err: boom}, nil).Generate(ctx, Request{})
	require.ErrorIs(t, err, boom)
}

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	g, err := New("mock", OpenAIConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Validated{}, g)

	_, err = New("openai", OpenAIConfig{}, nil)
	require.ErrorIs(t, err, domain.ErrProvider)

	_, err = New("anthropic", OpenAIConfig{}, nil)
	require.ErrorIs(t, err, domain.ErrProvider)
}

func TestOpenAIGenerate(t *testing.T) {
	t.Parallel()

	received := make(chan chatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"I'm here for you."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	temp := 0.7
	p, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "m", MaxTokens: 300, Temperature: &temp})
	require.NoError(t, err)

	history := make([]domain.Message, 0, 12)
	for i := 0; i < 12; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		history = append(history, domain.Message{Role: role, Content: "m"})
	}

	text, err := p.Generate(context.Background(), Request{Message: "hi [NAME]", History: history})
	require.NoError(t, err)
	assert.Equal(t, "I'm here for you.", text)

	got := <-received
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, 300, got.MaxCompletionTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
	require.Len(t, got.Messages, MaxContextMessages+2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, chatMessage{Role: "user", Content: "hi [NAME]"}, got.Messages[len(got.Messages)-1])
}

func TestOpenAIFailuresAreProviderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusTooManyRequests, ""},
		{"unavailable", http.StatusServiceUnavailable, ""},
		{"bad request", http.StatusBadRequest, `{"error":"bad"}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)
			_, err = p.Generate(context.Background(), Request{Message: "hello"})
			require.ErrorIs(t, err, domain.ErrProvider)
		})
	}
}

func TestOpenAIHonoursDeadline(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	p, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, Request{Message: "hello"})
	require.ErrorIs(t, err, domain.ErrProvider)
}
