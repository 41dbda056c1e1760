package cli

import (
	"bytes"
	"encoding/json"
	"net"
	"testing"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/darktomcat119/Health-AI-MVP/internal/triage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreJSON(t *testing.T) {
	out, err := run(t, "score", "--explain", "-f", "json",
		"hello",
		"I want to talk to a real person")
	require.NoError(t, err)

	var results []scoreResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)

	assert.Equal(t, domain.RiskLow, results[0].Level)
	assert.False(t, results[0].Handoff)
	require.NotNil(t, results[0].Breakdown)
	assert.Equal(t, results[0].Score, results[0].Breakdown.Total())

	assert.True(t, results[1].Handoff)
	assert.Equal(t, domain.ReasonUserRequested, results[1].Reason)
	assert.Equal(t, triage.ReplyUserRequested, results[1].Override)
}

func TestScoreCriticalText(t *testing.T) {
	out, err := run(t, "score",
		"I WANT TO KILL MYSELF!!! I CAN'T ANYMORE, EVERYTHING IS TERRIBLE AWFUL HORRIBLE MISERABLE")
	require.NoError(t, err)

	assert.Contains(t, out, "turn 1: score=80 level=critical triage=on handoff=critical_risk")
	assert.Contains(t, out, "resource: ")
}

func TestScoreRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "score", "-f", "xml", "hello")
	assert.ErrorContains(t, err, "unknown format")
}

func TestScoreRequiresMessage(t *testing.T) {
	_, err := run(t, "score")
	assert.Error(t, err)
}

func TestLexicon(t *testing.T) {
	out, err := run(t, "lexicon")
	require.NoError(t, err)

	assert.Contains(t, out, "keywords: embedded")
	assert.Contains(t, out, "critical")
	assert.Contains(t, out, "crisis resources: embedded (4)")
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("RISK_THRESHOLD_HIGH", "90")
	_, err := run(t, "lexicon")
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestHealthUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	_, err = run(t, "health", "--addr", addr, "--timeout", "200ms")
	assert.Error(t, err)
}
