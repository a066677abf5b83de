package report

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/agency-llm-client/services/credentials"
	"github.com/upb/agency-llm-client/services/providers"
	"github.com/upb/agency-llm-client/services/usage"
)

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
}

func TestRenderSummary(t *testing.T) {
	summary := &usage.Summary{
		TotalCalls:  4,
		FailedCalls: 1,
		TotalTokens: 4500,
		TotalCost:   12.0833,
		ByProvider: map[string]*usage.Bucket{
			"claude":  {Calls: 2, Tokens: 3000, Cost: 11.75},
			"chatgpt": {Calls: 1, Tokens: 1500, Cost: 0.3333},
		},
		ByAgent: map[string]*usage.Bucket{
			"math-auditor": {Calls: 3, Tokens: 4500, Cost: 12.0833},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, summary))
	out := buf.String()

	assert.Contains(t, out, "Total calls:  4 (1 failed)")
	assert.Contains(t, out, "Total tokens: 4500")
	assert.Contains(t, out, "Total cost:   $12.0833")
	assert.Contains(t, out, "math-auditor")
	assert.Contains(t, out, "$11.7500")
	assert.NotContains(t, out, "\x1b[")

	// Provider rows are sorted by name.
	assert.Less(t, strings.Index(out, "chatgpt"), strings.Index(out, "claude"))
}

func TestRenderSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, &usage.Summary{}))
	assert.Contains(t, buf.String(), "No successful calls recorded.")

	assert.Error(t, RenderSummary(&buf, nil))
}

func TestRenderStatus(t *testing.T) {
	statuses := map[string]credentials.Status{
		"grok":    {Enabled: false, EnvVar: "XAI_API_KEY", Reason: credentials.ReasonDisabled},
		"claude":  {Enabled: true, Available: true, EnvVar: "ANTHROPIC_API_KEY", Reason: credentials.ReasonReady},
		"chatgpt": {Enabled: true, EnvVar: "OPENAI_API_KEY", Reason: "set OPENAI_API_KEY"},
		"local":   {Enabled: true, Reason: credentials.ReasonNoEnvVar},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderStatus(&buf, statuses))
	out := buf.String()

	assert.Contains(t, out, "Provider status")
	assert.Contains(t, out, "set OPENAI_API_KEY")
	assert.Contains(t, out, credentials.ReasonNoEnvVar)
	assert.NotContains(t, out, "\x1b[")

	chatgpt := strings.Index(out, "chatgpt")
	claude := strings.Index(out, "claude")
	grok := strings.Index(out, "grok")
	local := strings.Index(out, "local")
	assert.True(t, chatgpt < claude && claude < grok && grok < local, "rows should be sorted")
}

func TestRenderResponse(t *testing.T) {
	var buf bytes.Buffer
	err := RenderResponse(&buf, &providers.APIResponse{
		Content:      "All formulas check out.",
		Model:        "claude-sonnet-4",
		InputTokens:  1000,
		OutputTokens: 500,
		CostUSD:      10.5,
		Provider:     "claude",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "All formulas check out.\n"))
	assert.Contains(t, out, "Provided by: claude (claude-sonnet-4)")
	assert.Contains(t, out, "Tokens: 1000 in + 500 out")
	assert.Contains(t, out, "Cost: $10.5000")

	assert.Error(t, RenderResponse(&buf, nil))
}
