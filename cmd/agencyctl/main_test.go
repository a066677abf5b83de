package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/agency-llm-client/services"
)

// setupEnv writes an agency document into a temp dir and points the
// runtime config at it. It returns the usage log path.
func setupEnv(t *testing.T, claudeURL string) (agencyPath, trackFile string) {
	t.Helper()
	dir := t.TempDir()
	trackFile = filepath.Join(dir, "logs", "api-usage.json")

	doc := map[string]interface{}{
		"providers": map[string]interface{}{
			"claude": map[string]interface{}{
				"model": "claude-sonnet-4", "enabled": true, "api_key_env_var": "AGENCYCTL_TEST_CLAUDE_KEY",
				"billing": map[string]float64{"input_per_mtok": 3, "output_per_mtok": 15},
			},
			"grok": map[string]interface{}{"model": "grok-2", "enabled": false, "api_key_env_var": "AGENCYCTL_TEST_XAI_KEY"},
		},
		"agents": map[string]interface{}{
			"math-auditor": map[string]interface{}{"provider": "claude"},
		},
		"usage_control": map[string]interface{}{"track_file": trackFile},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	agencyPath = filepath.Join(dir, "agency.json")
	require.NoError(t, os.WriteFile(agencyPath, data, 0o644))

	t.Setenv("AGENCY_CONFIG", agencyPath)
	t.Setenv("USAGE_STORE_DRIVER", "file")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("AGENCYCTL_TEST_CLAUDE_KEY", "sk-test")
	t.Setenv("CLAUDE_BASE_URL", claudeURL)
	return agencyPath, trackFile
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func claudeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))

		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "You audit math.", req["system"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","model":"claude-sonnet-4","content":[{"type":"text","text":"2+2 = 4"}],"usage":{"input_tokens":1000,"output_tokens":500}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Usage(t *testing.T) {
	_, err := runCmd(t, "")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "", "launch")
	assert.ErrorContains(t, err, `unknown command "launch"`)

	out, err := runCmd(t, "", "help")
	require.NoError(t, err)
	assert.Contains(t, out, "usage: agencyctl")
}

func TestRun_Schema(t *testing.T) {
	out, err := runCmd(t, "", "schema")
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "Agency configuration", schema["title"])
}

func TestRun_Validate(t *testing.T) {
	agencyPath, _ := setupEnv(t, "")

	out, err := runCmd(t, "", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, agencyPath+": ok (2 providers, 1 agents, 1 enabled)")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"providers": {}}`), 0o644))
	_, err = runCmd(t, "", "validate", "-config", bad)
	require.Error(t, err)
	assert.True(t, services.IsConfigError(err))
}

func TestRun_Providers(t *testing.T) {
	setupEnv(t, "")

	out, err := runCmd(t, "", "providers")
	require.NoError(t, err)
	assert.Equal(t, "chatgpt\nclaude\ngrok\n", out)

	out, err = runCmd(t, "", "providers", "-enabled")
	require.NoError(t, err)
	assert.Equal(t, "claude\n", out)
}

func TestRun_Status(t *testing.T) {
	setupEnv(t, "")

	out, err := runCmd(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "AGENCYCTL_TEST_CLAUDE_KEY")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "disabled")
}

func TestRun_CallAndSummary(t *testing.T) {
	srv := claudeServer(t)
	_, trackFile := setupEnv(t, srv.URL)

	out, err := runCmd(t, "check 2+2\n", "call", "-agent", "math-auditor", "-system", "You audit math.")
	require.NoError(t, err)
	assert.Contains(t, out, "2+2 = 4")
	assert.Contains(t, out, "Provided by: claude")
	assert.Contains(t, out, "Cost: $10.5000")

	data, err := os.ReadFile(trackFile)
	require.NoError(t, err)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "success", entries[0]["status"])

	out, err = runCmd(t, "", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Total calls:  1 (0 failed)")
	assert.Contains(t, out, "math-auditor")
}

func TestRun_CallErrors(t *testing.T) {
	setupEnv(t, "")

	_, err := runCmd(t, "hi", "call")
	assert.ErrorContains(t, err, "-agent is required")

	_, err = runCmd(t, "   ", "call", "-agent", "math-auditor")
	assert.ErrorContains(t, err, "prompt is empty")

	_, err = runCmd(t, "", "call", "-agent", "ghost", "-prompt", "hi")
	require.Error(t, err)
	assert.True(t, services.IsConfigError(err))

	// A disabled override is a config error even without its credential.
	_, err = runCmd(t, "", "call", "-agent", "math-auditor", "-provider", "grok", "-prompt", "hi")
	require.Error(t, err)
	assert.True(t, services.IsConfigError(err))
}

func TestRun_SummaryWatchRequiresFileStore(t *testing.T) {
	setupEnv(t, "")
	t.Setenv("USAGE_STORE_DRIVER", "sqlite3")
	t.Setenv("USAGE_STORE_DSN", filepath.Join(t.TempDir(), "usage.db"))

	_, err := runCmd(t, "", "summary", "-watch")
	require.Error(t, err)
	assert.True(t, services.IsConfigError(err))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "limit_exceeded: daily cap",
		describe(services.NewLimitExceededError(services.LimitRequestsPerDay, 3, 3, "daily cap")))
	assert.Equal(t, "config: open store: config: bad dsn",
		describe(fmt.Errorf("open store: %w", services.NewConfigError("bad dsn"))))
	assert.Equal(t, assert.AnError.Error(), describe(assert.AnError))
}
