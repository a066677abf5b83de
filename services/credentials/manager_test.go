package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/services"
)

const agencyJSON = `{
  "providers": {
    "claude": {
      "model": "claude-sonnet-4",
      "enabled": true,
      "api_key_env_var": "ANTHROPIC_API_KEY",
      "billing": {"input_per_mtok": 3, "output_per_mtok": 15}
    },
    "chatgpt": {
      "model": "gpt-4o",
      "enabled": true,
      "api_key_env_var": "OPENAI_API_KEY",
      "billing": {"input_per_mtok": 2.5, "output_per_mtok": 10}
    },
    "grok": {"model": "grok-2", "enabled": false, "api_key_env_var": "GROK_API_KEY"},
    "local": {"model": "llama", "enabled": false}
  }
}`

func newAgency(t *testing.T) *config.AgencyConfig {
	t.Helper()
	agency, err := config.ParseAgency([]byte(agencyJSON), "json")
	require.NoError(t, err)
	return agency
}

// countingLookup serves values from env and counts how often each key is read.
func countingLookup(env map[string]string, calls map[string]int) LookupFunc {
	return func(key string) (string, bool) {
		calls[key]++
		v, ok := env[key]
		return v, ok
	}
}

func TestManager_Get(t *testing.T) {
	env := map[string]string{"ANTHROPIC_API_KEY": "sk-ant-test", "OPENAI_API_KEY": ""}

	tests := []struct {
		name        string
		provider    string
		want        string
		expectError bool
	}{
		{name: "resolves key", provider: "claude", want: "sk-ant-test"},
		{name: "case insensitive", provider: "CLAUDE", want: "sk-ant-test"},
		{name: "empty variable", provider: "chatgpt", expectError: true},
		{name: "unknown provider", provider: "gemini", expectError: true},
		{name: "no env var configured", provider: "local", expectError: true},
		{name: "unset variable", provider: "grok", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(newAgency(t), WithLookup(countingLookup(env, map[string]int{})))

			key, err := m.Get(tt.provider)
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, services.IsCredentialError(err))
				assert.Empty(t, key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestManager_GetCachesSuccess(t *testing.T) {
	env := map[string]string{"ANTHROPIC_API_KEY": "first"}
	calls := map[string]int{}
	m := NewManager(newAgency(t), WithLookup(countingLookup(env, calls)))

	key, err := m.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "first", key)

	env["ANTHROPIC_API_KEY"] = "second"
	key, err = m.Get("Claude")
	require.NoError(t, err)
	assert.Equal(t, "first", key)
	assert.Equal(t, 1, calls["ANTHROPIC_API_KEY"])
}

func TestManager_GetDoesNotCacheFailure(t *testing.T) {
	env := map[string]string{}
	m := NewManager(newAgency(t), WithLookup(countingLookup(env, map[string]int{})))

	_, err := m.Get("claude")
	require.Error(t, err)
	assert.Equal(t, "ANTHROPIC_API_KEY", services.GetErrorDetails(err)["env_var"])

	env["ANTHROPIC_API_KEY"] = "late"
	key, err := m.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "late", key)
}

func TestManager_InstancesDoNotShareCache(t *testing.T) {
	agency := newAgency(t)
	first := NewManager(agency, WithLookup(countingLookup(map[string]string{"ANTHROPIC_API_KEY": "a"}, map[string]int{})))
	second := NewManager(agency, WithLookup(countingLookup(map[string]string{"ANTHROPIC_API_KEY": "b"}, map[string]int{})))

	a, err := first.Get("claude")
	require.NoError(t, err)
	b, err := second.Get("claude")
	require.NoError(t, err)

	assert.Equal(t, "a", a)
	assert.Equal(t, "b", b)
}

func TestManager_DefaultLookupReadsEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	key, err := NewManager(newAgency(t)).Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
}

func TestManager_ValidateAll(t *testing.T) {
	env := map[string]string{"ANTHROPIC_API_KEY": "sk-ant-test"}
	m := NewManager(newAgency(t), WithLookup(countingLookup(env, map[string]int{})))

	status := m.ValidateAll()
	require.Len(t, status, 4)

	assert.Equal(t, Status{Enabled: true, Available: true, EnvVar: "ANTHROPIC_API_KEY", Reason: ReasonReady}, status["claude"])
	assert.Equal(t, Status{Enabled: true, Available: false, EnvVar: "OPENAI_API_KEY", Reason: "set OPENAI_API_KEY"}, status["chatgpt"])
	assert.Equal(t, ReasonDisabled, status["grok"].Reason)
	assert.False(t, status["grok"].Available)
	assert.Equal(t, ReasonDisabled, status["local"].Reason)
}

func TestManager_ValidateAllEnabledWithoutEnvVar(t *testing.T) {
	agency := newAgency(t)
	// Validation rejects this shape on load; mutate afterwards to reach the branch.
	agency.Providers["chatgpt"].APIKeyEnvVar = ""

	status := NewManager(agency, WithLookup(countingLookup(map[string]string{}, map[string]int{}))).ValidateAll()
	assert.Equal(t, Status{Enabled: true, Reason: ReasonNoEnvVar}, status["chatgpt"])
}
