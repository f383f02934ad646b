package llm

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientFromEnv_DefaultsToAnthropic(t *testing.T) {
	t.Setenv(envProvider, "")
	t.Setenv(envAnthropicKey, "sk-test")
	t.Setenv(envAnthropicModel, "")

	client, err := NewClientFromEnv(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, defaultModel, client.Name())
}

func TestNewClientFromEnv_OpenAI(t *testing.T) {
	t.Setenv(envProvider, "OpenAI")
	t.Setenv(envOpenAIKey, "sk-test")
	t.Setenv(envOpenAIModel, "")

	client, err := NewClientFromEnv(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, defaultOpenAIModel, client.Name())
}

func TestNewClientFromEnv_UnknownProvider(t *testing.T) {
	t.Setenv(envProvider, "gemini")

	_, err := NewClientFromEnv(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider")
}

func TestNewAnthropic_RequiresKey(t *testing.T) {
	t.Setenv(envAnthropicKey, "")

	_, err := NewAnthropic(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), envAnthropicKey)
}

func TestNewAnthropic_ModelOverrideStripsQuotes(t *testing.T) {
	t.Setenv(envAnthropicKey, "sk-test")
	t.Setenv(envAnthropicModel, `"claude-haiku-4-5"`)

	client, err := NewAnthropic(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", client.Name())
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	t.Setenv(envOpenAIKey, "")

	_, err := NewOpenAI(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), envOpenAIKey)
}
