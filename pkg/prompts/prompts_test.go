package prompts_test

import (
	"testing"

	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SystemPrompt(t *testing.T) {
	t.Parallel()

	p, err := prompts.SystemPrompt(&prompts.SystemPromptData{
		Providers: []prompts.Provider{
			{Name: "files", Description: "local files", Tools: []string{"files__list", "files__read"}},
			{Name: "notes", Tools: []string{"notes__list"}},
		},
		Namespaced:   true,
		Instructions: "  Answer in English.\n",
	})
	require.NoError(t, err)
	assert.Contains(t, p, "The tools are provided by 2 providers:\n- files: local files (files__list, files__read)\n- notes (notes__list)")
	assert.Contains(t, p, `prefixed with the provider name and "__"`)
	assert.Contains(t, p, "\n\nAnswer in English.")

	p, err = prompts.SystemPrompt(&prompts.SystemPromptData{
		Providers: []prompts.Provider{{Name: "files", Tools: []string{"read"}}},
	})
	require.NoError(t, err)
	assert.Contains(t, p, "provided by 1 provider:\n- files (read)")
	assert.NotContains(t, p, "prefixed")
	assert.NotContains(t, p, "Answer in")

	p, err = prompts.SystemPrompt(&prompts.SystemPromptData{})
	require.NoError(t, err)
	assert.NotContains(t, p, "provided by")
	assert.Contains(t, p, "reply with the final answer")
}

func Test_Render(t *testing.T) {
	t.Parallel()

	p, err := prompts.Render(`{{ .name | upper }} {{ default "x" .missing }}`, map[string]any{"name": "abc", "missing": ""})
	require.NoError(t, err)
	assert.Equal(t, "ABC x", p)

	_, err = prompts.Render(`{{ .name `, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse prompt template")

	_, err = prompts.Render(`{{ .name }}`, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render prompt template")
}
