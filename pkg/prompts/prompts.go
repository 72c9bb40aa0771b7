// Package prompts renders the system prompt of a task.
package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

// DefaultSystemPrompt lists the active providers and explains how to call their tools.
const DefaultSystemPrompt = `You are an autonomous assistant that completes the task by calling tools.
{{- if .Providers }}
The tools are provided by {{ len .Providers }} provider{{ if gt (len .Providers) 1 }}s{{ end }}:
{{- range .Providers }}
- {{ .Name }}{{ with .Description }}: {{ . }}{{ end }} ({{ join ", " .Tools }})
{{- end }}
{{- if .Namespaced }}
Tool names are prefixed with the provider name and "__", use the full name when calling a tool.
{{- end }}
{{- end }}
Call tools as many times as needed, one or several at once.
If a tool returns an error, fix the arguments or choose another tool.
When the task is complete, reply with the final answer without calling any tools.
{{- with .Instructions }}

{{ trim . }}
{{- end }}`

// Provider is an active provider as presented to the model.
type Provider struct {
	Name        string
	Description string
	Tools       []string
}

// SystemPromptData is the input of the system prompt template.
type SystemPromptData struct {
	Providers  []Provider
	Namespaced bool
	// Instructions are appended to the prompt, usually from the host configuration.
	Instructions string
}

// SystemPrompt renders DefaultSystemPrompt.
func SystemPrompt(data *SystemPromptData) (string, error) {
	return Render(DefaultSystemPrompt, data)
}

// Render executes a text template with the sprig functions.
func Render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse prompt template")
	}
	var buf strings.Builder
	if err = t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render prompt template")
	}
	return buf.String(), nil
}
