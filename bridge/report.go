package bridge

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/engine"
	"github.com/effective-security/mcpbridge/modelcheck"
	"github.com/effective-security/mcpbridge/providers"
)

// MarkerError starts the output of a failed task.
const MarkerError = "ERROR:"

// Report is the outcome of a task.
type Report struct {
	*engine.Result
	Mode Mode
	// Providers are the providers the task ran with.
	Providers []string
	// Failures are the providers that could not be opened.
	Failures []*providers.ProviderError
}

// Output returns the answer, followed by the provider failures if any.
func (r *Report) Output() string {
	out := r.Result.Output()
	if len(r.Failures) == 0 {
		return out
	}
	var sb strings.Builder
	sb.WriteString(out)
	sb.WriteString("\n\nProvider errors:")
	for _, f := range r.Failures {
		fmt.Fprintf(&sb, "\n- %s: %s", f.Provider, f.Err.Error())
	}
	return sb.String()
}

// ErrorOutput returns the user visible text of a failed task.
func ErrorOutput(err error) string {
	var nf *modelcheck.NotFoundError
	switch {
	case errors.As(err, &nf):
		return fmt.Sprintf("%s %s", MarkerError, nf.Error())
	case errors.Is(err, engine.ErrNoModel):
		return fmt.Sprintf("%s %s; set model.default_model or pass a model", MarkerError, err.Error())
	default:
		return fmt.Sprintf("%s %s", MarkerError, err.Error())
	}
}
