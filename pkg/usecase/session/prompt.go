package session

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/bantam-dev/bantam/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(
	template.New("system").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(systemPromptRaw),
)

type promptBudget struct {
	Min, Max string
}

// buildSystemPrompt renders the agent instructions for one tenant.
// Tool-specific guidance is appended from the tool registry so tools
// stay self-describing.
func buildSystemPrompt(p *model.TenantPolicy, toolPrompts string) (string, error) {
	var buf bytes.Buffer
	err := systemPromptTmpl.Execute(&buf, map[string]any{
		"Personality": p.Personality,
		"Budget": promptBudget{
			Min: formatThousands(p.Budget.Min),
			Max: formatThousands(p.Budget.Max),
		},
		"AuthorityTitles": p.ValidAuthorityTitles,
		"NeedCategories":  p.ValidNeedCategories,
		"MaxTimelineDays": p.MaxTimelineDays,
		"CandidateTimes":  repository.CandidateTimes,
		"ToolPrompts":     toolPrompts,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render system prompt")
	}
	return buf.String(), nil
}

// formatThousands renders 100000 as "100,000"
func formatThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}
