package policy

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed rego/qualify.rego
var qualifyRegoRaw string

// Verdict is the rule-based qualification outcome, computed from the
// captured BANT values independently of what the agent reported.
type Verdict struct {
	Qualified bool     `json:"qualified"`
	Reasons   []string `json:"reasons,omitempty"`
}

// Evaluator applies a tenant's qualification criteria to captured BANT
// values via a prepared Rego query.
type Evaluator struct {
	query rego.PreparedEvalQuery
}

// NewEvaluator compiles the embedded qualification policy
func NewEvaluator(ctx context.Context) (*Evaluator, error) {
	return prepareEvaluator(ctx, rego.Module("qualify.rego", qualifyRegoRaw))
}

// NewEvaluatorFromDir compiles all .rego files in policyDir instead of
// the embedded policy. The modules must together define data.qualify.
func NewEvaluatorFromDir(ctx context.Context, policyDir string) (*Evaluator, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, goerr.New("no policy files found", goerr.V("dir", policyDir))
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}

	return prepareEvaluator(ctx, modules...)
}

func prepareEvaluator(ctx context.Context, modules ...func(*rego.Rego)) (*Evaluator, error) {
	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query("data.qualify"))
	options = append(options, modules...)

	query, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare qualification query")
	}

	return &Evaluator{query: query}, nil
}

// Evaluate computes the verdict for one BANT snapshot against the
// tenant's criteria. Text matching is case-insensitive.
func (e *Evaluator) Evaluate(ctx context.Context, p *model.TenantPolicy, bant model.BANT) (*Verdict, error) {
	budgetUSD, budgetKnown := ParseBudgetUSD(bant.Budget)
	timelineDays, timelineKnown := ParseTimelineDays(bant.Timeline)

	input := map[string]any{
		"budget": map[string]any{
			"known": budgetKnown,
			"usd":   budgetUSD,
		},
		"authority": strings.ToLower(bant.Authority),
		"need":      strings.ToLower(bant.Need),
		"timeline": map[string]any{
			"known": timelineKnown,
			"days":  timelineDays,
		},
		"criteria": map[string]any{
			"budget": map[string]any{
				"min": p.Budget.Min,
				"max": p.Budget.Max,
			},
			"authority_titles":  lowerAll(p.ValidAuthorityTitles),
			"need_categories":   lowerAll(p.ValidNeedCategories),
			"max_timeline_days": p.MaxTimelineDays,
		},
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate qualification policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, goerr.New("qualification policy returned no result")
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid qualification policy result")
	}

	verdict := &Verdict{}
	if q, ok := data["qualified"].(bool); ok {
		verdict.Qualified = q
	}
	if raw, ok := data["reasons"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				verdict.Reasons = append(verdict.Reasons, s)
			}
		}
		sort.Strings(verdict.Reasons)
	}

	return verdict, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
