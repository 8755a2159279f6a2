package quality

import (
	"os"
	"slices"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/cel-go/cel"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// Rule is a user-defined flag condition written in CEL, for example
//
//	entity.type == "investor" && entity.funding_rounds == 0
//
// A rule that evaluates to true flags the entity.
type Rule struct {
	Name        string `json:"name" yaml:"name"`
	Expression  string `json:"expression" yaml:"expression"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// RulesFile is the on-disk form of a rule set.
type RulesFile struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

type program struct {
	rule Rule
	prg  cel.Program
}

// RuleSet is a compiled list of rules.
type RuleSet struct {
	programs []program
}

// ruleEnv declares the single "entity" variable rules are written against.
func ruleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("entity", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// CompileRules compiles rules into a RuleSet. Every rule must have a unique
// name and a boolean expression.
func CompileRules(rules []Rule) (*RuleSet, error) {
	env, err := ruleEnv()
	if err != nil {
		return nil, errors.NewConfigError("quality", "failed to create rule environment", err)
	}

	rs := &RuleSet{}
	seen := make(map[string]bool)
	for _, r := range rules {
		if r.Name == "" {
			return nil, errors.NewValidationError("name", r.Expression, "rule has no name")
		}
		if seen[r.Name] {
			return nil, errors.NewValidationError("name", r.Name, "duplicate rule")
		}
		seen[r.Name] = true

		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, errors.NewParseError("cel", "", "rule "+r.Name+": "+issues.Err().Error(), issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, errors.NewValidationError("expression", r.Expression, "rule "+r.Name+" must return a bool")
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.NewParseError("cel", "", "rule "+r.Name, err)
		}
		rs.programs = append(rs.programs, program{rule: r, prg: prg})
	}
	return rs, nil
}

// LoadRules reads and compiles a YAML rules file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return CompileRules(f.Rules)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.programs)
}

// Evaluate returns the names of the rules e violates, sorted. A rule that
// fails to evaluate is reported in the joined error and does not match.
func (rs *RuleSet) Evaluate(e *entity.Entity, now time.Time) ([]string, error) {
	if rs.Len() == 0 {
		return nil, nil
	}
	vars := map[string]any{"entity": Facts(e, now)}

	var matched []string
	var errs []error
	for _, p := range rs.programs {
		out, _, err := p.prg.Eval(vars)
		if err != nil {
			errs = append(errs, errors.WrapResource("evaluate", "rule", p.rule.Name, err))
			continue
		}
		if hit, ok := out.Value().(bool); ok && hit {
			matched = append(matched, p.rule.Name)
		}
	}
	slices.Sort(matched)
	return matched, errors.Join(errs...)
}

// Facts flattens an entity into the values rules can reference. Durations
// are in days; an absent growth score is -1.
func Facts(e *entity.Entity, now time.Time) map[string]any {
	score := -1.0
	if e.GrowthScore != nil {
		score = *e.GrowthScore
	}
	fundingTotal := 0.0
	for _, r := range e.FundingRounds {
		if r.Amount != nil {
			fundingTotal += *r.Amount
		}
	}
	days := func(t time.Time) float64 {
		if t.IsZero() {
			return 0
		}
		return now.Sub(t).Hours() / 24
	}
	return map[string]any{
		"id":                 e.ID,
		"type":               string(e.Type),
		"status":             string(e.Status),
		"name":               e.Name,
		"description":        e.Description,
		"website":            e.Website,
		"country":            e.Country,
		"city":               e.City,
		"domains":            slices.Clone(e.Domains),
		"founded_year":       int64(e.FoundedYear),
		"headcount_estimate": int64(e.HeadcountEstimate),
		"has_location":       e.Lat != nil && e.Lon != nil,
		"funding_rounds":     int64(len(e.FundingRounds)),
		"funding_total":      fundingTotal,
		"growth_score":       score,
		"score_confidence":   e.ScoreConfidence,
		"sources":            int64(len(e.ContributingSources)),
		"age_days":           days(e.CreatedAt.Time),
		"stale_days":         days(e.SourcesUpdatedAt.Time),
	}
}
