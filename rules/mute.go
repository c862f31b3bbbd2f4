package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/model/domain"
)

// MuteFilter suppresses findings matching a CEL expression by pairing
// them with a MutedFinding. The expression sees three string variables:
//
//	finding_type  the finding type id, e.g. "KAT-NO-SPF"
//	ooi           the full reference of the finding's subject
//	description   the finding's description
//
// Example: `finding_type == "KAT-NO-SPF" && ooi.startsWith("Hostname|internal|")`.
type MuteFilter struct {
	expr    string
	program cel.Program
}

// NewMuteFilter compiles the expression; it must evaluate to a bool.
func NewMuteFilter(expr string) (*MuteFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("finding_type", cel.StringType),
		cel.Variable("ooi", cel.StringType),
		cel.Variable("description", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("build mute filter env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile mute filter %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("mute filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build mute filter program: %w", err)
	}
	return &MuteFilter{expr: expr, program: program}, nil
}

// Matches reports whether the finding should be muted. Evaluation errors
// fail open: a broken filter must not suppress findings.
func (f *MuteFilter) Matches(finding *domain.Finding) bool {
	out, _, err := f.program.Eval(map[string]any{
		"finding_type": finding.FindingType.NaturalKey(),
		"ooi":          string(finding.OOI),
		"description":  finding.Description,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Apply returns MutedFinding objects for every matching finding in the
// batch. The findings themselves stay in the graph; muting is a reporting
// overlay, not a deletion.
func (f *MuteFilter) Apply(objs []model.Object) []model.Object {
	var muted []model.Object
	for _, obj := range objs {
		finding, ok := obj.(*domain.Finding)
		if !ok {
			continue
		}
		if f.Matches(finding) {
			muted = append(muted, &domain.MutedFinding{
				Finding: model.PrimaryKey(finding),
				Reason:  "matched mute filter: " + f.expr,
			})
		}
	}
	return muted
}
