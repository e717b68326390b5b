package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision is the outcome of an import authorization check.
type Decision struct {
	Allow  bool
	Reason string
}

// ImportInput describes a roster import request.
type ImportInput struct {
	Role           string
	ClassID        string
	UpdateExisting bool
}

// Engine evaluates the roster import policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares policyContent, which must define data.roster_import.decision
// as an object {allow, reason}.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.roster_import.decision"),
		rego.Module("roster_import.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

func (e *Engine) AuthorizeImport(ctx context.Context, in ImportInput) (Decision, error) {
	input := map[string]interface{}{
		"role":            in.Role,
		"class_id":        in.ClassID,
		"update_existing": in.UpdateExisting,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// An undefined decision denies.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "no policy decision"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result %T", results[0].Expressions[0].Value)
	}
	allow, _ := obj["allow"].(bool)
	reason, _ := obj["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}

// DefaultImportPolicy lets admins import anything and teachers add new
// students to a class without overwriting existing records.
const DefaultImportPolicy = `
package roster_import

import rego.v1

default decision = {"allow": false, "reason": "your role may not import rosters"}

decision = {"allow": true, "reason": "admin"} if input.role == "admin"

decision = {"allow": true, "reason": "teacher import"} if {
	input.role == "teacher"
	input.class_id != ""
	not input.update_existing
}

decision = {"allow": false, "reason": "teachers may not overwrite existing students"} if {
	input.role == "teacher"
	input.update_existing
}

decision = {"allow": false, "reason": "teachers must import into a class"} if {
	input.role == "teacher"
	input.class_id == ""
	not input.update_existing
}
`
