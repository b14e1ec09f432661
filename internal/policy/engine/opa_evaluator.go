package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"talent-hub/backend/internal/profile/domain"
)

const admissionQuery = "data.talenthub.session.allow"

// Default Rego policy: only active profiles may hold a session.
const defaultRegoPolicy = `package talenthub.session

default allow = false

allow if {
	input.profile.status == "active"
}
`

// OPAEvaluator evaluates session admission using OPA Rego. The policy is
// compiled once at construction.
type OPAEvaluator struct {
	compiler *ast.Compiler
}

// NewOPAEvaluator returns an evaluator using policy, or the default policy
// when policy is empty.
func NewOPAEvaluator(policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"session_admission.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("policy: compile: %w", err)
	}
	return &OPAEvaluator{compiler: compiler}, nil
}

// Admit evaluates the admission policy for the profile.
func (e *OPAEvaluator) Admit(ctx context.Context, p *domain.Profile) (bool, error) {
	if p == nil {
		return false, nil
	}
	input := map[string]interface{}{
		"profile": map[string]interface{}{
			"id":     p.ID,
			"role":   string(p.Role),
			"status": string(p.Status),
		},
	}
	q := rego.New(
		rego.Query(admissionQuery),
		rego.Compiler(e.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("policy: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy: query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy: query returned non-boolean %T", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// HealthCheck verifies the compiled policy evaluates against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Admit(ctx, &domain.Profile{ID: "healthcheck", Role: domain.RoleEmployee, Status: domain.StatusActive})
	return err
}
