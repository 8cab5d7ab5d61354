// Package alert provides the CEL-based alert policy for scored transactions.
package alert

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Policy decides whether a scored transaction should raise an alert.
// The decision is a compiled CEL expression over the score and the
// transaction, hot-swappable at runtime.
type Policy struct {
	mu         sync.RWMutex
	env        *cel.Env
	program    cel.Program
	expression string
}

// NewPolicy creates a policy from configuration. An empty expression
// falls back to the default review threshold.
func NewPolicy(cfg domain.AlertPolicyConfig) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.IntType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("location", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("known_user", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	p := &Policy{env: env}

	expr := cfg.Expression
	if expr == "" {
		expr = domain.DefaultAlertExpression
	}
	if err := p.SetExpression(expr); err != nil {
		return nil, err
	}

	return p, nil
}

// SetExpression compiles and installs a new policy expression.
func (p *Policy) SetExpression(expr string) error {
	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile alert expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("alert expression must return bool, got %s", ast.OutputType())
	}

	program, err := p.env.Program(ast)
	if err != nil {
		return fmt.Errorf("failed to create alert program: %w", err)
	}

	p.mu.Lock()
	p.program = program
	p.expression = expr
	p.mu.Unlock()

	return nil
}

// Expression returns the currently installed expression.
func (p *Policy) Expression() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.expression
}

// Evaluate reports whether the scored transaction trips the policy.
func (p *Policy) Evaluate(result domain.ScoreResult, tx *domain.Transaction) (bool, error) {
	p.mu.RLock()
	program := p.program
	p.mu.RUnlock()

	out, _, err := program.Eval(map[string]any{
		"score":      result.Score,
		"amount":     tx.Amount,
		"location":   tx.Location,
		"user_id":    tx.UserID,
		"known_user": result.KnownUser,
	})
	if err != nil {
		return false, fmt.Errorf("alert policy evaluation: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("alert policy returned %T, expected bool", out)
	}
	return bool(b), nil
}

// NewAlert builds the alert record for a scored transaction.
func NewAlert(result domain.ScoreResult, tx *domain.Transaction) *domain.Alert {
	msg := fmt.Sprintf("High risk transaction of %.2f at %s", tx.Amount, tx.Location)
	if len(result.Factors) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(result.Factors, ", "))
	}

	return &domain.Alert{
		ID:            uuid.New().String(),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Message:       msg,
		RiskScore:     result.Score,
		Timestamp:     time.Now().UTC(),
	}
}
