package alert

import (
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func scored(score int, amount float64, location string) (domain.ScoreResult, *domain.Transaction) {
	tx := &domain.Transaction{
		ID:        "tx-1",
		UserID:    "user001",
		Amount:    amount,
		Location:  location,
		Timestamp: time.Now().UTC(),
		RiskScore: score,
		Status:    domain.StatusPending,
	}
	return domain.ScoreResult{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Score:         score,
		KnownUser:     true,
	}, tx
}

func TestPolicy(t *testing.T) {
	t.Run("default expression", func(t *testing.T) {
		p, err := NewPolicy(domain.AlertPolicyConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Expression() != domain.DefaultAlertExpression {
			t.Errorf("expected default expression, got %q", p.Expression())
		}

		cases := []struct {
			score int
			want  bool
		}{
			{69, false},
			{70, true},
			{90, true},
			{0, false},
		}
		for _, tc := range cases {
			result, tx := scored(tc.score, 100, "New York")
			fire, err := p.Evaluate(result, tx)
			if err != nil {
				t.Fatalf("score %d: unexpected error: %v", tc.score, err)
			}
			if fire != tc.want {
				t.Errorf("score %d: expected fire=%v, got %v", tc.score, tc.want, fire)
			}
		}
	})

	t.Run("custom expression over transaction fields", func(t *testing.T) {
		p, err := NewPolicy(domain.AlertPolicyConfig{
			Expression: `score >= 50 && amount > 1000.0`,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, tx := scored(60, 500, "New York")
		fire, err := p.Evaluate(result, tx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fire {
			t.Error("expected no alert for small amount")
		}

		result, tx = scored(60, 1500, "New York")
		fire, err = p.Evaluate(result, tx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fire {
			t.Error("expected alert for large amount")
		}
	})

	t.Run("invalid expression rejected", func(t *testing.T) {
		_, err := NewPolicy(domain.AlertPolicyConfig{Expression: "score >>> 10"})
		if err == nil {
			t.Fatal("expected compile error")
		}
	})

	t.Run("non-boolean expression rejected", func(t *testing.T) {
		_, err := NewPolicy(domain.AlertPolicyConfig{Expression: "score + 1"})
		if err == nil {
			t.Fatal("expected type error for non-boolean expression")
		}
	})

	t.Run("set expression keeps old policy on failure", func(t *testing.T) {
		p, err := NewPolicy(domain.AlertPolicyConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := p.SetExpression("not valid ("); err == nil {
			t.Fatal("expected error for invalid expression")
		}
		if p.Expression() != domain.DefaultAlertExpression {
			t.Errorf("failed SetExpression replaced the expression: %q", p.Expression())
		}

		result, tx := scored(90, 100, "New York")
		fire, err := p.Evaluate(result, tx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fire {
			t.Error("old policy no longer evaluates")
		}
	})

	t.Run("hot swap", func(t *testing.T) {
		p, err := NewPolicy(domain.AlertPolicyConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := p.SetExpression("score >= 90"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, tx := scored(70, 100, "New York")
		fire, err := p.Evaluate(result, tx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fire {
			t.Error("expected 70 to pass under the raised threshold")
		}
	})
}

func TestNewAlert(t *testing.T) {
	result, tx := scored(90, 1250, "Miami")
	result.Factors = []string{"unusual_amount", "unknown_location"}

	a := NewAlert(result, tx)
	if a.ID == "" {
		t.Error("expected generated alert ID")
	}
	if a.TransactionID != tx.ID || a.UserID != tx.UserID {
		t.Error("alert does not reference the transaction")
	}
	if a.RiskScore != 90 {
		t.Errorf("expected risk score 90, got %d", a.RiskScore)
	}
	if !strings.Contains(a.Message, "1250.00") || !strings.Contains(a.Message, "Miami") {
		t.Errorf("message missing amount or location: %q", a.Message)
	}
	if !strings.Contains(a.Message, "unusual_amount") {
		t.Errorf("message missing factors: %q", a.Message)
	}
}
