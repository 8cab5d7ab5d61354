package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/adapt"
	"github.com/opensource-finance/kestrel/internal/alert"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/seed"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	policy, err := alert.NewPolicy(domain.AlertPolicyConfig{})
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	return New(seed.Profiles(), policy, opts...)
}

func scoreInput(userID string, amount float64, location string, hour int) domain.TransactionInput {
	return domain.TransactionInput{
		UserID:    userID,
		Amount:    amount,
		Location:  location,
		Timestamp: time.Date(2024, 6, 1, hour, 30, 0, 0, time.UTC),
	}
}

func TestEngineScore(t *testing.T) {
	ctx := context.Background()

	t.Run("seeded profiles are visible", func(t *testing.T) {
		e := newTestEngine(t)
		profiles := e.ListProfiles()
		if len(profiles) != 3 {
			t.Fatalf("expected 3 profiles, got %d", len(profiles))
		}
		if profiles[0].ID != "user001" {
			t.Errorf("expected user001 first, got %s", profiles[0].ID)
		}
	})

	t.Run("high risk transaction", func(t *testing.T) {
		e := newTestEngine(t)
		result, err := e.Score(ctx, scoreInput("user001", 1250, "Miami", 23))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Score != 90 {
			t.Errorf("expected score 90, got %d", result.Score)
		}
		if !result.KnownUser {
			t.Error("expected known user")
		}
		if result.Alert == nil {
			t.Fatal("expected alert at score 90")
		}
		if result.Alert.TransactionID != result.TransactionID {
			t.Error("alert does not reference the scored transaction")
		}
	})

	t.Run("typical transaction raises no alert", func(t *testing.T) {
		e := newTestEngine(t)
		result, err := e.Score(ctx, scoreInput("user001", 234.50, "New York", 14))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Score != 0 {
			t.Errorf("expected score 0, got %d", result.Score)
		}
		if result.Alert != nil {
			t.Error("unexpected alert")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		e := newTestEngine(t)
		result, err := e.Score(ctx, scoreInput("stranger", 100, "Nowhere", 14))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Score != domain.DefaultRisk {
			t.Errorf("expected default risk, got %d", result.Score)
		}
		if result.KnownUser {
			t.Error("expected unknown user flag")
		}
	})

	t.Run("transaction is retrievable after scoring", func(t *testing.T) {
		e := newTestEngine(t)
		result, err := e.Score(ctx, scoreInput("user001", 234.50, "New York", 14))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tx, ok := e.GetTransaction(result.TransactionID)
		if !ok {
			t.Fatal("scored transaction not found")
		}
		if tx.Status != domain.StatusPending {
			t.Errorf("expected pending status, got %s", tx.Status)
		}
		if tx.RiskScore != result.Score {
			t.Errorf("stored risk score %d != result %d", tx.RiskScore, result.Score)
		}
	})

	t.Run("caller-supplied id is preserved", func(t *testing.T) {
		e := newTestEngine(t)
		input := scoreInput("user001", 234.50, "New York", 14)
		input.ID = "txn-custom"
		result, err := e.Score(ctx, input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TransactionID != "txn-custom" {
			t.Errorf("expected txn-custom, got %s", result.TransactionID)
		}
	})
}

func TestEngineConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("legit adapts the profile", func(t *testing.T) {
		e := newTestEngine(t)
		result, err := e.Score(ctx, scoreInput("user001", 234.50, "New York", 14))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := e.Confirm(ctx, result.TransactionID, domain.StatusLegit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		p, ok := e.GetProfile("user001")
		if !ok {
			t.Fatal("profile missing")
		}
		if math.Abs(p.AverageAmount-248.45) > 1e-9 {
			t.Errorf("expected average 248.45, got %v", p.AverageAmount)
		}
		if len(p.TransactionHistory) != 1 {
			t.Errorf("expected 1 history entry, got %d", len(p.TransactionHistory))
		}

		tx, _ := e.GetTransaction(result.TransactionID)
		if tx.Status != domain.StatusLegit {
			t.Errorf("expected legit status, got %s", tx.Status)
		}
	})

	t.Run("fraud keeps statistics", func(t *testing.T) {
		e := newTestEngine(t)
		result, err := e.Score(ctx, scoreInput("user001", 1250, "Miami", 23))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := e.Confirm(ctx, result.TransactionID, domain.StatusFraud); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		p, _ := e.GetProfile("user001")
		if p.AverageAmount != 250 {
			t.Errorf("fraud changed average: %v", p.AverageAmount)
		}
		if len(p.TransactionHistory) != 1 {
			t.Errorf("fraud must be recorded in history, got %d entries", len(p.TransactionHistory))
		}
	})

	t.Run("unknown transaction", func(t *testing.T) {
		e := newTestEngine(t)
		err := e.Confirm(ctx, "missing", domain.StatusLegit)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid outcome", func(t *testing.T) {
		e := newTestEngine(t)
		result, _ := e.Score(ctx, scoreInput("user001", 234.50, "New York", 14))
		err := e.Confirm(ctx, result.TransactionID, domain.StatusPending)
		if !errors.Is(err, adapt.ErrInvalidOutcome) {
			t.Errorf("expected ErrInvalidOutcome, got %v", err)
		}
	})

	t.Run("unknown user confirmation is a no-op", func(t *testing.T) {
		e := newTestEngine(t)
		result, err := e.Score(ctx, scoreInput("stranger", 100, "Nowhere", 14))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := e.Confirm(ctx, result.TransactionID, domain.StatusLegit); err != nil {
			t.Fatalf("expected silent no-op, got %v", err)
		}
		if len(e.ListProfiles()) != 3 {
			t.Error("confirmation for unknown user created a profile")
		}
	})

	t.Run("re-confirmation re-applies the averaging", func(t *testing.T) {
		e := newTestEngine(t)
		result, _ := e.Score(ctx, scoreInput("user001", 234.50, "New York", 14))
		if err := e.Confirm(ctx, result.TransactionID, domain.StatusLegit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := e.Confirm(ctx, result.TransactionID, domain.StatusLegit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		p, _ := e.GetProfile("user001")
		// 0.9*248.45 + 0.1*234.50
		want := 247.055
		if math.Abs(p.AverageAmount-want) > 1e-9 {
			t.Errorf("expected average %v after double confirm, got %v", want, p.AverageAmount)
		}
		if len(p.TransactionHistory) != 2 {
			t.Errorf("expected 2 history entries after double confirm, got %d", len(p.TransactionHistory))
		}
	})

	t.Run("adaptation feeds subsequent scoring", func(t *testing.T) {
		e := newTestEngine(t)

		// Boston is unknown: scores 30.
		first, err := e.Score(ctx, scoreInput("user001", 250, "Boston", 14))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.Score != 30 {
			t.Fatalf("expected 30 before adaptation, got %d", first.Score)
		}
		if err := e.Confirm(ctx, first.TransactionID, domain.StatusLegit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// After a legit confirmation Boston is a common location.
		second, err := e.Score(ctx, scoreInput("user001", 250, "Boston", 14))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.Score != 0 {
			t.Errorf("expected 0 after adaptation, got %d", second.Score)
		}
	})
}

func TestEngineClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

	e := newTestEngine(t, WithClock(func() time.Time { return fixed }))

	// Confirm four transactions stamped just before the fixed instant,
	// then score a fifth: the frequency factor fires.
	for i := 0; i < 4; i++ {
		input := scoreInput("user003", 400, "Chicago", 14)
		input.Timestamp = fixed.Add(-time.Duration(i+1) * 5 * time.Minute)
		result, err := e.Score(ctx, input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := e.Confirm(ctx, result.TransactionID, domain.StatusLegit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	result, err := e.Score(ctx, scoreInput("user003", 400, "Chicago", 14))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 15 {
		t.Errorf("expected frequency score 15, got %d (factors %v)", result.Score, result.Factors)
	}
}
