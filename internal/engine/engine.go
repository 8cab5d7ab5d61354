// Package engine exposes the fraud scoring facade: it owns the profile
// store, seeds it at construction, and provides the score and confirm
// operations to callers.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/adapt"
	"github.com/opensource-finance/kestrel/internal/alert"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/profile"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// ErrNotFound is returned when confirming a transaction the engine has
// never scored.
var ErrNotFound = errors.New("transaction not found")

// Engine is an explicitly constructed scoring service instance. No
// package-level state; callers inject it where needed.
type Engine struct {
	store   domain.ProfileStore
	adapter *adapt.Adapter
	policy  *alert.Policy

	// Optional collaborators; nil disables them.
	repo domain.Repository
	bus  domain.EventBus

	// All scored transactions by ID. Never pruned.
	mu           sync.RWMutex
	transactions map[string]domain.Transaction

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRepository enables write-through persistence.
func WithRepository(repo domain.Repository) Option {
	return func(e *Engine) { e.repo = repo }
}

// WithEventBus enables scored/adapted/alert event publication.
func WithEventBus(bus domain.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithObserver sets the adaptation record sink.
func WithObserver(obs adapt.Observer) Option {
	return func(e *Engine) { e.adapter = adapt.New(obs) }
}

// WithClock overrides the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine seeded with the known user profiles. Profiles
// are never created lazily afterwards: scoring an unknown user returns
// the default risk and confirming for one is a no-op.
func New(seeds []domain.UserProfile, policy *alert.Policy, opts ...Option) *Engine {
	store := profile.NewStore()
	for _, p := range seeds {
		store.Upsert(p)
	}

	e := &Engine{
		store:        store,
		adapter:      adapt.New(nil),
		policy:       policy,
		transactions: make(map[string]domain.Transaction),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes the risk score for an incoming transaction, records it
// as pending, and evaluates the alert policy. The engine assumes
// well-formed input; validation belongs to the caller.
func (e *Engine) Score(ctx context.Context, input domain.TransactionInput) (domain.ScoreResult, error) {
	tx := input.ToTransaction()
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	now := e.now()

	var snapshot *domain.UserProfile
	prof, known := e.store.Get(tx.UserID)
	if known {
		snapshot = &prof
	}

	scored, err := scoring.Score(tx, snapshot, now)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	tx.RiskScore = scored.Score

	e.mu.Lock()
	e.transactions[tx.ID] = *tx
	e.mu.Unlock()

	result := domain.ScoreResult{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Score:         scored.Score,
		Factors:       scored.Factors,
		KnownUser:     known,
		Timestamp:     now,
	}

	// Write-through is best-effort; the in-memory record is authoritative.
	if e.repo != nil {
		if err := e.repo.SaveTransaction(ctx, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
	}

	if fire, err := e.policy.Evaluate(result, tx); err != nil {
		slog.Error("alert policy evaluation failed", "tx_id", tx.ID, "error", err)
	} else if fire {
		result.Alert = alert.NewAlert(result, tx)
	}

	e.publish(ctx, domain.TopicTransactionScored, result)
	if result.Alert != nil {
		e.publish(ctx, domain.TopicAlert, result.Alert)
	}

	slog.Debug("transaction scored",
		"tx_id", tx.ID,
		"user_id", tx.UserID,
		"score", scored.Score,
		"known_user", known,
	)

	return result, nil
}

// Confirm finalizes a previously scored transaction as legit or fraud
// and adapts the owning profile. Confirming for an unknown user is a
// no-op. Not idempotent: re-confirming re-appends to history and
// re-applies the averaging, so callers confirm each transaction exactly
// once.
func (e *Engine) Confirm(ctx context.Context, txID string, outcome domain.Status) error {
	if outcome != domain.StatusLegit && outcome != domain.StatusFraud {
		return adapt.ErrInvalidOutcome
	}

	e.mu.RLock()
	tx, ok := e.transactions[txID]
	e.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	var (
		confirmed domain.Transaction
		updated   domain.UserProfile
		adaptErr  error
	)
	applied := e.store.Update(tx.UserID, func(p domain.UserProfile) domain.UserProfile {
		newProfile, newTx, err := e.adapter.Confirm(p, tx, outcome)
		if err != nil {
			adaptErr = err
			return p
		}
		confirmed = newTx
		updated = newProfile
		return newProfile
	})
	if adaptErr != nil {
		return adaptErr
	}
	if !applied {
		// Unknown user: nothing to adapt.
		slog.Warn("confirmation for unknown user ignored",
			"tx_id", txID,
			"user_id", tx.UserID,
		)
		return nil
	}

	e.mu.Lock()
	e.transactions[txID] = confirmed
	e.mu.Unlock()

	if e.repo != nil {
		if err := e.repo.SaveTransaction(ctx, &confirmed); err != nil {
			slog.Error("failed to save confirmed transaction", "tx_id", txID, "error", err)
		}
		if err := e.repo.SaveProfile(ctx, &updated); err != nil {
			slog.Error("failed to save profile", "user_id", updated.ID, "error", err)
		}
	}

	e.publish(ctx, domain.TopicProfileAdapted, updated)

	return nil
}

// GetTransaction returns a scored transaction by ID.
func (e *Engine) GetTransaction(txID string) (domain.Transaction, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tx, ok := e.transactions[txID]
	return tx, ok
}

// GetProfile returns a snapshot of one profile.
func (e *Engine) GetProfile(userID string) (domain.UserProfile, bool) {
	return e.store.Get(userID)
}

// ListProfiles returns snapshots of all profiles in display order.
func (e *Engine) ListProfiles() []domain.UserProfile {
	return e.store.List()
}

// Policy returns the engine's alert policy.
func (e *Engine) Policy() *alert.Policy {
	return e.policy
}

func (e *Engine) publish(ctx context.Context, topic string, v any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}
