// Package integration exercises the full pipeline: HTTP API, scoring
// engine, event bus, async worker, cache, and SQLite write-through.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/alert"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/seed"
	"github.com/opensource-finance/kestrel/internal/worker"
)

type stack struct {
	server *httptest.Server
	repo   domain.Repository
}

func newStack(t *testing.T) *stack {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_integration.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	policy, err := alert.NewPolicy(domain.AlertPolicyConfig{})
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	eng := engine.New(seed.Profiles(), policy,
		engine.WithRepository(repo),
		engine.WithEventBus(b),
	)

	w := worker.NewWorker(b, repo, c)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	srv := api.NewServer(domain.ServerConfig{}, eng, repo, c, "integration")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &stack{server: ts, repo: repo}
}

func (s *stack) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
	}
	return resp.StatusCode
}

func (s *stack) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(s.server.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
	}
	return resp.StatusCode
}

func TestScoreConfirmAdaptFlow(t *testing.T) {
	s := newStack(t)

	// A typical transaction for user001 during working hours.
	var result domain.ScoreResult
	status := s.post(t, "/transactions/score", map[string]any{
		"userId":    "user001",
		"amount":    234.50,
		"location":  "New York",
		"timestamp": time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC),
	}, &result)
	if status != http.StatusOK {
		t.Fatalf("score: expected 200, got %d", status)
	}
	if result.Score != 0 {
		t.Fatalf("expected score 0, got %d", result.Score)
	}
	if result.Alert != nil {
		t.Fatal("unexpected alert for typical transaction")
	}

	// Confirm legit and check the adapted average.
	var confirmed domain.Transaction
	status = s.post(t, fmt.Sprintf("/transactions/%s/confirm", result.TransactionID),
		map[string]string{"outcome": "legit"}, &confirmed)
	if status != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", status)
	}
	if confirmed.Status != domain.StatusLegit {
		t.Errorf("expected legit, got %s", confirmed.Status)
	}

	var p domain.UserProfile
	if status := s.get(t, "/profiles/user001", &p); status != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", status)
	}
	if math.Abs(p.AverageAmount-248.45) > 1e-9 {
		t.Errorf("expected adapted average 248.45, got %v", p.AverageAmount)
	}
	if len(p.TransactionHistory) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(p.TransactionHistory))
	}
}

func TestAlertPipeline(t *testing.T) {
	s := newStack(t)

	// High-risk transaction: 4x average, unknown location, night hour.
	var result domain.ScoreResult
	status := s.post(t, "/transactions/score", map[string]any{
		"userId":    "user001",
		"amount":    1250.0,
		"location":  "Miami",
		"timestamp": time.Date(2024, 6, 1, 23, 45, 0, 0, time.UTC),
	}, &result)
	if status != http.StatusOK {
		t.Fatalf("score: expected 200, got %d", status)
	}
	if result.Score != 90 {
		t.Fatalf("expected score 90, got %d", result.Score)
	}
	if result.Alert == nil {
		t.Fatal("expected alert in score response")
	}

	// The worker consumes the alert event and persists it.
	deadline := time.After(2 * time.Second)
	for {
		var body struct {
			Alerts []domain.Alert `json:"alerts"`
			Count  int            `json:"count"`
		}
		if status := s.get(t, "/alerts", &body); status != http.StatusOK {
			t.Fatalf("alerts: expected 200, got %d", status)
		}
		if body.Count >= 1 {
			if body.Alerts[0].TransactionID != result.TransactionID {
				t.Errorf("alert references %s, expected %s", body.Alerts[0].TransactionID, result.TransactionID)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("alert never persisted")
		case <-time.After(20 * time.Millisecond):
		}
	}

	// Confirming fraud leaves the behavioral statistics alone.
	status = s.post(t, fmt.Sprintf("/transactions/%s/confirm", result.TransactionID),
		map[string]string{"outcome": "fraud"}, nil)
	if status != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", status)
	}

	var p domain.UserProfile
	if status := s.get(t, "/profiles/user001", &p); status != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", status)
	}
	if p.AverageAmount != 250 {
		t.Errorf("fraud confirmation changed average: %v", p.AverageAmount)
	}
	if len(p.TransactionHistory) != 1 {
		t.Errorf("expected fraud recorded in history, got %d entries", len(p.TransactionHistory))
	}
}

func TestTransactionPersistence(t *testing.T) {
	s := newStack(t)

	var result domain.ScoreResult
	s.post(t, "/transactions/score", map[string]any{
		"userId":   "user002",
		"amount":   156.75,
		"location": "Los Angeles",
	}, &result)

	// The write-through record matches the in-memory one.
	deadline := time.After(2 * time.Second)
	for {
		tx, err := s.repo.GetTransaction(t.Context(), result.TransactionID)
		if err == nil {
			if tx.UserID != "user002" || tx.RiskScore != result.Score {
				t.Errorf("persisted transaction mismatch: %+v", tx)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("transaction never persisted: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
