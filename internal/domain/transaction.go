package domain

import (
	"time"
)

// Status is the review state of a transaction.
// Transitions: pending -> legit, pending -> fraud. Both are terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusLegit   Status = "legit"
	StatusFraud   Status = "fraud"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusLegit || s == StatusFraud
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusLegit || s == StatusFraud
}

// Transaction represents a transaction submitted for risk scoring.
// The engine fills RiskScore on scoring and stamps Status on confirmation;
// confirmed transactions are retained in the owning profile's history.
type Transaction struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	// Financial details
	Amount   float64 `json:"amount"`
	Location string  `json:"location"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Filled by the engine
	RiskScore int    `json:"riskScore"`
	Status    Status `json:"status"`
}

// TransactionInput is the caller-supplied payload for scoring.
// Callers are responsible for well-formed input: positive amount,
// non-empty user ID and location.
type TransactionInput struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"userId"`
	Amount    float64   `json:"amount"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// ToTransaction converts an input to a pending Transaction.
// The caller assigns the ID if the input carries none.
func (in *TransactionInput) ToTransaction() *Transaction {
	now := time.Now().UTC()
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return &Transaction{
		ID:        in.ID,
		UserID:    in.UserID,
		Amount:    in.Amount,
		Location:  in.Location,
		Timestamp: ts,
		CreatedAt: now,
		Status:    StatusPending,
	}
}

// ScoreResult is the outcome of scoring one transaction.
type ScoreResult struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Score         int       `json:"score"`
	Factors       []string  `json:"factors,omitempty"`
	KnownUser     bool      `json:"knownUser"`
	Timestamp     time.Time `json:"timestamp"`

	// Alert is set when the alert policy fired for this score.
	Alert *Alert `json:"alert,omitempty"`
}

// DefaultRisk is the fallback score for users without a profile.
// Unknown users are neither trusted nor maximally distrusted.
const DefaultRisk = 50
