// Package scoring computes behavioral risk scores for transactions.
package scoring

import (
	"errors"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidProfileState is returned when a profile's average amount is
// zero or negative. The deviation ratio is undefined in that state, so
// the operation fails rather than dividing silently.
var ErrInvalidProfileState = errors.New("invalid profile state: average amount must be positive")

// Factor labels reported alongside a score.
const (
	FactorUnusualAmount   = "unusual_amount"
	FactorModerateAmount  = "moderate_amount_deviation"
	FactorUnknownLocation = "unknown_location"
	FactorUnusualTime     = "unusual_time"
	FactorHighFrequency   = "high_frequency"
)

// frequencyWindow is the trailing window for the recent-frequency check
// (3,600,000 ms).
const frequencyWindow = time.Hour

// frequencyThreshold is the history count above which the frequency
// contribution applies.
const frequencyThreshold = 3

// Result holds the computed score and the triggered risk factors.
type Result struct {
	Score   int      `json:"score"`
	Factors []string `json:"factors,omitempty"`
}

// Score computes a 0-100 risk score for tx against profile as of now.
// A nil profile yields DefaultRisk: unknown users are a deliberate
// fallback, not an error. The function is pure; identical inputs always
// yield the identical result.
func Score(tx *domain.Transaction, profile *domain.UserProfile, now time.Time) (Result, error) {
	if profile == nil {
		return Result{Score: domain.DefaultRisk}, nil
	}
	if profile.AverageAmount <= 0 {
		return Result{}, ErrInvalidProfileState
	}

	score := 0
	var factors []string

	// Amount deviation relative to the weighted average
	deviation := math.Abs(tx.Amount-profile.AverageAmount) / profile.AverageAmount
	if deviation > 2 {
		score += 40
		factors = append(factors, FactorUnusualAmount)
	} else if deviation > 1 {
		score += 20
		factors = append(factors, FactorModerateAmount)
	}

	// Location novelty
	if !profile.KnowsLocation(tx.Location) {
		score += 30
		factors = append(factors, FactorUnknownLocation)
	}

	// Time-of-day anomaly, in the transaction's recorded local time
	if !profile.UsualTimeRange.Contains(tx.Timestamp.Hour()) {
		score += 20
		factors = append(factors, FactorUnusualTime)
	}

	// Recent frequency: history entries whose own timestamp falls within
	// the trailing window measured from now, the scoring instant.
	recent := 0
	for _, h := range profile.TransactionHistory {
		if now.Sub(h.Timestamp) < frequencyWindow {
			recent++
		}
	}
	if recent > frequencyThreshold {
		score += 15
		factors = append(factors, FactorHighFrequency)
	}

	if score > 100 {
		score = 100
	}

	return Result{Score: score, Factors: factors}, nil
}
