// Package adapt updates behavioral profiles from confirmed transactions.
package adapt

import (
	"errors"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidOutcome is returned when a confirmation outcome is neither
// legit nor fraud.
var ErrInvalidOutcome = errors.New("outcome must be legit or fraud")

// smoothingWeight is the fixed weight of the newest legitimate amount
// in the exponential average.
const smoothingWeight = 0.1

// Observer receives a record of each profile adaptation.
type Observer interface {
	ProfileAdapted(profile domain.UserProfile, tx domain.Transaction, outcome domain.Status)
}

// Adapter applies confirmation outcomes to profiles.
type Adapter struct {
	observer Observer
}

// New creates an adapter. A nil observer falls back to slog output.
func New(observer Observer) *Adapter {
	if observer == nil {
		observer = slogObserver{}
	}
	return &Adapter{observer: observer}
}

// Confirm stamps the outcome on tx and appends it to the profile's
// history. Legit outcomes additionally fold the transaction into the
// behavioral statistics; fraud outcomes leave them untouched so the
// legitimate-behavior baseline never learns from confirmed fraud.
// Inputs are taken and returned by value; the caller decides what to
// store, so no shared state is mutated in place.
func (a *Adapter) Confirm(profile domain.UserProfile, tx domain.Transaction, outcome domain.Status) (domain.UserProfile, domain.Transaction, error) {
	if outcome != domain.StatusLegit && outcome != domain.StatusFraud {
		return profile, tx, ErrInvalidOutcome
	}

	tx.Status = outcome
	profile.TransactionHistory = append(profile.TransactionHistory, tx)

	if outcome == domain.StatusLegit {
		profile.AverageAmount = (1-smoothingWeight)*profile.AverageAmount + smoothingWeight*tx.Amount

		if !profile.KnowsLocation(tx.Location) {
			profile.CommonLocations = append(profile.CommonLocations, tx.Location)
		}

		// Widen the active-hour window by at most one hour per
		// confirmation, only toward the observed hour. Never narrows.
		hour := tx.Timestamp.Hour()
		if hour < profile.UsualTimeRange.Start {
			profile.UsualTimeRange.Start = max(hour, profile.UsualTimeRange.Start-1)
		}
		if hour > profile.UsualTimeRange.End {
			profile.UsualTimeRange.End = min(hour, profile.UsualTimeRange.End+1)
		}
	}

	a.observer.ProfileAdapted(profile, tx, outcome)

	return profile, tx, nil
}

// slogObserver is the default adaptation record sink.
type slogObserver struct{}

func (slogObserver) ProfileAdapted(p domain.UserProfile, tx domain.Transaction, outcome domain.Status) {
	slog.Info("profile adapted",
		"user_id", p.ID,
		"tx_id", tx.ID,
		"outcome", string(outcome),
		"average_amount", p.AverageAmount,
		"locations", len(p.CommonLocations),
		"hour_start", p.UsualTimeRange.Start,
		"hour_end", p.UsualTimeRange.End,
		"history_len", len(p.TransactionHistory),
	)
}
