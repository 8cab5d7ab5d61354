// Package domain defines the core interfaces and types for Kestrel.
package domain

// HourRange is an inclusive hour-of-day interval (0-23, start <= end).
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether hour falls inside the range.
func (r HourRange) Contains(hour int) bool {
	return hour >= r.Start && hour <= r.End
}

// UserProfile is the per-user running summary of normal behavior used
// as the baseline for scoring. AverageAmount is exponentially weighted
// and must stay strictly positive; the adaptation rule and seed data
// jointly guarantee this.
type UserProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Behavioral statistics
	AverageAmount   float64   `json:"averageAmount"`
	CommonLocations []string  `json:"commonLocations"`
	UsualTimeRange  HourRange `json:"usualTimeRange"`

	// Confirmed transactions in confirmation order. Never pruned.
	TransactionHistory []Transaction `json:"transactionHistory"`
}

// KnowsLocation reports whether loc is among the profile's common locations.
func (p *UserProfile) KnowsLocation(loc string) bool {
	for _, l := range p.CommonLocations {
		if l == loc {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the profile. Callers receive clones so
// internal store state is never aliased.
func (p UserProfile) Clone() UserProfile {
	out := p
	out.CommonLocations = append([]string(nil), p.CommonLocations...)
	out.TransactionHistory = append([]Transaction(nil), p.TransactionHistory...)
	return out
}

// ProfileStore holds one behavioral profile per known user.
// Update applies fn to the stored profile as one atomic unit so that
// concurrent confirmations for the same user never lose updates.
type ProfileStore interface {
	// Get returns a snapshot of the profile, or false if the user is unknown.
	Get(userID string) (UserProfile, bool)

	// List returns snapshots of all profiles in a stable display order.
	List() []UserProfile

	// Upsert stores a profile, replacing any existing one.
	Upsert(profile UserProfile)

	// Update atomically applies fn to the stored profile.
	// Returns false without calling fn if the user is unknown.
	Update(userID string, fn func(UserProfile) UserProfile) bool
}
