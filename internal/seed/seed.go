// Package seed holds the built-in demo dataset: three user profiles
// and a day of labeled transactions for each.
package seed

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Profiles returns the demo user profiles. Histories start empty;
// confirmations fill them at runtime.
func Profiles() []domain.UserProfile {
	return []domain.UserProfile{
		{
			ID:              "user001",
			Name:            "John Smith",
			AverageAmount:   250,
			CommonLocations: []string{"New York", "Brooklyn", "Manhattan"},
			UsualTimeRange:  domain.HourRange{Start: 9, End: 18},
		},
		{
			ID:              "user002",
			Name:            "Emma Johnson",
			AverageAmount:   150,
			CommonLocations: []string{"Los Angeles", "Santa Monica", "Beverly Hills"},
			UsualTimeRange:  domain.HourRange{Start: 10, End: 16},
		},
		{
			ID:              "user003",
			Name:            "Michael Davis",
			AverageAmount:   400,
			CommonLocations: []string{"Chicago", "Evanston"},
			UsualTimeRange:  domain.HourRange{Start: 8, End: 20},
		},
	}
}

// Transactions returns the demo transaction records. They are persisted
// for display purposes only and are not replayed through the engine.
func Transactions() []domain.Transaction {
	return []domain.Transaction{
		// user001: regular NYC worker, moderate amounts
		demoTx("txn001", "user001", 234.50, "New York", "2024-06-01T14:30:00Z", 15, domain.StatusLegit),
		demoTx("txn002", "user001", 189.75, "Brooklyn", "2024-06-01T12:15:00Z", 5, domain.StatusLegit),
		demoTx("txn003", "user001", 1250.00, "Miami", "2024-06-01T23:45:00Z", 85, domain.StatusFraud),
		demoTx("txn004", "user001", 312.20, "Manhattan", "2024-06-01T16:20:00Z", 10, domain.StatusLegit),

		// user002: LA resident, lower amounts, daytime shopper
		demoTx("txn005", "user002", 156.75, "Los Angeles", "2024-06-01T12:15:00Z", 10, domain.StatusLegit),
		demoTx("txn006", "user002", 89.99, "Santa Monica", "2024-06-01T14:30:00Z", 5, domain.StatusLegit),
		demoTx("txn007", "user002", 2100.00, "London", "2024-06-01T03:20:00Z", 95, domain.StatusPending),
		demoTx("txn008", "user002", 127.50, "Beverly Hills", "2024-06-01T13:45:00Z", 8, domain.StatusLegit),

		// user003: Chicago business person, higher amounts
		demoTx("txn009", "user003", 425.30, "Chicago", "2024-06-01T16:00:00Z", 25, domain.StatusLegit),
		demoTx("txn010", "user003", 567.80, "Evanston", "2024-06-01T18:30:00Z", 15, domain.StatusLegit),
		demoTx("txn011", "user003", 299.99, "Chicago", "2024-06-01T11:20:00Z", 20, domain.StatusLegit),
		demoTx("txn012", "user003", 750.00, "Chicago", "2024-06-01T19:15:00Z", 30, domain.StatusLegit),
	}
}

func demoTx(id, userID string, amount float64, location, ts string, score int, status domain.Status) domain.Transaction {
	t, _ := time.Parse(time.RFC3339, ts)
	return domain.Transaction{
		ID:        id,
		UserID:    userID,
		Amount:    amount,
		Location:  location,
		Timestamp: t,
		CreatedAt: t,
		RiskScore: score,
		Status:    status,
	}
}
