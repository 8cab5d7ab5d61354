package domain

import (
	"context"
	"time"
)

// Repository defines the interface for write-through persistence.
// The engine treats durability as an external collaborator: in-memory
// state is authoritative, the repository records it.
type Repository interface {
	// Transaction operations. SaveTransaction upserts so confirmations
	// can re-save the same record with its stamped status.
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	GetTransactionsByUser(ctx context.Context, userID string, since time.Time) ([]*Transaction, error)

	// Profile operations. History is not persisted here; it is
	// reconstructible from the transactions table.
	SaveProfile(ctx context.Context, profile *UserProfile) error
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	ListProfiles(ctx context.Context) ([]*UserProfile, error)

	// Alert audit trail
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, since time.Time) ([]*Alert, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
