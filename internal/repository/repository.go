// Package repository provides write-through persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction upserts a transaction. Confirmations re-save the same
// record, so conflicts update the mutable columns.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, amount, location, timestamp, created_at, risk_score, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			risk_score = excluded.risk_score,
			status = excluded.status
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.Amount, tx.Location,
		tx.Timestamp, tx.CreatedAt, tx.RiskScore, string(tx.Status),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	if txID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, amount, location, timestamp, created_at, risk_score, status
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var status string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.UserID, &tx.Amount, &tx.Location,
		&tx.Timestamp, &tx.CreatedAt, &tx.RiskScore, &status,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Status = domain.Status(status)
	return &tx, nil
}

// GetTransactionsByUser retrieves a user's transactions since a point in time.
func (r *SQLRepository) GetTransactionsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, amount, location, timestamp, created_at, risk_score, status
		FROM transactions
		WHERE user_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var status string

		if err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.Amount, &tx.Location,
			&tx.Timestamp, &tx.CreatedAt, &tx.RiskScore, &status,
		); err != nil {
			return nil, err
		}

		tx.Status = domain.Status(status)
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SaveProfile upserts a profile's behavioral statistics. History is not
// persisted; it lives in the transactions table.
func (r *SQLRepository) SaveProfile(ctx context.Context, profile *domain.UserProfile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("%w: profile id is required", ErrInvalidInput)
	}

	locations, _ := json.Marshal(profile.CommonLocations)

	query := `
		INSERT INTO profiles (
			user_id, name, average_amount, common_locations, hour_start, hour_end, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			average_amount = excluded.average_amount,
			common_locations = excluded.common_locations,
			hour_start = excluded.hour_start,
			hour_end = excluded.hour_end,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		profile.ID, profile.Name, profile.AverageAmount, string(locations),
		profile.UsualTimeRange.Start, profile.UsualTimeRange.End,
		time.Now().UTC(),
	)
	return err
}

// GetProfile retrieves a profile's behavioral statistics.
func (r *SQLRepository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	query := `
		SELECT user_id, name, average_amount, common_locations, hour_start, hour_end
		FROM profiles
		WHERE user_id = ?
	`

	var p domain.UserProfile
	var locations string

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&p.ID, &p.Name, &p.AverageAmount, &locations,
		&p.UsualTimeRange.Start, &p.UsualTimeRange.End,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if locations != "" {
		json.Unmarshal([]byte(locations), &p.CommonLocations)
	}

	return &p, nil
}

// ListProfiles retrieves all stored profiles.
func (r *SQLRepository) ListProfiles(ctx context.Context) ([]*domain.UserProfile, error) {
	query := `
		SELECT user_id, name, average_amount, common_locations, hour_start, hour_end
		FROM profiles
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.UserProfile
	for rows.Next() {
		var p domain.UserProfile
		var locations string

		if err := rows.Scan(
			&p.ID, &p.Name, &p.AverageAmount, &locations,
			&p.UsualTimeRange.Start, &p.UsualTimeRange.End,
		); err != nil {
			return nil, err
		}

		if locations != "" {
			json.Unmarshal([]byte(locations), &p.CommonLocations)
		}
		profiles = append(profiles, &p)
	}

	return profiles, rows.Err()
}

// SaveAlert stores an alert record.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, transaction_id, user_id, message, risk_score, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.TransactionID, alert.UserID,
		alert.Message, alert.RiskScore, alert.Timestamp,
	)
	return err
}

// ListAlerts retrieves alerts raised since a point in time.
func (r *SQLRepository) ListAlerts(ctx context.Context, since time.Time) ([]*domain.Alert, error) {
	query := `
		SELECT id, transaction_id, user_id, message, risk_score, timestamp
		FROM alerts
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(
			&a.ID, &a.TransactionID, &a.UserID,
			&a.Message, &a.RiskScore, &a.Timestamp,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
