// Package store provides storage backends for fanline.
//
// This file implements the PostgreSQL-backed store used in production.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/jujuling/fanline/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the maximum number of open connections.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the maximum number of idle connections.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the maximum time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// UpsertSubscriber inserts or refreshes a subscriber row. An empty display
// name never overwrites a previously stored one.
func (s *PostgresStore) UpsertSubscriber(sub models.Subscriber) error {
	now := time.Now()
	availability := sub.Availability
	if availability == "" {
		availability = models.AvailabilityUnknown
	}
	_, err := s.db.Exec(`
		INSERT INTO subscribers (id, display_name, availability, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), subscribers.display_name),
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.DisplayName, availability, now)
	if err != nil {
		slog.Error("PostgresStore UpsertSubscriber failed", "error", err, "subscriber_id", sub.ID)
		return fmt.Errorf("failed to upsert subscriber %s: %w", sub.ID, err)
	}
	slog.Debug("PostgresStore UpsertSubscriber succeeded", "subscriber_id", sub.ID)
	return nil
}

// GetSubscriber returns the subscriber or (nil, nil) when absent.
func (s *PostgresStore) GetSubscriber(id string) (*models.Subscriber, error) {
	var sub models.Subscriber
	var displayName sql.NullString
	err := s.db.QueryRow(`
		SELECT id, display_name, availability, created_at, updated_at
		FROM subscribers WHERE id = $1`, id).
		Scan(&sub.ID, &displayName, &sub.Availability, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSubscriber failed", "error", err, "subscriber_id", id)
		return nil, fmt.Errorf("failed to query subscriber %s: %w", id, err)
	}
	sub.DisplayName = displayName.String
	return &sub, nil
}

// SetSubscriberAvailability upserts the availability answer.
func (s *PostgresStore) SetSubscriberAvailability(id string, availability models.Availability) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO subscribers (id, availability, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			availability = EXCLUDED.availability,
			updated_at = EXCLUDED.updated_at`,
		id, availability, now)
	if err != nil {
		slog.Error("PostgresStore SetSubscriberAvailability failed", "error", err, "subscriber_id", id)
		return fmt.Errorf("failed to set availability for %s: %w", id, err)
	}
	slog.Debug("PostgresStore SetSubscriberAvailability succeeded", "subscriber_id", id, "availability", availability)
	return nil
}

// GetProgress returns the progress row or (nil, nil) when absent.
func (s *PostgresStore) GetProgress(subscriberID string) (*models.Progress, error) {
	var p models.Progress
	err := s.db.QueryRow(`
		SELECT subscriber_id, current_step, updated_at
		FROM content_progress WHERE subscriber_id = $1`, subscriberID).
		Scan(&p.SubscriberID, &p.CurrentStep, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetProgress not found", "subscriber_id", subscriberID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProgress failed", "error", err, "subscriber_id", subscriberID)
		return nil, fmt.Errorf("failed to query progress for %s: %w", subscriberID, err)
	}
	return &p, nil
}

// SaveProgress upserts the progress row, last write wins.
func (s *PostgresStore) SaveProgress(p models.Progress) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO content_progress (subscriber_id, current_step, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscriber_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			updated_at = EXCLUDED.updated_at`,
		p.SubscriberID, p.CurrentStep, updatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveProgress failed", "error", err, "subscriber_id", p.SubscriberID, "step", p.CurrentStep)
		return fmt.Errorf("failed to save progress for %s: %w", p.SubscriberID, err)
	}
	slog.Debug("PostgresStore SaveProgress succeeded", "subscriber_id", p.SubscriberID, "step", p.CurrentStep)
	return nil
}

// RecordWebhookEvent appends one raw event row.
func (s *PostgresStore) RecordWebhookEvent(rec models.WebhookEventRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO webhook_events (subscriber_id, reply_token, event_type, postback_data, event_name, answer, raw_event, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.SubscriberID, nilIfEmpty(rec.ReplyToken), rec.EventType, rec.PostbackData,
		nilIfEmpty(rec.EventName), nilIfEmpty(rec.Answer), rec.RawEvent, createdAt)
	if err != nil {
		slog.Error("PostgresStore RecordWebhookEvent failed", "error", err, "subscriber_id", rec.SubscriberID, "event_type", rec.EventType)
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// AddDeliveryAttempt appends one audit row.
func (s *PostgresStore) AddDeliveryAttempt(a models.DeliveryAttempt) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO delivery_attempts (id, subscriber_id, message_type, status, channel, content_summary, request_id, error_detail, created_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.SubscriberID, a.MessageType, a.Status, a.Channel,
		a.ContentSummary, nilIfEmpty(a.RequestID), nilIfEmpty(a.ErrorDetail),
		createdAt, nilIfZeroTime(a.SentAt))
	if err != nil {
		slog.Error("PostgresStore AddDeliveryAttempt failed", "error", err, "subscriber_id", a.SubscriberID, "message_type", a.MessageType)
		return fmt.Errorf("failed to insert delivery attempt for %s: %w", a.SubscriberID, err)
	}
	slog.Debug("PostgresStore AddDeliveryAttempt succeeded", "id", a.ID, "status", a.Status, "channel", a.Channel)
	return nil
}

// MarkDeliveryAttempt performs the pending -> sent/failed transition.
func (s *PostgresStore) MarkDeliveryAttempt(id string, status models.DeliveryStatus, requestID, errorDetail string) error {
	var sentAt interface{}
	if status == models.DeliveryStatusSent {
		sentAt = time.Now()
	}
	_, err := s.db.Exec(`
		UPDATE delivery_attempts
		SET status = $1, request_id = $2, error_detail = $3, sent_at = COALESCE($4, sent_at)
		WHERE id = $5`,
		status, nilIfEmpty(requestID), nilIfEmpty(errorDetail), sentAt, id)
	if err != nil {
		slog.Error("PostgresStore MarkDeliveryAttempt failed", "error", err, "id", id, "status", status)
		return fmt.Errorf("failed to mark delivery attempt %s: %w", id, err)
	}
	return nil
}

// LatestSentAttempt returns the newest sent row for the pair, if any.
func (s *PostgresStore) LatestSentAttempt(subscriberID string, messageType models.MessageType) (*models.DeliveryAttempt, error) {
	row := s.db.QueryRow(`
		SELECT id, subscriber_id, message_type, status, channel, content_summary, request_id, error_detail, created_at, sent_at
		FROM delivery_attempts
		WHERE subscriber_id = $1 AND message_type = $2 AND status = 'sent'
		ORDER BY sent_at DESC LIMIT 1`,
		subscriberID, messageType)
	a, err := scanAttemptRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LatestSentAttempt failed", "error", err, "subscriber_id", subscriberID, "message_type", messageType)
		return nil, fmt.Errorf("failed to query latest sent attempt: %w", err)
	}
	return &a, nil
}

// ListDeliveryAttempts returns up to limit rows, newest first.
func (s *PostgresStore) ListDeliveryAttempts(limit int) ([]models.DeliveryAttempt, error) {
	rows, err := s.db.Query(`
		SELECT id, subscriber_id, message_type, status, channel, content_summary, request_id, error_detail, created_at, sent_at
		FROM delivery_attempts
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		slog.Error("PostgresStore ListDeliveryAttempts query failed", "error", err)
		return nil, fmt.Errorf("failed to query delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			slog.Error("PostgresStore ListDeliveryAttempts scan failed", "error", err)
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery attempt rows: %w", err)
	}
	return attempts, nil
}

// AddGameSession records one completed game round.
func (s *PostgresStore) AddGameSession(sess models.GameSession) error {
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO game_sessions (id, subscriber_id, emotion, game_data, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.SubscriberID, sess.Emotion, sess.DataJSON, createdAt)
	if err != nil {
		slog.Error("PostgresStore AddGameSession failed", "error", err, "subscriber_id", sess.SubscriberID)
		return fmt.Errorf("failed to insert game session for %s: %w", sess.SubscriberID, err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
