// Package store provides storage backends for fanline.
//
// This file implements the SQLite-backed store for single-node deployments.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/jujuling/fanline/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file
// path). The parent directory is created if missing and migrations run on
// every startup.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// UpsertSubscriber inserts or refreshes a subscriber row. An empty display
// name never overwrites a previously stored one.
func (s *SQLiteStore) UpsertSubscriber(sub models.Subscriber) error {
	now := time.Now()
	availability := sub.Availability
	if availability == "" {
		availability = models.AvailabilityUnknown
	}
	_, err := s.db.Exec(`
		INSERT INTO subscribers (id, display_name, availability, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = COALESCE(NULLIF(excluded.display_name, ''), subscribers.display_name),
			updated_at = excluded.updated_at`,
		sub.ID, sub.DisplayName, availability, now, now)
	if err != nil {
		slog.Error("SQLiteStore UpsertSubscriber failed", "error", err, "subscriber_id", sub.ID)
		return fmt.Errorf("failed to upsert subscriber %s: %w", sub.ID, err)
	}
	slog.Debug("SQLiteStore UpsertSubscriber succeeded", "subscriber_id", sub.ID)
	return nil
}

// GetSubscriber returns the subscriber or (nil, nil) when absent.
func (s *SQLiteStore) GetSubscriber(id string) (*models.Subscriber, error) {
	var sub models.Subscriber
	var displayName sql.NullString
	err := s.db.QueryRow(`
		SELECT id, display_name, availability, created_at, updated_at
		FROM subscribers WHERE id = ?`, id).
		Scan(&sub.ID, &displayName, &sub.Availability, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSubscriber failed", "error", err, "subscriber_id", id)
		return nil, fmt.Errorf("failed to query subscriber %s: %w", id, err)
	}
	sub.DisplayName = displayName.String
	return &sub, nil
}

// SetSubscriberAvailability upserts the availability answer.
func (s *SQLiteStore) SetSubscriberAvailability(id string, availability models.Availability) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO subscribers (id, availability, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			availability = excluded.availability,
			updated_at = excluded.updated_at`,
		id, availability, now, now)
	if err != nil {
		slog.Error("SQLiteStore SetSubscriberAvailability failed", "error", err, "subscriber_id", id)
		return fmt.Errorf("failed to set availability for %s: %w", id, err)
	}
	slog.Debug("SQLiteStore SetSubscriberAvailability succeeded", "subscriber_id", id, "availability", availability)
	return nil
}

// GetProgress returns the progress row or (nil, nil) when absent.
func (s *SQLiteStore) GetProgress(subscriberID string) (*models.Progress, error) {
	var p models.Progress
	err := s.db.QueryRow(`
		SELECT subscriber_id, current_step, updated_at
		FROM content_progress WHERE subscriber_id = ?`, subscriberID).
		Scan(&p.SubscriberID, &p.CurrentStep, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetProgress not found", "subscriber_id", subscriberID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProgress failed", "error", err, "subscriber_id", subscriberID)
		return nil, fmt.Errorf("failed to query progress for %s: %w", subscriberID, err)
	}
	return &p, nil
}

// SaveProgress upserts the progress row, last write wins.
func (s *SQLiteStore) SaveProgress(p models.Progress) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO content_progress (subscriber_id, current_step, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(subscriber_id) DO UPDATE SET
			current_step = excluded.current_step,
			updated_at = excluded.updated_at`,
		p.SubscriberID, p.CurrentStep, updatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveProgress failed", "error", err, "subscriber_id", p.SubscriberID, "step", p.CurrentStep)
		return fmt.Errorf("failed to save progress for %s: %w", p.SubscriberID, err)
	}
	slog.Debug("SQLiteStore SaveProgress succeeded", "subscriber_id", p.SubscriberID, "step", p.CurrentStep)
	return nil
}

// RecordWebhookEvent appends one raw event row.
func (s *SQLiteStore) RecordWebhookEvent(rec models.WebhookEventRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO webhook_events (subscriber_id, reply_token, event_type, postback_data, event_name, answer, raw_event, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SubscriberID, nilIfEmpty(rec.ReplyToken), rec.EventType, rec.PostbackData,
		nilIfEmpty(rec.EventName), nilIfEmpty(rec.Answer), rec.RawEvent, createdAt)
	if err != nil {
		slog.Error("SQLiteStore RecordWebhookEvent failed", "error", err, "subscriber_id", rec.SubscriberID, "event_type", rec.EventType)
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// AddDeliveryAttempt appends one audit row.
func (s *SQLiteStore) AddDeliveryAttempt(a models.DeliveryAttempt) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO delivery_attempts (id, subscriber_id, message_type, status, channel, content_summary, request_id, error_detail, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SubscriberID, a.MessageType, a.Status, a.Channel,
		a.ContentSummary, nilIfEmpty(a.RequestID), nilIfEmpty(a.ErrorDetail),
		createdAt, nilIfZeroTime(a.SentAt))
	if err != nil {
		slog.Error("SQLiteStore AddDeliveryAttempt failed", "error", err, "subscriber_id", a.SubscriberID, "message_type", a.MessageType)
		return fmt.Errorf("failed to insert delivery attempt for %s: %w", a.SubscriberID, err)
	}
	slog.Debug("SQLiteStore AddDeliveryAttempt succeeded", "id", a.ID, "status", a.Status, "channel", a.Channel)
	return nil
}

// MarkDeliveryAttempt performs the pending -> sent/failed transition.
func (s *SQLiteStore) MarkDeliveryAttempt(id string, status models.DeliveryStatus, requestID, errorDetail string) error {
	var sentAt interface{}
	if status == models.DeliveryStatusSent {
		sentAt = time.Now()
	}
	_, err := s.db.Exec(`
		UPDATE delivery_attempts
		SET status = ?, request_id = ?, error_detail = ?, sent_at = COALESCE(?, sent_at)
		WHERE id = ?`,
		status, nilIfEmpty(requestID), nilIfEmpty(errorDetail), sentAt, id)
	if err != nil {
		slog.Error("SQLiteStore MarkDeliveryAttempt failed", "error", err, "id", id, "status", status)
		return fmt.Errorf("failed to mark delivery attempt %s: %w", id, err)
	}
	return nil
}

// LatestSentAttempt returns the newest sent row for the pair, if any.
func (s *SQLiteStore) LatestSentAttempt(subscriberID string, messageType models.MessageType) (*models.DeliveryAttempt, error) {
	row := s.db.QueryRow(`
		SELECT id, subscriber_id, message_type, status, channel, content_summary, request_id, error_detail, created_at, sent_at
		FROM delivery_attempts
		WHERE subscriber_id = ? AND message_type = ? AND status = 'sent'
		ORDER BY sent_at DESC LIMIT 1`,
		subscriberID, messageType)
	a, err := scanAttemptRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LatestSentAttempt failed", "error", err, "subscriber_id", subscriberID, "message_type", messageType)
		return nil, fmt.Errorf("failed to query latest sent attempt: %w", err)
	}
	return &a, nil
}

// ListDeliveryAttempts returns up to limit rows, newest first.
func (s *SQLiteStore) ListDeliveryAttempts(limit int) ([]models.DeliveryAttempt, error) {
	rows, err := s.db.Query(`
		SELECT id, subscriber_id, message_type, status, channel, content_summary, request_id, error_detail, created_at, sent_at
		FROM delivery_attempts
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		slog.Error("SQLiteStore ListDeliveryAttempts query failed", "error", err)
		return nil, fmt.Errorf("failed to query delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			slog.Error("SQLiteStore ListDeliveryAttempts scan failed", "error", err)
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
func (s *SQLiteStore) AddGameSession(sess models.GameSession) error {
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO game_sessions (id, subscriber_id, emotion, game_data, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.SubscriberID, sess.Emotion, sess.DataJSON, createdAt)
	if err != nil {
		slog.Error("SQLiteStore AddGameSession failed", "error", err, "subscriber_id", sess.SubscriberID)
		return fmt.Errorf("failed to insert game session for %s: %w", sess.SubscriberID, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
