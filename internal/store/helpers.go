package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jujuling/fanline/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZeroTime returns nil for the zero time, otherwise returns t.
func nilIfZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// scanAttempt scans a DeliveryAttempt from sql.Rows.
func scanAttempt(rows *sql.Rows) (models.DeliveryAttempt, error) {
	var a models.DeliveryAttempt
	var summary, requestID, errorDetail sql.NullString
	var sentAt sql.NullTime
	err := rows.Scan(
		&a.ID, &a.SubscriberID, &a.MessageType, &a.Status, &a.Channel,
		&summary, &requestID, &errorDetail, &a.CreatedAt, &sentAt,
	)
	if err != nil {
		return a, fmt.Errorf("scan delivery attempt failed: %w", err)
	}
	a.ContentSummary = summary.String
	a.RequestID = requestID.String
	a.ErrorDetail = errorDetail.String
	if sentAt.Valid {
		a.SentAt = sentAt.Time
	}
	return a, nil
}

// scanAttemptRow scans a DeliveryAttempt from a single sql.Row.
func scanAttemptRow(row *sql.Row) (models.DeliveryAttempt, error) {
	var a models.DeliveryAttempt
	var summary, requestID, errorDetail sql.NullString
	var sentAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.SubscriberID, &a.MessageType, &a.Status, &a.Channel,
		&summary, &requestID, &errorDetail, &a.CreatedAt, &sentAt,
	)
	if err != nil {
		return a, err
	}
	a.ContentSummary = summary.String
	a.RequestID = requestID.String
	a.ErrorDetail = errorDetail.String
	if sentAt.Valid {
		a.SentAt = sentAt.Time
	}
	return a, nil
}
