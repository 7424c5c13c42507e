// Package ratelimit enforces per-subscriber delivery cooldowns.
//
// The limiter carries no state of its own: it reads the delivery-attempt
// audit log and rejects a delivery when a sent row for the same
// (subscriber, message type) pair is younger than the window. If the audit
// log cannot be read, the limiter fails open and allows the delivery.
package ratelimit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jujuling/fanline/internal/models"
)

// DefaultWindow is the cooldown applied between sends of the same message
// type to the same subscriber.
const DefaultWindow = 60 * time.Second

// Source is the audit-log subset the limiter reads.
type Source interface {
	LatestSentAttempt(subscriberID string, messageType models.MessageType) (*models.DeliveryAttempt, error)
}

// ThrottledError is returned by Allow when the cooldown has not elapsed.
type ThrottledError struct {
	// Wait is how long until the next delivery would be allowed.
	Wait time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.Wait.Round(time.Second))
}

// Limiter rejects deliveries inside the cooldown window.
type Limiter struct {
	source Source
	window time.Duration
}

// NewLimiter creates a limiter over the given audit source. A zero or
// negative window falls back to DefaultWindow.
func NewLimiter(source Source, window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{source: source, window: window}
}

// Allow reports whether a delivery of messageType to the subscriber may
// proceed now. Returns a *ThrottledError when inside the cooldown. An
// audit-log read failure is logged and treated as allowed; the cooldown
// is a politeness guard, not a correctness invariant.
func (l *Limiter) Allow(subscriberID string, messageType models.MessageType) error {
	latest, err := l.source.LatestSentAttempt(subscriberID, messageType)
	if err != nil {
		slog.Warn("Limiter.Allow: audit log read failed, allowing delivery", "error", err, "subscriber_id", subscriberID, "message_type", messageType)
		return nil
	}
	if latest == nil {
		return nil
	}
	elapsed := time.Since(latest.SentAt)
	if elapsed < l.window {
		wait := l.window - elapsed
		slog.Info("Limiter.Allow: delivery throttled", "subscriber_id", subscriberID, "message_type", messageType, "wait", wait)
		return &ThrottledError{Wait: wait}
	}
	return nil
}
