// Package store provides storage backends for fanline.
//
// Three implementations of the Store interface are available: an in-memory
// store for tests, an SQLite store for single-node deployments, and a
// PostgreSQL store for production. Subscribers, content progress, the raw
// webhook event audit, the delivery-attempt audit log, and game sessions
// all live here.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/jujuling/fanline/internal/models"
)

// Store is the persistence boundary owned by the drip engine and its
// sibling features.
type Store interface {
	// UpsertSubscriber inserts or refreshes a subscriber row. An empty
	// display name never overwrites a previously stored one.
	UpsertSubscriber(sub models.Subscriber) error
	// GetSubscriber returns the subscriber or (nil, nil) when absent.
	GetSubscriber(id string) (*models.Subscriber, error)
	// SetSubscriberAvailability upserts the subscriber's tri-state
	// availability answer.
	SetSubscriberAvailability(id string, availability models.Availability) error

	// GetProgress returns the progress row or (nil, nil) when the
	// subscriber has not started (step 0).
	GetProgress(subscriberID string) (*models.Progress, error)
	// SaveProgress upserts the progress row, last write wins.
	SaveProgress(p models.Progress) error

	// RecordWebhookEvent appends one raw inbound event to the event audit.
	RecordWebhookEvent(rec models.WebhookEventRecord) error

	// AddDeliveryAttempt appends one audit row with its final status.
	AddDeliveryAttempt(a models.DeliveryAttempt) error
	// MarkDeliveryAttempt performs the pending -> sent/failed transition.
	// No other mutation of the audit log exists.
	MarkDeliveryAttempt(id string, status models.DeliveryStatus, requestID, errorDetail string) error
	// LatestSentAttempt returns the most recent row with status sent for
	// the (subscriber, message type) pair, or (nil, nil) when none exists.
	LatestSentAttempt(subscriberID string, messageType models.MessageType) (*models.DeliveryAttempt, error)
	// ListDeliveryAttempts returns up to limit recent rows, newest first.
	ListDeliveryAttempts(limit int) ([]models.DeliveryAttempt, error)

	// AddGameSession records one completed game round.
	AddGameSession(s models.GameSession) error

	Close() error
}

// InMemoryStore is a mutex-guarded Store used by unit tests and as a
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu          sync.Mutex
	subscribers map[string]models.Subscriber
	progress    map[string]models.Progress
	events      []models.WebhookEventRecord
	attempts    []models.DeliveryAttempt
	sessions    []models.GameSession
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subscribers: make(map[string]models.Subscriber),
		progress:    make(map[string]models.Progress),
	}
}

// UpsertSubscriber inserts or refreshes a subscriber row.
func (s *InMemoryStore) UpsertSubscriber(sub models.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	existing, ok := s.subscribers[sub.ID]
	if !ok {
		if sub.Availability == "" {
			sub.Availability = models.AvailabilityUnknown
		}
		sub.CreatedAt = now
		sub.UpdatedAt = now
		s.subscribers[sub.ID] = sub
		return nil
	}
	if sub.DisplayName != "" {
		existing.DisplayName = sub.DisplayName
	}
	existing.UpdatedAt = now
	s.subscribers[sub.ID] = existing
	return nil
}

// GetSubscriber returns the subscriber or (nil, nil) when absent.
func (s *InMemoryStore) GetSubscriber(id string) (*models.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// SetSubscriberAvailability upserts the availability answer.
func (s *InMemoryStore) SetSubscriberAvailability(id string, availability models.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	sub, ok := s.subscribers[id]
	if !ok {
		sub = models.Subscriber{ID: id, CreatedAt: now}
	}
	sub.Availability = availability
	sub.UpdatedAt = now
	s.subscribers[id] = sub
	return nil
}

// GetProgress returns the progress row or (nil, nil) when absent.
func (s *InMemoryStore) GetProgress(subscriberID string) (*models.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[subscriberID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SaveProgress upserts the progress row.
func (s *InMemoryStore) SaveProgress(p models.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.progress[p.SubscriberID] = p
	return nil
}

// RecordWebhookEvent appends one raw event row.
func (s *InMemoryStore) RecordWebhookEvent(rec models.WebhookEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.events = append(s.events, rec)
	return nil
}

// WebhookEvents returns all recorded raw events (for tests).
func (s *InMemoryStore) WebhookEvents() []models.WebhookEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WebhookEventRecord, len(s.events))
	copy(out, s.events)
	return out
}

// AddDeliveryAttempt appends one audit row.
func (s *InMemoryStore) AddDeliveryAttempt(a models.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.attempts = append(s.attempts, a)
	return nil
}

// MarkDeliveryAttempt performs the pending -> sent/failed transition.
func (s *InMemoryStore) MarkDeliveryAttempt(id string, status models.DeliveryStatus, requestID, errorDetail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attempts {
		if s.attempts[i].ID == id {
			s.attempts[i].Status = status
			s.attempts[i].RequestID = requestID
			s.attempts[i].ErrorDetail = errorDetail
			if status == models.DeliveryStatusSent {
				s.attempts[i].SentAt = time.Now()
			}
			return nil
		}
	}
	return nil
}

// LatestSentAttempt returns the newest sent row for the pair, if any.
func (s *InMemoryStore) LatestSentAttempt(subscriberID string, messageType models.MessageType) (*models.DeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.DeliveryAttempt
	for i := range s.attempts {
		a := s.attempts[i]
		if a.SubscriberID != subscriberID || a.MessageType != messageType || a.Status != models.DeliveryStatusSent {
			continue
		}
		if latest == nil || a.SentAt.After(latest.SentAt) {
			copied := a
			latest = &copied
		}
	}
	return latest, nil
}

// ListDeliveryAttempts returns up to limit rows, newest first.
func (s *InMemoryStore) ListDeliveryAttempts(limit int) ([]models.DeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DeliveryAttempt, len(s.attempts))
	copy(out, s.attempts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddGameSession records one completed game round.
func (s *InMemoryStore) AddGameSession(sess models.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	s.sessions = append(s.sessions, sess)
	return nil
}

// GameSessions returns all recorded sessions (for tests).
func (s *InMemoryStore) GameSessions() []models.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GameSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
