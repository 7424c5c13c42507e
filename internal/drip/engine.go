package drip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jujuling/fanline/internal/delivery"
	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/models"
)

// Store is the persistence subset the engine depends on.
type Store interface {
	GetProgress(subscriberID string) (*models.Progress, error)
	SaveProgress(p models.Progress) error
	AddDeliveryAttempt(a models.DeliveryAttempt) error
}

// Channel is the delivery subset the engine depends on.
type Channel interface {
	Send(ctx context.Context, replyToken, subscriberID string, msgs []line.Message) delivery.Outcome
}

// Engine advances subscribers through the content catalog. Transitions are
// pulled entirely by explicit requests; the engine never initiates one.
type Engine struct {
	store   Store
	channel Channel
	catalog *Catalog
	gameURL string

	// locks serializes advances per subscriber within this process, so two
	// near-simultaneous taps cannot both read step S and both write S+1.
	locks sync.Map
}

// NewEngine creates a progression engine over the given catalog. gameURL
// is the base URL of the external game experience.
func NewEngine(st Store, ch Channel, catalog *Catalog, gameURL string) *Engine {
	return &Engine{store: st, channel: ch, catalog: catalog, gameURL: gameURL}
}

func (e *Engine) lockFor(subscriberID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(subscriberID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Advance resolves the subscriber's next step and delivers it.
//
// Terminal and locked outcomes are idempotent no-ops against Progress:
// they deliver their fixed message and append an audit row without
// mutating state, so repeated taps after completion or before an unlock
// are always safe. A real step delivery upserts Progress to the target
// step whether or not the transport accepted the bundle, then appends the
// audit row; persistence failures after delivery are logged and swallowed.
func (e *Engine) Advance(ctx context.Context, subscriberID, replyToken string) error {
	if subscriberID == "" {
		return models.ErrEmptySubscriberID
	}

	mu := e.lockFor(subscriberID)
	mu.Lock()
	defer mu.Unlock()

	progress, err := e.store.GetProgress(subscriberID)
	if err != nil {
		return fmt.Errorf("failed to read progress for %s: %w", subscriberID, err)
	}
	current := 0
	if progress != nil {
		current = progress.CurrentStep
	}
	target := current + 1
	slog.Debug("Engine.Advance: resolving step", "subscriber_id", subscriberID, "current", current, "target", target)

	step, ok := e.catalog.Step(target)
	if !ok {
		// Past the last step: fixed terminal response, no state change.
		outcome := e.channel.Send(ctx, replyToken, subscriberID, TerminalMessage())
		e.audit(subscriberID, fmt.Sprintf("terminal: all %d steps seen", e.catalog.LastStep()), outcome)
		slog.Info("Engine.Advance: sequence complete", "subscriber_id", subscriberID, "channel", outcome.Channel)
		return nil
	}

	if !e.catalog.Unlocked(step, time.Now()) {
		// Gated segment: fixed locked response, no state change, safe to retry.
		outcome := e.channel.Send(ctx, replyToken, subscriberID, LockedMessage())
		e.audit(subscriberID, fmt.Sprintf("locked: step %d (segment %d)", target, step.Segment), outcome)
		slog.Info("Engine.Advance: segment still locked", "subscriber_id", subscriberID, "step", target, "segment", step.Segment)
		return nil
	}

	var msgs []line.Message
	switch step.Kind {
	case StepGame:
		msgs = GameBundle(step, e.gameURL)
	case StepPost:
		msgs = PostBundle(step)
	default:
		return fmt.Errorf("step %d has unknown kind %q", target, step.Kind)
	}

	outcome := e.channel.Send(ctx, replyToken, subscriberID, msgs)

	// Progress moves to the target whether or not delivery succeeded; the
	// subscriber's next tap re-resolves from whatever was persisted.
	if err := e.store.SaveProgress(models.Progress{SubscriberID: subscriberID, CurrentStep: target, UpdatedAt: time.Now()}); err != nil {
		slog.Error("Engine.Advance: failed to persist progress", "error", err, "subscriber_id", subscriberID, "step", target)
	}

	e.audit(subscriberID, fmt.Sprintf("Step %d: %s", target, step.Title), outcome)
	slog.Info("Engine.Advance: step delivered", "subscriber_id", subscriberID, "step", target, "kind", step.Kind, "channel", outcome.Channel, "sent", outcome.Sent())
	return nil
}

// audit appends the delivery attempt row. A failed insert leaves the
// delivery invisible to the rate limiter and to operators; the gap is
// accepted and logged rather than retried.
func (e *Engine) audit(subscriberID, summary string, outcome delivery.Outcome) {
	attempt := delivery.Attempt(subscriberID, models.MessageTypeDripContent, summary, outcome)
	if err := e.store.AddDeliveryAttempt(attempt); err != nil {
		slog.Error("Engine.audit: failed to append delivery attempt", "error", err, "subscriber_id", subscriberID, "summary", summary)
	}
}
