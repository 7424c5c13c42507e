package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/jujuling/fanline/internal/delivery"
	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/models"
)

// Postback action keys and values the dispatcher routes on.
const (
	actionKey         = "action"
	actionNextContent = "next_content"
	actionGetPromo    = "get_promo_code"
	eventKey          = "event"
	answerKey         = "answer"

	// DefaultCampaign names the availability campaign the welcome card asks
	// about.
	DefaultCampaign = "release_event"
)

// Store is the persistence subset the dispatcher depends on.
type Store interface {
	UpsertSubscriber(sub models.Subscriber) error
	SetSubscriberAvailability(id string, availability models.Availability) error
	RecordWebhookEvent(rec models.WebhookEventRecord) error
	AddDeliveryAttempt(a models.DeliveryAttempt) error
}

// Advancer is the drip-engine subset the dispatcher depends on.
type Advancer interface {
	Advance(ctx context.Context, subscriberID, replyToken string) error
}

// Channel is the delivery subset the dispatcher depends on.
type Channel interface {
	Send(ctx context.Context, replyToken, subscriberID string, msgs []line.Message) delivery.Outcome
}

// ProfileFetcher is the profile-lookup subset the dispatcher depends on.
type ProfileFetcher interface {
	GetProfile(ctx context.Context, userID string) (*line.Profile, error)
}

// Dispatcher routes normalized webhook events to their handlers.
type Dispatcher struct {
	store    Store
	engine   Advancer
	channel  Channel
	profiles ProfileFetcher
	campaign string
}

// NewDispatcher creates an event dispatcher. campaign may be empty, in
// which case DefaultCampaign is used for the welcome card.
func NewDispatcher(st Store, engine Advancer, ch Channel, profiles ProfileFetcher, campaign string) *Dispatcher {
	if campaign == "" {
		campaign = DefaultCampaign
	}
	return &Dispatcher{store: st, engine: engine, channel: ch, profiles: profiles, campaign: campaign}
}

// HandleBatch processes a webhook batch strictly in order. Every event is
// recorded in the raw-event audit and handled in isolation: a failing
// event is logged and the loop continues, so one bad event never blocks
// the rest of the batch.
func (d *Dispatcher) HandleBatch(ctx context.Context, events []models.WebhookEvent) {
	slog.Info("Dispatcher.HandleBatch: processing batch", "events", len(events))
	for i, ev := range events {
		if err := d.handleEvent(ctx, ev); err != nil {
			slog.Error("Dispatcher.HandleBatch: event failed", "error", err, "index", i, "type", ev.Type, "subscriber_id", ev.SubscriberID)
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev models.WebhookEvent) error {
	rec := models.WebhookEventRecord{
		SubscriberID: ev.SubscriberID,
		ReplyToken:   ev.ReplyToken,
		EventType:    ev.Type,
		PostbackData: ev.PostbackData,
		RawEvent:     string(ev.Raw),
		CreatedAt:    time.Now(),
	}

	switch ev.Type {
	case models.EventTypePostback:
		params := ParsePostbackData(ev.PostbackData)
		rec.EventName = params[eventKey]
		rec.Answer = params[answerKey]
		d.recordEvent(rec)
		return d.handlePostback(ctx, ev, params)
	case models.EventTypeFollow:
		d.recordEvent(rec)
		return d.handleFollow(ctx, ev)
	case models.EventTypeUnfollow:
		// Audit only. The subscriber row stays; no delivery is possible.
		d.recordEvent(rec)
		slog.Info("Dispatcher: subscriber unfollowed", "subscriber_id", ev.SubscriberID)
		return nil
	default:
		d.recordEvent(rec)
		slog.Debug("Dispatcher: ignoring unhandled event type", "type", ev.Type, "subscriber_id", ev.SubscriberID)
		return nil
	}
}

// recordEvent appends the raw-event audit row. Failures are logged and
// swallowed so the audit never blocks handling.
func (d *Dispatcher) recordEvent(rec models.WebhookEventRecord) {
	if err := d.store.RecordWebhookEvent(rec); err != nil {
		slog.Error("Dispatcher.recordEvent: failed to record webhook event", "error", err, "type", rec.EventType, "subscriber_id", rec.SubscriberID)
	}
}

func (d *Dispatcher) handlePostback(ctx context.Context, ev models.WebhookEvent, params map[string]string) error {
	switch params[actionKey] {
	case actionNextContent:
		return d.engine.Advance(ctx, ev.SubscriberID, ev.ReplyToken)
	case actionGetPromo:
		outcome := d.channel.Send(ctx, ev.ReplyToken, ev.SubscriberID, PromoCard())
		d.audit(ev.SubscriberID, models.MessageTypePromoCode, "promo code card", outcome)
		return nil
	}

	if event, answer := params[eventKey], params[answerKey]; event != "" && (answer == "yes" || answer == "no") {
		return d.handleCampaignAnswer(ctx, ev, event, answer)
	}

	slog.Debug("Dispatcher.handlePostback: unrecognized action data", "subscriber_id", ev.SubscriberID, "data", ev.PostbackData)
	return nil
}

func (d *Dispatcher) handleCampaignAnswer(ctx context.Context, ev models.WebhookEvent, event, answer string) error {
	availability := models.AvailabilityNo
	if answer == "yes" {
		availability = models.AvailabilityYes
	}
	if err := d.store.SetSubscriberAvailability(ev.SubscriberID, availability); err != nil {
		slog.Error("Dispatcher.handleCampaignAnswer: failed to store availability", "error", err, "subscriber_id", ev.SubscriberID, "event", event)
	}

	outcome := d.channel.Send(ctx, ev.ReplyToken, ev.SubscriberID, []line.Message{line.NewTextMessage(campaignAck(answer))})
	d.audit(ev.SubscriberID, models.MessageTypePostbackReply, event+" answer: "+answer, outcome)
	slog.Info("Dispatcher.handleCampaignAnswer: answer recorded", "subscriber_id", ev.SubscriberID, "event", event, "answer", answer, "sent", outcome.Sent())
	return nil
}

func (d *Dispatcher) handleFollow(ctx context.Context, ev models.WebhookEvent) error {
	// Profile enrichment is best effort; the follow flow proceeds without it.
	displayName := ""
	if profile, err := d.profiles.GetProfile(ctx, ev.SubscriberID); err != nil {
		slog.Warn("Dispatcher.handleFollow: profile fetch failed", "error", err, "subscriber_id", ev.SubscriberID)
	} else if profile != nil {
		displayName = profile.DisplayName
	}

	if err := d.store.UpsertSubscriber(models.Subscriber{ID: ev.SubscriberID, DisplayName: displayName}); err != nil {
		slog.Error("Dispatcher.handleFollow: failed to upsert subscriber", "error", err, "subscriber_id", ev.SubscriberID)
	}

	outcome := d.channel.Send(ctx, ev.ReplyToken, ev.SubscriberID, WelcomeBundle(displayName, d.campaign))
	d.audit(ev.SubscriberID, models.MessageTypeFollowWelcome, "welcome bundle", outcome)
	slog.Info("Dispatcher.handleFollow: welcome delivered", "subscriber_id", ev.SubscriberID, "channel", outcome.Channel, "sent", outcome.Sent())
	return nil
}

func (d *Dispatcher) audit(subscriberID string, messageType models.MessageType, summary string, outcome delivery.Outcome) {
	attempt := delivery.Attempt(subscriberID, messageType, summary, outcome)
	if err := d.store.AddDeliveryAttempt(attempt); err != nil {
		slog.Error("Dispatcher.audit: failed to append delivery attempt", "error", err, "subscriber_id", subscriberID, "message_type", messageType)
	}
}
