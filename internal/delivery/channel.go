// Package delivery implements the reply-then-push delivery channel.
//
// The platform exposes two transport primitives: a reply bound to the
// single-use token of the triggering event, and a push addressed by
// subscriber id. The channel tries reply first when a token is present and
// falls back to push on any reply failure. The result is a tagged Outcome
// rather than error-driven control flow, so callers can branch and audit
// explicitly.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/models"
)

// Sender is the transport subset the channel depends on.
type Sender interface {
	Reply(ctx context.Context, replyToken string, msgs []line.Message) (string, error)
	Push(ctx context.Context, to string, msgs []line.Message) (string, error)
}

// Outcome is the three-way result of one delivery: sent via reply, sent
// via push, or failed (channel none).
type Outcome struct {
	// Channel is the transport that actually carried the bundle, or
	// ChannelNone when both primitives failed.
	Channel models.DeliveryChannel
	// RequestID is the transport-assigned id of the successful call (or of
	// the last failed one, when the transport returned an id anyway).
	RequestID string
	// Err is the final transport error when Channel is ChannelNone.
	Err error
}

// Sent reports whether the bundle reached the platform.
func (o Outcome) Sent() bool {
	return o.Channel == models.ChannelReply || o.Channel == models.ChannelPush
}

// Status maps the outcome onto a delivery attempt status.
func (o Outcome) Status() models.DeliveryStatus {
	if o.Sent() {
		return models.DeliveryStatusSent
	}
	return models.DeliveryStatusFailed
}

// ErrorDetail returns a bounded error string for the audit row.
func (o Outcome) ErrorDetail() string {
	if o.Err == nil {
		return ""
	}
	return models.Truncate(o.Err.Error(), models.MaxErrorDetailLength)
}

// Channel sends bundles over reply with push fallback.
type Channel struct {
	sender Sender
}

// NewChannel creates a delivery channel over the given transport.
func NewChannel(sender Sender) *Channel {
	return &Channel{sender: sender}
}

// Send delivers a bundle to a subscriber. When replyToken is non-empty the
// reply primitive is tried first; any reply failure (including an expired
// or reused token) falls back to push. Transport errors never escape as
// Go errors; they are folded into the Outcome.
func (c *Channel) Send(ctx context.Context, replyToken, subscriberID string, msgs []line.Message) Outcome {
	var replyErr error
	if replyToken != "" {
		requestID, err := c.sender.Reply(ctx, replyToken, msgs)
		if err == nil {
			slog.Debug("Channel.Send: delivered via reply", "subscriber_id", subscriberID, "request_id", requestID)
			return Outcome{Channel: models.ChannelReply, RequestID: requestID}
		}
		replyErr = err
		slog.Warn("Channel.Send: reply failed, falling back to push", "subscriber_id", subscriberID, "error", err)
	}

	if subscriberID == "" {
		err := replyErr
		if err == nil {
			err = models.ErrEmptySubscriberID
		}
		return Outcome{Channel: models.ChannelNone, Err: err}
	}

	requestID, err := c.sender.Push(ctx, subscriberID, msgs)
	if err == nil {
		slog.Debug("Channel.Send: delivered via push", "subscriber_id", subscriberID, "request_id", requestID)
		return Outcome{Channel: models.ChannelPush, RequestID: requestID}
	}

	slog.Error("Channel.Send: push failed, bundle undelivered", "subscriber_id", subscriberID, "error", err)
	if replyErr != nil {
		err = errors.Join(replyErr, err)
	}
	return Outcome{Channel: models.ChannelNone, RequestID: requestID, Err: err}
}

// Attempt builds the audit row for a resolved delivery. Exactly one such
// row is appended per delivery, whatever the outcome.
func Attempt(subscriberID string, messageType models.MessageType, summary string, o Outcome) models.DeliveryAttempt {
	now := time.Now()
	a := models.DeliveryAttempt{
		ID:             uuid.NewString(),
		SubscriberID:   subscriberID,
		MessageType:    messageType,
		Status:         o.Status(),
		Channel:        o.Channel,
		ContentSummary: models.Truncate(summary, models.MaxContentSummaryLength),
		RequestID:      o.RequestID,
		ErrorDetail:    o.ErrorDetail(),
		CreatedAt:      now,
	}
	if a.Status == models.DeliveryStatusSent {
		a.SentAt = now
	}
	return a
}
