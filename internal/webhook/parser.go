// Package webhook parses and dispatches inbound platform events.
//
// A webhook request carries a batch of events. The batch is processed
// strictly in order, one event at a time, and a failing event never stops
// the rest of the batch. The HTTP layer acknowledges the request after the
// whole batch has been worked through.
package webhook

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jujuling/fanline/internal/models"
)

// wireBody is the JSON envelope of one webhook request.
type wireBody struct {
	Events []wireEvent `json:"events"`
}

// wireEvent is one raw platform event. Only the fields the dispatcher
// routes on are decoded; the full payload is kept for the event audit.
type wireEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Postback struct {
		Data string `json:"data"`
	} `json:"postback"`
}

// ParseBatch decodes a webhook request body into normalized events.
func ParseBatch(body []byte) ([]models.WebhookEvent, error) {
	var wire wireBody
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode webhook body: %w", err)
	}
	events := make([]models.WebhookEvent, 0, len(wire.Events))
	for _, we := range wire.Events {
		raw, err := json.Marshal(we)
		if err != nil {
			raw = nil
		}
		events = append(events, models.WebhookEvent{
			Type:         models.EventType(we.Type),
			SubscriberID: we.Source.UserID,
			ReplyToken:   we.ReplyToken,
			PostbackData: we.Postback.Data,
			Raw:          raw,
		})
	}
	return events, nil
}

// ParsePostbackData decodes a postback action string of the form
// "key=value&key=value". Pairs without an "=" and pairs with an empty key
// are dropped; keys and values are percent-decoded independently, and a
// segment that fails to decode is kept verbatim. On repeated keys the last
// occurrence wins.
func ParsePostbackData(data string) map[string]string {
	out := make(map[string]string)
	if data == "" {
		return out
	}
	for _, pair := range strings.Split(data, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			continue
		}
		out[decodeSegment(key)] = decodeSegment(value)
	}
	return out
}

func decodeSegment(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
