// Package models defines the core data structures for fanline.
//
// It includes subscriber, progression, and delivery-audit types shared
// across the webhook, drip, delivery, and API modules.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Availability is the tri-state answer a subscriber gave to the
// availability campaign question.
type Availability string

const (
	// AvailabilityYes means the subscriber answered that they can attend.
	AvailabilityYes Availability = "yes"
	// AvailabilityNo means the subscriber answered that they cannot attend.
	AvailabilityNo Availability = "no"
	// AvailabilityUnknown means the subscriber has not answered yet.
	AvailabilityUnknown Availability = "unknown"
)

// EventType identifies the kind of inbound webhook event.
type EventType string

const (
	// EventTypePostback is a button tap carrying an action data string.
	EventTypePostback EventType = "postback"
	// EventTypeFollow is emitted when a user adds the official account.
	EventTypeFollow EventType = "follow"
	// EventTypeUnfollow is emitted when a user blocks or removes the account.
	EventTypeUnfollow EventType = "unfollow"
)

// MessageType tags a delivery attempt with the feature that produced it.
// The rate limiter keys its cooldown on (subscriber, MessageType).
type MessageType string

const (
	// MessageTypeDripContent tags drip sequence deliveries.
	MessageTypeDripContent MessageType = "drip_content"
	// MessageTypePromoCode tags promo code card deliveries.
	MessageTypePromoCode MessageType = "promo_code"
	// MessageTypePostbackReply tags campaign-answer acknowledgments.
	MessageTypePostbackReply MessageType = "postback_reply"
	// MessageTypeFollowWelcome tags welcome bundle deliveries.
	MessageTypeFollowWelcome MessageType = "follow_welcome"
	// MessageTypeGameResult tags game result pushes from the mini-app.
	MessageTypeGameResult MessageType = "game_result"
)

// DeliveryStatus is the lifecycle state of a delivery attempt.
// The only permitted mutation is pending -> sent or pending -> failed,
// performed immediately after the transport call returns.
type DeliveryStatus string

const (
	// DeliveryStatusPending marks a row created before the transport call.
	DeliveryStatusPending DeliveryStatus = "pending"
	// DeliveryStatusSent marks a successful delivery.
	DeliveryStatusSent DeliveryStatus = "sent"
	// DeliveryStatusFailed marks a delivery where reply and push both failed.
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// DeliveryChannel records which transport primitive actually carried the
// bundle.
type DeliveryChannel string

const (
	// ChannelReply means the single-use reply token was consumed.
	ChannelReply DeliveryChannel = "reply"
	// ChannelPush means the push primitive was used (directly or as fallback).
	ChannelPush DeliveryChannel = "push"
	// ChannelNone means no transport accepted the bundle.
	ChannelNone DeliveryChannel = "none"
)

// Emotion is the result category reported by the companion game.
type Emotion string

const (
	EmotionJoy   Emotion = "joy"
	EmotionHappy Emotion = "happy"
	EmotionChill Emotion = "chill"
	EmotionAngry Emotion = "angry"
	EmotionSad   Emotion = "sad"
	EmotionChaos Emotion = "chaos"
)

// Validation constants.
const (
	// MaxContentSummaryLength bounds the human-readable audit summary.
	MaxContentSummaryLength = 500
	// MaxErrorDetailLength bounds the stored transport error detail.
	MaxErrorDetailLength = 500
)

// Sentinel errors shared across modules.
var (
	ErrEmptySubscriberID = errors.New("subscriber id cannot be empty")
	ErrInvalidEmotion    = errors.New("invalid emotion")
	ErrMissingTitle      = errors.New("title is required")
	ErrNoAccessToken     = errors.New("channel access token not configured")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// IsValidEmotion reports whether e is one of the supported game emotions.
func IsValidEmotion(e Emotion) bool {
	switch e {
	case EmotionJoy, EmotionHappy, EmotionChill, EmotionAngry, EmotionSad, EmotionChaos:
		return true
	default:
		return false
	}
}

// Subscriber is a platform identity tracked by the engine. Rows are
// upserted on first contact and never deleted; an unfollow only leaves an
// audit record behind.
type Subscriber struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"display_name,omitempty"`
	Availability Availability `json:"availability"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Progress is the per-subscriber pointer into the content sequence.
// Absence of a row means step 0 (not started).
type Progress struct {
	SubscriberID string    `json:"subscriber_id"`
	CurrentStep  int       `json:"current_step"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DeliveryAttempt is one append-only audit row per delivery, terminal and
// locked responses included. It doubles as the rate limiter's data source.
type DeliveryAttempt struct {
	ID             string          `json:"id"`
	SubscriberID   string          `json:"subscriber_id"`
	MessageType    MessageType     `json:"message_type"`
	Status         DeliveryStatus  `json:"status"`
	Channel        DeliveryChannel `json:"channel"`
	ContentSummary string          `json:"content_summary,omitempty"`
	RequestID      string          `json:"request_id,omitempty"`
	ErrorDetail    string          `json:"error_detail,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	SentAt         time.Time       `json:"sent_at"`
}

// WebhookEvent is the normalized transient form of one inbound event. It
// exists only for the duration of a single dispatch.
type WebhookEvent struct {
	Type         EventType
	SubscriberID string
	ReplyToken   string
	PostbackData string
	Raw          json.RawMessage
}

// WebhookEventRecord is the raw-event audit row written for every inbound
// event, including unfollows where no delivery is attempted.
type WebhookEventRecord struct {
	SubscriberID string
	ReplyToken   string
	EventType    EventType
	PostbackData string
	EventName    string
	Answer       string
	RawEvent     string
	CreatedAt    time.Time
}

// GameSession records one completed game round reported by the mini-app.
type GameSession struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriber_id"`
	Emotion      Emotion   `json:"emotion"`
	DataJSON     string    `json:"data_json,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// GameResultRequest is the payload of POST /game/push-result.
type GameResultRequest struct {
	SubscriberID string          `json:"user_id"`
	Emotion      Emotion         `json:"emotion"`
	Title        string          `json:"title"`
	Body         string          `json:"body,omitempty"`
	ArtistText   string          `json:"artist_message,omitempty"`
	VideoURL     string          `json:"video_url,omitempty"`
	VideoPreview string          `json:"video_preview,omitempty"`
	EventFlex    json.RawMessage `json:"event_flex,omitempty"`
}

// Validate checks the required game-result fields.
func (r *GameResultRequest) Validate() error {
	if r.SubscriberID == "" {
		return ErrEmptySubscriberID
	}
	if !IsValidEmotion(r.Emotion) {
		return ErrInvalidEmotion
	}
	if r.Title == "" {
		return ErrMissingTitle
	}
	return nil
}

// Truncate clips s to at most n bytes. Used before persisting summaries
// and error details into bounded audit columns.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// APIResponse is the standard JSON envelope for API endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: "ok", Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
