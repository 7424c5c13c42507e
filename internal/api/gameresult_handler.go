package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/models"
	"github.com/jujuling/fanline/internal/ratelimit"
)

// emotionStyle drives the look of the game result card.
type emotionStyle struct {
	Emoji string
	Color string
	Image string
}

var emotionStyles = map[models.Emotion]emotionStyle{
	models.EmotionJoy:   {Emoji: "😆", Color: "#ffb703", Image: "result_joy.png"},
	models.EmotionHappy: {Emoji: "😊", Color: "#f72585", Image: "result_happy.png"},
	models.EmotionChill: {Emoji: "😌", Color: "#4cc9f0", Image: "result_chill.png"},
	models.EmotionAngry: {Emoji: "😤", Color: "#e63946", Image: "result_angry.png"},
	models.EmotionSad:   {Emoji: "🥲", Color: "#6c757d", Image: "result_sad.png"},
	models.EmotionChaos: {Emoji: "🤪", Color: "#7209b7", Image: "result_chaos.png"},
}

// gameResultHandler receives a finished round from the companion game and
// pushes the result card to the subscriber. There is no reply token on
// this path; delivery is push only. The audit row is written as pending
// before the transport call and marked sent or failed right after.
func (s *Server) gameResultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.gameResultHandler: processing game result", "method", r.Method, "path", r.URL.Path)

	var req models.GameResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.gameResultHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.gameResultHandler: validation failed", "error", err, "subscriber_id", req.SubscriberID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.limiter.Allow(req.SubscriberID, models.MessageTypeGameResult); err != nil {
		var throttled *ratelimit.ThrottledError
		if errors.As(err, &throttled) {
			retry := int(math.Ceil(throttled.Wait.Seconds()))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
			writeJSONResponse(w, http.StatusTooManyRequests, models.Error(fmt.Sprintf("Rate limited, retry in %d seconds", retry)))
			return
		}
		slog.Error("Server.gameResultHandler: rate limit check failed", "error", err, "subscriber_id", req.SubscriberID)
	}

	// Session capture is best effort; losing it never blocks the push.
	dataJSON, _ := json.Marshal(req)
	if err := s.store.AddGameSession(models.GameSession{
		ID:           uuid.NewString(),
		SubscriberID: req.SubscriberID,
		Emotion:      req.Emotion,
		DataJSON:     string(dataJSON),
		CreatedAt:    time.Now(),
	}); err != nil {
		slog.Error("Server.gameResultHandler: failed to record game session", "error", err, "subscriber_id", req.SubscriberID)
	}

	attempt := models.DeliveryAttempt{
		ID:             uuid.NewString(),
		SubscriberID:   req.SubscriberID,
		MessageType:    models.MessageTypeGameResult,
		Status:         models.DeliveryStatusPending,
		Channel:        models.ChannelPush,
		ContentSummary: models.Truncate(fmt.Sprintf("game result (%s): %s", req.Emotion, req.Title), models.MaxContentSummaryLength),
		CreatedAt:      time.Now(),
	}
	if err := s.store.AddDeliveryAttempt(attempt); err != nil {
		slog.Error("Server.gameResultHandler: failed to create pending attempt", "error", err, "subscriber_id", req.SubscriberID)
	}

	msgs := s.gameResultBundle(req)
	requestID, pushErr := s.pusher.Push(r.Context(), req.SubscriberID, msgs)
	if pushErr != nil {
		detail := models.Truncate(pushErr.Error(), models.MaxErrorDetailLength)
		if err := s.store.MarkDeliveryAttempt(attempt.ID, models.DeliveryStatusFailed, requestID, detail); err != nil {
			slog.Error("Server.gameResultHandler: failed to mark attempt failed", "error", err, "attempt_id", attempt.ID)
		}
		slog.Error("Server.gameResultHandler: push failed", "error", pushErr, "subscriber_id", req.SubscriberID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to deliver game result"))
		return
	}

	if err := s.store.MarkDeliveryAttempt(attempt.ID, models.DeliveryStatusSent, requestID, ""); err != nil {
		slog.Error("Server.gameResultHandler: failed to mark attempt sent", "error", err, "attempt_id", attempt.ID)
	}
	slog.Info("Server.gameResultHandler: result delivered", "subscriber_id", req.SubscriberID, "emotion", req.Emotion, "request_id", requestID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Game result delivered", map[string]string{"request_id": requestID}))
}

// gameResultBundle assembles the push: the result card, an optional
// artist message, an optional video, and an optional event card passed
// through verbatim from the game. The transport caps the bundle size.
func (s *Server) gameResultBundle(req models.GameResultRequest) []line.Message {
	style := emotionStyles[req.Emotion]

	bubble := line.NewBubble("mega")
	if s.assetBaseURL != "" {
		bubble.Hero = &line.FlexImage{
			Type:        "image",
			URL:         strings.TrimRight(s.assetBaseURL, "/") + "/" + style.Image,
			Size:        "full",
			AspectRatio: "20:13",
			AspectMode:  "cover",
		}
	}
	contents := []interface{}{
		&line.FlexText{Type: "text", Text: style.Emoji + " " + req.Title, Weight: "bold", Size: "xl", Color: style.Color, Wrap: true},
	}
	if req.Body != "" {
		contents = append(contents, &line.FlexText{Type: "text", Text: req.Body, Wrap: true, Size: "sm", Color: "#555555", Margin: "md"})
	}
	bubble.Body = &line.FlexBox{Type: "box", Layout: "vertical", PaddingAll: "20px", Contents: contents}

	msgs := []line.Message{line.NewFlexMessage(req.Title, bubble)}
	if req.ArtistText != "" {
		msgs = append(msgs, line.NewTextMessage(req.ArtistText))
	}
	if req.VideoURL != "" {
		msgs = append(msgs, line.NewVideoMessage(req.VideoURL, req.VideoPreview))
	}
	if len(req.EventFlex) > 0 {
		msgs = append(msgs, line.NewRawFlexMessage("Event info", req.EventFlex))
	}
	return msgs
}
