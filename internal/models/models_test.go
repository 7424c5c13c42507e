package models

import (
	"errors"
	"strings"
	"testing"
)

func TestGameResultRequestValidate(t *testing.T) {
	valid := GameResultRequest{SubscriberID: "U1", Emotion: EmotionJoy, Title: "T"}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	r := valid
	r.SubscriberID = ""
	if err := r.Validate(); !errors.Is(err, ErrEmptySubscriberID) {
		t.Errorf("expected ErrEmptySubscriberID, got %v", err)
	}

	r = valid
	r.Emotion = "confused"
	if err := r.Validate(); !errors.Is(err, ErrInvalidEmotion) {
		t.Errorf("expected ErrInvalidEmotion, got %v", err)
	}

	r = valid
	r.Title = ""
	if err := r.Validate(); !errors.Is(err, ErrMissingTitle) {
		t.Errorf("expected ErrMissingTitle, got %v", err)
	}
}

func TestIsValidEmotion(t *testing.T) {
	for _, e := range []Emotion{EmotionJoy, EmotionHappy, EmotionChill, EmotionAngry, EmotionSad, EmotionChaos} {
		if !IsValidEmotion(e) {
			t.Errorf("%s should be valid", e)
		}
	}
	if IsValidEmotion("confused") || IsValidEmotion("") {
		t.Error("unknown emotions must be invalid")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("unexpected result: %q", got)
	}
	long := strings.Repeat("x", 600)
	if got := Truncate(long, MaxContentSummaryLength); len(got) != MaxContentSummaryLength {
		t.Errorf("expected %d bytes, got %d", MaxContentSummaryLength, len(got))
	}
}
