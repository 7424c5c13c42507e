package line

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jujuling/fanline/internal/models"
)

func TestReply(t *testing.T) {
	var gotPath string
	var gotAuth string
	var payload replyPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.Header().Set(RequestIDHeader, "req-123")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(WithAccessToken("token"), WithBaseURL(srv.URL))
	requestID, err := c.Reply(context.Background(), "tok-1", []Message{NewTextMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requestID != "req-123" {
		t.Errorf("expected request id from header, got %q", requestID)
	}
	if gotPath != "/v2/bot/message/reply" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if payload.ReplyToken != "tok-1" || len(payload.Messages) != 1 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestPush(t *testing.T) {
	var payload pushPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/push" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.Header().Set(RequestIDHeader, "req-456")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(WithAccessToken("token"), WithBaseURL(srv.URL))
	requestID, err := c.Push(context.Background(), "U1", []Message{NewTextMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requestID != "req-456" {
		t.Errorf("expected request id from header, got %q", requestID)
	}
	if payload.To != "U1" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestPushErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, "req-err")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid reply token"}`))
	}))
	defer srv.Close()

	c := NewClient(WithAccessToken("token"), WithBaseURL(srv.URL))
	requestID, err := c.Push(context.Background(), "U1", []Message{NewTextMessage("hi")})
	if err == nil {
		t.Fatal("expected error for 400 status")
	}
	if requestID != "req-err" {
		t.Errorf("request id should survive error responses, got %q", requestID)
	}
}

func TestSendWithoutToken(t *testing.T) {
	c := NewClient()
	if _, err := c.Push(context.Background(), "U1", []Message{NewTextMessage("hi")}); !errors.Is(err, models.ErrNoAccessToken) {
		t.Errorf("expected ErrNoAccessToken, got %v", err)
	}
}

func TestReplyEmptyToken(t *testing.T) {
	c := NewClient(WithAccessToken("token"))
	if _, err := c.Reply(context.Background(), "", []Message{NewTextMessage("hi")}); err == nil {
		t.Error("expected error for empty reply token")
	}
}

func TestPushEmptyRecipient(t *testing.T) {
	c := NewClient(WithAccessToken("token"))
	if _, err := c.Push(context.Background(), "", []Message{NewTextMessage("hi")}); !errors.Is(err, models.ErrEmptySubscriberID) {
		t.Errorf("expected ErrEmptySubscriberID, got %v", err)
	}
}

func TestBundleCap(t *testing.T) {
	var payload pushPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	msgs := make([]Message, MaxMessagesPerSend+2)
	for i := range msgs {
		msgs[i] = NewTextMessage("part")
	}

	c := NewClient(WithAccessToken("token"), WithBaseURL(srv.URL))
	if _, err := c.Push(context.Background(), "U1", msgs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payload.Messages) != MaxMessagesPerSend {
		t.Errorf("expected bundle capped at %d, got %d", MaxMessagesPerSend, len(payload.Messages))
	}
}

func TestGetProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/profile/U1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Profile{UserID: "U1", DisplayName: "Mika"})
	}))
	defer srv.Close()

	c := NewClient(WithAccessToken("token"), WithBaseURL(srv.URL))
	p, err := c.GetProfile(context.Background(), "U1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DisplayName != "Mika" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithAccessToken("token"), WithBaseURL(srv.URL))
	if _, err := c.GetProfile(context.Background(), "U404"); err == nil {
		t.Error("expected error for 404 profile")
	}
}

func TestSecretConfigured(t *testing.T) {
	if NewClient().SecretConfigured() {
		t.Error("no secret should report unconfigured")
	}
	if !NewClient(WithChannelSecret("s")).SecretConfigured() {
		t.Error("configured secret should report configured")
	}
}
