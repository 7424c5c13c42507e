package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jujuling/fanline/internal/delivery"
	"github.com/jujuling/fanline/internal/drip"
	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/models"
	"github.com/jujuling/fanline/internal/ratelimit"
	"github.com/jujuling/fanline/internal/store"
	"github.com/jujuling/fanline/internal/webhook"
)

// fakeVerifier validates against a fixed secret with the real algorithm.
type fakeVerifier struct {
	secret string
}

func (f *fakeVerifier) SecretConfigured() bool {
	return f.secret != ""
}

func (f *fakeVerifier) VerifySignature(body []byte, signature string) bool {
	return line.ValidateSignature(f.secret, signature, body)
}

// fakeTransport backs both the delivery channel and the push endpoint.
type fakeTransport struct {
	replyErr error
	pushErr  error
	replies  int
	pushes   int
	lastMsgs []line.Message
}

func (f *fakeTransport) Reply(ctx context.Context, replyToken string, msgs []line.Message) (string, error) {
	f.replies++
	f.lastMsgs = msgs
	return "req-reply", f.replyErr
}

func (f *fakeTransport) Push(ctx context.Context, to string, msgs []line.Message) (string, error) {
	f.pushes++
	f.lastMsgs = msgs
	return "req-push", f.pushErr
}

type fakeProfiles struct{}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*line.Profile, error) {
	return nil, errors.New("profile unavailable")
}

func newTestServer(secret string, transport *fakeTransport) (*Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	channel := delivery.NewChannel(transport)
	engine := drip.NewEngine(st, channel, drip.DefaultCatalog(), "https://game.example")
	dispatcher := webhook.NewDispatcher(st, engine, channel, &fakeProfiles{}, "")
	limiter := ratelimit.NewLimiter(st, time.Minute)
	srv := NewServer(&fakeVerifier{secret: secret}, dispatcher, st, limiter, transport, WithAssetBaseURL("https://cdn.example/assets"))
	return srv, st
}

func postWebhook(t *testing.T, srv *Server, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Line-Signature", signature)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestWebhookSignatureMismatch(t *testing.T) {
	transport := &fakeTransport{}
	srv, st := newTestServer("secret", transport)

	// A batch of three events with a bad signature: the whole request is
	// rejected before any event is processed.
	body := []byte(`{"events":[
		{"type":"postback","replyToken":"t1","source":{"userId":"U1"},"postback":{"data":"action=next_content"}},
		{"type":"follow","replyToken":"t2","source":{"userId":"U2"}},
		{"type":"unfollow","source":{"userId":"U3"}}
	]}`)

	w := postWebhook(t, srv, body, line.Sign("wrong-secret", body))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if got := len(st.WebhookEvents()); got != 0 {
		t.Errorf("rejected request must record no events, got %d", got)
	}
	attempts, _ := st.ListDeliveryAttempts(0)
	if len(attempts) != 0 {
		t.Errorf("rejected request must attempt no deliveries, got %d", len(attempts))
	}
	if transport.replies != 0 || transport.pushes != 0 {
		t.Error("rejected request must not touch the transport")
	}
}

func TestWebhookMissingSignature(t *testing.T) {
	srv, _ := newTestServer("secret", &fakeTransport{})
	body := []byte(`{"events":[]}`)
	w := postWebhook(t, srv, body, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for missing signature, got %d", w.Code)
	}
}

func TestWebhookValidSignature(t *testing.T) {
	transport := &fakeTransport{}
	srv, st := newTestServer("secret", transport)

	body := []byte(`{"events":[{"type":"postback","replyToken":"t1","source":{"userId":"U1"},"postback":{"data":"action=next_content"}}]}`)
	w := postWebhook(t, srv, body, line.Sign("secret", body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	if got := len(st.WebhookEvents()); got != 1 {
		t.Errorf("expected 1 recorded event, got %d", got)
	}
	p, _ := st.GetProgress("U1")
	if p == nil || p.CurrentStep != 1 {
		t.Errorf("expected subscriber advanced to step 1, got %+v", p)
	}
	if transport.replies != 1 {
		t.Errorf("expected one reply, got %d", transport.replies)
	}
}

func TestWebhookNoSecretSkipsVerification(t *testing.T) {
	srv, st := newTestServer("", &fakeTransport{})

	body := []byte(`{"events":[{"type":"unfollow","source":{"userId":"U1"}}]}`)
	w := postWebhook(t, srv, body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 without configured secret, got %d", w.Code)
	}
	if got := len(st.WebhookEvents()); got != 1 {
		t.Errorf("expected 1 recorded event, got %d", got)
	}
}

func TestWebhookInvalidJSON(t *testing.T) {
	srv, _ := newTestServer("secret", &fakeTransport{})
	body := []byte("not json")
	w := postWebhook(t, srv, body, line.Sign("secret", body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", w.Code)
	}
}

func TestAttemptsEndpoint(t *testing.T) {
	srv, st := newTestServer("secret", &fakeTransport{})
	for i := 0; i < 3; i++ {
		st.AddDeliveryAttempt(models.DeliveryAttempt{
			ID: string(rune('a' + i)), SubscriberID: "U1",
			MessageType: models.MessageTypeDripContent, Status: models.DeliveryStatusSent,
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/attempts?limit=2", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Status string                   `json:"status"`
		Result []models.DeliveryAttempt `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || len(resp.Result) != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAttemptsEndpointBadLimit(t *testing.T) {
	srv, _ := newTestServer("secret", &fakeTransport{})
	req := httptest.NewRequest(http.MethodGet, "/attempts?limit=zero", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer("secret", &fakeTransport{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
