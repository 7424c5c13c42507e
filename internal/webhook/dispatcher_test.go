package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/jujuling/fanline/internal/delivery"
	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/models"
	"github.com/jujuling/fanline/internal/store"
)

// fakeSender records transport calls for the delivery channel.
type fakeSender struct {
	replyErr error
	pushErr  error
	replies  int
	pushes   int
	lastMsgs []line.Message
}

func (f *fakeSender) Reply(ctx context.Context, replyToken string, msgs []line.Message) (string, error) {
	f.replies++
	f.lastMsgs = msgs
	return "req-reply", f.replyErr
}

func (f *fakeSender) Push(ctx context.Context, to string, msgs []line.Message) (string, error) {
	f.pushes++
	f.lastMsgs = msgs
	return "req-push", f.pushErr
}

// fakeEngine records Advance calls.
type fakeEngine struct {
	calls int
	err   error
}

func (f *fakeEngine) Advance(ctx context.Context, subscriberID, replyToken string) error {
	f.calls++
	return f.err
}

// fakeProfiles serves canned profiles.
type fakeProfiles struct {
	profile *line.Profile
	err     error
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*line.Profile, error) {
	return f.profile, f.err
}

func newTestDispatcher(sender *fakeSender, engine *fakeEngine, profiles *fakeProfiles) (*Dispatcher, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	d := NewDispatcher(st, engine, delivery.NewChannel(sender), profiles, "")
	return d, st
}

func TestHandleBatchRoutesNextContent(t *testing.T) {
	sender := &fakeSender{}
	engine := &fakeEngine{}
	d, st := newTestDispatcher(sender, engine, &fakeProfiles{})

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypePostback, SubscriberID: "U1", ReplyToken: "tok", PostbackData: "action=next_content"},
	})

	if engine.calls != 1 {
		t.Errorf("expected 1 engine call, got %d", engine.calls)
	}
	if got := len(st.WebhookEvents()); got != 1 {
		t.Errorf("expected 1 recorded event, got %d", got)
	}
}

func TestHandleBatchEventIsolation(t *testing.T) {
	// A failing event must not stop later events in the batch.
	sender := &fakeSender{}
	engine := &fakeEngine{err: errors.New("boom")}
	d, st := newTestDispatcher(sender, engine, &fakeProfiles{})

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypePostback, SubscriberID: "U1", ReplyToken: "t1", PostbackData: "action=next_content"},
		{Type: models.EventTypePostback, SubscriberID: "U2", ReplyToken: "t2", PostbackData: "action=next_content"},
	})

	if engine.calls != 2 {
		t.Errorf("expected both events handled, got %d engine calls", engine.calls)
	}
	if got := len(st.WebhookEvents()); got != 2 {
		t.Errorf("expected 2 recorded events, got %d", got)
	}
}

func TestHandlePromoCode(t *testing.T) {
	sender := &fakeSender{}
	d, st := newTestDispatcher(sender, &fakeEngine{}, &fakeProfiles{})

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypePostback, SubscriberID: "U1", ReplyToken: "tok", PostbackData: "action=get_promo_code"},
	})

	if sender.replies != 1 {
		t.Errorf("expected promo card replied, got %d replies", sender.replies)
	}
	attempts, _ := st.ListDeliveryAttempts(0)
	if len(attempts) != 1 || attempts[0].MessageType != models.MessageTypePromoCode {
		t.Fatalf("expected one promo_code attempt, got %+v", attempts)
	}
	if attempts[0].Status != models.DeliveryStatusSent || attempts[0].Channel != models.ChannelReply {
		t.Errorf("unexpected attempt outcome: %+v", attempts[0])
	}
}

func TestHandleCampaignAnswer(t *testing.T) {
	sender := &fakeSender{}
	d, st := newTestDispatcher(sender, &fakeEngine{}, &fakeProfiles{})

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypePostback, SubscriberID: "U1", ReplyToken: "tok", PostbackData: "event=release_event&answer=yes"},
	})

	sub, err := st.GetSubscriber("U1")
	if err != nil || sub == nil {
		t.Fatalf("expected subscriber row, got %v (err %v)", sub, err)
	}
	if sub.Availability != models.AvailabilityYes {
		t.Errorf("expected availability yes, got %s", sub.Availability)
	}
	attempts, _ := st.ListDeliveryAttempts(0)
	if len(attempts) != 1 || attempts[0].MessageType != models.MessageTypePostbackReply {
		t.Fatalf("expected one postback_reply attempt, got %+v", attempts)
	}
	events := st.WebhookEvents()
	if len(events) != 1 || events[0].EventName != "release_event" || events[0].Answer != "yes" {
		t.Errorf("expected campaign fields on event record, got %+v", events)
	}
}

func TestHandleCampaignAnswerNo(t *testing.T) {
	sender := &fakeSender{}
	d, st := newTestDispatcher(sender, &fakeEngine{}, &fakeProfiles{})

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypePostback, SubscriberID: "U1", ReplyToken: "tok", PostbackData: "event=release_event&answer=no"},
	})

	sub, _ := st.GetSubscriber("U1")
	if sub == nil || sub.Availability != models.AvailabilityNo {
		t.Errorf("expected availability no, got %+v", sub)
	}
}

func TestHandleFollow(t *testing.T) {
	sender := &fakeSender{}
	profiles := &fakeProfiles{profile: &line.Profile{UserID: "U1", DisplayName: "Mika"}}
	d, st := newTestDispatcher(sender, &fakeEngine{}, profiles)

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypeFollow, SubscriberID: "U1", ReplyToken: "tok"},
	})

	sub, _ := st.GetSubscriber("U1")
	if sub == nil || sub.DisplayName != "Mika" {
		t.Fatalf("expected enriched subscriber, got %+v", sub)
	}
	attempts, _ := st.ListDeliveryAttempts(0)
	if len(attempts) != 1 || attempts[0].MessageType != models.MessageTypeFollowWelcome {
		t.Fatalf("expected one follow_welcome attempt, got %+v", attempts)
	}
	if len(sender.lastMsgs) != 2 {
		t.Errorf("expected welcome bundle of 2 parts, got %d", len(sender.lastMsgs))
	}
}

func TestHandleFollowProfileFailure(t *testing.T) {
	// Profile enrichment is best effort; the follow flow still completes.
	sender := &fakeSender{}
	profiles := &fakeProfiles{err: errors.New("profile unavailable")}
	d, st := newTestDispatcher(sender, &fakeEngine{}, profiles)

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypeFollow, SubscriberID: "U1", ReplyToken: "tok"},
	})

	sub, _ := st.GetSubscriber("U1")
	if sub == nil || sub.DisplayName != "" {
		t.Fatalf("expected subscriber without display name, got %+v", sub)
	}
	if sender.replies != 1 {
		t.Errorf("expected welcome delivered, got %d replies", sender.replies)
	}
}

func TestHandleUnfollowAuditOnly(t *testing.T) {
	sender := &fakeSender{}
	d, st := newTestDispatcher(sender, &fakeEngine{}, &fakeProfiles{})

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypeUnfollow, SubscriberID: "U1"},
	})

	if sender.replies != 0 || sender.pushes != 0 {
		t.Error("unfollow must not trigger any delivery")
	}
	if got := len(st.WebhookEvents()); got != 1 {
		t.Errorf("expected 1 recorded event, got %d", got)
	}
	attempts, _ := st.ListDeliveryAttempts(0)
	if len(attempts) != 0 {
		t.Errorf("expected no delivery attempts, got %+v", attempts)
	}
}

func TestHandleUnknownAction(t *testing.T) {
	sender := &fakeSender{}
	engine := &fakeEngine{}
	d, st := newTestDispatcher(sender, engine, &fakeProfiles{})

	d.HandleBatch(context.Background(), []models.WebhookEvent{
		{Type: models.EventTypePostback, SubscriberID: "U1", ReplyToken: "tok", PostbackData: "action=mystery"},
	})

	if engine.calls != 0 || sender.replies != 0 || sender.pushes != 0 {
		t.Error("unknown action must be a recorded no-op")
	}
	if got := len(st.WebhookEvents()); got != 1 {
		t.Errorf("expected raw event still recorded, got %d", got)
	}
}
