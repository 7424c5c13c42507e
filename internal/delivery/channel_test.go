package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/models"
)

type fakeSender struct {
	replyErr error
	pushErr  error
	replies  int
	pushes   int
}

func (f *fakeSender) Reply(ctx context.Context, replyToken string, msgs []line.Message) (string, error) {
	f.replies++
	return "req-reply", f.replyErr
}

func (f *fakeSender) Push(ctx context.Context, to string, msgs []line.Message) (string, error) {
	f.pushes++
	return "req-push", f.pushErr
}

func msgs() []line.Message {
	return []line.Message{line.NewTextMessage("hi")}
}

func TestSendReplyPreferred(t *testing.T) {
	sender := &fakeSender{}
	ch := NewChannel(sender)

	o := ch.Send(context.Background(), "tok", "U1", msgs())
	if o.Channel != models.ChannelReply || o.RequestID != "req-reply" {
		t.Errorf("expected reply outcome, got %+v", o)
	}
	if sender.pushes != 0 {
		t.Error("push must not run when reply succeeds")
	}
}

func TestSendFallbackToPush(t *testing.T) {
	sender := &fakeSender{replyErr: errors.New("token expired")}
	ch := NewChannel(sender)

	o := ch.Send(context.Background(), "tok", "U1", msgs())
	if o.Channel != models.ChannelPush || o.RequestID != "req-push" {
		t.Errorf("expected push fallback, got %+v", o)
	}
	if sender.replies != 1 || sender.pushes != 1 {
		t.Errorf("expected reply then push, got replies=%d pushes=%d", sender.replies, sender.pushes)
	}
}

func TestSendNoTokenGoesStraightToPush(t *testing.T) {
	sender := &fakeSender{}
	ch := NewChannel(sender)

	o := ch.Send(context.Background(), "", "U1", msgs())
	if o.Channel != models.ChannelPush {
		t.Errorf("expected push, got %+v", o)
	}
	if sender.replies != 0 {
		t.Error("reply must not run without a token")
	}
}

func TestSendBothFail(t *testing.T) {
	sender := &fakeSender{replyErr: errors.New("reply down"), pushErr: errors.New("push down")}
	ch := NewChannel(sender)

	o := ch.Send(context.Background(), "tok", "U1", msgs())
	if o.Channel != models.ChannelNone || o.Err == nil {
		t.Fatalf("expected failed outcome, got %+v", o)
	}
	if o.Sent() {
		t.Error("failed outcome must not report sent")
	}
	if o.Status() != models.DeliveryStatusFailed {
		t.Errorf("expected failed status, got %s", o.Status())
	}
}

func TestSendNoTokenNoSubscriber(t *testing.T) {
	sender := &fakeSender{}
	ch := NewChannel(sender)

	o := ch.Send(context.Background(), "", "", msgs())
	if o.Channel != models.ChannelNone || !errors.Is(o.Err, models.ErrEmptySubscriberID) {
		t.Errorf("expected ErrEmptySubscriberID outcome, got %+v", o)
	}
	if sender.replies != 0 || sender.pushes != 0 {
		t.Error("no transport call must happen without token and subscriber")
	}
}

func TestAttemptBuildsAuditRow(t *testing.T) {
	o := Outcome{Channel: models.ChannelReply, RequestID: "req-1"}
	a := Attempt("U1", models.MessageTypeDripContent, "Step 1: Chapter One", o)

	if a.ID == "" {
		t.Error("attempt id must be set")
	}
	if a.Status != models.DeliveryStatusSent || a.SentAt.IsZero() {
		t.Errorf("sent attempt must carry sent_at, got %+v", a)
	}
	if a.RequestID != "req-1" || a.SubscriberID != "U1" {
		t.Errorf("unexpected attempt fields: %+v", a)
	}

	failed := Attempt("U1", models.MessageTypeDripContent, "Step 1", Outcome{Channel: models.ChannelNone, Err: errors.New("down")})
	if failed.Status != models.DeliveryStatusFailed || !failed.SentAt.IsZero() {
		t.Errorf("failed attempt must not carry sent_at, got %+v", failed)
	}
	if failed.ErrorDetail == "" {
		t.Error("failed attempt must carry error detail")
	}
}
