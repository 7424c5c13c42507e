package webhook

import (
	"testing"

	"github.com/jujuling/fanline/internal/models"
)

func TestParsePostbackData(t *testing.T) {
	params := ParsePostbackData("action=next_content")
	if len(params) != 1 || params["action"] != "next_content" {
		t.Errorf("unexpected params: %v", params)
	}

	params = ParsePostbackData("event=release_event&answer=yes")
	if params["event"] != "release_event" || params["answer"] != "yes" {
		t.Errorf("unexpected params: %v", params)
	}
}

func TestParsePostbackDataMalformedPairs(t *testing.T) {
	// Pairs without "=" and pairs with an empty key are dropped, the rest
	// of the string still parses.
	params := ParsePostbackData("action=next_content&bogus")
	if len(params) != 1 || params["action"] != "next_content" {
		t.Errorf("malformed pair should be dropped, got %v", params)
	}

	params = ParsePostbackData("=value&action=get_promo_code")
	if len(params) != 1 || params["action"] != "get_promo_code" {
		t.Errorf("empty key should be dropped, got %v", params)
	}
}

func TestParsePostbackDataDecodingAndLastWins(t *testing.T) {
	params := ParsePostbackData("msg=hello%20world&msg=bye")
	if params["msg"] != "bye" {
		t.Errorf("last occurrence should win, got %q", params["msg"])
	}

	params = ParsePostbackData("note=a%2Bb")
	if params["note"] != "a+b" {
		t.Errorf("value should be percent-decoded, got %q", params["note"])
	}

	// A segment that fails to decode is kept verbatim.
	params = ParsePostbackData("bad=%zz")
	if params["bad"] != "%zz" {
		t.Errorf("undecodable value should be kept verbatim, got %q", params["bad"])
	}
}

func TestParsePostbackDataEmpty(t *testing.T) {
	params := ParsePostbackData("")
	if len(params) != 0 {
		t.Errorf("empty data should yield no params, got %v", params)
	}
}

func TestParseBatch(t *testing.T) {
	body := []byte(`{"events":[
		{"type":"postback","replyToken":"tok-1","source":{"userId":"U1"},"postback":{"data":"action=next_content"}},
		{"type":"follow","replyToken":"tok-2","source":{"userId":"U2"}},
		{"type":"unfollow","source":{"userId":"U3"}}
	]}`)

	events, err := ParseBatch(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != models.EventTypePostback || events[0].SubscriberID != "U1" || events[0].PostbackData != "action=next_content" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Type != models.EventTypeFollow || events[1].ReplyToken != "tok-2" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	if events[2].Type != models.EventTypeUnfollow || events[2].ReplyToken != "" {
		t.Errorf("unexpected third event: %+v", events[2])
	}
}

func TestParseBatchInvalidJSON(t *testing.T) {
	if _, err := ParseBatch([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
