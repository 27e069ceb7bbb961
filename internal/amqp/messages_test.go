package amqp

import (
	"testing"
	"time"
)

func TestRecordSyncMessageRoundtrip(t *testing.T) {
	msg := NewRecordSyncMessage("rec-1", "baker-1")
	if msg.Kind != KindRecordSync {
		t.Fatalf("kind = %q", msg.Kind)
	}
	if msg.Timestamp.IsZero() || msg.Timestamp.After(time.Now().Add(time.Second)) {
		t.Fatalf("timestamp not stamped: %v", msg.Timestamp)
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	got, err := RecordSyncMessageFromJSON(body)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if got.Kind != msg.Kind || got.RecordID != "rec-1" || got.UserID != "baker-1" {
		t.Fatalf("roundtrip lost fields: %+v", got)
	}
}

func TestRecordDeleteMessageKind(t *testing.T) {
	msg := NewRecordDeleteMessage("rec-2", "baker-1")
	if msg.Kind != KindRecordDelete {
		t.Fatalf("kind = %q", msg.Kind)
	}
}

func TestRecordSyncMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := RecordSyncMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
