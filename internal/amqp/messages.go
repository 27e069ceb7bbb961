package amqp

import (
	"encoding/json"
	"time"
)

// Message kinds carried on the sync queue.
const (
	KindRecordSync   = "record_sync"
	KindRecordDelete = "record_delete"
)

// RecordSyncMessage asks the worker to mirror one record to the export
// spreadsheet. It carries only identifiers; the worker fetches the full
// record from storage.
type RecordSyncMessage struct {
	Kind      string    `json:"kind"`
	RecordID  string    `json:"record_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordSyncMessage(recordID, userID string) *RecordSyncMessage {
	return &RecordSyncMessage{
		Kind:      KindRecordSync,
		RecordID:  recordID,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func NewRecordDeleteMessage(recordID, userID string) *RecordSyncMessage {
	return &RecordSyncMessage{
		Kind:      KindRecordDelete,
		RecordID:  recordID,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func (m *RecordSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordSyncMessageFromJSON(data []byte) (*RecordSyncMessage, error) {
	var msg RecordSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
