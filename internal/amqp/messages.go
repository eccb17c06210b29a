package amqp

import (
	"encoding/json"
	"time"
)

// RecordSyncMessage is a lightweight nudge for the sync worker. It carries
// only the queue item ID plus routing hints; the worker reads the full
// payload from the local sync queue.
type RecordSyncMessage struct {
	QueueID   int64     `json:"queue_id"`
	Table     string    `json:"table"`
	RecordID  string    `json:"record_id"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordSyncMessage(queueID int64, table, recordID, operation string) *RecordSyncMessage {
	return &RecordSyncMessage{
		QueueID:   queueID,
		Table:     table,
		RecordID:  recordID,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func RecordSyncMessageFromJSON(data []byte) (*RecordSyncMessage, error) {
	var msg RecordSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
