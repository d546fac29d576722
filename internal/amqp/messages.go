package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"spendbook/internal/core"
)

// EntryRecordedMessage announces that a ledger entry was appended.
// Consumers treat EventID as the idempotency key.
type EntryRecordedMessage struct {
	EventID     string    `json:"event_id"`
	EntryID     int64     `json:"entry_id"`
	AccountID   int64     `json:"account_id"`
	Date        string    `json:"date"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEntryRecordedMessage builds the event for a stored entry.
func NewEntryRecordedMessage(e core.Entry) *EntryRecordedMessage {
	return &EntryRecordedMessage{
		EventID:     uuid.NewString(),
		EntryID:     e.ID,
		AccountID:   e.AccountID,
		Date:        e.Date.String(),
		Category:    string(e.Category),
		AmountCents: e.Amount.Cents,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EntryRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryRecordedMessageFromJSON decodes a message body.
func EntryRecordedMessageFromJSON(data []byte) (*EntryRecordedMessage, error) {
	var msg EntryRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
