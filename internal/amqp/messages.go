package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"thinkpay/internal/ledger"
)

// WriteMessage carries one failed ledger write through the retry queue.
type WriteMessage struct {
	Write     ledger.Write `json:"write"`
	Attempts  int          `json:"attempts"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewWriteMessage(w ledger.Write) *WriteMessage {
	return &WriteMessage{Write: w, Timestamp: time.Now().UTC()}
}

// Retry returns a copy of m with the attempt counter advanced.
func (m *WriteMessage) Retry() *WriteMessage {
	next := *m
	next.Attempts++
	next.Timestamp = time.Now().UTC()
	return &next
}

func (m *WriteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func WriteMessageFromJSON(data []byte) (*WriteMessage, error) {
	var msg WriteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode write message: %w", err)
	}
	if err := msg.Write.Validate(); err != nil {
		return nil, fmt.Errorf("decode write message: %w", err)
	}
	return &msg, nil
}
