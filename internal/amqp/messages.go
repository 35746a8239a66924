package amqp

import (
	"encoding/json"
	"time"
)

// TableChangedMessage announces that a table was written. It carries only
// the table name and the new version; consumers reload the table from the
// primary store.
type TableChangedMessage struct {
	Table     string    `json:"table"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTableChangedMessage(table, version string) *TableChangedMessage {
	return &TableChangedMessage{
		Table:     table,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *TableChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TableChangedMessageFromJSON(data []byte) (*TableChangedMessage, error) {
	var msg TableChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
