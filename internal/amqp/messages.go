package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried on the expense event stream.
const (
	EventExpenseCreated = "expense.created"
	EventExpenseUpdated = "expense.updated"
	EventExpenseDeleted = "expense.deleted"
)

// ExpenseEventMessage is a lightweight notification that an expense changed.
// It carries identifiers only; the worker fetches the full record from the
// database when it needs one.
type ExpenseEventMessage struct {
	Type      string    `json:"type"`
	ExpenseID string    `json:"expense_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent creates an event message stamped with the current time.
func NewExpenseEvent(eventType, expenseID, userID string) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		Type:      eventType,
		ExpenseID: expenseID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ExpenseEventMessage) Validate() error {
	switch m.Type {
	case EventExpenseCreated, EventExpenseUpdated, EventExpenseDeleted:
	default:
		return fmt.Errorf("unknown event type %q", m.Type)
	}
	if m.ExpenseID == "" || m.UserID == "" {
		return fmt.Errorf("event missing identifiers")
	}
	return nil
}

// ToJSON converts the message to JSON bytes.
func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and validates a message from JSON bytes.
func ExpenseEventFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
