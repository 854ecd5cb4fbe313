// Package bus provides the in-process message bus agents use to talk to each
// other: direct and broadcast delivery into per-agent priority mailboxes,
// handler dispatch, and aggregate statistics.
package bus

import (
	"fmt"
	"time"
)

// MessageType is the closed set of events agents exchange.
type MessageType uint8

const (
	InventoryUpdate    MessageType = iota // Stock level changed (sale or restock)
	RestockRequest                        // Ask a book agent to add stock
	PurchaseCompleted                     // Checkout finished, sent to the serving employee
	CustomerInquiry                       // Customer asks an employee for help
	PriceUpdate                           // Book price moved
	LowStockAlert                         // Book stock at or below threshold
	EmployeeAssignment                    // Employee accepted a customer
)

// NumMessageTypes is the number of defined message types.
const NumMessageTypes = 7

var typeNames = [NumMessageTypes]string{
	"inventory_update",
	"restock_request",
	"purchase_completed",
	"customer_inquiry",
	"price_update",
	"low_stock_alert",
	"employee_assignment",
}

// String returns the wire name of the type.
func (t MessageType) String() string {
	if int(t) < NumMessageTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("message_type(%d)", uint8(t))
}

// Valid reports whether t is one of the defined types.
func (t MessageType) Valid() bool {
	return int(t) < NumMessageTypes
}

// MarshalText lets MessageType serve as a JSON map key.
func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names MarshalText produces.
func (t *MessageType) UnmarshalText(text []byte) error {
	v, ok := ParseMessageType(string(text))
	if !ok {
		return fmt.Errorf("unknown message type %q", text)
	}
	*t = v
	return nil
}

// ParseMessageType maps a wire name back to its MessageType.
func ParseMessageType(name string) (MessageType, bool) {
	for i, n := range typeNames {
		if n == name {
			return MessageType(i), true
		}
	}
	return 0, false
}

// Broadcast is the recipient recorded on messages routed to subscribers.
const Broadcast = "broadcast"

// Priority bounds. Out-of-range priorities are clamped, never rejected.
const (
	MinPriority = 1
	MaxPriority = 5
)

// ClampPriority forces p into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// MessageID is assigned by the bus, monotonic and unique per bus.
type MessageID uint64

func (id MessageID) String() string {
	return fmt.Sprintf("msg_%06d", uint64(id))
}

// Payload is the structured key/value body of a message.
type Payload map[string]any

// Str returns the string stored at key.
func (p Payload) Str(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Float returns the numeric value at key as a float64.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the integral value at key.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Strings returns the string slice stored at key.
func (p Payload) Strings(key string) []string {
	v, _ := p[key].([]string)
	return v
}

// Message is one published event. Everything except Processed is fixed at
// publish time; Processed is flipped once by the bus after a handler succeeds.
type Message struct {
	ID        MessageID   `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"` // Agent ID or Broadcast
	Type      MessageType `json:"type"`
	Payload   Payload     `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	Priority  int         `json:"priority"` // 1 = low, 5 = high
	Processed bool        `json:"processed"`

	gen uint64 // history generation the message was published in
}

// IsBroadcast reports whether the message was routed to subscribers.
func (m Message) IsBroadcast() bool {
	return m.To == Broadcast
}

// Handler consumes one message for one agent. A non-nil error (or a panic)
// leaves the message unprocessed.
type Handler func(msg Message) error
