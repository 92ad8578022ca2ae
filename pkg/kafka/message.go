package kafka

import (
	"encoding/json"
	"time"
)

// ChecklistEvent is what fern produces to the checklist events topic.
// Downstream consumers (notifications, reporting) key off EventType.
type ChecklistEvent struct {
	EventType string `json:"event_type"`
	TenantID  string `json:"tenant_id"`

	InstanceID string `json:"instance_id"`
	UnitID     string `json:"unit_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`

	CleaningID       *string `json:"cleaning_id,omitempty"`
	RepairID         *string `json:"repair_id,omitempty"`
	ParentInstanceID *string `json:"parent_instance_id,omitempty"`

	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// ToJSON serializes the event to JSON bytes
func (e *ChecklistEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Header is a Kafka message header key-value pair
type Header struct {
	Key   string
	Value []byte
}

// MessageHeaders contains Kafka message headers for efficient filtering
type MessageHeaders struct {
	TenantID    string
	EventType   string
	UnitID      string
	TraceParent string
}

// ToKafkaHeaders converts MessageHeaders to a slice of header key-value pairs
func (h *MessageHeaders) ToKafkaHeaders() []Header {
	headers := make([]Header, 0, 4)

	if h.TenantID != "" {
		headers = append(headers, Header{Key: "tenant_id", Value: []byte(h.TenantID)})
	}
	if h.EventType != "" {
		headers = append(headers, Header{Key: "event_type", Value: []byte(h.EventType)})
	}
	if h.UnitID != "" {
		headers = append(headers, Header{Key: "unit_id", Value: []byte(h.UnitID)})
	}
	if h.TraceParent != "" {
		headers = append(headers, Header{Key: "traceparent", Value: []byte(h.TraceParent)})
	}

	return headers
}
