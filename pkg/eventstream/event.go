package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/streamrelay/pkg/merge"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessageAssembled is emitted after a relayed chat stream has
	// been folded into one message.
	EventTypeMessageAssembled = "streamrelay.message.assembled"
)

// MessageAssembledEvent is a transport-neutral event payload for an
// assembled chat message.
type MessageAssembledEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Source        EventSource   `json:"source"`
	Stream        StreamMeta    `json:"stream"`
	Message       merge.Message `json:"message"`
}

// EventSource identifies where the message was relayed.
type EventSource struct {
	Route     string `json:"route"`
	SessionID string `json:"session_id"`
	Upstream  string `json:"upstream,omitempty"`
}

// StreamMeta captures stream lifecycle metadata for the event.
type StreamMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Fragments   int       `json:"fragments"`
	Malformed   int       `json:"malformed,omitempty"`
	Outcome     string    `json:"outcome"`
}

// NewMessageAssembledEvent builds a v1 event for msg with a fresh event ID.
func NewMessageAssembledEvent(source EventSource, stream StreamMeta, msg merge.Message) *MessageAssembledEvent {
	return &MessageAssembledEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMessageAssembled,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Stream:        stream,
		Message:       msg,
	}
}
