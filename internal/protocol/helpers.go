package protocol

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewEvent creates an Event with a time-ordered ID. The payload is marshaled
// to JSON from the provided value.
func NewEvent(eventType EventType, agentID string, payload interface{}, ts time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	return &Event{
		EventID:   NewEventID(ts),
		Type:      eventType,
		AgentID:   agentID,
		Payload:   raw,
		Timestamp: ts.UTC(),
	}, nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewEventID returns a ULID for ts. IDs generated within the same
// millisecond increase monotonically.
func NewEventID(ts time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), entropy).String()
}

// ParsePayload unmarshals the event payload into the target type T.
func ParsePayload[T any](ev *Event) (*T, error) {
	var result T
	if err := json.Unmarshal(ev.Payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling payload as %T: %w", result, err)
	}
	return &result, nil
}
