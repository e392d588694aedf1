package relay

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one of the five event types the relay recognizes.
// Payload contents are owned by the CRUD layer; the relay never validates them.
type Kind string

const (
	// KindTaskStatusUpdated carries a task identifier plus its new status.
	KindTaskStatusUpdated Kind = "task-status-updated"
	// KindTaskCreated carries the full representation of a created task.
	KindTaskCreated Kind = "task-created"
	// KindTaskDeleted carries the identifier of a deleted task.
	KindTaskDeleted Kind = "task-deleted"
	// KindTaskUpdatedData carries the full representation of an updated task.
	KindTaskUpdatedData Kind = "task-updated-data"
	// KindJoinAdmin is a control message: it updates admin group membership
	// and is never rebroadcast.
	KindJoinAdmin Kind = "join-admin"
)

// DataKinds lists the four rebroadcast event kinds in a stable order.
func DataKinds() []Kind {
	return []Kind{KindTaskStatusUpdated, KindTaskCreated, KindTaskDeleted, KindTaskUpdatedData}
}

// Valid reports whether k is one of the five recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTaskStatusUpdated, KindTaskCreated, KindTaskDeleted, KindTaskUpdatedData, KindJoinAdmin:
		return true
	}
	return false
}

// Control reports whether k updates relay state instead of being rebroadcast.
func (k Kind) Control() bool {
	return k == KindJoinAdmin
}

// Envelope is the wire frame exchanged with clients: an event name and an
// opaque payload slot. json.RawMessage keeps the payload byte-for-byte
// identical between sender and recipients.
type Envelope struct {
	Event   Kind            `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UnknownKindError is returned when a frame names an event the relay does not recognize.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown event kind %q", string(e.Kind))
}

// DecodeEnvelope parses a received frame. Frames that are not valid JSON or
// that name an unrecognized event have nowhere to dispatch and are reported
// as errors; payload contents are left untouched.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Event.Valid() {
		return Envelope{}, &UnknownKindError{Kind: env.Event}
	}
	return env, nil
}

// EncodeEnvelope marshals an envelope for sending. The payload bytes are
// embedded verbatim.
func EncodeEnvelope(kind Kind, payload json.RawMessage) ([]byte, error) {
	frame, err := json.Marshal(Envelope{Event: kind, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return frame, nil
}
