package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/MrCodeEU/FaceGate/internal/access"
)

// Message is the wire form of an access event on the event bus
type Message struct {
	ID            string    `json:"id" msgpack:"id"`
	DoorID        string    `json:"door_id" msgpack:"door_id"`
	SessionID     string    `json:"session_id" msgpack:"session_id"`
	Timestamp     time.Time `json:"timestamp" msgpack:"timestamp"`
	Outcome       string    `json:"outcome" msgpack:"outcome"`
	Label         string    `json:"label,omitempty" msgpack:"label,omitempty"`
	Confidence    float64   `json:"confidence" msgpack:"confidence"`
	LivenessReal  bool      `json:"liveness_real" msgpack:"liveness_real"`
	LivenessScore float64   `json:"liveness_score" msgpack:"liveness_score"`
	Action        string    `json:"action" msgpack:"action"`
	Actuation     string    `json:"actuation" msgpack:"actuation"`
	DoorState     string    `json:"door_state" msgpack:"door_state"`
	Region        []int     `json:"region,omitempty" msgpack:"region,omitempty"` // x1, y1, x2, y2
	Error         string    `json:"error,omitempty" msgpack:"error,omitempty"`
}

// NewMessage converts an event
func NewMessage(ev access.Event, doorID, sessionID string) Message {
	m := Message{
		ID:            ev.ID,
		DoorID:        doorID,
		SessionID:     sessionID,
		Timestamp:     ev.Timestamp.UTC(),
		Outcome:       ev.Outcome.String(),
		Label:         ev.Identity.Label,
		Confidence:    ev.Identity.Confidence,
		LivenessReal:  ev.Liveness.Real,
		LivenessScore: ev.Liveness.Score,
		Action:        ev.Action.String(),
		Actuation:     ev.Actuation.String(),
		DoorState:     ev.Door.String(),
		Error:         ev.Error,
	}
	if !ev.Region.Empty() {
		r := ev.Region
		m.Region = []int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
	}
	return m
}

// Encode serializes the message as "json" or "msgpack"
func (m Message) Encode(encoding string) ([]byte, error) {
	switch encoding {
	case "", "json":
		return json.Marshal(m)
	case "msgpack":
		return msgpack.Marshal(m)
	default:
		return nil, fmt.Errorf("unsupported event encoding: %s", encoding)
	}
}

// DecodeMessage parses a payload produced by Encode
func DecodeMessage(encoding string, payload []byte) (Message, error) {
	var m Message
	var err error
	switch encoding {
	case "", "json":
		err = json.Unmarshal(payload, &m)
	case "msgpack":
		err = msgpack.Unmarshal(payload, &m)
	default:
		err = fmt.Errorf("unsupported event encoding: %s", encoding)
	}
	return m, err
}
