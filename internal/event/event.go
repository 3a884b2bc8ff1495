// Package event defines the normalized queue entry format shared by the
// intake and worker layers.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is a structured postback or quick-reply payload: an explicit
// routing instruction that skips NLU classification entirely.
type Payload struct {
	Action string            `json:"action"`
	Intent string            `json:"intent,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// Coordinates is a location attachment.
type Coordinates struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Event is one normalized inbound platform event as stored in the durable
// queue. Exactly one of Payload, Coordinates, or Text is expected to be
// meaningful; the worker classifies in that order.
type Event struct {
	SenderID    string          `json:"sender_id"`
	Text        string          `json:"text,omitempty"`
	Payload     *Payload        `json:"payload,omitempty"`
	Coordinates *Coordinates    `json:"coordinates,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	ReceivedAt  int64           `json:"received_at"`
}

// New creates an event for the given sender stamped with the current time.
func New(senderID string) *Event {
	return &Event{
		SenderID:   senderID,
		ReceivedAt: time.Now().Unix(),
	}
}

// Encode serializes the event for the durable queue.
func (e *Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

// Decode deserializes a queue entry.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.SenderID == "" {
		return nil, fmt.Errorf("decode event: missing sender")
	}
	return &e, nil
}
