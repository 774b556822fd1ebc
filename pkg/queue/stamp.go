package queue

import "encoding/json"

// Stamp is metadata attached to a task envelope, separate from the payload.
// Stamps are append-only; when several stamps share a Type, the last one wins.
type Stamp struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewStamp marshals v into a stamp of the given type.
func NewStamp(stampType string, v any) (Stamp, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Type: stampType, Payload: payload}, nil
}

// AddStamp appends s to the envelope.
func (t *Task) AddStamp(s Stamp) {
	t.Stamps = append(t.Stamps, s)
}

// LastStamp returns the most recently added stamp of the given type.
func (t *Task) LastStamp(stampType string) (Stamp, bool) {
	for i := len(t.Stamps) - 1; i >= 0; i-- {
		if t.Stamps[i].Type == stampType {
			return t.Stamps[i], true
		}
	}
	return Stamp{}, false
}

// HasStamp reports whether any stamp of the given type is present.
func (t *Task) HasStamp(stampType string) bool {
	_, ok := t.LastStamp(stampType)
	return ok
}
