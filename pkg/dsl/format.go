package dsl

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the produced event format: a payload wrapped with its
// production time, a type tag, and an identifier. MapToFormat wraps and
// MapFromFormat unwraps; a round trip recovers the original payload
// exactly.
type Envelope struct {
	Payload interface{} `json:"payload"`
	Time    string      `json:"time"`
	Type    string      `json:"type"`
	ID      string      `json:"id"`
}

// MapToFormat wraps every event in an Envelope of the given type. The
// identifier is derived from the payload by getID when supplied, otherwise
// a fresh unique identifier is generated per event.
func (p *Pipeline) MapToFormat(eventType string, getID func(payload interface{}) string) *Pipeline {
	return p.Map(func(v interface{}) (interface{}, error) {
		var id string
		if getID != nil {
			id = getID(v)
		} else {
			id = uuid.NewString()
		}
		return Envelope{
			Payload: v,
			Time:    time.Now().UTC().Format(time.RFC3339Nano),
			Type:    eventType,
			ID:      id,
		}, nil
	})
}

// MapFromFormat unwraps Envelope events back to their payload. Events that
// are not envelopes (including map-shaped envelopes produced by a JSON
// decode) pass through unchanged unless they carry a "payload" field.
func (p *Pipeline) MapFromFormat() *Pipeline {
	return p.Map(func(v interface{}) (interface{}, error) {
		switch e := v.(type) {
		case Envelope:
			return e.Payload, nil
		case *Envelope:
			return e.Payload, nil
		case map[string]interface{}:
			if payload, ok := e["payload"]; ok {
				return payload, nil
			}
		}
		return v, nil
	})
}
