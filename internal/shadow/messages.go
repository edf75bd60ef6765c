package shadow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Delta maps attribute names to the desired value the cloud wants applied.
type Delta map[string]any

// DeltaDocument is the payload of the update/delta topic.
type DeltaDocument struct {
	Version     int64  `json:"version"`
	Timestamp   int64  `json:"timestamp"`
	State       Delta  `json:"state"`
	ClientToken string `json:"clientToken,omitempty"`
}

// UpdateDocument is published on the update topic.
type UpdateDocument struct {
	State       UpdateState `json:"state"`
	ClientToken string      `json:"clientToken"`
}

// UpdateState carries the reported and desired sections of an update.
type UpdateState struct {
	Reported map[string]any `json:"reported"`
	Desired  map[string]any `json:"desired"`
}

// GetDocument is the payload of the get/accepted topic.
type GetDocument struct {
	State struct {
		Desired  map[string]any `json:"desired,omitempty"`
		Reported map[string]any `json:"reported,omitempty"`
		Delta    Delta          `json:"delta,omitempty"`
	} `json:"state"`
	Version     int64  `json:"version"`
	Timestamp   int64  `json:"timestamp"`
	ClientToken string `json:"clientToken,omitempty"`
}

// ErrorDocument is the payload of the update/rejected and get/rejected topics.
type ErrorDocument struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"`
	ClientToken string `json:"clientToken,omitempty"`
}

// getRequest is published on the get topic.
type getRequest struct {
	ClientToken string `json:"clientToken"`
}

// ErrMalformedDelta is returned for a delta payload that is not a JSON
// object with a state section.
var ErrMalformedDelta = errors.New("shadow: malformed delta")

// ParseDelta decodes an update/delta payload.
func ParseDelta(payload []byte) (DeltaDocument, error) {
	var doc DeltaDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return DeltaDocument{}, fmt.Errorf("%w: %w", ErrMalformedDelta, err)
	}
	if doc.State == nil {
		return DeltaDocument{}, fmt.Errorf("%w: missing state", ErrMalformedDelta)
	}
	return doc, nil
}

// NewUpdate builds the update that sets both reported and desired for one
// attribute to value. A nil value clears both.
func NewUpdate(name string, value any, token string) UpdateDocument {
	return UpdateDocument{
		State: UpdateState{
			Reported: map[string]any{name: value},
			Desired:  map[string]any{name: value},
		},
		ClientToken: token,
	}
}
