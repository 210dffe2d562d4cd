package fleetstore

import (
	"encoding/json"
	"fmt"
)

// Stored value type tags. Every value carries one so readers in other
// languages can decode the payloads without out-of-band knowledge.
const (
	typeTripPlan = "fleetsim.TripPlan"
	typeVehicle  = "fleetsim.Vehicle"
)

//envelope wraps a stored value with its type tag
type envelope struct {
	Type string          `json:"@type"`
	Data json.RawMessage `json:"data"`
}

//encodeValue wraps value in a typed envelope
func encodeValue(typeName string, value interface{}) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", typeName, err)
	}
	wrapped, err := json.Marshal(envelope{Type: typeName, Data: data})
	if err != nil {
		return "", fmt.Errorf("encoding %s envelope: %w", typeName, err)
	}
	return string(wrapped), nil
}

//decodeValue unwraps a typed envelope into out, rejecting mismatched types
func decodeValue(typeName string, stored string, out interface{}) error {
	var wrapped envelope
	if err := json.Unmarshal([]byte(stored), &wrapped); err != nil {
		return fmt.Errorf("decoding %s envelope: %w", typeName, err)
	}
	if wrapped.Type != typeName {
		return fmt.Errorf("stored value has type %q, expected %q", wrapped.Type, typeName)
	}
	if err := json.Unmarshal(wrapped.Data, out); err != nil {
		return fmt.Errorf("decoding %s: %w", typeName, err)
	}
	return nil
}
