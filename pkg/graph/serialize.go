package graph

import (
	"encoding/json"
	"fmt"

	"graphcore/pkg/graphstate"
)

// encodeState serializes a State for storage in a checkpoint's blob.
func encodeState(s graphstate.State) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("graph: encode state: %w", err)
	}
	return b, nil
}

// decodeState is encodeState's inverse, used when loading a checkpoint.
func decodeState(b []byte) (graphstate.State, error) {
	var s graphstate.State
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return graphstate.State{}, fmt.Errorf("graph: decode state: %w", err)
	}
	return s, nil
}

// DecodeCheckpoint exposes decodeState to read-only inspection tools
// (cmd/graphctl) that read a checkpoint's blob directly off
// checkpoint.Store.List without driving a run through it.
func DecodeCheckpoint(b []byte) (graphstate.State, error) {
	return decodeState(b)
}
