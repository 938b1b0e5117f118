// Package settings persists generation settings in the shape the browser
// client stored them: {"state":{"settings":{...}},"version":0}.
package settings

import (
	"encoding/json"
	"fmt"

	"agentverse/internal/domain"
)

const storageVersion = 0

type persistedState struct {
	Settings json.RawMessage `json:"settings"`
}

type persisted struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

func encode(s domain.GenerationSettings) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	data, err := json.Marshal(persisted{State: persistedState{Settings: raw}, Version: storageVersion})
	if err != nil {
		return "", fmt.Errorf("marshal settings envelope: %w", err)
	}
	return string(data), nil
}

// decode fills fields missing from the stored value with defaults.
func decode(value string, defaults domain.GenerationSettings) (domain.GenerationSettings, error) {
	var p persisted
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return defaults, fmt.Errorf("unmarshal settings envelope: %w", err)
	}
	s := defaults
	if len(p.State.Settings) == 0 || string(p.State.Settings) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(p.State.Settings, &s); err != nil {
		return defaults, fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, nil
}
