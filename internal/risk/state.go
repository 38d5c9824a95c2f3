package risk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"BasketPilot/internal/model"
)

// State is the persisted part of the risk manager.
type State struct {
	Positions      map[string]model.Position `json:"positions"`
	InitialBalance float64                   `json:"initial_balance"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// LoadState reads the risk state from a JSON file. Returns an empty state if
// the path is empty or the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	empty := &State{Positions: make(map[string]model.Position)}
	if filePath == "" {
		return empty, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Positions == nil {
		state.Positions = make(map[string]model.Position)
	}
	return &state, nil
}

// SaveState writes the risk state to a JSON file. An empty path is a no-op.
func SaveState(filePath string, state *State) error {
	if filePath == "" {
		return nil
	}
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}
