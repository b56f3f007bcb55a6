package wifi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatePath is where the watchdog records the fallback AP outcome so the
// settings page and the CLI can report it after the fact.
var StatePath = "config/wifi_ap_state.json"

type State struct {
	Status string         `json:"status"`
	TS     int64          `json:"ts"`
	Result map[string]any `json:"result"`
}

func WriteState(status string, result map[string]any) {
	if result == nil {
		result = map[string]any{}
	}
	data, err := json.MarshalIndent(State{Status: status, TS: time.Now().Unix(), Result: result}, "", "  ")
	if err != nil {
		return
	}
	os.MkdirAll(filepath.Dir(StatePath), 0o755)
	os.WriteFile(StatePath, data, 0o644)
}

func ReadState() State {
	raw, err := os.ReadFile(StatePath)
	if err != nil {
		return State{Status: "idle", Result: map[string]any{}}
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{Status: "unknown", Result: map[string]any{}}
	}
	return st
}
