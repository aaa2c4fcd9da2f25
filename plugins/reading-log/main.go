// Package main provides a reading-log plugin.
// It appends each stabilized abacus value to a JSON-lines log file.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event      string          `json:"event"`
	Value      *int            `json:"value"`
	Digits     []int           `json:"digits"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// LogConfig defines the plugin configuration.
type LogConfig struct {
	Path string `json:"path"`
}

// entry is one appended log line.
type entry struct {
	Timestamp  string  `json:"timestamp"`
	Value      int     `json:"value"`
	Digits     []int   `json:"digits,omitempty"`
	Confidence float64 `json:"confidence"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != "reading" {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}
	if req.Value == nil {
		writeErrorResponse("reading event without a value")
		return
	}

	path, err := logPath(req.Config)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	if err := appendEntry(path, entry{
		Timestamp:  time.Now().Format(time.RFC3339),
		Value:      *req.Value,
		Digits:     req.Digits,
		Confidence: req.Confidence,
	}); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to append log entry: %v", err))
		return
	}

	writeSuccessResponse()
}

// logPath resolves the log file location from the config, defaulting to
// readings.jsonl in the user's home directory.
func logPath(config json.RawMessage) (string, error) {
	var cfg LogConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cfg.Path != "" {
		return cfg.Path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, "readings.jsonl"), nil
}

// appendEntry writes one JSON line to the log file.
func appendEntry(path string, e entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(e)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
