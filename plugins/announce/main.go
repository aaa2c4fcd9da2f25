// Package main provides an announce plugin for macOS.
// It speaks newly stabilized abacus values aloud via the say command.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
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

// AnnounceConfig defines the plugin configuration.
type AnnounceConfig struct {
	Voice string `json:"voice"`
}

func main() {
	// Read request from stdin
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	switch req.Event {
	case "reading":
		if req.Value == nil {
			writeErrorResponse("reading event without a value")
			return
		}
		if err := announce(*req.Value, req.Config); err != nil {
			writeErrorResponse(fmt.Sprintf("announce failed: %v", err))
			return
		}
	default:
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	writeSuccessResponse()
}

// announce speaks the value using the macOS say command.
func announce(value int, config json.RawMessage) error {
	var cfg AnnounceConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}

	args := []string{}
	if cfg.Voice != "" {
		args = append(args, "-v", cfg.Voice)
	}
	args = append(args, fmt.Sprintf("%d", value))

	cmd := exec.Command("say", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
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
