package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	scriptPath := filepath.Join(dir, name)
	if err := os.WriteFile(scriptPath, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return scriptPath
}

func intPtr(v int) *int { return &v }

func TestExecutor_Execute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()

	// Create a shell script that echoes a success JSON response
	scriptContent := `#!/bin/sh
cat <<'RESPONSE'
{"success":true,"data":{"message":"hello world"}}
RESPONSE
`
	scriptPath := writeScript(t, tmpDir, "test-plugin.sh", scriptContent)

	plugin := &Plugin{
		Manifest: Manifest{
			Name:       "test-plugin",
			Version:    "1.0.0",
			Executable: "test-plugin.sh",
			Events:     []string{"reading"},
		},
		Path:       tmpDir,
		Executable: scriptPath,
	}

	request := &Request{
		Event:      "reading",
		Value:      intPtr(42),
		Digits:     []int{0, 0, 4, 2},
		Confidence: 0.92,
		Config:     json.RawMessage(`{"key":"value"}`),
	}

	executor := NewExecutor(5000) // 5 second timeout
	response, err := executor.Execute(plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}
	if response.Error != "" {
		t.Errorf("expected empty error, got %q", response.Error)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "hello world" {
		t.Errorf("expected message 'hello world', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()

	// Create a shell script that reads stdin and echoes it back in the response
	scriptContent := `#!/bin/sh
INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`
	scriptPath := writeScript(t, tmpDir, "echo-plugin.sh", scriptContent)

	plugin := &Plugin{
		Manifest: Manifest{
			Name:       "echo-plugin",
			Version:    "1.0.0",
			Executable: "echo-plugin.sh",
			Events:     []string{"reading"},
		},
		Path:       tmpDir,
		Executable: scriptPath,
	}

	request := &Request{
		Event:      "reading",
		Value:      intPtr(123),
		Confidence: 0.8,
		Config:     json.RawMessage(`{"setting":"enabled"}`),
	}

	executor := NewExecutor(5000)
	response, err := executor.Execute(plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}

	// Verify the request was received
	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	received, ok := data["received"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'received' to be an object, got %T", data["received"])
	}

	if received["event"] != "reading" {
		t.Errorf("expected event 'reading', got %v", received["event"])
	}
	if received["value"] != float64(123) {
		t.Errorf("expected value 123, got %v", received["value"])
	}
}

func TestExecutor_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()

	// Create a shell script that sleeps longer than the timeout
	scriptContent := `#!/bin/sh
sleep 10
echo '{"success":true}'
`
	scriptPath := writeScript(t, tmpDir, "slow-plugin.sh", scriptContent)

	plugin := &Plugin{
		Manifest: Manifest{
			Name:       "slow-plugin",
			Version:    "1.0.0",
			Executable: "slow-plugin.sh",
			Events:     []string{"reading"},
		},
		Path:       tmpDir,
		Executable: scriptPath,
	}

	request := &Request{
		Event: "reading",
	}

	// Create executor with a very short timeout (100ms)
	executor := NewExecutor(100)
	_, err := executor.Execute(plugin, request)

	// Should return a timeout error
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}

	if !strings.Contains(err.Error(), "timeout") && !strings.Contains(err.Error(), "killed") && !strings.Contains(err.Error(), "context deadline exceeded") {
		t.Errorf("expected timeout-related error, got: %v", err)
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()

	// Create a shell script that returns an error response
	scriptContent := `#!/bin/sh
echo '{"success":false,"error":"something went wrong"}'
`
	scriptPath := writeScript(t, tmpDir, "error-plugin.sh", scriptContent)

	plugin := &Plugin{
		Manifest: Manifest{
			Name:       "error-plugin",
			Version:    "1.0.0",
			Executable: "error-plugin.sh",
			Events:     []string{"reading"},
		},
		Path:       tmpDir,
		Executable: scriptPath,
	}

	request := &Request{
		Event: "reading",
	}

	executor := NewExecutor(5000)
	response, err := executor.Execute(plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if response.Success {
		t.Errorf("expected success=false, got true")
	}
	if response.Error != "something went wrong" {
		t.Errorf("expected error 'something went wrong', got %q", response.Error)
	}
}

func TestExecutor_ManifestTimeoutOverride(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()

	scriptContent := `#!/bin/sh
sleep 10
echo '{"success":true}'
`
	scriptPath := writeScript(t, tmpDir, "slow-plugin.sh", scriptContent)

	plugin := &Plugin{
		Manifest: Manifest{
			Name:       "slow-plugin",
			Version:    "1.0.0",
			Executable: "slow-plugin.sh",
			Events:     []string{"reading"},
			TimeoutMs:  100,
		},
		Path:       tmpDir,
		Executable: scriptPath,
	}

	// The manifest budget wins over the generous executor default
	executor := NewExecutor(60000)

	start := time.Now()
	_, err := executor.Execute(plugin, &Request{Event: "reading"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "100ms") {
		t.Errorf("expected the manifest timeout in the error, got: %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("plugin ran for %v, manifest timeout was not applied", elapsed)
	}
}

func TestExecutor_Execute_UndeclaredEvent(t *testing.T) {
	plugin := &Plugin{
		Manifest: Manifest{
			Name:       "calibrated-only",
			Version:    "1.0.0",
			Executable: "plugin.sh",
			Events:     []string{"calibrated"},
		},
	}

	executor := NewExecutor(5000)
	_, err := executor.Execute(plugin, &Request{Event: "reading"})
	if err == nil {
		t.Fatal("expected error for undeclared event, got nil")
	}
	if !strings.Contains(err.Error(), "reading") {
		t.Errorf("expected the event name in the error, got: %v", err)
	}
}
