package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// Executor runs reading-event plugins as short-lived subprocesses: the
// request goes to the plugin's stdin as one JSON document and the response
// is read back from its stdout.
type Executor struct {
	defaultTimeoutMs int
}

// NewExecutor creates an Executor. timeoutMs bounds each plugin run unless
// the plugin's manifest declares its own timeoutMs.
func NewExecutor(timeoutMs int) *Executor {
	return &Executor{defaultTimeoutMs: timeoutMs}
}

// timeoutFor returns the effective timeout for one run of p. A plugin that
// does slow work, like speech synthesis, can raise its own budget in the
// manifest without slowing every other plugin down.
func (e *Executor) timeoutFor(p *Plugin) int {
	if p.Manifest.TimeoutMs > 0 {
		return p.Manifest.TimeoutMs
	}
	return e.defaultTimeoutMs
}

// Execute delivers one event to a plugin and returns its response. Plugins
// only ever see events they declared in their manifest; a mismatched event
// is an error at the call site, not something to silently swallow.
func (e *Executor) Execute(p *Plugin, req *Request) (*Response, error) {
	if req.Event != "" && !p.HandlesEvent(req.Event) {
		return nil, fmt.Errorf("plugin %s does not handle event %q", p.Manifest.Name, req.Event)
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	timeoutMs := e.timeoutFor(p)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Executable)
	cmd.Dir = p.Path
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("plugin %s timeout after %dms", p.Manifest.Name, timeoutMs)
	}
	if runErr != nil {
		if msg := stderr.String(); msg != "" {
			return nil, fmt.Errorf("plugin %s failed: %w, stderr: %s", p.Manifest.Name, runErr, msg)
		}
		return nil, fmt.Errorf("plugin %s failed: %w", p.Manifest.Name, runErr)
	}

	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse plugin response: %w, stdout: %s", err, stdout.String())
	}
	return &response, nil
}
