// Package hooks dispatches metadata and entity notifications to listeners
// that may veto them, then publishes accepted notifications on the event bus.
package hooks

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command hook timeouts.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second
)

// Result holds the output of one command hook run.
type Result struct {
	Output string
	Err    error
}

// Execute runs command through "sh -c" with env overlaid on the process
// environment. timeoutSec is clamped to (0, MaxTimeout]; zero means
// DefaultTimeout. Output is stdout, or stderr when stdout is empty.
func Execute(ctx context.Context, command string, timeoutSec int, cwd string, env map[string]string) Result {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timeout = min(timeout, MaxTimeout)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command) //nolint:gosec // commands come from the operator's policy file
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of sh may hold the pipes open after sh is killed.
	cmd.WaitDelay = time.Second

	if cwd != "" {
		if info, err := os.Stat(cwd); err == nil && info.IsDir() {
			cmd.Dir = cwd
		}
	}

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if out == "" {
		out = strings.TrimSpace(stderr.String())
	}
	return Result{Output: out, Err: err}
}
