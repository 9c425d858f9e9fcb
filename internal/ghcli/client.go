// Package ghcli wraps the GitHub CLI (`gh`) as the remote registration
// client. The reconciler only needs "run this api invocation, give me the
// raw output"; all parsing happens in the caller.
package ghcli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Runner executes a remote platform operation and reports success or failure.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
	CheckAuth(ctx context.Context) bool
}

// CLI shells out to the gh binary with a bounded per-call timeout.
type CLI struct {
	binary  string
	timeout time.Duration
	log     *slog.Logger
}

func New(log *slog.Logger, timeout time.Duration) *CLI {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CLI{binary: "gh", timeout: timeout, log: log}
}

// Run executes gh with the given arguments and returns trimmed stdout.
// A non-zero exit surfaces as an error carrying trimmed stderr.
func (c *CLI) Run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	c.log.Debug("gh invocation", "args", strings.Join(args, " "), "duration_ms", time.Since(start).Milliseconds(), "ok", err == nil)
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("gh %s: %s", firstArg(args), detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CheckAuth reports whether gh has valid stored credentials.
func (c *CLI) CheckAuth(ctx context.Context) bool {
	_, err := c.Run(ctx, "auth", "status")
	return err == nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
