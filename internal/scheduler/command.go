package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const DefaultTimeout = 60 * time.Second

// Request is written to the scheduler command's stdin.
type Request struct {
	Production string       `json:"production"`
	Tasks      []Projection `json:"tasks"`
}

// Response is read from the scheduler command's stdout.
type Response struct {
	Tasks []Result `json:"tasks"`
}

// CommandScheduler runs an external program speaking JSON over stdin and
// stdout. A non-zero exit fails the run with the program's stderr.
type CommandScheduler struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func (c *CommandScheduler) Schedule(ctx context.Context, production string, tasks []Projection) ([]Result, error) {
	if c.Command == "" {
		return nil, errors.New("no scheduler command configured")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input, err := json.Marshal(Request{Production: production, Tasks: tasks})
	if err != nil {
		return nil, fmt.Errorf("marshal scheduler request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.Command, c.Args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("scheduler timed out after %v", timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("scheduler %s: %w: %s", c.Command, err, msg)
		}
		return nil, fmt.Errorf("scheduler %s: %w", c.Command, err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode scheduler output: %w", err)
	}
	return resp.Tasks, nil
}
