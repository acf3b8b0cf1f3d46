package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/models"
)

// CLIInvoker shells out to the configured backend CLIs (e.g. the Claude and
// Gemini command-line tools). The prompt is written to stdin; stdout is the
// response and is streamed to the caller's sink line by line; stderr is
// captured as the thinking trace when the CLI emits one.
type CLIInvoker struct {
	backends       *config.BackendsConfig
	defaultTimeout time.Duration
	thinkingBudget int
}

// NewCLIInvoker creates a CLI-backed invoker.
func NewCLIInvoker(backends *config.BackendsConfig, defaultTimeout time.Duration, thinkingBudget int) *CLIInvoker {
	return &CLIInvoker{
		backends:       backends,
		defaultTimeout: defaultTimeout,
		thinkingBudget: thinkingBudget,
	}
}

// Invoke implements Invoker.
func (c *CLIInvoker) Invoke(ctx context.Context, backend models.InvocationBackend, role, prompt string, opts Options, sink StreamSink) (*Result, error) {
	cfg, err := c.backendConfig(backend)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	invCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = cfg.Model
	}

	args := append([]string(nil), cfg.Args...)
	if model != "" {
		args = append(args, "--model", model)
	}
	budget := opts.ThinkingBudgetTokens
	if budget <= 0 {
		budget = c.thinkingBudget
	}
	if budget > 0 {
		args = append(args, "--thinking-budget", strconv.Itoa(budget))
	}

	log := slog.With("backend", string(backend), "role", role, "command", cfg.Command)
	log.Debug("Invoking LLM backend", "timeout", timeout)

	start := time.Now()
	output, thinking, err := runCommand(invCtx, cfg.Command, args, prompt, sink)
	duration := time.Since(start)

	if err != nil {
		return nil, c.classify(ctx, invCtx, err, output)
	}

	result := &Result{
		Output:        output,
		Thinking:      thinking,
		Duration:      duration,
		TokenEstimate: estimateTokens(prompt, output),
	}

	if opts.Structured {
		raw, perr := ExtractJSON(output)
		if perr != nil {
			return nil, perr
		}
		result.Structured = raw
	}

	log.Debug("LLM backend returned", "duration", duration, "output_bytes", len(output))
	return result, nil
}

// backendConfig resolves the CLI configuration for a backend kind.
func (c *CLIInvoker) backendConfig(backend models.InvocationBackend) (*config.BackendConfig, error) {
	switch backend {
	case models.BackendPrimary:
		return c.backends.Primary, nil
	case models.BackendChallenger:
		return c.backends.Challenger, nil
	default:
		return nil, NewError(ErrKindUnavailable, fmt.Errorf("unknown backend kind %q", backend))
	}
}

// classify maps process failures onto the invocation error taxonomy. The
// caller's context wins over the invocation context: external cancellation
// is canceled, not timeout.
func (c *CLIInvoker) classify(callerCtx, invCtx context.Context, err error, partial string) error {
	switch {
	case callerCtx.Err() != nil && errors.Is(callerCtx.Err(), context.Canceled):
		return &Error{Kind: ErrKindCanceled, Raw: partial, Err: callerCtx.Err()}
	case invCtx.Err() != nil && errors.Is(invCtx.Err(), context.DeadlineExceeded):
		return &Error{Kind: ErrKindTimeout, Raw: partial, Err: invCtx.Err()}
	default:
		return &Error{Kind: ErrKindUnavailable, Raw: partial, Err: err}
	}
}

// runCommand executes the CLI, feeding the prompt on stdin and streaming
// stdout to sink.
func runCommand(ctx context.Context, command string, args []string, prompt string, sink StreamSink) (output, thinking string, err error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = bytes.NewReader([]byte(prompt))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", err
	}

	var out bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			out.WriteString(line)
			out.WriteByte('\n')
			if sink != nil {
				sink(Chunk{Content: line + "\n"})
			}
		}
		// Scanner errors surface through cmd.Wait or the partial output.
		_, _ = io.Copy(io.Discard, stdout)
	}()

	// Drain stdout fully before Wait closes the pipe.
	wg.Wait()
	waitErr := cmd.Wait()

	return out.String(), stderr.String(), waitErr
}
