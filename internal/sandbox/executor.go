package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/internal/metrics"
	"github.com/example/toolforge/pkg/domain"
)

// Executor enforces capability rules statically, then runs candidate code in
// an isolated subprocess (spec.md §4.1). Each invocation gets its own temp
// directory; Executor holds no shared mutable state and is safe for
// concurrent reentrant use — mirroring the teacher's
// internal/tools/sandbox.Executor pool/workspace pattern, simplified to a
// single os/exec child per call since multi-tenant container isolation is a
// non-goal (spec.md §1).
type Executor struct {
	rules     *constraints.Rules
	pythonBin string
	workRoot  string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithPythonBinary overrides the python3 interpreter path.
func WithPythonBinary(bin string) Option {
	return func(e *Executor) { e.pythonBin = bin }
}

// WithWorkRoot overrides the root directory under which per-invocation temp
// directories are created.
func WithWorkRoot(root string) Option {
	return func(e *Executor) { e.workRoot = root }
}

// WithLogger sets the executor's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics attaches a Prometheus collector set, overriding the
// process-wide default registered via metrics.Default().
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an Executor bound to a capability ruleset.
func NewExecutor(rules *constraints.Rules, opts ...Option) *Executor {
	e := &Executor{
		rules:     rules,
		pythonBin: "python3",
		logger:    slog.Default().With("component", "sandbox.executor"),
		metrics:   metrics.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StaticCheck runs the AST-equivalent capability guard against source
// (spec.md §4.1 static_check). Failures here are classified UNFIXABLE by the
// Refiner (spec.md §4.1, §7) and are never retried.
func (e *Executor) StaticCheck(source string, category domain.Category) CheckResult {
	return StaticCheck(source, category, e.rules)
}

// ExecuteInput is the request to run a tool's entry function in the sandbox.
type ExecuteInput struct {
	Source    string
	EntryFunc string
	Args      map[string]any
	TaskID    string
	ToolID    string
	Timeout   time.Duration
	// Category labels the execution-metrics sample; callers that don't know
	// a category (ad hoc tests) may leave it empty.
	Category domain.Category
}

// Execute writes source to a temp file, writes args as JSON, spawns a child
// process running the trusted runner, and returns a full ExecutionTrace
// (spec.md §4.1 execute, §3 ExecutionTrace).
func (e *Executor) Execute(ctx context.Context, in ExecuteInput) (*domain.ExecutionTrace, error) {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = e.rules.Limits.DefaultTimeout
	}
	if timeout > e.rules.Limits.MaxTimeout && e.rules.Limits.MaxTimeout > 0 {
		timeout = e.rules.Limits.MaxTimeout
	}

	workspace, err := os.MkdirTemp(e.workRoot, "toolforge-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("create sandbox workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	modulePath := filepath.Join(workspace, "tool.py")
	argsPath := filepath.Join(workspace, "args.json")
	resultPath := filepath.Join(workspace, "result.json")
	runnerPath := filepath.Join(workspace, "runner.py")

	if err := os.WriteFile(modulePath, []byte(in.Source), 0o644); err != nil {
		return nil, fmt.Errorf("write tool source: %w", err)
	}
	argsJSON, err := json.Marshal(in.Args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}
	if err := os.WriteFile(argsPath, argsJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write args: %w", err)
	}
	if err := os.WriteFile(runnerPath, []byte(runnerTemplate), 0o644); err != nil {
		return nil, fmt.Errorf("write runner: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(execCtx, e.pythonBin, runnerPath, modulePath, argsPath, in.EntryFunc, resultPath)
	cmd.Dir = workspace
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// At the deadline, kill the whole process group while the leader's pid
	// still names it.
	cmd.Cancel = func() error { return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) }

	var stdout, stderr bufferedOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := time.Since(start)

	exitCode := domain.ExitOK
	timedOut := execCtx.Err() == context.DeadlineExceeded

	if timedOut {
		killProcessGroup(cmd)
		exitCode = domain.ExitTimeout
	} else if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = domain.ExitError
		}
	}

	outputRepr := extractOutputRepr(resultPath)

	outcome := "ok"
	switch {
	case timedOut:
		outcome = "timeout"
	case exitCode != domain.ExitOK:
		outcome = "error"
	}
	e.metrics.RecordExecution(string(in.Category), outcome, elapsed)

	trace := &domain.ExecutionTrace{
		TraceID:         uuid.NewString(),
		TaskID:          in.TaskID,
		ToolID:          in.ToolID,
		InputArgs:       in.Args,
		OutputRepr:      truncate(outputRepr, 1000),
		ExitCode:        exitCode,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExecutionTimeMs: elapsed.Milliseconds(),
		CreatedAt:       time.Now(),
	}
	return trace, nil
}

// ExtractResult parses the trace's structured output channel into a Go value.
func (e *Executor) ExtractResult(resultJSON string) (any, bool) {
	if resultJSON == "" {
		return nil, false
	}
	var payload struct {
		OK    bool `json:"ok"`
		Value any  `json:"value"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &payload); err != nil {
		return nil, false
	}
	if !payload.OK {
		return nil, false
	}
	return payload.Value, true
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func extractOutputRepr(resultPath string) string {
	data, err := os.ReadFile(resultPath)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type bufferedOutput struct {
	data []byte
}

func (b *bufferedOutput) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *bufferedOutput) String() string {
	return string(b.data)
}
