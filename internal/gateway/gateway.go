// Package gateway implements the Verification Gateway (spec.md §4.6): the
// sole writer of the Registry. Every tool that reaches PROVISIONAL or
// VERIFIED status passed through Submit; every rejection is appended to a
// structured audit trail before the caller ever sees the result, modeled on
// the teacher's internal/daemon audit-issue/audit-log shape
// (internal/daemon/audit.go) adapted from configuration auditing to
// tool-submission auditing.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/toolforge/internal/metrics"
	"github.com/example/toolforge/internal/registry"
	"github.com/example/toolforge/internal/verifier"
	"github.com/example/toolforge/pkg/domain"
)

// Gateway fronts the Registry. Synthesizer and Refiner hold only a Gateway
// reference — never a *registry.Registry directly — so the registry can
// never be mutated outside of a verified submission (spec.md §4.6: "the
// Gateway is the only writer").
type Gateway struct {
	reg      *registry.Registry
	verifier *verifier.Verifier
	logDir   string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	mu       sync.Mutex
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogDir overrides the directory that holds the audit and attempt logs.
func WithLogDir(dir string) Option {
	return func(g *Gateway) { g.logDir = dir }
}

// WithLogger sets the gateway's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithMetrics attaches a Prometheus collector set, overriding the
// process-wide default registered via metrics.Default().
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New constructs a Gateway bound to reg and v.
func New(reg *registry.Registry, v *verifier.Verifier, opts ...Option) *Gateway {
	g := &Gateway{
		reg:      reg,
		verifier: v,
		logDir:   "logs",
		logger:   slog.Default().With("component", "gateway"),
		metrics:  metrics.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SubmitRequest is the input to Submit (spec.md §4.6 submit).
type SubmitRequest struct {
	Candidate  verifier.Candidate
	Name       string
	ArgsSchema map[string]string
	PatchOf    string // non-empty when submitting a repair
	TaskID     string
	// SchemaTags carries the full structured lookup tags (category,
	// indicator, data_type, input_requirements) to persist via
	// Registry.UpdateSchema once the tool is registered (spec.md §4.7 step
	// 8). When zero-valued, only the candidate's category is recorded.
	SchemaTags domain.SchemaTags
}

// SubmitResult is the outcome of Submit.
type SubmitResult struct {
	Accepted bool
	Tool     *domain.Tool
	Report   verifier.Report
}

// Submit runs the candidate through the Verifier and, only on a full pass,
// registers it (spec.md §4.6). Every outcome — accepted or rejected — is
// appended to the attempt log; AST_SECURITY rejections are additionally
// appended to the security-violations log (spec.md §6.4).
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	cp, err := g.Checkpoint(ctx, map[string]any{
		"task_id":  req.TaskID,
		"name":     req.Name,
		"category": string(req.Candidate.Category),
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create checkpoint: %w", err)
	}

	report := g.verifier.Verify(ctx, req.Candidate)

	if report.ErrorKind == domain.ErrSecurity {
		if err := g.logSecurityViolation(req, report); err != nil {
			g.logger.Warn("failed to write security violation log", "error", err)
		}
	}

	if !report.Passed {
		if err := g.RollbackCheckpoint(ctx, cp); err != nil {
			g.logger.Warn("failed to mark checkpoint failed", "checkpoint_id", cp.CheckpointID, "error", err)
		}
		g.metrics.RecordSubmission(string(req.Candidate.Category), "rejected")
		if err := g.logAttempt(req, report, nil); err != nil {
			g.logger.Warn("failed to write attempt log", "error", err)
		}
		return SubmitResult{Accepted: false, Report: report}, nil
	}

	tool, err := g.reg.Register(ctx, registry.ToolData{
		Name:              req.Name,
		SourceText:        req.Candidate.Source,
		Category:          req.Candidate.Category,
		ArgsSchema:        req.ArgsSchema,
		Capabilities:      report.Capabilities,
		ContractID:        req.Candidate.ContractID,
		VerificationStage: report.FinalStage,
		PatchOf:           req.PatchOf,
	})
	if err != nil {
		if rbErr := g.RollbackCheckpoint(ctx, cp); rbErr != nil {
			g.logger.Warn("failed to mark checkpoint failed", "checkpoint_id", cp.CheckpointID, "error", rbErr)
		}
		return SubmitResult{}, fmt.Errorf("register verified tool: %w", err)
	}
	tags := req.SchemaTags
	if tags.Category == "" {
		tags.Category = req.Candidate.Category
	}
	if err := g.reg.UpdateSchema(ctx, tool.ID, tags); err != nil {
		g.logger.Warn("failed to update schema tags", "tool_id", tool.ID, "error", err)
	}
	if err := g.CompleteCheckpoint(ctx, cp); err != nil {
		g.logger.Warn("failed to mark checkpoint complete", "checkpoint_id", cp.CheckpointID, "error", err)
	}
	g.metrics.RecordSubmission(string(req.Candidate.Category), "registered")
	if err := g.logAttempt(req, report, tool); err != nil {
		g.logger.Warn("failed to write attempt log", "error", err)
	}

	return SubmitResult{Accepted: true, Tool: tool, Report: report}, nil
}

// VerifyOnly runs the pipeline without ever touching the Registry — the
// "verify_only" operation named in spec.md §4.6. The Refiner does not call
// it; each patch goes through Submit.
func (g *Gateway) VerifyOnly(ctx context.Context, candidate verifier.Candidate) verifier.Report {
	return g.verifier.Verify(ctx, candidate)
}

// Checkpoint records a rollback point before a risky multi-step submission
// sequence (spec.md §5 Checkpoint discipline), delegating storage to the
// Registry since the Gateway itself holds no persistent state beyond logs.
func (g *Gateway) Checkpoint(ctx context.Context, taskContext map[string]any) (*domain.Checkpoint, error) {
	cp := &domain.Checkpoint{
		CheckpointID: uuid.NewString(),
		CreatedAt:    time.Now(),
		Status:       domain.CheckpointPending,
		Context:      taskContext,
	}
	if err := g.reg.SaveCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	return cp, nil
}

// CompleteCheckpoint marks cp complete after its guarded work finishes
// without error.
func (g *Gateway) CompleteCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	cp.Status = domain.CheckpointComplete
	return g.reg.SaveCheckpoint(ctx, cp)
}

// RollbackCheckpoint marks cp failed; the registry itself is append-only so
// there is no data to physically undo — failed is a terminal marker a
// caller can filter on when replaying task history (spec.md §5).
func (g *Gateway) RollbackCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	cp.Status = domain.CheckpointFailed
	return g.reg.SaveCheckpoint(ctx, cp)
}

// RecordErrorReport persists an analyzed failure on the caller's behalf —
// the Refiner never holds a *registry.Registry directly (spec.md §4.6).
func (g *Gateway) RecordErrorReport(ctx context.Context, report *domain.ErrorReport) error {
	return g.reg.SaveErrorReport(ctx, report)
}

// RecordToolPatch persists a repair edge on the caller's behalf.
func (g *Gateway) RecordToolPatch(ctx context.Context, patch *domain.ToolPatch) error {
	return g.reg.SaveToolPatch(ctx, patch)
}

// PatchHistory returns prior repair attempts for baseToolID so the Refiner
// can avoid repeating a discarded approach.
func (g *Gateway) PatchHistory(ctx context.Context, baseToolID string) ([]*domain.ToolPatch, error) {
	return g.reg.PatchHistory(ctx, baseToolID)
}

// GetTool looks up a registered tool by ID, used by the Refiner to fetch
// the base tool it is repairing.
func (g *Gateway) GetTool(ctx context.Context, id string) (*domain.Tool, error) {
	return g.reg.GetByID(ctx, id)
}

// FindBySchema looks up a reusable verified tool by structured tags
// (spec.md §4.7 step 2 reuse-check).
func (g *Gateway) FindBySchema(ctx context.Context, category domain.Category, indicator, dataType string) (*domain.Tool, error) {
	return g.reg.FindBySchema(ctx, category, indicator, dataType)
}

// attemptOutcome is the outcome∈{REGISTERED,REJECTED} field of an attempt
// log line (spec.md §6.4).
type attemptOutcome string

const (
	outcomeRegistered attemptOutcome = "REGISTERED"
	outcomeRejected   attemptOutcome = "REJECTED"
)

// attemptRecord is one line of logs/attempts.jsonl, per spec.md §6.4:
// "{ts, task_id, category, outcome, stage_failed?, tool_id?, version?, message?}".
type attemptRecord struct {
	Timestamp   time.Time      `json:"ts"`
	TaskID      string         `json:"task_id"`
	Category    string         `json:"category"`
	Outcome     attemptOutcome `json:"outcome"`
	StageFailed string         `json:"stage_failed,omitempty"`
	ToolID      string         `json:"tool_id,omitempty"`
	Version     string         `json:"version,omitempty"`
	Message     string         `json:"message,omitempty"`
}

func (g *Gateway) logAttempt(req SubmitRequest, report verifier.Report, tool *domain.Tool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(g.logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(g.logDir, "attempts.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	rec := attemptRecord{
		Timestamp: time.Now(),
		TaskID:    req.TaskID,
		Category:  string(req.Candidate.Category),
		Message:   report.Reason,
	}
	if tool != nil {
		rec.Outcome = outcomeRegistered
		rec.ToolID = tool.ID
		rec.Version = tool.SemanticVersion
	} else {
		rec.Outcome = outcomeRejected
		rec.StageFailed = report.FinalStage.String()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func (g *Gateway) logSecurityViolation(req SubmitRequest, report verifier.Report) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(g.logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(g.logDir, "security_violations.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("%s | %s | %s\n", time.Now().Format(time.RFC3339), req.TaskID, report.Reason)
	_, err = f.WriteString(line)
	return err
}
