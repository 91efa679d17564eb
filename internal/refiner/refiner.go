// Package refiner implements the Refiner (spec.md §4.8–§4.9): it classifies
// a Verifier rejection into an ErrorKind, builds a patch prompt carrying the
// prior attempt history, asks the LanguageModel for a fix, and resubmits
// through the Gateway — bounded by max_attempts and exponential backoff
// between tries, modeled on the teacher's internal/agent retry loop
// (attempt counter plus internal/backoff.Policy) adapted from chat-turn
// retries to tool-repair retries.
package refiner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/toolforge/internal/backoff"
	"github.com/example/toolforge/internal/gateway"
	"github.com/example/toolforge/internal/metrics"
	"github.com/example/toolforge/internal/verifier"
	"github.com/example/toolforge/pkg/domain"
)

// ModuleReplacementGuide maps a banned or unavailable module to the
// allowed replacement the patch prompt should steer the model toward
// (spec.md §4.9: "hint at the allowed substitute, never just say no").
var ModuleReplacementGuide = map[string]string{
	"os":         "use the provided arguments; the sandbox has no filesystem access",
	"sys":        "remove the import; stdout/stderr are captured by the runner, not by sys",
	"subprocess": "there is no substitute — do not shell out from a tool",
	"requests":   "fetch tools receive data through the injected DataProvider, not direct HTTP",
	"urllib":     "fetch tools receive data through the injected DataProvider, not direct HTTP",
	"pickle":     "use json for any intermediate serialization",
}

// classificationPatterns maps a substring seen in a Python traceback to the
// ErrorKind it represents (spec.md §4.8 step 1 classify). Order matters:
// first match wins, most specific first.
var classificationPatterns = []struct {
	substr string
	kind   domain.ErrorKind
}{
	{"SyntaxError", domain.ErrSyntax},
	{"IndentationError", domain.ErrSyntax},
	{"ModuleNotFoundError", domain.ErrImport},
	{"ImportError", domain.ErrImport},
	{"NameError", domain.ErrExec},
	{"TypeError", domain.ErrExec},
	{"KeyError", domain.ErrExec},
	{"IndexError", domain.ErrExec},
	{"ValueError", domain.ErrExec},
	{"ZeroDivisionError", domain.ErrExec},
	{"AttributeError", domain.ErrExec},
	{"AssertionError", domain.ErrAssert},
	{"TimeoutExpired", domain.ErrTimeout},
}

// Classify maps a Verifier report to a domain.ErrorKind. A report's own
// ErrorKind is authoritative when set (AST_SECURITY already classified
// itself as SECURITY); otherwise the traceback text is pattern-matched.
func Classify(report verifier.Report) domain.ErrorKind {
	if report.ErrorKind != "" {
		return report.ErrorKind
	}
	for _, p := range classificationPatterns {
		if strings.Contains(report.Reason, p.substr) {
			return p.kind
		}
	}
	return domain.ErrUnknown
}

// Generator is the subset of domain.LanguageModel the Refiner needs.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error)
}

// Refiner repairs a rejected candidate through bounded, backed-off retries.
type Refiner struct {
	gw      *gateway.Gateway
	model   Generator
	policy  backoff.Policy
	sleep   func(time.Duration)
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Refiner.
type Option func(*Refiner)

// WithLogger sets the refiner's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Refiner) { r.logger = l }
}

// WithMetrics attaches a Prometheus collector set, overriding the
// process-wide default registered via metrics.Default().
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Refiner) { r.metrics = m }
}

// New constructs a Refiner.
func New(gw *gateway.Gateway, model Generator, opts ...Option) *Refiner {
	r := &Refiner{
		gw:      gw,
		model:   model,
		policy:  backoff.RefinerPolicy(),
		sleep:   time.Sleep,
		logger:  slog.Default().With("component", "refiner"),
		metrics: metrics.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request is the input to Refine: a rejected candidate, its failing report,
// and the base tool ID to attach patch history to (empty for a fresh
// synthesis that never reached the registry).
type Request struct {
	Candidate verifier.Candidate
	Report    verifier.Report
	// TaskText is the original natural-language task the candidate was
	// synthesized for — distinct from Candidate.Source, the broken code
	// being patched. This is what gets sent to the model as Task; the
	// broken source is context within the error prompt, not the ask.
	TaskText   string
	BaseToolID string
	Name       string
	ArgsSchema map[string]string
	SchemaTags domain.SchemaTags
	TaskID     string
	MaxAttempts int
	// TextResponse/ReasoningTrace are the prose the LanguageModel returned
	// alongside the rejected candidate. root_cause prefers TextResponse,
	// then ReasoningTrace, falling back to the verifier's own failure
	// message (spec.md §4.8 step "extract root_cause").
	TextResponse   string
	ReasoningTrace string
}

// Result is the outcome of Refine.
type Result struct {
	Accepted bool
	Tool     *domain.Tool
	Attempts int
	LastReport verifier.Report
}

// Refine repeatedly asks the model for a fix and resubmits through the
// Gateway, stopping as soon as one attempt is accepted, the attempt budget
// is exhausted, or the failure is classified UNFIXABLE (spec.md §4.8:
// "SECURITY findings are never retried").
func (r *Refiner) Refine(ctx context.Context, req Request) (Result, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	kind := Classify(req.Report)
	if domain.UnfixableErrorKinds[kind] {
		r.logger.Warn("refusing to retry unfixable error", "kind", kind, "task_id", req.TaskID)
		r.metrics.RecordRefinerAttempt("unfixable")
		return Result{Accepted: false, Attempts: 0, LastReport: req.Report}, nil
	}

	lastReport := req.Report
	modelText, modelTrace := req.TextResponse, req.ReasoningTrace
	var history []*domain.ToolPatch
	if req.BaseToolID != "" {
		h, err := r.gw.PatchHistory(ctx, req.BaseToolID)
		if err != nil {
			r.logger.Warn("failed to load patch history", "error", err)
		} else {
			history = h
		}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		errorReport := &domain.ErrorReport{
			ErrorReportID: uuid.NewString(),
			ErrorKind:     kind,
			RootCause:     rootCause(modelText, modelTrace, lastReport),
			CreatedAt:     time.Now(),
		}
		if err := r.gw.RecordErrorReport(ctx, errorReport); err != nil {
			r.logger.Warn("failed to record error report", "error", err)
		}

		prompt := buildPatchPrompt(req.Candidate, lastReport, kind, history)
		resp, err := r.model.Generate(ctx, domain.GenerateRequest{
			Task:         req.TaskText,
			Category:     req.Candidate.Category,
			ErrorContext: prompt,
		})
		if err != nil || resp.CodePayload == nil {
			approach := "model transport failure"
			if err == nil {
				approach = "model returned no code payload"
			}
			failureReason := approach
			r.recordPatch(ctx, errorReport.ErrorReportID, req.BaseToolID, approach, &failureReason)
			if attempt < maxAttempts {
				r.sleep(backoff.Compute(r.policy, attempt))
			}
			continue
		}

		modelText, modelTrace = resp.TextResponse, resp.ReasoningTrace

		candidate := req.Candidate
		candidate.Source = *resp.CodePayload

		submission, err := r.gw.Submit(ctx, gateway.SubmitRequest{
			Candidate:  candidate,
			Name:       req.Name,
			ArgsSchema: req.ArgsSchema,
			PatchOf:    req.BaseToolID,
			TaskID:     req.TaskID,
			SchemaTags: req.SchemaTags,
		})
		if err != nil {
			return Result{}, fmt.Errorf("submit refined candidate: %w", err)
		}

		if submission.Accepted {
			r.recordPatch(ctx, errorReport.ErrorReportID, req.BaseToolID, "model patch", nil)
			if submission.Tool != nil {
				r.finalizePatch(ctx, errorReport.ErrorReportID, req.BaseToolID, submission.Tool.ID)
			}
			r.metrics.RecordRefinerAttempt("accepted")
			return Result{Accepted: true, Tool: submission.Tool, Attempts: attempt, LastReport: submission.Report}, nil
		}

		lastReport = submission.Report
		kind = Classify(lastReport)

		failureReason := lastReport.Reason
		r.recordPatch(ctx, errorReport.ErrorReportID, req.BaseToolID, "model patch", &failureReason)

		if domain.UnfixableErrorKinds[kind] {
			r.logger.Warn("patch introduced unfixable error, stopping", "kind", kind, "task_id", req.TaskID)
			r.metrics.RecordRefinerAttempt("unfixable")
			return Result{Accepted: false, Attempts: attempt, LastReport: lastReport}, nil
		}

		if attempt < maxAttempts {
			r.sleep(backoff.Compute(r.policy, attempt))
		}
	}

	r.metrics.RecordRefinerAttempt("exhausted")
	return Result{Accepted: false, Attempts: maxAttempts, LastReport: lastReport}, nil
}

func (r *Refiner) recordPatch(ctx context.Context, errorReportID, baseToolID, approach string, failureReason *string) {
	patch := &domain.ToolPatch{
		PatchID:       uuid.NewString(),
		ErrorReportID: errorReportID,
		BaseToolID:    baseToolID,
		Approach:      approach,
		FailureReason: failureReason,
	}
	if err := r.gw.RecordToolPatch(ctx, patch); err != nil {
		r.logger.Warn("failed to record tool patch", "error", err)
	}
}

func (r *Refiner) finalizePatch(ctx context.Context, errorReportID, baseToolID, resultingToolID string) {
	patch := &domain.ToolPatch{
		PatchID:         uuid.NewString(),
		ErrorReportID:   errorReportID,
		BaseToolID:      baseToolID,
		ResultingToolID: resultingToolID,
		Approach:        "model patch accepted",
	}
	if err := r.gw.RecordToolPatch(ctx, patch); err != nil {
		r.logger.Warn("failed to record accepted tool patch", "error", err)
	}
}

// rootCause extracts the most informative explanation available, preferring
// the model's own text_response, then its reasoning_trace, falling back to
// the verifier's raw failure message when the model said nothing usable
// (spec.md §4.8: "root_cause ... text extracted from model or synthesized
// locally"), truncated to 2000 chars.
func rootCause(textResponse, reasoningTrace string, report verifier.Report) string {
	if t := strings.TrimSpace(textResponse); t != "" {
		return truncate(t, 2000)
	}
	if t := strings.TrimSpace(reasoningTrace); t != "" {
		return truncate(t, 2000)
	}
	reason := strings.TrimSpace(report.Reason)
	if reason == "" {
		return "unknown failure"
	}
	return truncate(reason, 2000)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var tracebackLineRe = regexp.MustCompile(`(?m)^\S+(Error|Exception):.*$`)

// buildPatchPrompt assembles the error_context string passed to the model:
// the failing stage, the classified error kind, the offending module hint
// (if any), the traceback tail, and a condensed prior-attempt history so the
// model does not repeat a discarded approach (spec.md §4.9).
func buildPatchPrompt(candidate verifier.Candidate, report verifier.Report, kind domain.ErrorKind, history []*domain.ToolPatch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stage %s rejected the previous attempt with error kind %s.\n", report.FinalStage, kind)
	fmt.Fprintf(&sb, "Original code:\n```python\n%s\n```\n", candidate.Source)

	if lines := tracebackLineRe.FindAllString(report.Reason, -1); len(lines) > 0 {
		fmt.Fprintf(&sb, "Traceback tail: %s\n", lines[len(lines)-1])
	} else if report.Reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", truncate(report.Reason, 500))
	}

	for module, hint := range ModuleReplacementGuide {
		if strings.Contains(report.Reason, module) {
			fmt.Fprintf(&sb, "Hint: %s\n", hint)
		}
	}

	if len(history) > 0 {
		sb.WriteString("Prior attempts on this tool:\n")
		for _, p := range history {
			status := "pending"
			if p.FailureReason != nil {
				status = "failed: " + truncate(*p.FailureReason, 200)
			} else if p.ResultingToolID != "" {
				status = "accepted"
			}
			fmt.Fprintf(&sb, "- %s (%s)\n", p.Approach, status)
		}
		sb.WriteString("Do not repeat an approach already marked failed above.\n")
	}

	return sb.String()
}
