// Package synthesizer implements the Synthesizer (spec.md §4.7): it infers
// a tool's category, schema tags and contract from a task description,
// checks the Registry for an existing tool under those tags, and — only
// when no reuse candidate exists — asks the LanguageModel to generate a new
// tool and submits it through the Gateway, falling back to the Refiner when
// the first submission fails. Grounded on the teacher's intent-routing
// shape in internal/agent (keyword/heuristic classification feeding a
// generation step) adapted from conversational intent to tool-category
// intent.
package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/toolforge/internal/contracts"
	"github.com/example/toolforge/internal/gateway"
	"github.com/example/toolforge/internal/refiner"
	"github.com/example/toolforge/internal/schemaextract"
	"github.com/example/toolforge/internal/verifier"
	"github.com/example/toolforge/pkg/domain"
)

// Generator is the subset of domain.LanguageModel the Synthesizer needs.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error)
}

// Synthesizer drives the generate-verify-refine loop for a single task.
type Synthesizer struct {
	gw      *gateway.Gateway
	model   Generator
	refiner *refiner.Refiner
	logger  *slog.Logger

	maxAttempts int
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the synthesizer's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// WithMaxAttempts overrides the Refiner attempt budget (spec.md §4.7: "bounded by max_attempts=3").
func WithMaxAttempts(n int) Option {
	return func(s *Synthesizer) { s.maxAttempts = n }
}

// New constructs a Synthesizer.
func New(gw *gateway.Gateway, model Generator, rf *refiner.Refiner, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		gw:          gw,
		model:       model,
		refiner:     rf,
		logger:      slog.Default().With("component", "synthesizer"),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is the input to Synthesize: a natural-language description of the
// tool that's needed.
type Request struct {
	Task   string
	TaskID string
	// EntryFunc overrides the inferred entry function name; when empty it
	// is derived from the inferred contract ID.
	EntryFunc string
}

// Result is the outcome of Synthesize.
type Result struct {
	Reused   bool
	Accepted bool
	Tool     *domain.Tool
	Report   verifier.Report
}

// Synthesize runs the full generate-verify-refine loop (spec.md §4.7):
//  1. infer category from keywords
//  2. infer schema tags and check the Registry for a reusable verified tool
//  3. infer a contract ID from indicator keywords
//  4. ask the model to generate, submit through the Gateway
//  5. on rejection, hand off to the Refiner bounded by max_attempts
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Result, error) {
	category := InferCategory(req.Task)
	tags := InferSchemaTags(req.Task, category)

	if existing, err := s.gw.FindBySchema(ctx, category, tags.Indicator, tags.DataType); err != nil {
		s.logger.Warn("schema reuse lookup failed", "error", err)
	} else if existing != nil {
		s.logger.Info("reusing verified tool", "tool_id", existing.ID, "name", existing.Name)
		return Result{Reused: true, Accepted: true, Tool: existing}, nil
	}

	contractID := InferContractID(req.Task)
	contract, hasContract := contracts.Get(contractID)

	entryFunc := req.EntryFunc
	if entryFunc == "" {
		entryFunc = contractID
		if entryFunc == "" {
			entryFunc = fmt.Sprintf("%s_tool", category)
		}
	}

	var contractPtr *domain.Contract
	if hasContract {
		contractPtr = &contract
	}

	resp, err := s.model.Generate(ctx, domain.GenerateRequest{
		Task:     req.Task,
		Category: category,
		Contract: contractPtr,
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate candidate: %w", err)
	}
	if resp.CodePayload == nil {
		return Result{Accepted: false, Report: verifier.Report{
			Passed:    false,
			ErrorKind: domain.ErrModelTransport,
			Reason:    resp.TextResponse,
		}}, nil
	}

	candidate := verifier.Candidate{
		Source:     *resp.CodePayload,
		EntryFunc:  entryFunc,
		Category:   category,
		ContractID: contractID,
		TaskID:     req.TaskID,
	}

	if hasContract {
		tags.InputRequirements = contract.RequiredInputs
	}

	submission, err := s.gw.Submit(ctx, gateway.SubmitRequest{
		Candidate:  candidate,
		Name:       entryFunc,
		TaskID:     req.TaskID,
		SchemaTags: tags,
	})
	if err != nil {
		return Result{}, fmt.Errorf("submit candidate: %w", err)
	}
	if submission.Accepted {
		return Result{Accepted: true, Tool: submission.Tool, Report: submission.Report}, nil
	}

	if s.refiner == nil {
		return Result{Accepted: false, Report: submission.Report}, nil
	}

	refined, err := s.refiner.Refine(ctx, refiner.Request{
		Candidate:      candidate,
		Report:         submission.Report,
		TaskText:       req.Task,
		Name:           entryFunc,
		SchemaTags:     tags,
		TaskID:         req.TaskID,
		MaxAttempts:    s.maxAttempts,
		TextResponse:   resp.TextResponse,
		ReasoningTrace: resp.ReasoningTrace,
	})
	if err != nil {
		return Result{}, fmt.Errorf("refine candidate: %w", err)
	}
	return Result{Accepted: refined.Accepted, Tool: refined.Tool, Report: refined.LastReport}, nil
}

// categoryKeywords maps a keyword seen in task text to the category it
// implies (spec.md §4.7 step 1). Fetch and composite keywords are checked
// before the calculation default.
var categoryKeywords = map[string]domain.Category{
	"fetch":       domain.CategoryFetch,
	"historical":  domain.CategoryFetch,
	"quote":       domain.CategoryFetch,
	"price data":  domain.CategoryFetch,
	"financials":  domain.CategoryFetch,
	"list of":     domain.CategoryFetch,
	"signal":      domain.CategoryComposite,
	"recommend":   domain.CategoryComposite,
	"should i":    domain.CategoryComposite,
	"portfolio":   domain.CategoryComposite,
	"divergence":  domain.CategoryComposite,
	"conditional": domain.CategoryComposite,
}

// InferCategory applies the keyword heuristic, defaulting to CALCULATION
// when nothing matches (spec.md §4.7 step 1).
func InferCategory(task string) domain.Category {
	lower := strings.ToLower(task)
	for kw, cat := range categoryKeywords {
		if strings.Contains(lower, kw) {
			return cat
		}
	}
	return domain.CategoryCalculation
}

// InferSchemaTags builds the structured lookup tags the Registry's
// FindBySchema uses for reuse (spec.md §4.7 step 2, §3 SchemaTags),
// delegating to schemaextract so the Synthesizer and the TaskExecutor tag
// tools the same way.
func InferSchemaTags(task string, category domain.Category) domain.SchemaTags {
	ext := schemaextract.Extract(task, category)
	return domain.SchemaTags{Category: category, Indicator: ext.Indicator, DataType: ext.DataType}
}

// InferContractID picks a contract from contracts.IndicatorKeywords by
// longest-keyword-match, so "moving average" beats the bare "ma" it contains
// (spec.md §4.7 step 3).
func InferContractID(task string) string {
	lower := strings.ToLower(task)
	best := ""
	bestLen := 0
	for kw, contractID := range contracts.IndicatorKeywords {
		if strings.Contains(lower, kw) && len(kw) > bestLen {
			best = contractID
			bestLen = len(kw)
		}
	}
	return best
}
