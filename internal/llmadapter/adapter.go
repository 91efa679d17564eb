// Package llmadapter implements the LanguageModel external collaborator
// (spec.md §4.3, §6.1): category-specific prompt assembly, response
// parsing into a reasoning trace plus a code block, and a strict
// error-as-data transport contract — a transport failure is surfaced as a
// structured GenerateResponse, never papered over with hallucinated code
// (spec.md §4.3 Error contract).
package llmadapter

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/example/toolforge/pkg/domain"
)

// Adapter implements domain.LanguageModel against an OpenAI-compatible
// chat-completions endpoint — spec.md §6.1 names the concrete LLM client as
// "DashScope/OpenAI-compatible"; go-openai's client works unmodified against
// any OpenAI-compatible base URL (set via Config.BaseURL).
type Adapter struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	logger      *slog.Logger
	useMock     bool
}

// Config configures an Adapter.
type Config struct {
	APIKey  string
	BaseURL string // empty = public OpenAI endpoint
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// New constructs an Adapter. Whether it is a mock is decided here, once, at
// construction time — never per call (spec.md §4.3: "this condition is
// evaluated at adapter construction, not per call").
func New(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "llmadapter")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("no API credential configured, using mock language model")
		return &Adapter{model: cfg.Model, timeout: timeout, logger: logger, useMock: true}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Adapter{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}
}

var _ domain.LanguageModel = (*Adapter)(nil)

// Generate assembles a category-specific prompt, calls the model, and
// parses its response (spec.md §4.3 generate).
func (a *Adapter) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	if a.useMock {
		return mockGenerate(req), nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	system := buildSystemPrompt(req.Category, req.Contract, req.ErrorContext)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: req.Task},
		},
	})
	if err != nil {
		// Transport failures are structured errors, never substituted code
		// (spec.md §4.3 Error contract).
		return domain.GenerateResponse{
			TextResponse: fmt.Sprintf("LLM API Error: %v", err),
		}, nil
	}
	if len(resp.Choices) == 0 {
		return domain.GenerateResponse{
			TextResponse: "LLM API Error: empty response",
		}, nil
	}

	raw := resp.Choices[0].Message.Content
	return parseResponse(raw), nil
}

var (
	thinkRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	codeRe  = regexp.MustCompile("(?s)```(?:python)?\\s*\\n(.*?)```")
)

// parseResponse extracts the reasoning trace from <think>...</think> (optional)
// and the first fenced python block as code_payload; remaining non-fenced
// text becomes text_response (spec.md §4.3 Parsing).
func parseResponse(raw string) domain.GenerateResponse {
	resp := domain.GenerateResponse{Raw: raw}

	if m := thinkRe.FindStringSubmatch(raw); m != nil {
		resp.ReasoningTrace = strings.TrimSpace(m[1])
	}

	remaining := thinkRe.ReplaceAllString(raw, "")

	if m := codeRe.FindStringSubmatch(remaining); m != nil {
		code := m[1]
		resp.CodePayload = &code
		remaining = codeRe.ReplaceAllString(remaining, "")
	}

	resp.TextResponse = strings.TrimSpace(remaining)
	return resp
}
