package domain

import (
	"context"
	"time"
)

// LanguageModel is the external collaborator abstracting the concrete LLM
// client (spec.md §6.1). Implementations must treat transport failures as
// structured errors, never as hallucinated code.
type LanguageModel interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// GenerateRequest is the input to LanguageModel.Generate.
type GenerateRequest struct {
	Task         string
	Category     Category
	Contract     *Contract
	ErrorContext string
}

// GenerateResponse is the parsed output of a model call (spec.md §6.1).
type GenerateResponse struct {
	ReasoningTrace string
	CodePayload    *string
	TextResponse   string
	Raw            string
}

// OHLCVRow is one row of open/high/low/close/volume data.
type OHLCVRow struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is a point-in-time price snapshot.
type Quote struct {
	Price     float64
	Timestamp time.Time
	Extra     map[string]any
}

// DataProvider is the external collaborator abstracting the concrete
// market-data client (spec.md §6.2), backed by a deterministic
// record-replay cache.
type DataProvider interface {
	GetHistorical(ctx context.Context, symbol string, start, end time.Time) ([]OHLCVRow, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetFinancialInfo(ctx context.Context, symbol string) (map[string]any, error)
	GetMultiHistorical(ctx context.Context, symbols []string, start, end time.Time) (map[string][]OHLCVRow, error)
}

// TaskStatus is the orchestrator-level outcome of a task (spec.md §7).
type TaskStatus string

const (
	TaskOK    TaskStatus = "ok"
	TaskFail  TaskStatus = "fail"
	TaskError TaskStatus = "error"
)

// TaskResult is the structured, user-visible outcome of running a task.
type TaskResult struct {
	Status    TaskStatus `json:"status"`
	Value     any        `json:"value,omitempty"`
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Message   string     `json:"message,omitempty"`
}
