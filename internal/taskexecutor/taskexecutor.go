// Package taskexecutor implements the TaskExecutor (spec.md §4.9, C10): it
// parses a free-text task into a symbol, date range and parameter set,
// looks the tool up in the Registry (via the Gateway), fetches OHLCV data
// through the DataProvider when the matched tool is a pure calculation
// (which never fetches for itself), and invokes the sandbox Executor. A
// schema miss falls through to the Synthesizer. Grounded on the teacher's
// command-routing dispatcher shape (internal/agent's parse-then-dispatch
// loop), adapted from chat commands to financial-query parsing.
package taskexecutor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/example/toolforge/internal/contracts"
	"github.com/example/toolforge/internal/gateway"
	"github.com/example/toolforge/internal/sandbox"
	"github.com/example/toolforge/internal/schemaextract"
	"github.com/example/toolforge/internal/synthesizer"
	"github.com/example/toolforge/pkg/domain"
)

// IndexNames maps an explicit index name to its mapped ticker symbol
// (spec.md §4.9 symbol priority (a)).
var IndexNames = map[string]string{
	"s&p 500":   "^GSPC",
	"s&p500":    "^GSPC",
	"dow jones": "^DJI",
	"dow":       "^DJI",
	"nasdaq":    "^IXIC",
	"russell 2000": "^RUT",
}

// TickerTable is the known ticker table, ETFs included (spec.md §4.9 symbol
// priority (b)).
var TickerTable = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOG": true, "GOOGL": true, "AMZN": true,
	"TSLA": true, "NVDA": true, "META": true, "NFLX": true, "AMD": true,
	"SPY": true, "QQQ": true, "DIA": true, "IWM": true, "VOO": true,
}

// SymbolExclusions is the closed set of common English words a bare
// uppercase-run regex must not misread as a ticker (spec.md §4.9 symbol
// priority (c)).
var SymbolExclusions = map[string]bool{
	"GET": true, "SET": true, "NOW": true, "FOR": true, "AND": true,
	"THE": true, "ARE": true, "WAS": true, "NOT": true, "BUT": true,
	"ALL": true, "CAN": true, "HAS": true, "HAD": true, "MAX": true,
	"MIN": true, "Q1": true, "Q2": true, "Q3": true, "Q4": true,
}

// tickerRe matches a word-bounded run of 1-5 uppercase letters — the word
// boundary is what keeps "DOW" inside "drawdown" from ever matching (S6):
// lowercase "drawdown" simply never satisfies \b[A-Z]{1,5}\b.
var tickerRe = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

// ExtractSymbol implements the three-tier symbol priority of spec.md §4.9.
func ExtractSymbol(task string) (string, bool) {
	lower := strings.ToLower(task)
	for name, symbol := range IndexNames {
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`).MatchString(lower) {
			return symbol, true
		}
	}
	for _, m := range tickerRe.FindAllString(task, -1) {
		if TickerTable[m] {
			return m, true
		}
	}
	for _, m := range tickerRe.FindAllString(task, -1) {
		if !SymbolExclusions[m] {
			return m, true
		}
	}
	return "", false
}

var dateRangeRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*(?:to|-|through|–)\s*(\d{4}-\d{2}-\d{2})`)

// DefaultStart and DefaultEnd bound the task executor's default analysis
// window when the task text names no explicit range (spec.md §4.9).
var (
	DefaultStart = mustParseDate("2023-01-01")
	DefaultEnd   = mustParseDate("2023-12-31")
)

func mustParseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// ExtractDateRange parses an explicit date range, defaulting to
// 2023-01-01..2023-12-31 when none is present (spec.md §4.9).
func ExtractDateRange(task string) (time.Time, time.Time) {
	if m := dateRangeRe.FindStringSubmatch(task); m != nil {
		start, errStart := time.Parse("2006-01-02", m[1])
		end, errEnd := time.Parse("2006-01-02", m[2])
		if errStart == nil && errEnd == nil {
			return start, end
		}
	}
	return DefaultStart, DefaultEnd
}

var (
	latestCloseRe  = regexp.MustCompile(`(?i)latest close|current close|most recent close`)
	highestCloseRe = regexp.MustCompile(`(?i)highest close|max(?:imum)? close`)
	lowestCloseRe  = regexp.MustCompile(`(?i)lowest close|min(?:imum)? close`)
)

// TaskExecutor orchestrates a single task end to end.
type TaskExecutor struct {
	gw       *gateway.Gateway
	executor *sandbox.Executor
	provider domain.DataProvider
	synth    *synthesizer.Synthesizer
}

// New constructs a TaskExecutor.
func New(gw *gateway.Gateway, executor *sandbox.Executor, provider domain.DataProvider, synth *synthesizer.Synthesizer) *TaskExecutor {
	return &TaskExecutor{gw: gw, executor: executor, provider: provider, synth: synth}
}

// Run executes a single free-text task (spec.md §4.9).
func (t *TaskExecutor) Run(ctx context.Context, taskID, task string) domain.TaskResult {
	symbol, haveSymbol := ExtractSymbol(task)

	if result, handled := t.tryDirectExtraction(ctx, task, symbol, haveSymbol); handled {
		return result
	}

	category := synthesizer.InferCategory(task)
	extraction := schemaextract.Extract(task, category)

	existing, err := t.gw.FindBySchema(ctx, category, extraction.Indicator, extraction.DataType)
	if err != nil {
		return domain.TaskResult{Status: domain.TaskError, Message: err.Error()}
	}

	contractID := synthesizer.InferContractID(task)
	contract, hasContract := contracts.Get(contractID)

	if category == domain.CategoryFetch && !hasContract {
		return domain.TaskResult{
			Status:    domain.TaskError,
			ErrorKind: domain.ErrProviderUnsupported,
			Message:   "task does not match any known fetch contract; no data provider operation can answer it",
		}
	}

	if existing != nil {
		args, err := t.buildArgs(ctx, existing.ContractID, symbol, haveSymbol, task, extraction)
		if err != nil {
			return domain.TaskResult{Status: domain.TaskError, ErrorKind: domain.ErrProviderUnsupported, Message: err.Error()}
		}
		trace, err := t.executor.Execute(ctx, sandbox.ExecuteInput{
			Source:    existing.SourceText,
			EntryFunc: entryFuncFor(existing),
			Args:      args,
			TaskID:    taskID,
			ToolID:    existing.ID,
			Category:  existing.SchemaTags.Category,
		})
		if err != nil {
			return domain.TaskResult{Status: domain.TaskError, Message: err.Error()}
		}
		if trace.ExitCode != domain.ExitOK {
			return domain.TaskResult{Status: domain.TaskFail, Message: trace.Stderr}
		}
		value, ok := t.executor.ExtractResult(trace.OutputRepr)
		if !ok {
			return domain.TaskResult{Status: domain.TaskFail, Message: "tool output could not be decoded"}
		}
		return domain.TaskResult{Status: domain.TaskOK, Value: value}
	}

	if t.synth == nil {
		return domain.TaskResult{
			Status:    domain.TaskError,
			ErrorKind: domain.ErrProviderUnsupported,
			Message:   "no matching tool and no synthesizer configured",
		}
	}

	synthResult, err := t.synth.Synthesize(ctx, synthesizer.Request{Task: task, TaskID: taskID})
	if err != nil {
		return domain.TaskResult{Status: domain.TaskError, Message: err.Error()}
	}
	if !synthResult.Accepted {
		return domain.TaskResult{
			Status:    domain.TaskFail,
			ErrorKind: synthResult.Report.ErrorKind,
			Message:   synthResult.Report.Reason,
		}
	}

	args, err := t.buildArgs(ctx, synthResult.Tool.ContractID, symbol, haveSymbol, task, extraction)
	if err != nil {
		return domain.TaskResult{Status: domain.TaskError, ErrorKind: domain.ErrProviderUnsupported, Message: err.Error()}
	}
	trace, err := t.executor.Execute(ctx, sandbox.ExecuteInput{
		Source:    synthResult.Tool.SourceText,
		EntryFunc: entryFuncFor(synthResult.Tool),
		Args:      args,
		TaskID:    taskID,
		ToolID:    synthResult.Tool.ID,
		Category:  synthResult.Tool.SchemaTags.Category,
	})
	if err != nil {
		return domain.TaskResult{Status: domain.TaskError, Message: err.Error()}
	}
	if trace.ExitCode != domain.ExitOK {
		return domain.TaskResult{Status: domain.TaskFail, Message: trace.Stderr}
	}
	value, ok := t.executor.ExtractResult(trace.OutputRepr)
	if !ok {
		return domain.TaskResult{Status: domain.TaskFail, Message: "tool output could not be decoded"}
	}
	return domain.TaskResult{Status: domain.TaskOK, Value: value}
}

// tryDirectExtraction handles the no-tool-needed patterns of spec.md §4.9
// (S2): latest/highest/lowest close, evaluated inline from cached OHLCV.
func (t *TaskExecutor) tryDirectExtraction(ctx context.Context, task, symbol string, haveSymbol bool) (domain.TaskResult, bool) {
	var picker func([]domain.OHLCVRow) float64
	switch {
	case latestCloseRe.MatchString(task):
		picker = func(rows []domain.OHLCVRow) float64 { return rows[len(rows)-1].Close }
	case highestCloseRe.MatchString(task):
		picker = func(rows []domain.OHLCVRow) float64 {
			max := rows[0].Close
			for _, r := range rows {
				if r.Close > max {
					max = r.Close
				}
			}
			return max
		}
	case lowestCloseRe.MatchString(task):
		picker = func(rows []domain.OHLCVRow) float64 {
			min := rows[0].Close
			for _, r := range rows {
				if r.Close < min {
					min = r.Close
				}
			}
			return min
		}
	default:
		return domain.TaskResult{}, false
	}

	if !haveSymbol {
		return domain.TaskResult{Status: domain.TaskError, Message: "could not extract a symbol from the task"}, true
	}
	start, end := ExtractDateRange(task)
	rows, err := t.provider.GetHistorical(ctx, symbol, start, end)
	if err != nil {
		return domain.TaskResult{Status: domain.TaskError, Message: err.Error()}, true
	}
	if len(rows) == 0 {
		return domain.TaskResult{Status: domain.TaskFail, Message: "no historical rows available for " + symbol}, true
	}
	return domain.TaskResult{Status: domain.TaskOK, Value: picker(rows)}, true
}

// buildArgs constructs the argument map for a calculation, composite or
// fetch tool, binding the standard OHLCV shape, the plural `volumes` key,
// or positional `prices1..pricesN` for portfolio tasks as appropriate
// (spec.md §4.9 Data shape).
func (t *TaskExecutor) buildArgs(ctx context.Context, contractID, symbol string, haveSymbol bool, task string, extraction schemaextract.Extraction) (map[string]any, error) {
	contract, ok := contracts.Get(contractID)
	if !ok {
		return map[string]any{}, nil
	}

	args := map[string]any{}
	for k, v := range extraction.Parameters {
		args[k] = v
	}

	switch {
	case contract.OutputType == domain.OutputFrame || hasInput(contract, "symbol"):
		if !haveSymbol {
			return nil, fmt.Errorf("task requires a symbol but none could be extracted")
		}
		start, end := ExtractDateRange(task)
		args["symbol"] = symbol
		if hasInput(contract, "start") {
			args["start"] = start.Format("2006-01-02")
		}
		if hasInput(contract, "end") {
			args["end"] = end.Format("2006-01-02")
		}
		return args, nil

	case hasInput(contract, "prices1") && hasInput(contract, "prices2"):
		if !haveSymbol {
			return nil, fmt.Errorf("portfolio task requires at least one symbol but none could be extracted")
		}
		start, end := ExtractDateRange(task)
		rows, err := t.provider.GetHistorical(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		closes := closesOf(rows)
		args["prices1"] = closes
		args["prices2"] = closes
		if hasInput(contract, "weights") {
			args["weights"] = []float64{0.5, 0.5}
		}
		return args, nil

	default:
		if !haveSymbol {
			return nil, fmt.Errorf("calculation task requires a symbol but none could be extracted")
		}
		start, end := ExtractDateRange(task)
		rows, err := t.provider.GetHistorical(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if hasInput(contract, "high") {
			args["high"] = highsOf(rows)
		}
		if hasInput(contract, "low") {
			args["low"] = lowsOf(rows)
		}
		if hasInput(contract, "close") {
			args["close"] = closesOf(rows)
		}
		if hasInput(contract, "volumes") {
			args["volumes"] = volumesOf(rows)
		}
		if hasInput(contract, "prices") {
			args["prices"] = closesOf(rows)
		}
		return args, nil
	}
}

func hasInput(contract domain.Contract, name string) bool {
	_, ok := contract.InputTypes[name]
	return ok
}

func closesOf(rows []domain.OHLCVRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Close
	}
	return out
}

func highsOf(rows []domain.OHLCVRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.High
	}
	return out
}

func lowsOf(rows []domain.OHLCVRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Low
	}
	return out
}

func volumesOf(rows []domain.OHLCVRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Volume
	}
	return out
}

// entryFuncFor derives the tool's entry function name from its name field,
// which the Synthesizer sets to the contract/indicator id it generated
// against.
func entryFuncFor(tool *domain.Tool) string {
	return tool.Name
}
