// Package verifier implements the four-stage verification pipeline
// (spec.md §4.5): AST_SECURITY, SELF_TEST, CONTRACT_VALID, INTEGRATION. A
// candidate advances to the next stage only if the previous one passes; the
// first failure short-circuits the pipeline and is reported with the stage
// that rejected it, mirroring the teacher's internal/tools/verify staged
// pipeline (security scan, then self-test, then schema check).
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/example/toolforge/internal/backoff"
	"github.com/example/toolforge/internal/contracts"
	"github.com/example/toolforge/internal/metrics"
	"github.com/example/toolforge/internal/sandbox"
	"github.com/example/toolforge/pkg/domain"
)

// Report is the outcome of running a candidate through the pipeline.
type Report struct {
	Passed      bool
	FinalStage  domain.VerificationStage
	ErrorKind   domain.ErrorKind
	Reason      string
	Trace       *domain.ExecutionTrace
	Capabilities []domain.Capability
}

// Verifier runs candidate source through the staged pipeline.
type Verifier struct {
	executor *sandbox.Executor
	logger   *slog.Logger
	policy   backoff.Policy
	sleep    func(time.Duration)
	rand     func() float64
	metrics  *metrics.Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the verifier's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// WithIntegrationPolicy overrides the INTEGRATION stage's retry backoff.
func WithIntegrationPolicy(p backoff.Policy) Option {
	return func(v *Verifier) { v.policy = p }
}

// WithMetrics attaches a Prometheus collector set, overriding the
// process-wide default registered via metrics.Default().
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// New constructs a Verifier bound to an Executor.
func New(executor *sandbox.Executor, opts ...Option) *Verifier {
	v := &Verifier{
		executor: executor,
		logger:   slog.Default().With("component", "verifier"),
		policy:   backoff.IntegrationRetryPolicy(),
		sleep:    time.Sleep,
		rand:     rand.Float64,
		metrics:  metrics.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Candidate is the input to Verify: freshly generated or patched source
// plus the metadata needed to resolve its contract and capability set.
type Candidate struct {
	Source     string
	EntryFunc  string
	Category   domain.Category
	ContractID string
	TaskID     string
}

// Verify runs the four stages in order (spec.md §4.5), recording a
// per-stage pass/fail counter and the pipeline's total latency.
func (v *Verifier) Verify(ctx context.Context, c Candidate) Report {
	start := time.Now()
	report := v.verify(ctx, c)

	result := "pass"
	if !report.Passed {
		result = "fail"
	}
	v.metrics.RecordStage(report.FinalStage.String(), result)
	v.metrics.ObserveVerify(string(c.Category), time.Since(start))
	return report
}

func (v *Verifier) verify(ctx context.Context, c Candidate) Report {
	check := v.executor.StaticCheck(c.Source, c.Category)
	if !check.OK {
		return Report{
			Passed:     false,
			FinalStage: domain.StageASTSecurity,
			ErrorKind:  domain.ErrSecurity,
			Reason:     check.Reason,
		}
	}
	caps := capabilitiesForCategory(c.Category)

	selfTestTrace, err := v.executor.Execute(ctx, sandbox.ExecuteInput{
		Source:    wrapSelfTest(c.Source),
		EntryFunc: "__self_test__",
		Args:      map[string]any{},
		TaskID:    c.TaskID,
		Category:  c.Category,
	})
	if err != nil {
		return Report{Passed: false, FinalStage: domain.StageSelfTest, ErrorKind: domain.ErrExec, Reason: err.Error()}
	}
	if selfTestTrace.ExitCode != domain.ExitOK {
		return Report{
			Passed:     false,
			FinalStage: domain.StageSelfTest,
			ErrorKind:  classifySelfTestFailure(selfTestTrace),
			Reason:     selfTestTrace.Stderr,
			Trace:      selfTestTrace,
		}
	}

	contract, hasContract := contracts.Get(c.ContractID)
	if hasContract {
		sampleArgs := SampleArgs(contract)
		contractTrace, err := v.executor.Execute(ctx, sandbox.ExecuteInput{
			Source:    c.Source,
			EntryFunc: c.EntryFunc,
			Args:      sampleArgs,
			TaskID:    c.TaskID,
			Category:  c.Category,
		})
		if err != nil {
			return Report{Passed: false, FinalStage: domain.StageContractValid, ErrorKind: domain.ErrExec, Reason: err.Error(), Trace: contractTrace}
		}
		if contractTrace.ExitCode != domain.ExitOK {
			return Report{
				Passed:     false,
				FinalStage: domain.StageContractValid,
				ErrorKind:  classifyRuntimeFailure(contractTrace),
				Reason:     contractTrace.Stderr,
				Trace:      contractTrace,
			}
		}
		value, ok := v.executor.ExtractResult(contractTrace.OutputRepr)
		if !ok {
			return Report{
				Passed:     false,
				FinalStage: domain.StageContractValid,
				ErrorKind:  domain.ErrContract,
				Reason:     "output could not be decoded as JSON",
				Trace:      contractTrace,
			}
		}
		if err := contracts.Validate(contract, value); err != nil {
			return Report{
				Passed:     false,
				FinalStage: domain.StageContractValid,
				ErrorKind:  domain.ErrContract,
				Reason:     err.Error(),
				Trace:      contractTrace,
			}
		}

		// INTEGRATION (stage 4) only applies to the fetch category, per
		// spec.md §4.5: calc/composite tools never touch the DataProvider,
		// so there is nothing for this stage to exercise for them.
		if c.Category != domain.CategoryFetch {
			return Report{Passed: true, FinalStage: domain.StageContractValid, Trace: contractTrace, Capabilities: caps}
		}

		integrationTrace, err := v.runIntegrationStage(ctx, c, contract, sampleArgs)
		if err != nil {
			return Report{
				Passed:     false,
				FinalStage: domain.StageIntegration,
				ErrorKind:  domain.ErrIntegration,
				Reason:     err.Error(),
				Trace:      integrationTrace,
			}
		}
		return Report{Passed: true, FinalStage: domain.StageIntegration, Trace: integrationTrace, Capabilities: caps}
	}

	return Report{Passed: true, FinalStage: domain.StageContractValid, Trace: selfTestTrace, Capabilities: caps}
}

// runIntegrationStage re-executes the candidate with bounded retry, treating
// only a second fixed deterministic input as the integration probe — a
// second, distinct seed vector from CONTRACT_VALID's, per spec.md §4.5 stage
// 4's requirement that integration exercise a different sample than the
// contract check.
func (v *Verifier) runIntegrationStage(ctx context.Context, c Candidate, contract domain.Contract, baseArgs map[string]any) (*domain.ExecutionTrace, error) {
	args := SecondSampleArgs(contract, baseArgs)
	var lastErr error
	var lastTrace *domain.ExecutionTrace
	for attempt := 1; attempt <= 3; attempt++ {
		trace, err := v.executor.Execute(ctx, sandbox.ExecuteInput{
			Source:    c.Source,
			EntryFunc: c.EntryFunc,
			Args:      args,
			TaskID:    c.TaskID,
			Category:  c.Category,
		})
		if err != nil {
			lastErr = err
		} else if trace.ExitCode == domain.ExitOK {
			value, ok := v.executor.ExtractResult(trace.OutputRepr)
			if ok {
				if verr := contracts.Validate(contract, value); verr == nil {
					return trace, nil
				} else {
					lastErr = verr
				}
			} else {
				lastErr = fmt.Errorf("integration output could not be decoded")
			}
		} else {
			lastErr = fmt.Errorf("integration run exited %d: %s", trace.ExitCode, trace.Stderr)
		}
		lastTrace = trace
		if attempt < 3 {
			delay := backoff.ComputeWithRand(v.policy, attempt, v.rand())
			v.sleep(delay)
		}
	}
	return lastTrace, lastErr
}

func capabilitiesForCategory(category domain.Category) []domain.Capability {
	switch category {
	case domain.CategoryFetch:
		return []domain.Capability{domain.CapNetworkRead}
	case domain.CategoryComposite:
		return []domain.Capability{domain.CapCalcOnly}
	default:
		return []domain.Capability{domain.CapCalcOnly}
	}
}

// wrapSelfTest appends an invocation of the tool module's own
// `if __name__ == "__main__":` self-test block as a callable entry point, so
// the sandbox can run it the same way it runs any other entry function
// (spec.md §4.5 stage 2: "execute the module's embedded self-test").
func wrapSelfTest(source string) string {
	var sb strings.Builder
	sb.WriteString(source)
	sb.WriteString("\n\ndef __self_test__():\n")
	sb.WriteString("    import runpy\n")
	sb.WriteString("    import sys\n")
	sb.WriteString("    ns = dict(globals())\n")
	sb.WriteString("    ns['__name__'] = '__main__'\n")
	sb.WriteString("    exec(compile(open(__file__).read(), __file__, 'exec'), ns)\n")
	sb.WriteString("    return {'ok': True}\n")
	return sb.String()
}

func classifySelfTestFailure(trace *domain.ExecutionTrace) domain.ErrorKind {
	if trace.ExitCode == domain.ExitTimeout {
		return domain.ErrTimeout
	}
	lower := strings.ToLower(trace.Stderr)
	if strings.Contains(lower, "assertionerror") {
		return domain.ErrAssert
	}
	if strings.Contains(lower, "syntaxerror") || strings.Contains(lower, "indentationerror") {
		return domain.ErrSyntax
	}
	return domain.ErrExec
}

func classifyRuntimeFailure(trace *domain.ExecutionTrace) domain.ErrorKind {
	if trace.ExitCode == domain.ExitTimeout {
		return domain.ErrTimeout
	}
	lower := strings.ToLower(trace.Stderr)
	if strings.Contains(lower, "modulenotfounderror") || strings.Contains(lower, "importerror") {
		return domain.ErrImport
	}
	return domain.ErrExec
}

// SampleArgs builds a deterministic seed vector for contract's declared
// inputs (spec.md §4.5 stage 3): fixed, small literal data so verification
// never depends on network access or random state.
func SampleArgs(contract domain.Contract) map[string]any {
	return seedArgs(contract, 1)
}

// SecondSampleArgs builds a second, distinct deterministic seed vector for
// the INTEGRATION stage, falling back to SampleArgs's shape when a contract
// has only one plausible sample (spec.md §4.5 stage 4).
func SecondSampleArgs(contract domain.Contract, _ map[string]any) map[string]any {
	return seedArgs(contract, 2)
}

func seedArgs(contract domain.Contract, seed int) map[string]any {
	args := make(map[string]any, len(contract.InputTypes))
	for name, typ := range contract.InputTypes {
		args[name] = seedValue(name, typ, seed)
	}
	return args
}

func seedValue(name, typ string, seed int) any {
	switch {
	case typ == "int":
		return 14 * seed
	case typ == "float":
		return 1.5 * float64(seed)
	case typ == "str":
		if seed == 1 {
			return "AAPL"
		}
		return "MSFT"
	case typ == "bool":
		return seed%2 == 0
	case strings.HasPrefix(typ, "list[float]"):
		return samplePriceSeries(name, seed)
	case strings.HasPrefix(typ, "list[str]"):
		if seed == 1 {
			return []string{"AAPL", "MSFT"}
		}
		return []string{"GOOG", "AMZN"}
	case strings.HasPrefix(typ, "list["):
		return samplePriceSeries(name, seed)
	default:
		return nil
	}
}

// samplePriceSeries returns a short, monotonically-varying float series so
// indicators with warm-up windows (RSI, MACD) see more than one data point.
func samplePriceSeries(name string, seed int) []float64 {
	base := 100.0 + float64(seed)*5
	n := 20
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = base + float64(i%7) - float64(i%3)
	}
	if strings.Contains(strings.ToLower(name), "low") {
		for i := range out {
			out[i] -= 2
		}
	}
	if strings.Contains(strings.ToLower(name), "high") {
		for i := range out {
			out[i] += 2
		}
	}
	return out
}
