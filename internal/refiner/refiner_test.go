package refiner

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/internal/gateway"
	"github.com/example/toolforge/internal/registry"
	"github.com/example/toolforge/internal/sandbox"
	"github.com/example/toolforge/internal/verifier"
	"github.com/example/toolforge/pkg/domain"
)

func TestClassify_PrefersReportErrorKindOverTraceback(t *testing.T) {
	kind := Classify(verifier.Report{ErrorKind: domain.ErrSecurity, Reason: "NameError: x"})
	assert.Equal(t, domain.ErrSecurity, kind)
}

func TestClassify_FallsBackToTracebackPattern(t *testing.T) {
	kind := Classify(verifier.Report{Reason: "Traceback...\nNameError: name 'np' is not defined"})
	assert.Equal(t, domain.ErrExec, kind)
}

func TestClassify_UnknownWhenNoPatternMatches(t *testing.T) {
	kind := Classify(verifier.Report{Reason: "something unrecognized happened"})
	assert.Equal(t, domain.ErrUnknown, kind)
}

type stubGenerator struct {
	responses []domain.GenerateResponse
	calls     int
}

func (s *stubGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

func newTestGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.Open(filepath.Join(dir, "registry.db"), filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	ex := sandbox.NewExecutor(constraints.Default())
	v := verifier.New(ex)
	return gateway.New(reg, v, gateway.WithLogDir(filepath.Join(dir, "logs")))
}

func TestRefine_SecurityFailureNeverRetried(t *testing.T) {
	gw := newTestGateway(t)
	gen := &stubGenerator{}
	r := New(gw, gen, func(rf *Refiner) { rf.sleep = func(time.Duration) {} })

	result, err := r.Refine(t.Context(), Request{
		Candidate: verifier.Candidate{
			Source:     "import os\ndef calc_ma(prices): return 1.0\n",
			EntryFunc:  "calc_ma",
			Category:   domain.CategoryCalculation,
			ContractID: "calc_ma",
			TaskID:     "t1",
		},
		Report: verifier.Report{
			Passed:     false,
			FinalStage: domain.StageASTSecurity,
			ErrorKind:  domain.ErrSecurity,
			Reason:     "banned module: os",
		},
		Name:   "calc_ma",
		TaskID: "t1",
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, 0, result.Attempts)
	assert.Equal(t, 0, gen.calls)
}

func TestRefine_AcceptsOnSecondAttempt(t *testing.T) {
	skipIfNoPython(t)
	gw := newTestGateway(t)
	fixed := `def calc_ma(prices, period=5):
    return sum(prices) / len(prices)


if __name__ == "__main__":
    assert calc_ma([1.0, 2.0, 3.0]) == 2.0
`
	gen := &stubGenerator{responses: []domain.GenerateResponse{
		{CodePayload: strPtr("def calc_ma(prices):\n    return prices[undefined]\n")},
		{CodePayload: &fixed},
	}}
	r := New(gw, gen, func(rf *Refiner) { rf.sleep = func(time.Duration) {} })

	result, err := r.Refine(t.Context(), Request{
		Candidate: verifier.Candidate{
			Source:     "def calc_ma(prices):\n    return prices[undefined]\n",
			EntryFunc:  "calc_ma",
			Category:   domain.CategoryCalculation,
			ContractID: "calc_ma",
			TaskID:     "t2",
		},
		Report: verifier.Report{
			Passed:     false,
			FinalStage: domain.StageSelfTest,
			ErrorKind:  domain.ErrExec,
			Reason:     "NameError: name 'undefined' is not defined",
		},
		Name:   "calc_ma",
		TaskID: "t2",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 2, result.Attempts)
}

func strPtr(s string) *string { return &s }

func skipIfNoPython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}
