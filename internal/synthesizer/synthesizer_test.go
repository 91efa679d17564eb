package synthesizer

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/internal/gateway"
	"github.com/example/toolforge/internal/registry"
	"github.com/example/toolforge/internal/sandbox"
	"github.com/example/toolforge/internal/verifier"
	"github.com/example/toolforge/pkg/domain"
)

func skipIfNoPython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, domain.CategoryFetch, InferCategory("fetch historical prices for AAPL"))
	assert.Equal(t, domain.CategoryComposite, InferCategory("should I buy based on the signal"))
	assert.Equal(t, domain.CategoryCalculation, InferCategory("compute the 14-day RSI"))
}

func TestInferContractID_PrefersLongestMatch(t *testing.T) {
	assert.Equal(t, "comp_conditional_return", InferContractID("what is the conditional return here"))
	assert.Equal(t, "calc_rsi", InferContractID("compute RSI over 14 days"))
}

type fixedGenerator struct {
	resp domain.GenerateResponse
}

func (f fixedGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	return f.resp, nil
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

func TestSynthesize_GeneratesAndRegistersNewTool(t *testing.T) {
	skipIfNoPython(t)
	gw := newTestGateway(t)

	src := `def calc_ma(prices, period=5):
    return sum(prices) / len(prices)


if __name__ == "__main__":
    assert calc_ma([1.0, 2.0, 3.0]) == 2.0
`
	gen := fixedGenerator{resp: domain.GenerateResponse{CodePayload: &src}}
	s := New(gw, gen, nil)

	result, err := s.Synthesize(t.Context(), Request{
		Task:      "compute the moving average of the prices",
		TaskID:    "t1",
		EntryFunc: "calc_ma",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.False(t, result.Reused)
	require.NotNil(t, result.Tool)
}

func TestSynthesize_ReusesExistingVerifiedTool(t *testing.T) {
	skipIfNoPython(t)
	gw := newTestGateway(t)

	src := `def calc_ma(prices, period=5):
    return sum(prices) / len(prices)


if __name__ == "__main__":
    assert calc_ma([1.0, 2.0, 3.0]) == 2.0
`
	gen := fixedGenerator{resp: domain.GenerateResponse{CodePayload: &src}}
	s := New(gw, gen, nil)

	first, err := s.Synthesize(t.Context(), Request{Task: "compute moving average", TaskID: "t1", EntryFunc: "calc_ma"})
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := s.Synthesize(t.Context(), Request{Task: "compute moving average again", TaskID: "t2", EntryFunc: "calc_ma"})
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Tool.ID, second.Tool.ID)
}
