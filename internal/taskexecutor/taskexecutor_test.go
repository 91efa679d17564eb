package taskexecutor

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
	"github.com/example/toolforge/internal/synthesizer"
	"github.com/example/toolforge/internal/verifier"
	"github.com/example/toolforge/pkg/domain"
)

func skipIfNoPython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

func TestExtractSymbol_PrefersIndexNameOverTickerTable(t *testing.T) {
	symbol, ok := ExtractSymbol("what is the S&P 500 doing today")
	require.True(t, ok)
	assert.Equal(t, "^GSPC", symbol)
}

func TestExtractSymbol_RejectsDOWInsideDrawdown(t *testing.T) {
	symbol, ok := ExtractSymbol("calculate MSFT max drawdown over last 250 days")
	require.True(t, ok)
	assert.Equal(t, "MSFT", symbol)
}

func TestExtractSymbol_RejectsExcludedCommonWords(t *testing.T) {
	_, ok := ExtractSymbol("GET the latest NOW please")
	assert.False(t, ok)
}

func TestExtractDateRange_DefaultsWhenAbsent(t *testing.T) {
	start, end := ExtractDateRange("compute the RSI of AAPL")
	assert.Equal(t, DefaultStart, start)
	assert.Equal(t, DefaultEnd, end)
}

func TestExtractDateRange_ParsesExplicitRange(t *testing.T) {
	start, end := ExtractDateRange("AAPL prices from 2022-03-01 to 2022-06-01")
	assert.Equal(t, time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), end)
}

type fakeProvider struct {
	rows []domain.OHLCVRow
}

func (f *fakeProvider) GetHistorical(ctx context.Context, symbol string, start, end time.Time) ([]domain.OHLCVRow, error) {
	return f.rows, nil
}
func (f *fakeProvider) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	return domain.Quote{}, nil
}
func (f *fakeProvider) GetFinancialInfo(ctx context.Context, symbol string) (map[string]any, error) {
	return nil, nil
}
func (f *fakeProvider) GetMultiHistorical(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.OHLCVRow, error) {
	return nil, nil
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

func TestRun_DirectExtractionLatestClose(t *testing.T) {
	gw := newTestGateway(t)
	ex := sandbox.NewExecutor(constraints.Default())
	provider := &fakeProvider{rows: []domain.OHLCVRow{{Close: 100}, {Close: 105}, {Close: 110}}}
	te := New(gw, ex, provider, nil)

	result := te.Run(t.Context(), "s2", "Get SPY latest close price")
	assert.Equal(t, domain.TaskOK, result.Status)
	assert.Equal(t, 110.0, result.Value)
}

func TestRun_UnsupportedFetchProducesTypedError(t *testing.T) {
	skipIfNoPython(t)
	gw := newTestGateway(t)
	ex := sandbox.NewExecutor(constraints.Default())
	provider := &fakeProvider{}
	te := New(gw, ex, provider, nil)

	result := te.Run(t.Context(), "s-unsupported", "fetch the quarterly dividend payout schedule for AAPL")
	assert.Equal(t, domain.TaskError, result.Status)
	assert.Equal(t, domain.ErrProviderUnsupported, result.ErrorKind)
}

func TestRun_ReusesExistingVerifiedCalculationTool(t *testing.T) {
	skipIfNoPython(t)
	gw := newTestGateway(t)
	ex := sandbox.NewExecutor(constraints.Default())
	provider := &fakeProvider{rows: []domain.OHLCVRow{{Close: 1}, {Close: 2}, {Close: 3}}}

	src := `def calc_ma(prices, period=5):
    return sum(prices) / len(prices)


if __name__ == "__main__":
    assert calc_ma([1.0, 2.0, 3.0]) == 2.0
`
	genSrc := src
	gen := stubGen{resp: domain.GenerateResponse{CodePayload: &genSrc}}
	synth := synthesizer.New(gw, gen, nil)
	_, err := synth.Synthesize(t.Context(), synthesizer.Request{Task: "compute the moving average", TaskID: "seed", EntryFunc: "calc_ma"})
	require.NoError(t, err)

	te := New(gw, ex, provider, synth)
	result := te.Run(t.Context(), "t2", "compute the moving average for AAPL")
	assert.Equal(t, domain.TaskOK, result.Status)
}

type stubGen struct {
	resp domain.GenerateResponse
}

func (s stubGen) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	return s.resp, nil
}
