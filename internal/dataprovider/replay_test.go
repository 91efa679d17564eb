package dataprovider

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/toolforge/pkg/domain"
)

type countingUpstream struct {
	calls int
	rows  []domain.OHLCVRow
}

func (u *countingUpstream) GetHistorical(ctx context.Context, symbol string, start, end time.Time) ([]domain.OHLCVRow, error) {
	u.calls++
	return u.rows, nil
}

func (u *countingUpstream) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	return domain.Quote{}, errors.New("not used")
}

func (u *countingUpstream) GetFinancialInfo(ctx context.Context, symbol string) (map[string]any, error) {
	return nil, errors.New("not used")
}

func TestGetHistorical_SecondCallReplaysFromCache(t *testing.T) {
	dir := t.TempDir()
	up := &countingUpstream{rows: []domain.OHLCVRow{{Close: 101.5}}}
	p := New(filepath.Join(dir, "cache"), up)

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	first, err := p.GetHistorical(t.Context(), "AAPL", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)

	second, err := p.GetHistorical(t.Context(), "AAPL", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls, "second call should replay from cache, not hit upstream again")
	assert.Equal(t, first, second)
}

func TestGetHistorical_NoUpstreamIsErrorOnMiss(t *testing.T) {
	dir := t.TempDir()
	p := New(filepath.Join(dir, "cache"), nil)
	_, err := p.GetHistorical(t.Context(), "AAPL", time.Now(), time.Now())
	assert.Error(t, err)
}

func TestCacheKey_IsStableForSameInputs(t *testing.T) {
	a := cacheKey("get_historical", "AAPL", "2023-01-01", "2023-12-31")
	b := cacheKey("get_historical", "AAPL", "2023-01-01", "2023-12-31")
	c := cacheKey("get_historical", "MSFT", "2023-01-01", "2023-12-31")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
