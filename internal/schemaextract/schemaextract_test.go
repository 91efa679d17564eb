package schemaextract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/toolforge/pkg/domain"
)

func TestExtract_MACDParameters(t *testing.T) {
	ext := Extract("compute MACD(12,26,9) for AAPL", domain.CategoryCalculation)
	assert.Equal(t, "macd", ext.Indicator)
	assert.Equal(t, 12, ext.Parameters["fast"])
	assert.Equal(t, 26, ext.Parameters["slow"])
	assert.Equal(t, 9, ext.Parameters["signal"])
}

func TestExtract_RSIPeriod(t *testing.T) {
	ext := Extract("what is the RSI-14 for MSFT", domain.CategoryCalculation)
	assert.Equal(t, "rsi", ext.Indicator)
	assert.Equal(t, 14, ext.Parameters["period"])
}

func TestExtract_NDayPeriodFallback(t *testing.T) {
	ext := Extract("calculate the 250-day drawdown for MSFT", domain.CategoryCalculation)
	assert.Equal(t, "drawdown", ext.Indicator)
	assert.Equal(t, 250, ext.Parameters["period"])
}

func TestExtract_QuarterAndYear(t *testing.T) {
	ext := Extract("get Q3 2024 financials for AAPL", domain.CategoryFetch)
	assert.Equal(t, "financial", ext.DataType)
	assert.Equal(t, 3, ext.Parameters["quarter"])
	assert.Equal(t, 2024, ext.Parameters["year"])
}
