package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNumericWithinBounds(t *testing.T) {
	c, ok := Get("calc_rsi")
	assert.True(t, ok)
	assert.NoError(t, Validate(c, 55.5))
	assert.Error(t, Validate(c, 150.0))
	assert.Error(t, Validate(c, "not a number"))
}

func TestValidateDictRequiredKeys(t *testing.T) {
	c, ok := Get("calc_bollinger")
	assert.True(t, ok)
	assert.NoError(t, Validate(c, map[string]any{"upper": 1.0, "middle": 0.5, "lower": 0.0}))
	assert.Error(t, Validate(c, map[string]any{"upper": 1.0}))
}

func TestValidateDictEnum(t *testing.T) {
	c, ok := Get("comp_signal")
	assert.True(t, ok)
	assert.NoError(t, Validate(c, map[string]any{"signal": "buy"}))
	assert.Error(t, Validate(c, map[string]any{"signal": "maybe"}))
}

func TestValidateFrameRejectsWrongType(t *testing.T) {
	// S5 scenario: tool returns a table/frame where NUMERIC was expected.
	c, ok := Get("calc_rsi")
	assert.True(t, ok)
	err := Validate(c, map[string]any{"columns": []any{"Close"}, "rows": []any{}})
	assert.Error(t, err)
}

func TestValidateFrameRequiredColumns(t *testing.T) {
	c, ok := Get("fetch_ohlcv")
	assert.True(t, ok)
	ok2 := Validate(c, map[string]any{
		"columns": []any{"Date", "Open", "High", "Low", "Close", "Volume"},
		"rows":    []any{[]any{"2023-01-01", 1.0, 2.0, 0.5, 1.5, 100.0}},
	})
	assert.NoError(t, ok2)

	err := Validate(c, map[string]any{
		"columns": []any{"Date", "Close"},
		"rows":    []any{},
	})
	assert.Error(t, err)
}

func TestValidateBooleanAcceptsStringEncodings(t *testing.T) {
	assert.NoError(t, validateBoolean(true))
	assert.NoError(t, validateBoolean("True"))
	assert.NoError(t, validateBoolean("False"))
	assert.Error(t, validateBoolean("maybe"))
}
