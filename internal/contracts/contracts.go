// Package contracts defines the static table of named input/output
// contracts (spec.md §4.4) and validates tool output against them.
package contracts

import "github.com/example/toolforge/pkg/domain"

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

// Table is the static, load-time-defined set of 15-20 named contracts
// (spec.md §4.4). Keys are contract IDs referenced by Tool.ContractID.
var Table = map[string]domain.Contract{
	"calc_rsi": {
		ContractID:     "calc_rsi",
		InputTypes:     map[string]string{"prices": "list[float]", "period": "int"},
		RequiredInputs: []string{"prices"},
		OutputType:     domain.OutputNumeric,
		OutputConstraints: domain.OutputConstraints{Min: f(0), Max: f(100)},
	},
	"calc_ma": {
		ContractID:     "calc_ma",
		InputTypes:     map[string]string{"prices": "list[float]", "period": "int"},
		RequiredInputs: []string{"prices"},
		OutputType:     domain.OutputNumeric,
	},
	"calc_bollinger": {
		ContractID:     "calc_bollinger",
		InputTypes:     map[string]string{"prices": "list[float]", "period": "int", "num_std": "float"},
		RequiredInputs: []string{"prices"},
		OutputType:     domain.OutputDict,
		OutputConstraints: domain.OutputConstraints{
			RequiredKeys: []string{"upper", "middle", "lower"},
			KeyTypes:     map[string]string{"upper": "float", "middle": "float", "lower": "float"},
		},
	},
	"calc_macd": {
		ContractID:     "calc_macd",
		InputTypes:     map[string]string{"prices": "list[float]", "fast": "int", "slow": "int", "signal": "int"},
		RequiredInputs: []string{"prices"},
		OutputType:     domain.OutputDict,
		OutputConstraints: domain.OutputConstraints{
			RequiredKeys: []string{"macd", "signal", "histogram"},
		},
	},
	"calc_kdj": {
		ContractID:     "calc_kdj",
		InputTypes:     map[string]string{"high": "list[float]", "low": "list[float]", "close": "list[float]"},
		RequiredInputs: []string{"high", "low", "close"},
		OutputType:     domain.OutputDict,
		OutputConstraints: domain.OutputConstraints{
			RequiredKeys: []string{"k", "d", "j"},
		},
	},
	"calc_drawdown": {
		ContractID:     "calc_drawdown",
		InputTypes:     map[string]string{"prices": "list[float]"},
		RequiredInputs: []string{"prices"},
		OutputType:     domain.OutputNumeric,
		OutputConstraints: domain.OutputConstraints{Min: f(-1), Max: f(0)},
	},
	"calc_correlation": {
		ContractID:     "calc_correlation",
		InputTypes:     map[string]string{"prices1": "list[float]", "prices2": "list[float]"},
		RequiredInputs: []string{"prices1", "prices2"},
		OutputType:     domain.OutputNumeric,
		OutputConstraints: domain.OutputConstraints{Min: f(-1), Max: f(1)},
	},
	"calc_volatility": {
		ContractID:     "calc_volatility",
		InputTypes:     map[string]string{"prices": "list[float]", "period": "int"},
		RequiredInputs: []string{"prices"},
		OutputType:     domain.OutputNumeric,
		OutputConstraints: domain.OutputConstraints{Min: f(0)},
	},
	"comp_signal": {
		ContractID:     "comp_signal",
		InputTypes:     map[string]string{"prices": "list[float]"},
		RequiredInputs: []string{"prices"},
		OutputType:     domain.OutputDict,
		OutputConstraints: domain.OutputConstraints{
			RequiredKeys: []string{"signal"},
			KeyTypes:     map[string]string{"signal": "enum"},
			Enum:         []string{"buy", "sell", "hold"},
		},
	},
	"comp_divergence": {
		ContractID:     "comp_divergence",
		InputTypes:     map[string]string{"prices": "list[float]", "indicator": "list[float]"},
		RequiredInputs: []string{"prices", "indicator"},
		OutputType:     domain.OutputBoolean,
	},
	"comp_portfolio": {
		ContractID:     "comp_portfolio",
		InputTypes:     map[string]string{"prices1": "list[float]", "prices2": "list[float]", "weights": "list[float]"},
		RequiredInputs: []string{"prices1", "prices2"},
		OutputType:     domain.OutputList,
		OutputConstraints: domain.OutputConstraints{ElementType: "float"},
	},
	"comp_conditional_return": {
		ContractID:     "comp_conditional_return",
		InputTypes:     map[string]string{"prices": "list[float]", "condition": "str"},
		RequiredInputs: []string{"prices", "condition"},
		OutputType:     domain.OutputNumeric,
	},
	"fetch_ohlcv": {
		ContractID:     "fetch_ohlcv",
		InputTypes:     map[string]string{"symbol": "str", "start": "str", "end": "str"},
		RequiredInputs: []string{"symbol", "start", "end"},
		OutputType:     domain.OutputFrame,
		OutputConstraints: domain.OutputConstraints{
			RequiredColumns: []string{"Date", "Open", "High", "Low", "Close", "Volume"},
			MinRows:         i(1),
		},
	},
	"fetch_quote": {
		ContractID:     "fetch_quote",
		InputTypes:     map[string]string{"symbol": "str"},
		RequiredInputs: []string{"symbol"},
		OutputType:     domain.OutputDict,
		OutputConstraints: domain.OutputConstraints{RequiredKeys: []string{"price", "timestamp"}},
	},
	"fetch_financial": {
		ContractID:     "fetch_financial",
		InputTypes:     map[string]string{"symbol": "str", "year": "int", "quarter": "int"},
		RequiredInputs: []string{"symbol"},
		OutputType:     domain.OutputDict,
	},
	"fetch_list": {
		ContractID:     "fetch_list",
		InputTypes:     map[string]string{"symbols": "list[str]", "start": "str", "end": "str"},
		RequiredInputs: []string{"symbols", "start", "end"},
		OutputType:     domain.OutputDict,
	},
}

// Get returns the contract with the given ID, if it is registered.
func Get(id string) (domain.Contract, bool) {
	c, ok := Table[id]
	return c, ok
}

// IndicatorKeywords maps indicator-name keywords to contract IDs, used by
// the Synthesizer to infer a contract from task text (spec.md §4.7 step 3).
var IndicatorKeywords = map[string]string{
	"rsi":           "calc_rsi",
	"moving average": "calc_ma",
	"ma":            "calc_ma",
	"bollinger":     "calc_bollinger",
	"macd":          "calc_macd",
	"kdj":           "calc_kdj",
	"drawdown":      "calc_drawdown",
	"correlation":   "calc_correlation",
	"volatility":    "calc_volatility",
	"signal":        "comp_signal",
	"divergence":    "comp_divergence",
	"portfolio":     "comp_portfolio",
	"conditional return": "comp_conditional_return",
	"latest close":  "fetch_quote",
	"quote":         "fetch_quote",
	"historical":    "fetch_ohlcv",
	"ohlcv":         "fetch_ohlcv",
	"financial":     "fetch_financial",
}
