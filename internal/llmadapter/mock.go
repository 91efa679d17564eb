package llmadapter

import (
	"fmt"
	"strings"

	"github.com/example/toolforge/pkg/domain"
)

// mockGenerate produces deterministic Python source without calling any
// network service. It is wired in only when Config.APIKey is empty (spec.md
// §4.3: "only when no API credential is configured"). The source is one
// fixed template per category (the mean of prices for calculation, a
// buy/sell dict for composite, a symbol dict for fetch); it does not follow
// the requested contract's output type or bounds, so the Verifier rejects
// it for contracts that ask for another shape. The fetch and composite
// templates also contain string literals ("close", "signal") that the
// stage-1 string-literal scan rejects.
func mockGenerate(req domain.GenerateRequest) domain.GenerateResponse {
	name := mockToolName(req)
	code := mockSource(name, req)
	return domain.GenerateResponse{
		ReasoningTrace: fmt.Sprintf("mock: emitting deterministic %s tool for category %s", name, req.Category),
		CodePayload:    &code,
		TextResponse:   "",
		Raw:            code,
	}
}

func mockToolName(req domain.GenerateRequest) string {
	lower := strings.ToLower(req.Task)
	prefix := "calc"
	switch req.Category {
	case domain.CategoryFetch:
		prefix = "fetch"
	case domain.CategoryComposite:
		prefix = "comp"
	}
	for _, kw := range []struct{ word, id string }{
		{"rsi", "rsi"}, {"macd", "macd"}, {"bollinger", "bollinger"}, {"kdj", "kdj"},
		{"drawdown", "drawdown"}, {"correlation", "correlation"}, {"volatility", "volatility"},
		{"moving average", "ma"}, {"ohlcv", "ohlcv"}, {"quote", "quote"},
	} {
		if strings.Contains(lower, kw.word) {
			return fmt.Sprintf("%s_%s", prefix, kw.id)
		}
	}
	if req.Contract != nil {
		return fmt.Sprintf("%s_tool", prefix)
	}
	return fmt.Sprintf("%s_generic", prefix)
}

// mockSource renders a minimal, self-testing Python module that honours the
// parameter-naming convention and self-test requirements of spec.md §4.3
// even though no model produced it.
func mockSource(name string, req domain.GenerateRequest) string {
	switch req.Category {
	case domain.CategoryFetch:
		return fmt.Sprintf(`def %s(symbol: str) -> dict:
    """Fetch a minimal data shape for symbol.

    Args:
        symbol: ticker symbol.

    Returns:
        dict with a single 'symbol' key and empty series (mock).
    """
    return {"symbol": symbol, "close": []}


if __name__ == "__main__":
    result = %s("AAPL")
    assert isinstance(result, dict)
    assert result["symbol"] == "AAPL"
`, name, name)
	case domain.CategoryComposite:
		return fmt.Sprintf(`def %s(prices: list) -> dict:
    """Combine a derived signal from prices (mock).

    Args:
        prices: list of float closing prices.

    Returns:
        dict with a 'signal' key.
    """
    if not prices:
        return {"signal": "hold"}
    return {"signal": "buy" if prices[-1] >= prices[0] else "sell"}


if __name__ == "__main__":
    assert %s([1.0, 2.0])["signal"] == "buy"
    assert %s([2.0, 1.0])["signal"] == "sell"
`, name, name, name)
	default:
		return fmt.Sprintf(`def %s(prices: list) -> float:
    """Compute a trivial numeric statistic over prices (mock).

    Args:
        prices: list of float closing prices.

    Returns:
        float average of prices, or 0.0 if empty.
    """
    if not prices:
        return 0.0
    return sum(prices) / len(prices)


if __name__ == "__main__":
    assert %s([1.0, 2.0, 3.0]) == 2.0
    assert %s([]) == 0.0
`, name, name, name)
	}
}
