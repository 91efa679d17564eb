// Package schemaextract implements the heuristic extraction of category,
// indicator tag, data type, and parameter list from free-text task
// descriptions (spec.md §4.10/C11), shared by the Synthesizer (to build
// SchemaTags for reuse lookup) and the TaskExecutor (to shape the
// arguments it hands to a tool). Grounded on the same keyword-table
// pattern the teacher uses for slash-command and intent detection in
// internal/agent, generalized here from a closed command set to an open
// vocabulary of financial task phrasing.
package schemaextract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/example/toolforge/pkg/domain"
)

// Extraction is the structured result of parsing a task description.
type Extraction struct {
	Category   domain.Category
	Indicator  string
	DataType   string
	Parameters map[string]any
}

var indicatorPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?i)RSI-?(\d+)`), "rsi"},
	{regexp.MustCompile(`(?i)\bRSI\b`), "rsi"},
	{regexp.MustCompile(`(?i)MACD\((\d+),(\d+),(\d+)\)`), "macd"},
	{regexp.MustCompile(`(?i)\bMACD\b`), "macd"},
	{regexp.MustCompile(`(?i)bollinger`), "bollinger"},
	{regexp.MustCompile(`(?i)\bKDJ\b`), "kdj"},
	{regexp.MustCompile(`(?i)drawdown`), "drawdown"},
	{regexp.MustCompile(`(?i)correlation`), "correlation"},
	{regexp.MustCompile(`(?i)volatility`), "volatility"},
	{regexp.MustCompile(`(?i)moving average|\bMA\b`), "ma"},
}

var (
	nDayRe      = regexp.MustCompile(`(\d+)-?\s?day`)
	quarterRe   = regexp.MustCompile(`(?i)\bQ([1-4])\b`)
	yearRe      = regexp.MustCompile(`\b(20\d{2})\b`)
	macdParamRe = regexp.MustCompile(`(?i)MACD\((\d+),\s*(\d+),\s*(\d+)\)`)
	rsiParamRe  = regexp.MustCompile(`(?i)RSI-?(\d+)`)
)

// Extract runs the heuristic pipeline over task text.
func Extract(task string, category domain.Category) Extraction {
	ext := Extraction{
		Category:   category,
		Parameters: map[string]any{},
	}

	for _, p := range indicatorPatterns {
		if p.re.MatchString(task) {
			ext.Indicator = p.name
			break
		}
	}

	switch {
	case strings.Contains(strings.ToLower(task), "ohlcv"), strings.Contains(strings.ToLower(task), "historical"):
		ext.DataType = "ohlcv"
	case strings.Contains(strings.ToLower(task), "quote"), strings.Contains(strings.ToLower(task), "latest"):
		ext.DataType = "quote"
	case strings.Contains(strings.ToLower(task), "financial"):
		ext.DataType = "financial"
	default:
		ext.DataType = "price"
	}

	if m := macdParamRe.FindStringSubmatch(task); m != nil {
		ext.Parameters["fast"] = atoi(m[1])
		ext.Parameters["slow"] = atoi(m[2])
		ext.Parameters["signal"] = atoi(m[3])
	} else if m := rsiParamRe.FindStringSubmatch(task); m != nil {
		ext.Parameters["period"] = atoi(m[1])
	} else if m := nDayRe.FindStringSubmatch(task); m != nil {
		ext.Parameters["period"] = atoi(m[1])
	}

	if m := quarterRe.FindStringSubmatch(task); m != nil {
		ext.Parameters["quarter"] = atoi(m[1])
	}
	if m := yearRe.FindStringSubmatch(task); m != nil {
		ext.Parameters["year"] = atoi(m[1])
	}

	return ext
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
