package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/pkg/domain"
)

func TestStaticCheck_S3_OSImportRejected(t *testing.T) {
	rules := constraints.Default()
	res := StaticCheck(`import os
os.system("ls")
`, domain.CategoryCalculation, rules)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "os")
}

func TestStaticCheck_S4_BannedAttributeRejected(t *testing.T) {
	rules := constraints.Default()
	res := StaticCheck(`x = ''.__class__.__bases__[0].__subclasses__()`, domain.CategoryCalculation, rules)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "__class__")
}

func TestStaticCheck_IndirectGetattrStringLiteral(t *testing.T) {
	rules := constraints.Default()
	res := StaticCheck(`y = getattr(x, "eval")(1)`, domain.CategoryCalculation, rules)
	assert.False(t, res.OK)
}

func TestStaticCheck_AllowsPlainCalculation(t *testing.T) {
	rules := constraints.Default()
	src := `import pandas as pd

def calc_rsi(prices: list) -> float:
    """Compute RSI.

    Args:
        prices: list of closing prices.
    Returns:
        RSI value between 0 and 100.
    """
    return 50.0

if __name__ == "__main__":
    assert calc_rsi([1, 2, 3]) >= 0
    assert calc_rsi([1, 2, 3]) <= 100
`
	res := StaticCheck(src, domain.CategoryCalculation, rules)
	assert.True(t, res.OK, res.Reason)
}

func TestStaticCheck_InvariantUnderEncodingCommentAndTrailingWhitespace(t *testing.T) {
	rules := constraints.Default()
	base := "def calc_ma(prices):\n    return sum(prices) / len(prices)\n"
	withEncoding := "# coding: utf-8\n" + base
	withTrailing := base + "\n\n   \n"

	r1 := StaticCheck(base, domain.CategoryCalculation, rules)
	r2 := StaticCheck(withEncoding, domain.CategoryCalculation, rules)
	r3 := StaticCheck(withTrailing, domain.CategoryCalculation, rules)

	assert.Equal(t, r1.OK, r2.OK)
	assert.Equal(t, r1.OK, r3.OK)
}

func TestStaticCheck_UTF7EncodingDeclarationRejectedOutright(t *testing.T) {
	rules := constraints.Default()
	src := "# coding: utf-7\nimport os\nos.system('ls')\n"
	res := StaticCheck(src, domain.CategoryCalculation, rules)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "encoding")
}

// A real utf-7 encoded "import os\nos.system('ls')" payload would not
// literally contain the substrings "import" or "os" in its raw bytes — the
// scanner never decodes, so only rejecting the declaration itself (and
// never executing a source carrying one) closes the bypass. This source's
// raw bytes are plain ASCII gibberish with no banned token anywhere in
// them; the old stripping-only behavior would have scanned it, found
// nothing, and returned OK.
func TestStaticCheck_UTF7EncodingDeclarationRejectedRegardlessOfContent(t *testing.T) {
	rules := constraints.Default()
	src := "# coding: utf-7\n+AGkAbQBwAG8AcgB0ACAAbwBz-\n+AG8AcwAuAHMAeQBzAHQAZQBtACgAJwBsAHMAJwAp-\n"
	res := StaticCheck(src, domain.CategoryCalculation, rules)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "encoding")
}

func TestStaticCheck_FetchCategoryAllowsDataClient(t *testing.T) {
	rules := constraints.Default()
	res := StaticCheck(`import requests
import hashlib
`, domain.CategoryFetch, rules)
	assert.True(t, res.OK, res.Reason)
}

func TestStaticCheck_EmptySourceFails(t *testing.T) {
	rules := constraints.Default()
	res := StaticCheck("", domain.CategoryCalculation, rules)
	assert.False(t, res.OK)
}
