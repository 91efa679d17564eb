package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/toolforge/pkg/domain"
)

func TestDefaultRulesBanExpected(t *testing.T) {
	r := Default()
	assert.False(t, r.ModuleAllowed(domain.CategoryCalculation, "os"))
	assert.True(t, r.ModuleAllowed(domain.CategoryCalculation, "pandas"))
	assert.True(t, r.ModuleAllowed(domain.CategoryFetch, "requests"))
	assert.False(t, r.ModuleAllowed(domain.CategoryCalculation, "requests"))
	assert.True(t, r.CallBanned("eval"))
	assert.True(t, r.AttributeBanned("__class__"))
}

func TestContainsBannedSubstring(t *testing.T) {
	r := Default()
	name, found := r.ContainsBannedSubstring(`getattr(x, "eval")`)
	assert.True(t, found)
	assert.NotEmpty(t, name)
}

func TestAllowedForCategoryRespectsCalcOnly(t *testing.T) {
	caps := AllowedForCategory(domain.CategoryCalculation)
	assert.Contains(t, caps, domain.CapCalcOnly)
	assert.NotContains(t, caps, domain.CapNetworkRead)
}
