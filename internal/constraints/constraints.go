// Package constraints loads the capability rules that gate code synthesis
// and execution: allowed modules per category, always-banned modules/calls/
// attributes, and execution limits (spec.md §4.1, §9). It is loaded once at
// startup — hot-reload is a non-goal (spec.md §1).
package constraints

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/toolforge/pkg/domain"
)

// Limits bounds execution resources (spec.md §5).
type Limits struct {
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
	MaxTimeout       time.Duration `yaml:"max_timeout"`
	MemoryLimitMB    int           `yaml:"memory_limit_mb"`
	MaxRefineAttempts int          `yaml:"max_refine_attempts"`
	IntegrationRetries int         `yaml:"integration_retries"`
	ModelTimeout     time.Duration `yaml:"model_timeout"`
}

// DefaultLimits mirrors the defaults named throughout spec.md (§4.1 timeout=30s,
// §5 memory cap 512MB, §4.9 max_attempts=3, §5 LanguageModel timeout 180s).
func DefaultLimits() Limits {
	return Limits{
		DefaultTimeout:     30 * time.Second,
		MaxTimeout:         300 * time.Second,
		MemoryLimitMB:      512,
		MaxRefineAttempts:  3,
		IntegrationRetries: 2,
		ModelTimeout:       180 * time.Second,
	}
}

// Document is the on-disk capability-rule document (YAML).
type Document struct {
	AllowedByCategory map[domain.Category][]string `yaml:"allowed_by_category"`
	AlwaysAllowed     []string                      `yaml:"always_allowed"`
	AlwaysBannedModules []string                    `yaml:"always_banned_modules"`
	BannedCalls       []string                      `yaml:"banned_calls"`
	BannedAttributes  []string                      `yaml:"banned_attributes"`
	Limits            Limits                        `yaml:"limits"`
}

// Rules is the resolved, queryable form of a Document.
type Rules struct {
	allowedByCategory map[domain.Category]map[string]bool
	alwaysAllowed     map[string]bool
	alwaysBanned      map[string]bool
	bannedCalls       map[string]bool
	bannedAttributes  map[string]bool
	Limits            Limits
}

// Load reads a capability-rule document from path and resolves it into Rules.
func Load(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constraints document %q: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse constraints document %q: %w", path, err)
	}
	return resolve(doc), nil
}

// Default returns the built-in default rule set (§6.5 of spec.md), used when
// no constraints document is configured.
func Default() *Rules {
	return resolve(DefaultDocument())
}

func resolve(doc Document) *Rules {
	r := &Rules{
		allowedByCategory: make(map[domain.Category]map[string]bool, len(doc.AllowedByCategory)),
		alwaysAllowed:     toSet(doc.AlwaysAllowed),
		alwaysBanned:      toSet(doc.AlwaysBannedModules),
		bannedCalls:       toSet(doc.BannedCalls),
		bannedAttributes:  toSet(doc.BannedAttributes),
		Limits:            doc.Limits,
	}
	for cat, mods := range doc.AllowedByCategory {
		r.allowedByCategory[cat] = toSet(mods)
	}
	if r.Limits.DefaultTimeout == 0 {
		r.Limits = DefaultLimits()
	}
	return r
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, i := range items {
		s[i] = true
	}
	return s
}

// ModuleAllowed reports whether importing module is permitted for category.
func (r *Rules) ModuleAllowed(category domain.Category, module string) bool {
	if r.alwaysBanned[module] {
		return false
	}
	if r.alwaysAllowed[module] {
		return true
	}
	cat, ok := r.allowedByCategory[category]
	if !ok {
		return false
	}
	return cat[module]
}

// CallBanned reports whether calling name is always forbidden.
func (r *Rules) CallBanned(name string) bool {
	return r.bannedCalls[name]
}

// AttributeBanned reports whether accessing attribute name is always forbidden.
func (r *Rules) AttributeBanned(name string) bool {
	return r.bannedAttributes[name]
}

// ContainsBannedSubstring reports whether s contains any banned call or
// module name as a substring — used for the short-string-literal check in
// spec.md §4.1 ("catches indirect getattr(x, 'eval')").
func (r *Rules) ContainsBannedSubstring(s string) (string, bool) {
	for name := range r.bannedCalls {
		if containsWord(s, name) {
			return name, true
		}
	}
	for name := range r.alwaysBanned {
		if containsWord(s, name) {
			return name, true
		}
	}
	return "", false
}

func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(haystack, needle)
}

// AllowedForCategory returns the capability set a category is permitted to
// declare (spec.md §3 invariant: capabilities ⊆ allowed-for-category).
func AllowedForCategory(category domain.Category) []domain.Capability {
	switch category {
	case domain.CategoryFetch:
		return []domain.Capability{domain.CapNetworkRead, domain.CapCalcOnly}
	default:
		return []domain.Capability{domain.CapCalcOnly}
	}
}
