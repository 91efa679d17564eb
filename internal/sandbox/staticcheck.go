// Package sandbox implements the capability-based Executor: a static source
// scanner that enforces the capability ruleset (spec.md §4.1), and a
// subprocess sandbox that runs verified/candidate code with a wall-clock
// timeout and JSON IPC.
//
// Go has no Python AST in its standard library, so StaticCheck tokenizes the
// source line-by-line looking for import statements, call expressions,
// attribute accesses and short string literals — the same token-scanning
// approach the teacher's internal/tools/security package uses to flag
// dangerous shell metacharacters without a full grammar. When a construct is
// ambiguous the scanner rejects it; it never guesses permissive.
package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/pkg/domain"
)

// CheckResult is the outcome of a static_check call.
type CheckResult struct {
	OK     bool
	Reason string
}

var (
	encodingCommentRe = regexp.MustCompile(`^#.*coding[:=]\s*([-\w.]+)`)
	importRe          = regexp.MustCompile(`(?:^|[;:])\s*import\s+([^;#]+)`)
	fromImportRe      = regexp.MustCompile(`(?:^|[;:])\s*from\s+([a-zA-Z_][\w.]*)\s+import\b`)
	callNameRe        = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	attributeRe       = regexp.MustCompile(`\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
	stringLiteralRe   = regexp.MustCompile(`(['"])((?:\\.|[^\\])*?)\1`)
)

// StaticCheck parses source into a token stream and enforces the capability
// rules for category. It is invariant under PEP-263 encoding-comment
// stripping and trailing whitespace (spec.md §8 property 3).
//
// A declared source encoding other than utf-8/ascii is rejected outright,
// before any scanning happens. The scanner only ever sees the raw bytes
// CPython itself would see as utf-8; it never decodes. Stripping the
// comment and scanning the decoded-elsewhere text would leave the bytes
// actually written to disk and executed free to carry banned constructs the
// scanner never looked at (spec.md §8: a utf-7-declared source with an
// encoded banned import must FAIL at stage 1, not pass it on a technicality).
func StaticCheck(source string, category domain.Category, rules *constraints.Rules) CheckResult {
	if strings.TrimSpace(source) == "" {
		return CheckResult{OK: false, Reason: "SyntaxError: empty source"}
	}

	rawLines := strings.Split(source, "\n")
	if enc, ok := declaredEncoding(rawLines); ok && !isAllowedEncoding(enc) {
		return CheckResult{OK: false, Reason: fmt.Sprintf("forbidden source encoding declaration: %s", enc)}
	}

	lines := stripEncodingComments(rawLines)

	for _, line := range lines {
		for _, mod := range matchImports(line) {
			if !rules.ModuleAllowed(category, topLevelModule(mod)) {
				return CheckResult{OK: false, Reason: fmt.Sprintf("forbidden import: %s", mod)}
			}
		}
	}

	for _, line := range lines {
		for _, m := range callNameRe.FindAllStringSubmatch(line, -1) {
			name := m[1]
			if rules.CallBanned(name) {
				return CheckResult{OK: false, Reason: fmt.Sprintf("forbidden call: %s", name)}
			}
		}
		for _, m := range attributeRe.FindAllStringSubmatch(line, -1) {
			attr := m[1]
			if rules.AttributeBanned(attr) {
				return CheckResult{OK: false, Reason: fmt.Sprintf("forbidden attribute: %s", attr)}
			}
		}
		for _, m := range stringLiteralRe.FindAllStringSubmatch(line, -1) {
			lit := m[2]
			if len(lit) < 50 {
				if name, found := rules.ContainsBannedSubstring(lit); found {
					return CheckResult{OK: false, Reason: fmt.Sprintf("forbidden construct referenced in string literal: %s", name)}
				}
			}
		}
	}

	return CheckResult{OK: true}
}

// stripEncodingComments removes PEP-263-style "# coding: ..." lines from the
// first two lines once declaredEncoding has already cleared the declaration
// as utf-8/ascii (or absent); the line itself carries no executable meaning
// once cleared and would otherwise confuse the import/call scan below.
func stripEncodingComments(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if i < 2 && encodingCommentRe.MatchString(strings.TrimSpace(line)) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// declaredEncoding returns the codec name from a PEP-263 "# coding: ..."
// comment on either of the first two lines, the only lines CPython itself
// inspects for an encoding declaration.
func declaredEncoding(lines []string) (string, bool) {
	for i, line := range lines {
		if i >= 2 {
			break
		}
		if m := encodingCommentRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// isAllowedEncoding reports whether enc is some spelling of utf-8 or ascii,
// the only encodings under which the scanner's own byte-level view of the
// source matches what a real Python interpreter would decode and execute.
func isAllowedEncoding(enc string) bool {
	switch strings.ToLower(strings.ReplaceAll(enc, "_", "-")) {
	case "utf-8", "utf8", "ascii", "us-ascii":
		return true
	default:
		return false
	}
}

func matchImports(line string) []string {
	var mods []string
	for _, m := range importRe.FindAllStringSubmatch(line, -1) {
		for _, part := range strings.Split(m[1], ",") {
			if fields := strings.Fields(part); len(fields) > 0 {
				mods = append(mods, fields[0])
			}
		}
	}
	for _, m := range fromImportRe.FindAllStringSubmatch(line, -1) {
		mods = append(mods, m[1])
	}
	return mods
}

func topLevelModule(dotted string) string {
	if idx := strings.Index(dotted, "."); idx >= 0 {
		return dotted[:idx]
	}
	return dotted
}
