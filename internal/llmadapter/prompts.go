package llmadapter

import (
	"fmt"
	"strings"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/pkg/domain"
)

// buildSystemPrompt assembles the category-specific system prompt mandated
// by spec.md §4.3: type annotations, docstring, self-test block, allowed
// imports, forbidden list, parameter naming convention, contract injection,
// and error-context injection.
func buildSystemPrompt(category domain.Category, contract *domain.Contract, errorContext string) string {
	var sb strings.Builder

	switch category {
	case domain.CategoryFetch:
		sb.WriteString("You are generating a FETCH tool for a financial data runtime.\n")
	case domain.CategoryComposite:
		sb.WriteString("You are generating a COMPOSITE tool that combines fetched data and calculation.\n")
	default:
		sb.WriteString("You are generating a CALCULATION tool for a financial data runtime.\n")
	}

	sb.WriteString("\nRequirements:\n")
	sb.WriteString("1. Annotate every parameter and the return type.\n")
	sb.WriteString("2. Include a docstring with Args and Returns sections.\n")
	sb.WriteString("3. Include a self-test block under `if __name__ == \"__main__\":` with at least\n")
	sb.WriteString("   two assertions, using inline literal sample data. Do not call the network.\n")

	rules := constraints.Default()
	sb.WriteString("4. Allowed imports for this category: ")
	sb.WriteString(allowedImportsSummary(category, rules))
	sb.WriteString("\n")

	sb.WriteString("5. FORBIDDEN — using any of the following will cause automatic rejection:\n")
	sb.WriteString("   modules: os, sys, subprocess, socket, http, pickle, multiprocessing, threading, ...\n")
	sb.WriteString("   calls: eval, exec, compile, __import__, globals, locals, getattr, open, input, ...\n")
	sb.WriteString("   attributes: __class__, __bases__, __subclasses__, __globals__, __dict__, ...\n")

	if category == domain.CategoryCalculation || category == domain.CategoryComposite {
		sb.WriteString("6. Parameter naming: single time-series inputs are named `prices`; multi-asset\n")
		sb.WriteString("   portfolios use positional names `prices1`, `prices2`, ... `pricesN`; volume-price\n")
		sb.WriteString("   tasks use the plural `volumes`.\n")
	}

	if contract != nil {
		sb.WriteString(fmt.Sprintf("7. Required return type: %s.\n", contract.OutputType))
		if len(contract.OutputConstraints.RequiredKeys) > 0 {
			sb.WriteString("   Required output keys: " + strings.Join(contract.OutputConstraints.RequiredKeys, ", ") + "\n")
		}
		if contract.OutputConstraints.Min != nil || contract.OutputConstraints.Max != nil {
			sb.WriteString(fmt.Sprintf("   Output bounds: min=%v max=%v\n", contract.OutputConstraints.Min, contract.OutputConstraints.Max))
		}
	}

	if errorContext != "" {
		sb.WriteString("8. The previous attempt failed. Fix this and avoid repeating it:\n")
		sb.WriteString("   " + errorContext + "\n")
	}

	sb.WriteString("\nReturn your reasoning inside <think>...</think> (optional), then a single fenced\n")
	sb.WriteString("```python code block with the complete module.\n")

	return sb.String()
}

func allowedImportsSummary(category domain.Category, rules *constraints.Rules) string {
	base := []string{"pandas", "numpy", "scipy", "statistics", "collections", "itertools",
		"functools", "datetime", "decimal", "json", "math", "re", "typing"}
	if category == domain.CategoryFetch {
		base = append(base, "requests", "hashlib", "warnings")
	}
	return strings.Join(base, ", ")
}
