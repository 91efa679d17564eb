package contracts

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/example/toolforge/pkg/domain"
)

// Validate checks value against contract's declared output type and
// constraints (spec.md §4.4 output validators).
func Validate(contract domain.Contract, value any) error {
	switch contract.OutputType {
	case domain.OutputNumeric:
		return validateNumeric(contract, value)
	case domain.OutputDict:
		return validateDict(contract, value)
	case domain.OutputBoolean:
		return validateBoolean(value)
	case domain.OutputList:
		return validateList(contract, value)
	case domain.OutputFrame:
		return validateFrame(contract, value)
	default:
		return fmt.Errorf("unknown output type: %s", contract.OutputType)
	}
}

func validateNumeric(contract domain.Contract, value any) error {
	f, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("contract %s: expected NUMERIC, got %T", contract.ContractID, value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("contract %s: value is not finite", contract.ContractID)
	}
	c := contract.OutputConstraints
	if c.Min != nil && f < *c.Min {
		return fmt.Errorf("contract %s: value %v below minimum %v", contract.ContractID, f, *c.Min)
	}
	if c.Max != nil && f > *c.Max {
		return fmt.Errorf("contract %s: value %v above maximum %v", contract.ContractID, f, *c.Max)
	}
	return nil
}

func validateDict(contract domain.Contract, value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("contract %s: expected DICT, got %T", contract.ContractID, value)
	}
	c := contract.OutputConstraints
	for _, key := range c.RequiredKeys {
		if _, present := m[key]; !present {
			return fmt.Errorf("contract %s: missing required key %q", contract.ContractID, key)
		}
	}
	// Per-key type tags: a "float" key must hold a number; an "enum" key is
	// checked against the enum set via a compiled JSON Schema document, so
	// that constraint lives in data, not in hand-rolled Go conditionals.
	for key, kind := range c.KeyTypes {
		switch kind {
		case "float":
			if v, present := m[key]; present {
				if _, ok := toFloat(v); !ok {
					return fmt.Errorf("contract %s: key %q is not numeric: %T", contract.ContractID, key, v)
				}
			}
		case "enum":
			if len(c.Enum) == 0 {
				continue
			}
			if err := validateEnumField(contract.ContractID, key, m[key], c.Enum); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateEnumField(contractID, key string, value any, enum []string) error {
	schemaDoc := map[string]any{"type": "string", "enum": enum}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("contract %s: build enum schema for %q: %w", contractID, key, err)
	}
	compiled, err := jsonschema.CompileString(contractID+"#"+key, string(raw))
	if err != nil {
		return fmt.Errorf("contract %s: compile enum schema for %q: %w", contractID, key, err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("contract %s: field %q failed enum validation: %w", contractID, key, err)
	}
	return nil
}

func validateBoolean(value any) error {
	switch v := value.(type) {
	case bool:
		return nil
	case string:
		if v == "True" || v == "False" || v == "true" || v == "false" {
			return nil
		}
	}
	return fmt.Errorf("expected BOOLEAN, got %T(%v)", value, value)
}

func validateList(contract domain.Contract, value any) error {
	lst, ok := value.([]any)
	if !ok {
		return fmt.Errorf("contract %s: expected LIST, got %T", contract.ContractID, value)
	}
	c := contract.OutputConstraints
	if c.MinElements != nil && len(lst) < *c.MinElements {
		return fmt.Errorf("contract %s: list has %d elements, need >= %d", contract.ContractID, len(lst), *c.MinElements)
	}
	if c.MaxElements != nil && len(lst) > *c.MaxElements {
		return fmt.Errorf("contract %s: list has %d elements, need <= %d", contract.ContractID, len(lst), *c.MaxElements)
	}
	if c.ElementType == "float" {
		for idx, el := range lst {
			if _, ok := toFloat(el); !ok {
				return fmt.Errorf("contract %s: element %d is not numeric: %T", contract.ContractID, idx, el)
			}
		}
	}
	return nil
}

func validateFrame(contract domain.Contract, value any) error {
	frame, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("contract %s: expected FRAME, got %T", contract.ContractID, value)
	}
	columnsRaw, hasColumns := frame["columns"]
	rowsRaw, hasRows := frame["rows"]
	if !hasColumns || !hasRows {
		return fmt.Errorf("contract %s: FRAME requires 'columns' and 'rows' keys", contract.ContractID)
	}
	columns, ok := columnsRaw.([]any)
	if !ok {
		return fmt.Errorf("contract %s: FRAME 'columns' must be a list", contract.ContractID)
	}
	colSet := make(map[string]bool, len(columns))
	for _, c := range columns {
		if s, ok := c.(string); ok {
			colSet[s] = true
		}
	}
	c := contract.OutputConstraints
	for _, required := range c.RequiredColumns {
		if !colSet[required] {
			return fmt.Errorf("contract %s: FRAME missing required column %q", contract.ContractID, required)
		}
	}
	rows, ok := rowsRaw.([]any)
	if !ok {
		return fmt.Errorf("contract %s: FRAME 'rows' must be a list", contract.ContractID)
	}
	if c.MinRows != nil && len(rows) < *c.MinRows {
		return fmt.Errorf("contract %s: FRAME has %d rows, need >= %d", contract.ContractID, len(rows), *c.MinRows)
	}
	if c.MaxRows != nil && len(rows) > *c.MaxRows {
		return fmt.Errorf("contract %s: FRAME has %d rows, need <= %d", contract.ContractID, len(rows), *c.MaxRows)
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ValidateRequiredInputs checks that every contract.RequiredInputs key is
// present in args.
func ValidateRequiredInputs(contract domain.Contract, args map[string]any) error {
	for _, key := range contract.RequiredInputs {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("contract %s: missing required input %q", contract.ContractID, key)
		}
	}
	return nil
}
