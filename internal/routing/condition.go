// Package routing evaluates routing rule conditions against ingested events
// and selects the rules whose destinations should receive each event.
package routing

import (
	"encoding/json"
	"fmt"
	"strings"

	"event-router/internal/common/errors"
)

// Comparison operators supported in rule conditions. A condition document is
// a map of dot-separated field paths to either a literal (implicit equality)
// or an operator map such as {"$gt": 100}. Multiple entries are combined
// with logical AND.
const (
	OpEq     = "$eq"
	OpNe     = "$ne"
	OpGt     = "$gt"
	OpGte    = "$gte"
	OpLt     = "$lt"
	OpLte    = "$lte"
	OpExists = "$exists"
)

var knownOperators = map[string]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpExists: true,
}

// EvaluateCondition reports whether the condition document matches the given
// root document. An empty condition matches everything.
func EvaluateCondition(condition map[string]interface{}, doc map[string]interface{}) (bool, error) {
	for path, expected := range condition {
		matched, err := evaluateField(path, expected, doc)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func evaluateField(path string, expected interface{}, doc map[string]interface{}) (bool, error) {
	actual, present := resolvePath(doc, path)

	operators, ok := asOperatorMap(expected)
	if !ok {
		// Bare literal is shorthand for {"$eq": literal}
		return present && valuesEqual(actual, expected), nil
	}

	for op, operand := range operators {
		matched, err := applyOperator(op, operand, actual, present)
		if err != nil {
			return false, errors.RuleEvaluationError(
				fmt.Sprintf("field %q: %s", path, err.Error()), err)
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func applyOperator(op string, operand, actual interface{}, present bool) (bool, error) {
	switch op {
	case OpEq:
		return present && valuesEqual(actual, operand), nil

	case OpNe:
		// Absent fields are considered not-equal to any operand
		if !present {
			return true, nil
		}
		return !valuesEqual(actual, operand), nil

	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false, nil
		}
		left, ok := toFloat64(actual)
		if !ok {
			return false, nil
		}
		right, ok := toFloat64(operand)
		if !ok {
			return false, fmt.Errorf("operator %s requires a numeric operand, got %T", op, operand)
		}
		switch op {
		case OpGt:
			return left > right, nil
		case OpGte:
			return left >= right, nil
		case OpLt:
			return left < right, nil
		default:
			return left <= right, nil
		}

	case OpExists:
		want, ok := operand.(bool)
		if !ok {
			return false, fmt.Errorf("operator $exists requires a boolean operand, got %T", operand)
		}
		return present == want, nil

	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// asOperatorMap reports whether the expected value is an operator document.
// A map where every key starts with '$' is treated as operators; any other
// map is an equality match against a nested object literal.
func asOperatorMap(expected interface{}) (map[string]interface{}, bool) {
	m, ok := expected.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

// resolvePath walks a dot-separated path through nested maps. It returns the
// value and whether the full path exists. Path segments never index into
// arrays; hitting a non-map mid-path means the field is absent.
func resolvePath(doc map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var current interface{} = doc

	for _, segment := range segments {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat64(a); ok {
		if fb, okb := toFloat64(b); okb {
			return fa == fb
		}
		return false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		// Nested objects and arrays compare by canonical JSON form
		aj, errA := json.Marshal(a)
		bj, errB := json.Marshal(b)
		return errA == nil && errB == nil && string(aj) == string(bj)
	}
}

// toFloat64 converts numeric values to float64 for comparison. Strings are
// never coerced; "100" does not equal 100.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ValidateCondition checks a condition document at rule creation time so
// malformed operator maps are rejected before they reach the hot path.
func ValidateCondition(condition map[string]interface{}) error {
	for path, expected := range condition {
		if path == "" {
			return errors.ValidationError("condition field path must not be empty")
		}

		operators, ok := asOperatorMap(expected)
		if !ok {
			continue
		}

		for op, operand := range operators {
			if !knownOperators[op] {
				return errors.ValidationError(fmt.Sprintf("field %q: unknown operator %q", path, op))
			}
			switch op {
			case OpGt, OpGte, OpLt, OpLte:
				if _, numeric := toFloat64(operand); !numeric {
					return errors.ValidationError(
						fmt.Sprintf("field %q: operator %s requires a numeric operand", path, op))
				}
			case OpExists:
				if _, isBool := operand.(bool); !isBool {
					return errors.ValidationError(
						fmt.Sprintf("field %q: operator $exists requires a boolean operand", path))
				}
			}
		}
	}
	return nil
}
