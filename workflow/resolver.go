package workflow

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// ============================================================================
// VariableResolver - template interpolation and condition evaluation
// ============================================================================

// Resolver interpolates {{path}} templates and evaluates restricted
// comparison conditions over a variable map. Pure: no I/O, never panics;
// unresolved references degrade to empty string / false and are logged.
type Resolver struct {
	expressionRegex *regexp.Regexp
}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{
		// Matches expressions like {{ path.to.value }}
		expressionRegex: regexp.MustCompile(`\{\{([^}]+)\}\}`),
	}
}

// Resolve replaces every {{path}} occurrence with the variable at path,
// supporting nested lookup via dot-notation. Unresolved variables are
// replaced with an empty string and logged as a warning, never fatal.
func (r *Resolver) Resolve(template string, vars map[string]any) string {
	return r.expressionRegex.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(r.expressionRegex.FindStringSubmatch(match)[1])

		if isControlKey(path) {
			log.Printf("⚠️  Template references reserved variable %q, replaced with empty string", path)
			return ""
		}

		value, found := lookupPath(vars, path)
		if !found {
			log.Printf("⚠️  Unresolved template variable %q, replaced with empty string", path)
			return ""
		}
		return fmt.Sprintf("%v", value)
	})
}

// ResolveParams resolves every string value in a params map, recursing into
// nested maps and slices. Non-string values pass through untouched.
func (r *Resolver) ResolveParams(params map[string]any, vars map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		resolved[key] = r.resolveValue(value, vars)
	}
	return resolved
}

func (r *Resolver) resolveValue(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		return r.Resolve(v, vars)
	case map[string]any:
		return r.ResolveParams(v, vars)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = r.resolveValue(item, vars)
		}
		return items
	default:
		return value
	}
}

// comparison operators, longest first so "<=" wins over "<"
var conditionOperators = []string{"==", "!=", "<=", ">=", "<", ">"}

// Evaluate evaluates a restricted comparison between a variable reference
// and a literal: `ref op literal` with op one of == != < <= > >=. Both
// sides attempt numeric coercion, falling back to string comparison. A
// malformed expression or missing variable evaluates to false and is
// logged, never raises.
func (r *Resolver) Evaluate(condition string, vars map[string]any) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		log.Printf("⚠️  Empty condition evaluated to false")
		return false
	}

	var operator string
	var idx int = -1
	for _, op := range conditionOperators {
		if i := strings.Index(condition, op); i >= 0 {
			operator = op
			idx = i
			break
		}
	}
	if idx < 0 {
		log.Printf("⚠️  Malformed condition %q (no operator), evaluated to false", condition)
		return false
	}

	left := strings.TrimSpace(condition[:idx])
	right := strings.TrimSpace(condition[idx+len(operator):])
	if left == "" || right == "" {
		log.Printf("⚠️  Malformed condition %q, evaluated to false", condition)
		return false
	}

	leftValue, found := r.leftOperand(left, vars)
	if !found {
		log.Printf("⚠️  Condition %q references missing variable, evaluated to false", condition)
		return false
	}
	rightValue, _ := r.operand(right, vars)

	return compare(leftValue, rightValue, operator)
}

// leftOperand resolves the reference side of a comparison. A {{ref}} or bare
// dotted path is looked up in vars; a bare token only stands as a literal
// when it parses as a number or boolean. An unresolvable identifier counts
// as a missing variable, so the condition evaluates to false rather than
// comparing the variable's own name as a string.
func (r *Resolver) leftOperand(raw string, vars map[string]any) (any, bool) {
	if m := r.expressionRegex.FindStringSubmatch(raw); m != nil && raw == m[0] {
		return lookupPath(vars, strings.TrimSpace(m[1]))
	}

	unquoted := strings.Trim(raw, `"'`)
	if unquoted != raw {
		return unquoted, true
	}

	if value, found := lookupPath(vars, raw); found {
		return value, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, true
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b, true
	}
	return nil, false
}

// operand resolves the literal side: a {{ref}} or known variable name is
// looked up in vars; anything else is a literal (quotes stripped).
func (r *Resolver) operand(raw string, vars map[string]any) (any, bool) {
	if m := r.expressionRegex.FindStringSubmatch(raw); m != nil && raw == m[0] {
		return lookupPath(vars, strings.TrimSpace(m[1]))
	}

	unquoted := strings.Trim(raw, `"'`)
	if unquoted != raw {
		return unquoted, true
	}

	if value, found := lookupPath(vars, raw); found {
		return value, true
	}
	return raw, true
}

func compare(a, b any, operator string) bool {
	aFloat, aOk := toFloat64(a)
	bFloat, bOk := toFloat64(b)

	if aOk && bOk {
		switch operator {
		case "==":
			return aFloat == bFloat
		case "!=":
			return aFloat != bFloat
		case "<":
			return aFloat < bFloat
		case "<=":
			return aFloat <= bFloat
		case ">":
			return aFloat > bFloat
		case ">=":
			return aFloat >= bFloat
		}
		return false
	}

	aStr := fmt.Sprintf("%v", a)
	bStr := fmt.Sprintf("%v", b)
	switch operator {
	case "==":
		return aStr == bStr
	case "!=":
		return aStr != bStr
	case "<":
		return aStr < bStr
	case "<=":
		return aStr <= bStr
	case ">":
		return aStr > bStr
	case ">=":
		return aStr >= bStr
	}
	return false
}

// lookupPath resolves a dot-notation path against a nested variable map.
func lookupPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := any(data)

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok := m[part]
		if !ok {
			return nil, false
		}
		current = value
	}

	return current, true
}

func isControlKey(path string) bool {
	return strings.HasPrefix(path, ControlKeyPrefix)
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
