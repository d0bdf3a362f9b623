package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FieldSource resolves a dot-notation field path against an entity for
// in-memory evaluation. A missing intermediate key returns (nil, false).
type FieldSource interface {
	Field(path string) (any, bool)
}

// MapSource adapts a nested map[string]any (e.g. a KnowledgeItem's Metadata,
// merged with its top-level scalar fields) to FieldSource.
type MapSource map[string]any

// Field implements FieldSource by walking dot-separated path segments.
func (m MapSource) Field(path string) (any, bool) {
	segs := fieldPath(path)
	var cur any = map[string]any(m)
	for _, seg := range segs {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := asMap[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Match evaluates the compiled filter against src. A nil Compiled (no filter)
// always matches.
func (c *Compiled) Match(src FieldSource) bool {
	if c == nil || c.root == nil {
		return true
	}
	return evalNode(c.root, src)
}

func evalNode(e *Expr, src FieldSource) bool {
	if e == nil {
		return true
	}
	if e.IsGroup() {
		switch e.Group {
		case GroupAnd:
			for _, c := range e.Children {
				if !evalNode(c, src) {
					return false
				}
			}
			return true
		case GroupOr:
			for _, c := range e.Children {
				if evalNode(c, src) {
					return true
				}
			}
			return false
		case GroupNot:
			return !evalNode(e.Children[0], src)
		}
		return false
	}
	return evalLeaf(e, src)
}

func evalLeaf(e *Expr, src FieldSource) bool {
	val, present := src.Field(e.Field)

	switch e.Op {
	case OpIsNull:
		return !present || val == nil
	case OpIsNotNull:
		return present && val != nil
	}

	// A missing intermediate key (or nil value) makes any other leaf false
	// (spec.md §4.C: "a missing intermediate key makes the leaf false unless
	// the operator is IS_NULL").
	if !present || val == nil {
		return false
	}

	switch e.Op {
	case OpEQ:
		return compareEQ(val, e.Value)
	case OpNEQ:
		return !compareEQ(val, e.Value)
	case OpLT:
		c, ok := compareOrdered(val, e.Value)
		return ok && c < 0
	case OpLTE:
		c, ok := compareOrdered(val, e.Value)
		return ok && c <= 0
	case OpGT:
		c, ok := compareOrdered(val, e.Value)
		return ok && c > 0
	case OpGTE:
		c, ok := compareOrdered(val, e.Value)
		return ok && c >= 0
	case OpIn:
		return membership(val, e.Value)
	case OpNotIn:
		return !membership(val, e.Value)
	case OpAnyOf:
		return setOverlap(val, e.Value, false)
	case OpAllOf:
		return setOverlap(val, e.Value, true)
	case OpNoneOf:
		return !setOverlap(val, e.Value, false)
	case OpContains:
		return textMatch(val, e.Value, e.CaseSensitive, strings.Contains)
	case OpStartsWith:
		return textMatch(val, e.Value, e.CaseSensitive, strings.HasPrefix)
	case OpEndsWith:
		return textMatch(val, e.Value, e.CaseSensitive, strings.HasSuffix)
	case OpRegex:
		return regexMatch(val, e.Value, e.CaseSensitive)
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
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
	default:
		return 0, false
	}
}

func compareEQ(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Equal(bt)
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareOrdered(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func membership(val, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if compareEQ(val, item) {
			return true
		}
	}
	return false
}

// setOverlap treats val as an array-valued field. When all is true it
// requires every element of target to appear in val (ALL_OF); otherwise it
// requires at least one element of target to appear in val (ANY_OF/NONE_OF).
func setOverlap(val, target any, all bool) bool {
	valSlice := toStringSlice(val)
	targetSlice := toStringSlice(target)
	if len(targetSlice) == 0 {
		return all
	}
	set := make(map[string]struct{}, len(valSlice))
	for _, v := range valSlice {
		set[v] = struct{}{}
	}
	if all {
		for _, t := range targetSlice {
			if _, ok := set[t]; !ok {
				return false
			}
		}
		return true
	}
	for _, t := range targetSlice {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return nil
	}
}

func textMatch(val, target any, caseSensitive bool, fn func(s, substr string) bool) bool {
	str, ok := val.(string)
	if !ok {
		return false
	}
	sub, ok := target.(string)
	if !ok {
		return false
	}
	if !caseSensitive {
		str = strings.ToLower(str)
		sub = strings.ToLower(sub)
	}
	return fn(str, sub)
}

func regexMatch(val, pattern any, caseSensitive bool) bool {
	str, ok := val.(string)
	if !ok {
		return false
	}
	pat, ok := pattern.(string)
	if !ok {
		return false
	}
	if !caseSensitive {
		pat = "(?i)" + pat
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return false
	}
	return re.MatchString(str)
}
