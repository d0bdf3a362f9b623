package filter

import (
	"fmt"
	"regexp"
	"time"

	apperrors "github.com/layeredmemory/engine/internal/errors"
)

// maxUnboundedRegexWidth bounds a REGEX pattern's source length when the
// target field has no declared (indexed) type; longer patterns are refused
// per spec.md §4.C step 5 ("Refuses regexes of unbounded width when the
// target field lacks an index").
const maxUnboundedRegexWidth = 64

// Compiled is the result of compiling an Expr tree once per query. It carries
// both a relational predicate (SQL fragment + bound args, consumed by
// store/postgres) and an in-memory evaluator, which must agree by construction
// (§8: "the set {x : compile(f)(x)} equals {x : evaluate_in_memory(f, x)}") —
// both are derived from the same normalized tree, never built independently.
type Compiled struct {
	root *Expr
	now  time.Time
}

// Compile normalizes, rewrites and type-checks expr against registry, and
// returns a Compiled ready for both SQL generation and in-memory evaluation.
// now is fixed at compile time so time_window(...) rewrites are stable for the
// lifetime of a single query (spec.md §4.C step 3: "computed at compile time").
func Compile(expr *Expr, registry *TypeRegistry, now time.Time) (*Compiled, error) {
	if expr == nil {
		return &Compiled{root: nil, now: now}, nil
	}
	normalized, err := normalize(expr)
	if err != nil {
		return nil, err
	}
	rewritten, err := rewrite(normalized, now)
	if err != nil {
		return nil, err
	}
	if err := typeCheck(rewritten, registry); err != nil {
		return nil, err
	}
	if err := checkRegexWidth(rewritten, registry); err != nil {
		return nil, err
	}
	return &Compiled{root: rewritten, now: now}, nil
}

// normalize collapses single-child groups and flattens nested same-operator
// groups (spec.md §4.C step 1).
func normalize(e *Expr) (*Expr, error) {
	if e == nil {
		return nil, nil
	}
	if e.IsLeaf() {
		leaf := *e
		return &leaf, nil
	}
	if e.Group == GroupNot {
		if len(e.Children) != 1 {
			return nil, apperrors.NewValidation("NOT group must have exactly one child")
		}
		child, err := normalize(e.Children[0])
		if err != nil {
			return nil, err
		}
		return &Expr{Group: GroupNot, Children: []*Expr{child}}, nil
	}

	children := make([]*Expr, 0, len(e.Children))
	for _, c := range e.Children {
		nc, err := normalize(c)
		if err != nil {
			return nil, err
		}
		// Flatten nested same-operator groups.
		if nc.IsGroup() && nc.Group == e.Group {
			children = append(children, nc.Children...)
			continue
		}
		children = append(children, nc)
	}
	// Collapse a single-child group into its child.
	if len(children) == 1 {
		return children[0], nil
	}
	if len(children) == 0 {
		return nil, apperrors.NewValidation(fmt.Sprintf("%s group has no children", e.Group))
	}
	return &Expr{Group: e.Group, Children: children}, nil
}

// rewrite applies the BETWEEN and time_window sugar rewrites (spec.md §4.C steps 2-3).
func rewrite(e *Expr, now time.Time) (*Expr, error) {
	if e == nil {
		return nil, nil
	}
	if e.IsGroup() {
		children := make([]*Expr, 0, len(e.Children))
		for _, c := range e.Children {
			rc, err := rewrite(c, now)
			if err != nil {
				return nil, err
			}
			children = append(children, rc)
		}
		return &Expr{Group: e.Group, Children: children}, nil
	}

	switch e.Op {
	case OpBetween:
		bounds, ok := e.Value.([2]any)
		if !ok {
			if arr, ok2 := e.Value.([]any); ok2 && len(arr) == 2 {
				bounds = [2]any{arr[0], arr[1]}
			} else {
				return nil, apperrors.NewValidation("BETWEEN requires a [lo, hi] value pair")
			}
		}
		return &Expr{
			Group: GroupAnd,
			Children: []*Expr{
				Leaf(e.Field, OpGTE, bounds[0]),
				Leaf(e.Field, OpLTE, bounds[1]),
			},
		}, nil
	case opTimeWindow:
		d, err := time.ParseDuration(e.WindowDuration)
		if err != nil {
			return nil, apperrors.NewValidation("time_window has an invalid duration: " + e.WindowDuration).WithCause(err)
		}
		return Leaf(e.Field, OpGTE, now.Add(-d)), nil
	default:
		leaf := *e
		return &leaf, nil
	}
}

// typeCheck rejects leaves whose value type does not match the field's
// declared type (spec.md §4.C step 4). Unregistered fields (e.g. arbitrary
// metadata.* paths) are not type-checked.
func typeCheck(e *Expr, registry *TypeRegistry) error {
	if e == nil {
		return nil
	}
	if e.IsGroup() {
		for _, c := range e.Children {
			if err := typeCheck(c, registry); err != nil {
				return err
			}
		}
		return nil
	}
	if registry == nil {
		return nil
	}
	declared, ok := registry.Lookup(e.Field)
	if !ok {
		return nil
	}
	if e.Op == OpIsNull || e.Op == OpIsNotNull {
		return nil
	}
	if !valueMatchesType(e.Op, e.Value, declared) {
		return apperrors.NewFilterType(fmt.Sprintf(
			"field %q declared as %s does not accept operator %s with the given value", e.Field, declared, e.Op))
	}
	return nil
}

func valueMatchesType(op Operator, value any, declared FieldType) bool {
	switch declared {
	case TypeNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		case []any:
			return op == OpIn || op == OpNotIn
		default:
			return false
		}
	case TypeTimestamp:
		switch value.(type) {
		case time.Time:
			return true
		default:
			return false
		}
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeArray:
		switch op {
		case OpAnyOf, OpAllOf, OpNoneOf, OpContains:
			return true
		default:
			_, ok := value.(string)
			return ok
		}
	case TypeString:
		_, ok := value.(string)
		if ok {
			return true
		}
		if op == OpIn || op == OpNotIn {
			_, ok = value.([]any)
			return ok
		}
		return false
	default:
		return true
	}
}

// checkRegexWidth refuses REGEX leaves with an overlong pattern on a field
// that has no declared type (treated as "lacks an index").
func checkRegexWidth(e *Expr, registry *TypeRegistry) error {
	if e == nil {
		return nil
	}
	if e.IsGroup() {
		for _, c := range e.Children {
			if err := checkRegexWidth(c, registry); err != nil {
				return err
			}
		}
		return nil
	}
	if e.Op != OpRegex {
		return nil
	}
	pattern, _ := e.Value.(string)
	if _, err := regexp.Compile(pattern); err != nil {
		return apperrors.NewFilterType("invalid regex for field " + e.Field).WithCause(err)
	}
	indexed := false
	if registry != nil {
		_, indexed = registry.Lookup(e.Field)
	}
	if !indexed && len(pattern) > maxUnboundedRegexWidth {
		return apperrors.NewFilterType(fmt.Sprintf(
			"regex on unindexed field %q exceeds the unbounded-width limit (%d)", e.Field, maxUnboundedRegexWidth))
	}
	return nil
}
