package filter

import (
	"fmt"
	"strings"
)

// SQL compiles the tree into a parameterized WHERE clause (no leading
// "WHERE") plus its bound args, consumed by store/postgres. Nested
// metadata.* paths are translated to a JSONB "->>"-chain; top-level fields
// are referenced directly as columns.
func (c *Compiled) SQL() (string, []any) {
	if c == nil || c.root == nil {
		return "TRUE", nil
	}
	var args []any
	clause := sqlNode(c.root, &args)
	return clause, args
}

func sqlNode(e *Expr, args *[]any) string {
	if e.IsGroup() {
		switch e.Group {
		case GroupNot:
			return "NOT (" + sqlNode(e.Children[0], args) + ")"
		case GroupAnd, GroupOr:
			parts := make([]string, 0, len(e.Children))
			for _, c := range e.Children {
				parts = append(parts, "("+sqlNode(c, args)+")")
			}
			sep := " AND "
			if e.Group == GroupOr {
				sep = " OR "
			}
			return strings.Join(parts, sep)
		}
	}
	return sqlLeaf(e, args)
}

func sqlColumn(field string) string {
	segs := fieldPath(field)
	if len(segs) == 1 {
		return segs[0]
	}
	// metadata.department -> metadata->>'department'; deeper paths chain with ->.
	col := segs[0]
	for i, seg := range segs[1:] {
		if i == len(segs)-2 {
			col += fmt.Sprintf("->>'%s'", seg)
		} else {
			col += fmt.Sprintf("->'%s'", seg)
		}
	}
	return col
}

func sqlLeaf(e *Expr, args *[]any) string {
	col := sqlColumn(e.Field)
	bind := func(v any) string {
		*args = append(*args, v)
		return "?"
	}

	switch e.Op {
	case OpEQ:
		return fmt.Sprintf("%s = %s", col, bind(e.Value))
	case OpNEQ:
		return fmt.Sprintf("%s != %s", col, bind(e.Value))
	case OpLT:
		return fmt.Sprintf("%s < %s", col, bind(e.Value))
	case OpLTE:
		return fmt.Sprintf("%s <= %s", col, bind(e.Value))
	case OpGT:
		return fmt.Sprintf("%s > %s", col, bind(e.Value))
	case OpGTE:
		return fmt.Sprintf("%s >= %s", col, bind(e.Value))
	case OpIn:
		return fmt.Sprintf("%s IN %s", col, bind(e.Value))
	case OpNotIn:
		return fmt.Sprintf("%s NOT IN %s", col, bind(e.Value))
	case OpAnyOf:
		return fmt.Sprintf("%s && %s", col, bind(e.Value))
	case OpAllOf:
		return fmt.Sprintf("%s @> %s", col, bind(e.Value))
	case OpNoneOf:
		return fmt.Sprintf("NOT (%s && %s)", col, bind(e.Value))
	case OpContains:
		return sqlText(col, e.Value, e.CaseSensitive, "%%%s%%", args)
	case OpStartsWith:
		return sqlText(col, e.Value, e.CaseSensitive, "%s%%", args)
	case OpEndsWith:
		return sqlText(col, e.Value, e.CaseSensitive, "%%%s", args)
	case OpRegex:
		op := "~"
		if !e.CaseSensitive {
			op = "~*"
		}
		return fmt.Sprintf("%s %s %s", col, op, bind(e.Value))
	case OpIsNull:
		return col + " IS NULL"
	case OpIsNotNull:
		return col + " IS NOT NULL"
	default:
		return "TRUE"
	}
}

func sqlText(col string, value any, caseSensitive bool, pattern string, args *[]any) string {
	str, _ := value.(string)
	like := "LIKE"
	if !caseSensitive {
		like = "ILIKE"
	}
	*args = append(*args, fmt.Sprintf(pattern, str))
	return fmt.Sprintf("%s %s ?", col, like)
}
