package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileBetweenRewrite(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expr := Leaf("importance", OpBetween, [2]any{0.2, 0.8})

	compiled, err := Compile(expr, DefaultTypeRegistry(), now)
	require.NoError(t, err)

	assert.True(t, compiled.Match(MapSource{"importance": 0.5}))
	assert.False(t, compiled.Match(MapSource{"importance": 0.1}))
	assert.False(t, compiled.Match(MapSource{"importance": 0.9}))

	sql, args := compiled.SQL()
	assert.Contains(t, sql, "importance >=")
	assert.Contains(t, sql, "importance <=")
	assert.Equal(t, []any{0.2, 0.8}, args)
}

func TestCompileTimeWindowRewrite(t *testing.T) {
	now := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	expr := TimeWindow("created_at", "168h") // 7 days

	compiled, err := Compile(expr, DefaultTypeRegistry(), now)
	require.NoError(t, err)

	recent := now.Add(-24 * time.Hour)
	stale := now.Add(-200 * time.Hour)
	assert.True(t, compiled.Match(MapSource{"created_at": recent}))
	assert.False(t, compiled.Match(MapSource{"created_at": stale}))
}

func TestNormalizeCollapsesSingleChildGroup(t *testing.T) {
	expr := And(Leaf("category", OpEQ, "knowledge"))
	compiled, err := Compile(expr, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, compiled.Match(MapSource{"category": "knowledge"}))
}

func TestNormalizeFlattensNestedSameOperatorGroups(t *testing.T) {
	expr := And(
		Leaf("category", OpEQ, "knowledge"),
		And(Leaf("importance", OpGTE, 0.5), Leaf("confidence", OpGTE, 0.5)),
	)
	normalized, err := normalize(expr)
	require.NoError(t, err)
	require.True(t, normalized.IsGroup())
	assert.Equal(t, GroupAnd, normalized.Group)
	assert.Len(t, normalized.Children, 3)
}

func TestTypeCheckRejectsMismatchedValue(t *testing.T) {
	expr := Leaf("importance", OpEQ, "not-a-number")
	_, err := Compile(expr, DefaultTypeRegistry(), time.Now())
	require.Error(t, err)
}

func TestRegexRefusesUnboundedWidthOnUnindexedField(t *testing.T) {
	registry := NewTypeRegistry(nil)
	longPattern := ""
	for i := 0; i < maxUnboundedRegexWidth+1; i++ {
		longPattern += "a"
	}
	expr := Leaf("free_text_field", OpRegex, longPattern)
	_, err := Compile(expr, registry, time.Now())
	require.Error(t, err)
}

func TestMissingNestedPathIsFalseExceptIsNull(t *testing.T) {
	expr := Leaf("metadata.project.status", OpEQ, "done")
	compiled, err := Compile(expr, nil, time.Now())
	require.NoError(t, err)
	doc := MapSource{"metadata": map[string]any{}}
	assert.False(t, compiled.Match(doc))

	isNull := Leaf("metadata.project.status", OpIsNull, nil)
	compiledNull, err := Compile(isNull, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, compiledNull.Match(doc))
}

func TestAnyOfAllOfNoneOf(t *testing.T) {
	doc := MapSource{"tags": []string{"python", "go"}}

	anyOf, err := Compile(Leaf("tags", OpAnyOf, []any{"python", "rust"}), nil, time.Now())
	require.NoError(t, err)
	assert.True(t, anyOf.Match(doc))

	allOf, err := Compile(Leaf("tags", OpAllOf, []any{"python", "go"}), nil, time.Now())
	require.NoError(t, err)
	assert.True(t, allOf.Match(doc))

	noneOf, err := Compile(Leaf("tags", OpNoneOf, []any{"rust", "java"}), nil, time.Now())
	require.NoError(t, err)
	assert.True(t, noneOf.Match(doc))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	expr := And(
		Leaf("category", OpEQ, "knowledge"),
		TimeWindow("created_at", "168h"),
		&Expr{Field: "tags", Op: OpAnyOf, Value: []any{"python", "rust"}},
	)
	data, err := Marshal(expr)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	redata, err := Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(redata))
}

func TestFilterCompilationScenario(t *testing.T) {
	// spec.md §8 scenario 6.
	now := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	expr := And(
		Leaf("category", OpEQ, "knowledge"),
		TimeWindow("created_at", "168h"),
		&Expr{Field: "tags", Op: OpAnyOf, Value: []any{"python", "rust"}},
	)
	compiled, err := Compile(expr, DefaultTypeRegistry(), now)
	require.NoError(t, err)

	matching := MapSource{
		"category":   "knowledge",
		"created_at": now.Add(-24 * time.Hour),
		"tags":       []string{"python"},
	}
	assert.True(t, compiled.Match(matching))

	sql, args := compiled.SQL()
	assert.NotEmpty(t, sql)
	assert.NotEmpty(t, args)
}
