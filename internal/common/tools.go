// Package common holds small generic helpers shared across store, cache,
// retrieve and optimize — the same role internal/common plays in the teacher.
package common

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// ToInterfaceSlice converts a typed slice to a slice of empty interfaces, for
// building IN(...) clause bind args.
func ToInterfaceSlice[T any](slice []T) []interface{} {
	interfaceSlice := make([]interface{}, len(slice))
	for i, v := range slice {
		interfaceSlice[i] = v
	}
	return interfaceSlice
}

// StringSliceJoin quotes and space-joins a string slice for embedding into a
// full-text query expression.
func StringSliceJoin(slice []string) string {
	result := make([]string, len(slice))
	for i, v := range slice {
		result[i] = `"` + v + `"`
	}
	return strings.Join(result, " ")
}

// GetAttrs projects a slice of A to a slice of B via extract.
func GetAttrs[A, B any](extract func(A) B, attrs ...A) []B {
	result := make([]B, len(attrs))
	for i, attr := range attrs {
		result[i] = extract(attr)
	}
	return result
}

// Deduplicate removes duplicates from a slice based on a key function,
// keeping the first occurrence of each key.
func Deduplicate[T any, K comparable](keyFunc func(T) K, items ...T) []T {
	seen := make(map[K]T)
	order := make([]K, 0, len(items))
	for _, item := range items {
		key := keyFunc(item)
		if _, exists := seen[key]; !exists {
			seen[key] = item
			order = append(order, key)
		}
	}
	result := make([]T, 0, len(order))
	for _, k := range order {
		result = append(result, seen[k])
	}
	return result
}

// CleanInvalidUTF8 strips illegal UTF-8 bytes and NUL bytes from s, used
// before content is fed to the lexical indexer.
func CleanInvalidUTF8(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		if r == 0 {
			i += size
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

var sentenceBoundary = regexp.MustCompile(`(?s)[^.!?\n]*[.!?\n]+`)

// SplitSentences splits text into sentences on ./!/?/newline boundaries,
// keeping the terminator attached. Used by the optimizer's compression and
// token-budget truncation steps, both of which must cut at a sentence
// boundary rather than mid-word.
func SplitSentences(text string) []string {
	matches := sentenceBoundary.FindAllString(text, -1)
	if len(matches) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	consumed := 0
	for _, m := range matches {
		consumed += len(m)
	}
	if consumed < len(text) {
		matches = append(matches, text[consumed:])
	}
	return matches
}

// TokenCount is a deterministic, model-agnostic token estimate (whitespace
// split), used for MAX_CONTEXT_TOKENS budget enforcement (spec.md §4.G step 7).
func TokenCount(text string) int {
	return len(strings.Fields(text))
}

// Unique returns the distinct values of slice in first-seen order.
func Unique[T comparable](slice []T) []T {
	seen := make(map[T]struct{}, len(slice))
	out := make([]T, 0, len(slice))
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SortedKeys returns the sorted keys of m, for deterministic iteration.
func SortedKeys[K string, V any](m map[K]V) []K {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}
