package filter

import "encoding/json"

// Marshal serializes expr to JSON, for cache-key fingerprinting and the
// compile-decompile round-trip law (spec.md §8).
func Marshal(expr *Expr) ([]byte, error) {
	return json.Marshal(expr)
}

// Unmarshal parses JSON produced by Marshal back into an Expr tree.
func Unmarshal(data []byte) (*Expr, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var expr Expr
	if err := json.Unmarshal(data, &expr); err != nil {
		return nil, err
	}
	return &expr, nil
}
