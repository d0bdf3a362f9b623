package cache

import (
	"context"

	"github.com/layeredmemory/engine/internal/logger"
	"github.com/sirupsen/logrus"
)

// WithFallback wraps a cache call so that, on failure, it logs once and lets
// the caller fall back to the store (spec.md §4.B: "every cache call is
// wrapped by a fallback path that proceeds against the Vector Store"; §7:
// "Cache failures never surface as errors"). op names the cache operation for
// the log line. If err is nil, WithFallback returns (false, nil) and the
// caller proceeds with the cache result; if non-nil, it returns (true, nil)
// and the caller must fall back to the store.
func WithFallback(ctx context.Context, op string, err error) (fallback bool, _ error) {
	if err == nil {
		return false, nil
	}
	if _, ok := err.(*ErrANNUnsupported); ok {
		return true, nil
	}
	logger.ErrorWithFields(ctx, err, logrus.Fields{"cache_op": op})
	return true, nil
}
