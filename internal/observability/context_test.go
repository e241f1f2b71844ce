package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
	assert.Equal(t, "", CorrelationIDFromContext(context.Background()))
}

func TestRequestContextFull(t *testing.T) {
	t.Run("round trips all fields", func(t *testing.T) {
		rc := RequestContext{
			RequestID:     "req-1",
			CorrelationID: "corr-1",
		}
		ctx := WithRequestContextFull(context.Background(), rc)
		assert.Equal(t, rc, RequestContextFromContext(ctx))
	})

	t.Run("skips empty fields", func(t *testing.T) {
		ctx := WithRequestContextFull(context.Background(), RequestContext{RequestID: "req-2"})
		got := RequestContextFromContext(ctx)
		assert.Equal(t, "req-2", got.RequestID)
		assert.Empty(t, got.CorrelationID)
	})
}

func TestContextOverwrite(t *testing.T) {
	ctx := WithRequestID(context.Background(), "first")
	ctx = WithRequestID(ctx, "second")
	assert.Equal(t, "second", RequestIDFromContext(ctx))
}
