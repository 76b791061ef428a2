package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRIDRoundTrip(t *testing.T) {
	ctx := WithRID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RID(ctx))
	assert.Empty(t, RID(context.Background()))
	assert.Equal(t, context.Background(), WithRID(context.Background(), ""))
}
