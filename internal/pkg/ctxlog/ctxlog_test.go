package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_DefaultsToSlogDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AccumulatesAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), base)
	ctx, _ = With(ctx, "data_source", "vendor")
	_, logger := With(ctx, "stage", "incidents")

	logger.Info("hello")
	assert.Contains(t, buf.String(), "data_source=vendor")
	assert.Contains(t, buf.String(), "stage=incidents")
	assert.Same(t, logger, FromContext(WithLogger(context.Background(), logger)))
}
