package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "on"} {
		assert.True(t, truthy(v), v)
	}
	for _, v := range []string{"", "0", "false", "nope"} {
		assert.False(t, truthy(v), v)
	}
}

func TestSampleRatio(t *testing.T) {
	tests := []struct {
		env  string
		want float64
	}{
		{"", 1},
		{"0.25", 0.25},
		{"-3", 0},
		{"7", 1},
		{"abc", 1},
	}
	for _, tt := range tests {
		t.Setenv("OTEL_SAMPLER_RATIO", tt.env)
		assert.Equal(t, tt.want, sampleRatio(), tt.env)
	}
}

func TestHeaders(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization=Bearer x, bad, =v, k=")
	assert.Equal(t, map[string]string{"authorization": "Bearer x"}, headers())

	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")
	assert.Nil(t, headers())
}

func TestStartWithoutInit(t *testing.T) {
	ctx, span := Start(context.Background(), "noop")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsSampled())
}
