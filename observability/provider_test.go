package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	mp := otel.GetMeterProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestNewProviderNilConfig(t *testing.T) {
	_, err := NewProvider(nil)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(&Config{})
	require.NoError(t, err)

	_, ok := p.(*noopProvider)
	assert.True(t, ok)
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.MeterProvider())
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderInvalid(t *testing.T) {
	_, err := NewProvider(&Config{
		Enabled:  true,
		Endpoint: "collector:4317",
		Protocol: "smtp",
	})
	assert.ErrorIs(t, err, ErrInvalidProtocol)
}

func TestNewProviderStdout(t *testing.T) {
	restoreGlobals(t)

	p, err := NewProvider(&Config{Enabled: true, Service: ServiceConfig{Name: "svc", Version: "1.0.0"}})
	require.NoError(t, err)

	assert.Same(t, p.TracerProvider(), otel.GetTracerProvider())
	assert.Same(t, p.MeterProvider(), otel.GetMeterProvider())

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")

	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, Shutdown(p, time.Second))
}

func TestNewProviderOTLP(t *testing.T) {
	restoreGlobals(t)

	tests := []struct {
		name     string
		endpoint string
		protocol string
	}{
		{name: "http host port", endpoint: "localhost:4318", protocol: ProtocolHTTP},
		{name: "http url", endpoint: "http://localhost:4318", protocol: ProtocolHTTP},
		{name: "grpc", endpoint: "localhost:4317", protocol: ProtocolGRPC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			otel.SetTextMapPropagator(propagation.TraceContext{})

			p, err := NewProvider(&Config{
				Enabled:  true,
				Endpoint: tt.endpoint,
				Protocol: tt.protocol,
				Insecure: true,
				Headers:  map[string]string{"x-api-key": "k"},
			})
			require.NoError(t, err)

			// Nothing was recorded, so shutdown does not need the collector.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = p.Shutdown(ctx)
		})
	}
}

func TestShutdownNilProvider(t *testing.T) {
	assert.NoError(t, Shutdown(nil, 0))
}
