package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitNone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = ExporterNone

	tel, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, tel.MetricsHandler())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestInitPrometheus(t *testing.T) {
	tel, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	require.NotNil(t, tel.MetricsHandler())

	counter, err := otel.Meter("ta2.telemetry.test").Int64Counter("ta2_probe_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ta2_probe_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestInitStdout(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterStdout
	cfg.Output = &buf

	tel, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	_, span := otel.Tracer("ta2.telemetry.test").Start(context.Background(), "probe")
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"probe"`)
}

func TestInitUnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"
	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg = DefaultConfig()
	cfg.MetricExporter = "statsd"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
