// Package otel wires OpenTelemetry tracing and metrics for eval-copilot.
//
// Spans and metrics go to an OTLP/HTTP endpoint taken from the config file,
// EVAL_COPILOT_OTEL_ENDPOINT or OTEL_EXPORTER_OTLP_ENDPOINT. Without an
// endpoint the global no-op providers stay in place, so instrumented code
// runs unchanged.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	serviceName           = "eval-copilot"
	defaultExportInterval = 15 * time.Second
)

// Version is reported as service.version. cmd sets it from the build version.
var Version = "dev"

// OTELConfig holds the exporter settings.
type OTELConfig struct {
	Endpoint string // OTLP base URL, e.g. "http://localhost:4318"
	Headers  string // k=v pairs separated by commas
	// Interval is the metric export period. Zero means 15s.
	Interval time.Duration
}

// Telemetry owns the exporting providers, if any, and the metric instruments.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Metrics *Metrics
}

// Init installs exporting providers globally when cfg.Endpoint is set.
// The returned Telemetry carries usable instruments either way.
func Init(ctx context.Context, cfg OTELConfig) (*Telemetry, error) {
	t := &Telemetry{}
	if cfg.Endpoint != "" {
		target, err := parseTarget(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(Version),
			),
			resource.WithHost(),
		)
		if err != nil {
			return nil, fmt.Errorf("otel resource: %w", err)
		}
		if err := t.startExporters(ctx, target, parseHeaders(cfg.Headers), cfg.Interval, res); err != nil {
			return nil, err
		}
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics
	return t, nil
}

// target is where both signals are sent.
type target struct {
	host     string
	basePath string
	insecure bool
}

func parseTarget(endpoint string) (target, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return target{}, fmt.Errorf("otel: invalid endpoint URL %q", endpoint)
	}
	return target{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
	}, nil
}

func (t *Telemetry) startExporters(ctx context.Context, tg target, headers map[string]string, interval time.Duration, res *resource.Resource) error {
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(tg.host),
		otlptracehttp.WithURLPath(tg.basePath + "/v1/traces"),
		otlptracehttp.WithHeaders(headers),
	}
	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(tg.host),
		otlpmetrichttp.WithURLPath(tg.basePath + "/v1/metrics"),
		otlpmetrichttp.WithHeaders(headers),
	}
	if tg.insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	spans, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("otel trace exporter: %w", err)
	}
	points, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("otel metric exporter: %w", err)
	}
	if interval <= 0 {
		interval = defaultExportInterval
	}

	t.tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(spans), sdktrace.WithResource(res))
	t.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(points, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)
	return nil
}

// parseHeaders reads the OTEL_EXPORTER_OTLP_HEADERS format: "k=v,k2=v2".
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if ok && key != "" {
			headers[key] = strings.TrimSpace(val)
		}
	}
	return headers
}

// Enabled reports whether spans and metrics are exported.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.tp != nil
}

// Shutdown flushes pending spans and metrics.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return errors.Join(t.tp.Shutdown(ctx), t.mp.Shutdown(ctx))
}
