// Package observability installs the process-wide logging setup: a console
// slog handler plus an optional OTLP log exporter bridged via otelslog.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

const serviceName = "airbyte-token-manager"

// Instrument installs the default slog logger for the process. format is
// "text" or "json". When OTEL_LOGS_EXPORTER is set ("otlp" or "console"),
// log records are additionally exported through the OpenTelemetry log bridge,
// filtered to the same minimum level.
func Instrument(level slog.Level, format string) error {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}

	exporter, err := logExporter(context.Background())
	if err != nil {
		return fmt.Errorf("creating log exporter: %w", err)
	}
	if exporter != nil {
		res, err := resource.Merge(resource.Default(),
			resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
		if err != nil {
			return fmt.Errorf("building resource: %w", err)
		}

		provider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))),
			sdklog.WithResource(res),
		)
		handler = fanout{handler, otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider))}
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// logExporter selects the exporter from OTEL_LOGS_EXPORTER: "otlp" (transport
// per OTEL_EXPORTER_OTLP_PROTOCOL, defaulting to http/protobuf), "console"
// for stdout, anything else disables export.
func logExporter(ctx context.Context) (sdklog.Exporter, error) {
	switch os.Getenv("OTEL_LOGS_EXPORTER") {
	case "otlp":
		if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
			return otlploggrpc.New(ctx)
		}
		return otlploghttp.New(ctx)
	case "console":
		return stdoutlog.New()
	default:
		return nil, nil
	}
}

// severity maps an slog level to the minsev threshold for exported records.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level >= slog.LevelError:
		return minsev.SeverityError
	case level >= slog.LevelWarn:
		return minsev.SeverityWarn
	case level >= slog.LevelInfo:
		return minsev.SeverityInfo
	default:
		return minsev.SeverityDebug
	}
}

// fanout duplicates records to every wrapped handler.
type fanout []slog.Handler

var _ slog.Handler = (fanout)(nil)

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
