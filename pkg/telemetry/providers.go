// OpenTelemetry provider lifecycle for a single run
// Builds trace, metric and log providers over one shared exporter choice and flushes them once
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ScopeName is the instrumentation scope for every tracer, meter and logger.
const ScopeName = "github.com/paper2/github-actions-opentelemetry-sub000"

// DefaultServiceName is used when neither a flag nor OTEL_SERVICE_NAME sets one.
const DefaultServiceName = "github-actions"

// ShutdownTimeout bounds Flush when the caller's context has no deadline.
const ShutdownTimeout = 5 * time.Second

// Protocols accepted for OTLP export.
const (
	ProtocolHTTP = "http/protobuf"
	ProtocolGRPC = "grpc"
)

// Options selects exporters and enabled signals.
type Options struct {
	// Endpoint is the OTLP host:port; empty defers to the SDK's environment handling.
	Endpoint string
	Protocol string
	// Stdout writes JSON to Writer instead of sending OTLP.
	Stdout bool
	Writer io.Writer

	Traces  bool
	Metrics bool
	Logs    bool
}

// ValidateProtocol rejects protocols other than http/protobuf and grpc.
func ValidateProtocol(p string) error {
	switch p {
	case ProtocolHTTP, ProtocolGRPC, "":
		return nil
	}
	return fmt.Errorf("unsupported protocol %q, supported: http/protobuf, grpc", p)
}

// flushable is anything with ForceFlush and Shutdown (all three SDK providers).
type flushable interface {
	ForceFlush(context.Context) error
	Shutdown(context.Context) error
}

// Providers holds the providers for one invocation. Disabled signals get
// no-op providers so callers never branch on nil.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	LoggerProvider log.LoggerProvider

	sdk []flushable

	once     sync.Once
	flushErr error
}

// NewResource merges the SDK default resource (which reads OTEL_SERVICE_NAME
// and OTEL_RESOURCE_ATTRIBUTES) with the service identity of this binary.
// An explicit serviceName wins over the environment.
func NewResource(serviceName, version string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.version", version),
		attribute.String("service.instance.id", uuid.NewString()),
	}
	if serviceName != "" {
		attrs = append(attrs, attribute.String("service.name", serviceName))
	} else if os.Getenv("OTEL_SERVICE_NAME") == "" {
		attrs = append(attrs, attribute.String("service.name", DefaultServiceName))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	return res, nil
}

// NewProviders creates providers for the enabled signals. On error any
// providers already created are shut down.
func NewProviders(ctx context.Context, opts Options, res *resource.Resource) (*Providers, error) {
	if err := ValidateProtocol(opts.Protocol); err != nil {
		return nil, err
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	p := &Providers{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
		LoggerProvider: lognoop.NewLoggerProvider(),
	}

	if opts.Traces {
		tp, err := newTracerProvider(ctx, opts, res)
		if err != nil {
			p.abort()
			return nil, fmt.Errorf("creating tracer provider: %w", err)
		}
		p.TracerProvider = tp
		p.sdk = append(p.sdk, tp)
	}

	if opts.Metrics {
		mp, err := newMeterProvider(ctx, opts, res)
		if err != nil {
			p.abort()
			return nil, fmt.Errorf("creating meter provider: %w", err)
		}
		p.MeterProvider = mp
		p.sdk = append(p.sdk, mp)
	}

	if opts.Logs {
		lp, err := newLoggerProvider(ctx, opts, res)
		if err != nil {
			p.abort()
			return nil, fmt.Errorf("creating logger provider: %w", err)
		}
		p.LoggerProvider = lp
		p.sdk = append(p.sdk, lp)
	}

	return p, nil
}

// Tracer returns the tracer used for the run trace.
func (p *Providers) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(ScopeName)
}

// Flush force-flushes and then shuts down every SDK provider concurrently.
// Only the first call does any work; later calls return the same error.
func (p *Providers) Flush(ctx context.Context) error {
	p.once.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, ShutdownTimeout)
			defer cancel()
		}
		p.flushErr = flushAll(ctx, p.sdk)
	})
	return p.flushErr
}

func (p *Providers) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	_ = flushAll(ctx, p.sdk)
}

// flushAll drains items concurrently; a slow provider does not block the others.
func flushAll[F flushable](ctx context.Context, items []F) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, item := range items {
		wg.Go(func() {
			err := errors.Join(item.ForceFlush(ctx), item.Shutdown(ctx))
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("flushing telemetry: %w", err)
	}
	return nil
}

func newTracerProvider(ctx context.Context, opts Options, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := newTraceExporter(ctx, opts)
	if err != nil {
		return nil, err
	}
	var sp sdktrace.SpanProcessor
	if opts.Stdout {
		sp = sdktrace.NewSimpleSpanProcessor(exporter)
	} else {
		sp = sdktrace.NewBatchSpanProcessor(exporter)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithResource(res),
	), nil
}

func newTraceExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	if opts.Stdout {
		return stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
	}
	switch opts.Protocol {
	case ProtocolGRPC:
		var grpcOpts []otlptracegrpc.Option
		if opts.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpoint(opts.Endpoint), otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	default:
		var httpOpts []otlptracehttp.Option
		if opts.Endpoint != "" {
			httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(opts.Endpoint), otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, httpOpts...)
	}
}

// newMeterProvider uses a periodic reader; Shutdown performs the final
// collection, so gauges recorded once are still exported.
func newMeterProvider(ctx context.Context, opts Options, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := newMetricExporter(ctx, opts)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

func newMetricExporter(ctx context.Context, opts Options) (sdkmetric.Exporter, error) {
	if opts.Stdout {
		return stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer))
	}
	switch opts.Protocol {
	case ProtocolGRPC:
		var grpcOpts []otlpmetricgrpc.Option
		if opts.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithEndpoint(opts.Endpoint), otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, grpcOpts...)
	default:
		var httpOpts []otlpmetrichttp.Option
		if opts.Endpoint != "" {
			httpOpts = append(httpOpts, otlpmetrichttp.WithEndpoint(opts.Endpoint), otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, httpOpts...)
	}
}

func newLoggerProvider(ctx context.Context, opts Options, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	exporter, err := newLogExporter(ctx, opts)
	if err != nil {
		return nil, err
	}
	var processor sdklog.Processor
	if opts.Stdout {
		processor = sdklog.NewSimpleProcessor(exporter)
	} else {
		processor = sdklog.NewBatchProcessor(exporter)
	}
	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(res),
	), nil
}

func newLogExporter(ctx context.Context, opts Options) (sdklog.Exporter, error) {
	if opts.Stdout {
		return stdoutlog.New(stdoutlog.WithWriter(opts.Writer))
	}
	switch opts.Protocol {
	case ProtocolGRPC:
		var grpcOpts []otlploggrpc.Option
		if opts.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlploggrpc.WithEndpoint(opts.Endpoint), otlploggrpc.WithInsecure())
		}
		return otlploggrpc.New(ctx, grpcOpts...)
	default:
		var httpOpts []otlploghttp.Option
		if opts.Endpoint != "" {
			httpOpts = append(httpOpts, otlploghttp.WithEndpoint(opts.Endpoint), otlploghttp.WithInsecure())
		}
		return otlploghttp.New(ctx, httpOpts...)
	}
}
