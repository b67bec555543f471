package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quaere-ai/toolrelay/internal/config"
	"github.com/quaere-ai/toolrelay/internal/dispatch"
	"github.com/quaere-ai/toolrelay/internal/events"
	"github.com/quaere-ai/toolrelay/internal/monitor"
	"github.com/quaere-ai/toolrelay/internal/otelx"
	"github.com/quaere-ai/toolrelay/internal/sampler"
	"github.com/quaere-ai/toolrelay/internal/store"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "toolrelay.yaml", "Path to the YAML configuration file")
	storagePath := flag.String("storage-path", "", "Override the metrics storage directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *storagePath != "" {
		cfg.Storage.Path = *storagePath
	}

	logger := events.NewEventLogger("toolrelay")
	events.SetGlobalEventLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelMetrics, err := otelx.NewMetrics(ctx, &otelx.MetricsConfig{
		Enabled:        cfg.Telemetry.MetricsExporter != "none",
		ServiceName:    "toolrelay",
		ServiceVersion: version,
		ExporterType:   otelx.ExporterType(cfg.Telemetry.MetricsExporter),
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize metrics export: %v\n", err)
		os.Exit(1)
	}
	otelx.SetGlobalMetrics(otelMetrics)

	tracer, err := otelx.NewTracer(ctx, &otelx.TracerConfig{
		Enabled:        cfg.Telemetry.TracesExporter != "none",
		ServiceName:    "toolrelay",
		ServiceVersion: version,
		ExporterType:   otelx.ExporterType(cfg.Telemetry.TracesExporter),
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		SampleRate:     1.0,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracing: %v\n", err)
		os.Exit(1)
	}
	otelx.SetGlobalTracer(tracer)

	documentStore, err := store.New(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open metrics storage: %v\n", err)
		os.Exit(1)
	}

	monitorService := monitor.NewService(monitor.Config{
		RetentionDays:   cfg.Storage.RetentionDays,
		CleanupInterval: cfg.Storage.CleanupInterval(),
	}, documentStore, logger)
	monitorService.Start()

	resourceSampler := sampler.New(logger)
	defer resourceSampler.Close()

	registry := dispatch.NewRegistry(logger, otelMetrics)
	for _, tool := range cfg.Tools {
		err := registry.Register(dispatch.Descriptor{
			Name:           tool.Name,
			Container:      tool.Container,
			Endpoint:       tool.Endpoint,
			HealthEndpoint: tool.HealthEndpoint,
			MaxRetries:     tool.MaxRetries,
			Timeout:        tool.Timeout(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to register tool %s: %v\n", tool.Name, err)
			os.Exit(1)
		}
	}

	dispatcher := dispatch.NewDispatcher(registry, monitorService, resourceSampler,
		dispatch.WithBackoff(backoffFromConfig(cfg.Dispatch)),
		dispatch.WithEventLogger(logger),
		dispatch.WithMetrics(otelMetrics),
		dispatch.WithTracer(tracer),
	)

	fmt.Printf("toolrelay %s started: %d tools, storage %s\n", version, registry.Len(), cfg.Storage.Path)

	if cfg.Dispatch.HealthSweepSeconds > 0 {
		go healthSweep(ctx, dispatcher, cfg.Dispatch.HealthSweepInterval())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := monitorService.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Monitoring service shutdown: %v\n", err)
	}
	if err := otelMetrics.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Metrics export shutdown: %v\n", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Tracer shutdown: %v\n", err)
	}
	fmt.Println("toolrelay stopped")
}

// backoffFromConfig maps the configured strategy name onto a backoff
// policy seeded with the configured base wait.
func backoffFromConfig(cfg config.DispatchConfig) dispatch.BackoffStrategy {
	base := cfg.RetryBackoff()
	switch cfg.BackoffStrategy {
	case "linear":
		return dispatch.LinearBackoff{Step: base, Max: 30 * base}
	case "exponential":
		return dispatch.ExponentialBackoff{Initial: base, Max: 60 * base, Jitter: 0.2}
	default:
		return dispatch.ConstantBackoff{Interval: base}
	}
}

// healthSweep periodically probes every registered tool so health
// history accumulates even when no executions are flowing.
func healthSweep(ctx context.Context, dispatcher *dispatch.Dispatcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statuses := dispatcher.ListTools(ctx)
			healthy := 0
			for _, s := range statuses {
				if s.IsHealthy {
					healthy++
				}
			}
			fmt.Printf("health sweep: %d/%d tools healthy\n", healthy, len(statuses))
		}
	}
}
