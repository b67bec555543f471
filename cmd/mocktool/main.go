package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quaere-ai/toolrelay/internal/mocktool"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9091", "Listen address")
	latencyMs := flag.Int("latency-ms", 0, "Artificial latency per execute call")
	failureRate := flag.Float64("failure-rate", 0, "Probability (0.0-1.0) of a 500 per execute call")
	failFirstN := flag.Int("fail-first", 0, "Fail the first N execute calls, then succeed")
	healthStatus := flag.Int("health-status", 200, "Status code returned by /health")
	flag.Parse()

	srv := mocktool.New(&mocktool.Config{
		Addr: *addr,
		Behavior: mocktool.Behavior{
			LatencyMs:    *latencyMs,
			FailureRate:  *failureRate,
			FailFirstN:   *failFirstN,
			HealthStatus: *healthStatus,
		},
	})

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start mock tool: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("mock tool listening on %s\n", srv.BaseURL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(ctx)
	fmt.Println("mock tool stopped")
}
