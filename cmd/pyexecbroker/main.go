// Command pyexecbroker is the long-lived Python Execution Broker: it
// accepts tool-side connections and admits each one against a bounded
// port pool and in-flight semaphore before proxying to a one-shot
// containerized pyexecutor.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pedrow21/proxima/internal/pyexec"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	listenAddr := flag.String("listen", ":4096", "broker accept address")
	startPort := flag.Int("start-port", 18000, "first port in the reserved executor-container pool")
	maxInFlight := flag.Int("max-in-flight", 4, "bounds simultaneous executions and sizes the port pool")
	containerImage := flag.String("container-image", "proxima-pyexecutor:latest", "one-shot executor image")
	connectTimeout := flag.Duration("connect-timeout", 5*time.Second, "dial timeout against a launched container")
	wallClock := flag.Duration("wall-clock", 15*time.Second, "per-execution wall clock budget")
	flag.Parse()

	broker := pyexec.NewBroker(pyexec.BrokerConfig{
		ListenAddr:     *listenAddr,
		StartPort:      *startPort,
		MaxInFlight:    *maxInFlight,
		ContainerImage: *containerImage,
		ConnectTimeout: *connectTimeout,
		WallClock:      *wallClock,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("pyexec broker starting", "addr", *listenAddr)
	if err := broker.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("broker exited", "error", err)
		os.Exit(1)
	}
}
