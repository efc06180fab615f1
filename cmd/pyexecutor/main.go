// Command pyexecutor is the one-shot in-container executor the Python
// Execution Broker launches per call: it accepts a single connection,
// runs one request through python3, and exits.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/pedrow21/proxima/internal/pyexec"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	listenAddr := flag.String("listen", ":4096", "accept address for the single incoming request")
	pythonBin := flag.String("python-bin", "python3", "interpreter binary to run the request through")
	flag.Parse()

	if err := pyexec.RunExecutor(pyexec.ExecutorConfig{ListenAddr: *listenAddr, PythonBin: *pythonBin}); err != nil {
		slog.Error("executor failed", "error", err)
		os.Exit(1)
	}
}
