// Command isolated-worker serves exactly one inference request in its own
// process so an accelerator runtime that cannot share the service process can
// still be used. It is launched by isolation.Runner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/backends"
	"www.github.com/Wanderer0074348/HybridInfer/src/inference"
	"www.github.com/Wanderer0074348/HybridInfer/src/isolation"
)

// libraryEnv names the onnxruntime build this worker loads. It is normally set
// through the runner's activation environment.
const libraryEnv = "HYBRIDINFER_ORT_LIBRARY"

func main() {
	var requestPath, responsePath, workDir, logLevel string
	flag.StringVar(&requestPath, "request", "", "path to the request JSON")
	flag.StringVar(&responsePath, "response", "", "path the response JSON is written to")
	flag.StringVar(&workDir, "workdir", "", "per-request scratch directory")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Parse()

	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		logger.SetLevel(level)
	}

	if requestPath == "" || responsePath == "" {
		logger.Error("missing --request or --response")
		os.Exit(2)
	}
	log := logger.WithField("workdir", workDir)

	if err := inference.InitRuntime(os.Getenv(libraryEnv)); err != nil {
		log.WithError(err).Error("onnxruntime unavailable")
		if werr := isolation.WriteResponse(responsePath, &isolation.WorkerResponse{
			Status:  isolation.StatusError,
			Message: fmt.Sprintf("onnxruntime unavailable: %v", err),
		}); werr != nil {
			log.WithError(werr).Error("could not write error response")
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := isolation.Serve(ctx, requestPath, responsePath, backends.WorkerHandler(log), log)
	stop()

	if err := inference.ShutdownRuntime(); err != nil {
		log.WithError(err).Warn("failed to shut down onnxruntime")
	}
	os.Exit(code)
}
