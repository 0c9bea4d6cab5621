package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "embed"

	"go.uber.org/fx"

	port "github.com/tigerroll/stepguard/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/stepguard/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/stepguard/pkg/batch/core/config"
	metrics "github.com/tigerroll/stepguard/pkg/batch/core/metrics"
	inframetrics "github.com/tigerroll/stepguard/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// embeddedConfig holds the application's YAML configuration.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

const metricsAddr = ":2112"

// startStepExecution launches the step when the application starts. When appCtx is cancelled
// (SIGINT/SIGTERM) or the application is stopped, the step is stopped through the StepOperator.
// OnStop returns only once the step has recorded its final status, or when the stop timeout expires.
func startStepExecution(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	launcher *usecase.SimpleStepLauncher,
	operator *usecase.StepOperator,
	step port.Step,
	cfg *config.Config,
	appCtx context.Context,
) {
	stopCtx, stopStep := context.WithCancel(appCtx)
	finished := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(finished)
				runStep(stopCtx, shutdowner, launcher, operator, step, cfg.Stepguard.Batch.JobName)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application is shutting down; waiting for the step to record its final status.")
			stopStep()
			select {
			case <-finished:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func runStep(
	stopCtx context.Context,
	shutdowner fx.Shutdowner,
	launcher *usecase.SimpleStepLauncher,
	operator *usecase.StepOperator,
	step port.Step,
	jobName string,
) {
	exitCode := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic recovered in step execution: %v", r)
			exitCode = 1
		}
		logger.Infof("Requesting application shutdown after step completion.")
		if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
			logger.Errorf("Failed to shutdown application: %v", err)
		}
	}()

	// The step's own context is not tied to stopCtx: a stop goes through the operator instead,
	// so that the stop is recorded before the step is cancelled.
	launched, err := launcher.Launch(context.Background(), jobName, step)
	if err != nil {
		logger.Errorf("Failed to launch step '%s': %v", step.StepName(), err)
		exitCode = 1
		return
	}
	logger.Infof("Step '%s' launched. Execution ID: %s", step.StepName(), launched.ID)

	waitDone := make(chan struct{})
	go func() {
		select {
		case <-stopCtx.Done():
			logger.Warnf("Stopping step execution %s.", launched.ID)
			if err := operator.Stop(context.Background(), launched.ID); err != nil {
				logger.Warnf("Stop request failed: %v", err)
			}
		case <-waitDone:
		}
	}()

	final, err := launcher.Wait(context.Background(), launched.ID)
	close(waitDone)
	switch {
	case exception.IsJobInterrupted(err):
		logger.Warnf("Step '%s' was interrupted. Status: %s, read: %d, written: %d, commits: %d.",
			final.StepName, final.Status, final.ReadCount, final.WriteCount, final.CommitCount)
	case err != nil:
		logger.Errorf("Step '%s' returned an unexpected error: %v", step.StepName(), err)
		exitCode = 1
	default:
		logger.Infof("Step '%s' finished. Status: %s, ExitStatus: %s, read: %d, written: %d.",
			final.StepName, final.Status, final.ExitStatus, final.ReadCount, final.WriteCount)
		if len(final.Failures) > 0 {
			exitCode = 1
		}
	}
}

// registerMetricsEndpoint serves /metrics when the Prometheus recorder is enabled.
func registerMetricsEndpoint(lc fx.Lifecycle, recorder metrics.MetricRecorder) {
	prom, ok := recorder.(*inframetrics.PrometheusRecorder)
	if !ok {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("Metrics endpoint stopped: %v", err)
				}
			}()
			logger.Infof("Serving metrics on %s/metrics.", metricsAddr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the step...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	fxApp := fx.New(GetApplicationOptions(ctx, envFilePath, embeddedConfig)...)
	fxApp.Run()
	if fxApp.Err() != nil {
		logger.Fatalf("Application run failed: %v", fxApp.Err())
	}
}
