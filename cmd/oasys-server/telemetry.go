package main

import (
	"context"
	"log/slog"
	"os"

	"oasys-backend/lib/telemetry"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	err := telemetry.SetupFromEnv(ctx, "oasys-server")
	if os.IsNotExist(err) {
		slog.Warn("no telemetry.json5 found, traces and metrics will not be exported")
		return
	}
	if err != nil {
		slog.Error("setup telemetry", "err", err)
		return
	}

	go func() {
		<-ctx.Done()
		telemetry.Shutdown(context.Background())
	}()
	telemetry.InstrumentPerfStats(ctx)
}
