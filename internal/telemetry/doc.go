// Package telemetry bootstraps OpenTelemetry for taskd.
//
// It installs the global tracer and meter providers that the admission
// gate and the orchestrator instrument against, exporting over OTLP.
// Telemetry failures never fail a run; the instance degrades to no-op
// providers and records why.
//
// Usage:
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Tests use NewTestTelemetry for in-memory span and metric capture.
package telemetry
