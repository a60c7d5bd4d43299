// Package telemetry provides observability instrumentation for maintlog.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// Prometheus metrics and an in-process event bus. Every component is usable
// when disabled: a nil *Metrics or a disabled EventPublisher silently drops
// what it is given, so storage code can record unconditionally.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	storeLog := tel.Logger.Component("store")
//	storeLog.Info().Str("path", path).Msg("collection loaded")
//
// # Metrics
//
// Metrics are registered on a private registry and exposed through
// Metrics.Handler. The collectors cover collection saves (by outcome),
// verification rollbacks, backup failures, non-atomic write downgrades,
// draft retention and export items.
//
// # Events
//
// The EventPublisher delivers record and draft lifecycle events to
// subscribers. Hosts use it to refresh their views after a mutation or
// when another process touched the shared collection file.
package telemetry
