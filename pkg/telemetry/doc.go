// Package telemetry provides observability instrumentation for opwatch.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified
// system for monitoring mutation tracking.
//
// # Subsystems
//
//   - Logger: structured logging with mutation-scoped field helpers
//   - Tracer: spans for submissions, polling rounds, and status queries
//   - Metrics: Prometheus counters, histograms, and gauges
//   - EventPublisher: typed events for UI layers and the history recorder
//
// The Telemetry type bundles all four and is usually created once at startup:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Tracker integration
//
// Sink implements the tracker's TelemetrySink and fans terminal outcomes out
// to metrics, logs, and events. Bridge implements the tracker's Subscriber
// and republishes every state transition on the event stream:
//
//	tr, err := tracker.New(client, tracker.Config{
//		Logger:    tel.Logger.NewComponentLogger("tracker").Zerolog(),
//		Telemetry: telemetry.NewSink(tel),
//	})
//	tr.Subscribe(telemetry.NewBridge(tel.Events))
package telemetry
