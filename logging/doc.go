// Package logging provides a minimal logging interface and adapters for InvoiceMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the controller, invoker and registry use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and StructuredLogger built on Go's structured logging
//   - ZapAdapter for applications standardized on go.uber.org/zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh, err := invoicemesh.New(func(o *invoicemesh.Options) { o.Logger = logger })
//
// Messages are dotted event names ("orchestrator.stage.done") followed by
// key/value pairs.
package logging
