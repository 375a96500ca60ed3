// Package zetalog defines the logging interface the orchestrator logs
// through, leaving the actual sink to the host. A zap-backed production
// sink and a plain fmt-based sink are provided.
package zetalog

// Sink is the narrow logging interface the orchestrator depends on. Fields
// are passed as alternating key/value pairs, matching zap's SugaredLogger
// calling convention.
type Sink interface {
	Infof(msg string, keysAndValues ...any)
	Warnf(msg string, keysAndValues ...any)
	Errorf(msg string, keysAndValues ...any)
	Sync() error
}

// Noop discards every call, for callers that accept an optional Sink and
// got none.
type Noop struct{}

func (Noop) Infof(msg string, keysAndValues ...any)  {}
func (Noop) Warnf(msg string, keysAndValues ...any)  {}
func (Noop) Errorf(msg string, keysAndValues ...any) {}
func (Noop) Sync() error                             { return nil }
