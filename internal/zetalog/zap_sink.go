package zetalog

import "go.uber.org/zap"

// zapSink is the default production Sink, backed by a zap.SugaredLogger.
type zapSink struct {
	l *zap.SugaredLogger
}

// NewZap builds a Sink backed by a zap production logger (JSON, epoch
// timestamps, caller-free: the orchestrator's own log lines already carry
// enough context).
func NewZap() (Sink, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableCaller = true
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapSink{l: logger.Sugar()}, nil
}

func (s *zapSink) Infof(msg string, keysAndValues ...any) {
	s.l.Infow(msg, keysAndValues...)
}

func (s *zapSink) Warnf(msg string, keysAndValues ...any) {
	s.l.Warnw(msg, keysAndValues...)
}

func (s *zapSink) Errorf(msg string, keysAndValues ...any) {
	s.l.Errorw(msg, keysAndValues...)
}

func (s *zapSink) Sync() error {
	return s.l.Sync()
}
