package zetalog

import (
	"fmt"
	"io"
)

// Plain is a bare fmt.Fprintf sink, in the teacher's own raw-stdio logging
// style, used as the trivial/no-op-adjacent implementation for tests and
// for hosts that don't want structured output.
type Plain struct {
	Out io.Writer
}

func (p Plain) Infof(msg string, keysAndValues ...any) {
	p.write("INFO", msg, keysAndValues...)
}

func (p Plain) Warnf(msg string, keysAndValues ...any) {
	p.write("WARN", msg, keysAndValues...)
}

func (p Plain) Errorf(msg string, keysAndValues ...any) {
	p.write("ERROR", msg, keysAndValues...)
}

func (p Plain) Sync() error {
	return nil
}

func (p Plain) write(level, msg string, keysAndValues ...any) {
	_, _ = fmt.Fprintf(p.Out, "%s: %s%s\n", level, msg, formatFields(keysAndValues))
}

func formatFields(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	s := ""
	for i := 0; i+1 < len(kv); i += 2 {
		s += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return s
}
