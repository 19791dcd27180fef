package diag

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewDriverLogger returns a *logrus.Entry tagged component=slothy that a
// caller can hand to heuristic.NewDriver for its search diagnostics
// (Optimize itself uses logrus's standard logger). Grounded on felix/bpf/asm's use of logrus in a
// real assembler: log.Debugf for progress, log.WithError(err).Error for
// fatal diagnostics.
func NewDriverLogger(out io.Writer) *logrus.Entry {
	l := logrus.New()
	if out != nil {
		l.SetOutput(out)
	}
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l.WithField("component", "slothy")
}

// Silent returns a logger that discards output.
func Silent() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "slothy")
}
