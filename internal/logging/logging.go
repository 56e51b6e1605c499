// Package logging builds the per-subsystem structured loggers used across the
// node, replacing the teacher's component-prefixed log.Printf convention with
// logrus structured fields of the same shape.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Entry aliases logrus.Entry so callers can depend on this package alone
// for the logger type they pass around.
type Entry = logrus.Entry

// New returns a *logrus.Entry on a fresh logger configured with a consistent
// text formatter and tagged with "component" = name, mirroring the teacher's "COMPONENT: message"
// log lines but as a structured field instead of a string prefix.
func New(component string) *logrus.Entry {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return base.WithField("component", component)
}

// WithShard attaches a shard field to an existing entry, used by consensus and
// network code that operates on a specific shard.
func WithShard(e *logrus.Entry, shard uint16) *logrus.Entry {
	return e.WithField("shard", shard)
}

// WithHeight attaches a block-height field to an existing entry.
func WithHeight(e *logrus.Entry, height uint64) *logrus.Entry {
	return e.WithField("height", height)
}
