package log

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// BadgerLogrusAdapter implements badger.Logger on top of a logrus entry.
// Badger's routine Infof chatter (compactions, value log rotation) is demoted to debug.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter tagged with component=badger
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry.WithField("component", "badger")}
}

// Errorf logs an error message
func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{}) {
	l.Entry.Errorf(trimNewline(f), v...)
}

// Warningf logs a warning message
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) {
	l.Entry.Warnf(trimNewline(f), v...)
}

// Infof logs at debug level
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) {
	l.Entry.Debugf(trimNewline(f), v...)
}

// Debugf logs at trace level
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) {
	l.Entry.Tracef(trimNewline(f), v...)
}

// badger terminates most format strings with a newline; logrus adds its own
func trimNewline(f string) string {
	return strings.TrimRight(f, "\n")
}
