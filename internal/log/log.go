// Package log provides the leveled, structured logger used throughout
// ocsync. Call sites look like fs.Debugf/fs.Errorf in the teacher backend:
// every log line is tagged with the object it concerns.
package log

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel changes the minimum level that gets logged.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

func entry(o any) *logrus.Entry {
	if o == nil {
		return logrus.NewEntry(std)
	}
	return std.WithField("object", fmt.Sprintf("%v", o))
}

// Debugf logs a debug-level message scoped to object o (nil for none).
func Debugf(o any, format string, args ...any) {
	entry(o).Debugf(format, args...)
}

// Infof logs an info-level message scoped to object o.
func Infof(o any, format string, args ...any) {
	entry(o).Infof(format, args...)
}

// Errorf logs an error-level message scoped to object o.
func Errorf(o any, format string, args ...any) {
	entry(o).Errorf(format, args...)
}

// Logf logs at info level, the counterpart of the teacher's fs.Logf. It
// is shown at the default level but, like Infof, is filtered out if
// SetLevel raises the minimum above info.
func Logf(o any, format string, args ...any) {
	entry(o).Infof(format, args...)
}
