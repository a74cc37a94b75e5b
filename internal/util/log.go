// Package util provides shared logging setup for the core packages.
package util

import (
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "02 Jan 15:04:05",
	})
	logrus.SetLevel(logrus.InfoLevel)
}

// Logger returns a component-scoped entry. All core packages log through
// this so every line carries the component name.
func Logger(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	logrus.SetLevel(logrus.DebugLevel)
}
