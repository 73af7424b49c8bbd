// Package logger configures the structured JSON logger shared by all
// components. Downstream log shipping is treated as an opaque sink.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logg *logrus.Logger

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(levelFromEnv())
	logg.SetOutput(os.Stdout)
}

// Get returns the shared logger instance.
func Get() *logrus.Logger {
	return logg
}

func levelFromEnv() logrus.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// LogError emits a structured error entry tagged with the originating module
// and function so operator diagnostics can be filtered per component.
func LogError(module, funcName, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   module,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logg.WithFields(fields).Error(err.Error())
}

// LogCritical marks reconciliation gaps between the processor ledger and the
// local store. These must never be silently swallowed; the reconciliation
// field lets operators alert on them directly.
func LogCritical(module, funcName, context string, data any, err error) {
	fields := logrus.Fields{
		"module":         module,
		"funcName":       funcName,
		"context":        context,
		"reconciliation": "gap",
	}
	if data != nil {
		fields["data"] = data
	}
	logg.WithFields(fields).Error(err.Error())
}
