// Package psilog sets up the process-wide leveled logger shared by
// cmd/psi-receiver and cmd/psi-sender, following kryptco-kr's
// op/go-logging setup (logging.go in that repo): a module-tagged logger,
// a colorized stderr backend by default, and an environment-variable
// override for the log level.
package psilog

import (
	"os"

	"github.com/op/go-logging"
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}%{color:reset}`,
)

// Setup configures the op/go-logging backend for the given module prefix
// ("psi-receiver" or "psi-sender") and returns a logger tagged with it.
// The PRIVCATS_LOG_LEVEL environment variable, if set to one of
// CRITICAL/ERROR/WARNING/NOTICE/INFO/DEBUG, overrides defaultLevel.
func Setup(prefix string, defaultLevel logging.Level) *logging.Logger {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetFormatter(stderrFormat)

	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(levelFromEnv(defaultLevel), prefix)
	logging.SetBackend(leveled)

	return logging.MustGetLogger(prefix)
}

func levelFromEnv(defaultLevel logging.Level) logging.Level {
	switch os.Getenv("PRIVCATS_LOG_LEVEL") {
	case "CRITICAL":
		return logging.CRITICAL
	case "ERROR":
		return logging.ERROR
	case "WARNING":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "INFO":
		return logging.INFO
	case "DEBUG":
		return logging.DEBUG
	default:
		return defaultLevel
	}
}
