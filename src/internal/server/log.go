package server

import (
	"os"

	l "github.com/sirupsen/logrus"
)

// setupLogging points logrus at logFile (created if missing, appended to
// otherwise) at the given level. No log entries are possible before this
// call succeeds.
func setupLogging(logFile, logLevel string) (err error) {
	level, err := l.ParseLevel(logLevel)
	if err != nil {
		return
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return
	}

	l.SetOutput(f)
	l.SetLevel(level)
	return
}
