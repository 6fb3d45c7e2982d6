package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to stderr at the given level ("debug",
// "info", ...). Unknown levels fall back to info.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
