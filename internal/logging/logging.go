// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/config"
)

func Setup(cfg config.LogConfig) {
	logrus.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("unknown log level %q, falling back to info", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
