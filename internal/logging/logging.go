// internal/logging/logging.go
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-catalog/internal/config"
)

// Setup configures the standard logrus logger. JSON output is used in
// production or when LOG_FORMAT=json.
func Setup(environment string, cfg config.LogConfig) {
	if cfg.Format == "json" || (cfg.Format == "" && environment == "production") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
