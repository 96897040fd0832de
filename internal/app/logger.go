package app

import (
	"strings"

	"github.com/pulsecheck/pulsecheck/pkg/logger"
)

// ConfigureLogging initialises the global logger from server settings,
// defaulting to info-level JSON output.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}

	format := strings.TrimSpace(cfg.LogFormat)
	if format == "" {
		format = "json"
	}

	return logger.Init(level, format)
}
