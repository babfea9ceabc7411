package logger

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// GetLogLevel converts the level string to its corresponding int value. It
// returns an error if the level is invalid.
func GetLogLevel(level string) (uint32, error) {
	var l uint32
	switch strings.ToLower(level) {
	case "debug":
		l = uint32(log.DebugLevel)
	case "info":
		l = uint32(log.InfoLevel)
	case "warn", "warning":
		l = uint32(log.WarnLevel)
	case "error":
		l = uint32(log.ErrorLevel)
	default:
		return 0, errors.Errorf("invalid log.level setting %q", level)
	}
	return l, nil
}
