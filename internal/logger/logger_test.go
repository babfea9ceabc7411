package logger_test

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"prekeyd/internal/logger"
)

func TestGetLogLevel(t *testing.T) {
	for in, want := range map[string]log.Level{
		"debug": log.DebugLevel,
		"INFO":  log.InfoLevel,
		"warn":  log.WarnLevel,
		"error": log.ErrorLevel,
	} {
		got, err := logger.GetLogLevel(in)
		require.NoError(t, err)
		require.Equal(t, uint32(want), got, in)
	}

	_, err := logger.GetLogLevel("chatty")
	require.Error(t, err)
}

// Ensure that the level filters output and the writer can be swapped.
func TestLoggerLevelAndWriter(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewLogger(uint32(log.WarnLevel))
	l.SetWriter(&buf)
	require.Equal(t, &buf, l.Writer())

	l.Infof("hidden %d", 1)
	require.Empty(t, buf.String())

	l.Warnf("shown %d", 2)
	require.Contains(t, buf.String(), "shown 2")
	require.Contains(t, buf.String(), "level=warning")
}
