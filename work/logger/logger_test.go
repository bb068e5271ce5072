package logger_test

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"teleloop/work/logger"
)

// capture redirects stdlib log output for the duration of a test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() {
		log.SetOutput(prev)
		logger.SetLogLevel("info")
	})
	return &buf
}

func TestLevelGating(t *testing.T) {
	buf := capture(t)

	logger.SetLogLevel("warn")
	logger.Debug("never shown")
	logger.Info("never shown either")
	logger.Warn("shown %d", 1)
	logger.Error("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "never shown")
	assert.Contains(t, out, "[WARN] shown 1")
	assert.Contains(t, out, "[ERROR] shown 2")
}

func TestDebugEnablesEverything(t *testing.T) {
	buf := capture(t)

	logger.SetLogLevel("debug")
	logger.Debug("{logger/logger_test - TestDebugEnablesEverything} visible")
	assert.Contains(t, buf.String(), "[DEBUG] {logger/logger_test - TestDebugEnablesEverything} visible")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	buf := capture(t)

	logger.SetLogLevel("verbose")
	assert.Equal(t, "INFO", logger.GetLogLevel())

	logger.Debug("hidden")
	logger.Info("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[INFO] visible")
}
