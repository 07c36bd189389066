package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestWrap_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core)).With(zap.String("tenant_id", "t1"))

	l.Info("resolved")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "resolved", entries[0].Message)
		assert.Equal(t, "t1", entries[0].ContextMap()["tenant_id"])
	}
}

func TestNewZapLogger_BuildsForBothEncodings(t *testing.T) {
	for _, enc := range []string{"json", "console"} {
		l := NewZapLogger(&ZapLoggerConfig{Encoding: enc, Level: "info", ServiceName: "stock"})
		assert.NotNil(t, l)
	}
}
