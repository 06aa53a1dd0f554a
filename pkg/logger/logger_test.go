package logger

import (
	"bytes"
	"testing"

	"github.com/kinfolk-ai/kinfolk/pkg/logger/console"
	"github.com/stretchr/testify/assert"
)

func TestDispatch_ForwardsKeyvals(t *testing.T) {
	var a, b bytes.Buffer
	Init(
		console.NewConsoleLogger(console.ConsoleLoggerParams{Output: &a}),
		console.NewConsoleLogger(console.ConsoleLoggerParams{Output: &b, Debug: true}),
	)
	t.Cleanup(func() { singleton.Store(nil) })

	Log("merged", "keep_id", 1)
	Info("candidate", "confidence", 0.92)
	Debug("scored pair")

	assert.Contains(t, a.String(), "keep_id=1")
	assert.Contains(t, a.String(), "confidence=0.92")
	assert.NotContains(t, a.String(), "scored pair")
	assert.Contains(t, b.String(), "scored pair")
}

func TestDispatch_NoopBeforeInit(t *testing.T) {
	singleton.Store(nil)
	assert.NotPanics(t, func() {
		Info("dropped")
		Warn("dropped")
		Error("dropped")
	})
}
