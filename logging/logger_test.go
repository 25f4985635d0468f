package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLogger_KeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	l.WithComponent("orchestrator").WithRun("run-1", "doc-1").Info("orchestrator.stage.start", "stage", "stage1", "agents", 3)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "orchestrator.stage.start", lines[0]["msg"])
	assert.Equal(t, "orchestrator", lines[0]["component"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "doc-1", lines[0]["document_id"])
	assert.Equal(t, "stage1", lines[0]["stage"])
	assert.Equal(t, float64(3), lines[0]["agents"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown too")

	assert.Len(t, decodeLines(t, &buf), 2)
}

func TestStructuredLogger_WithContextDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})
	child := base.WithContext("agent", "structural")

	base.Info("base")
	child.Info("child")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "agent")
	assert.Equal(t, "structural", lines[1]["agent"])
}

func TestStructuredLogger_LogAgentCall(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})

	l.LogAgentCall("classification", 20*time.Millisecond, 1, 90, nil)
	l.LogAgentCall("structural", 10*time.Millisecond, 3, 30, errors.New("timeout"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "agent.invoke.done", lines[0]["msg"])
	assert.Equal(t, "agent.invoke.fallback", lines[1]["msg"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "timeout", lines[1]["error"])
}

func TestArgsToAttrs_DanglingValue(t *testing.T) {
	attrs := argsToAttrs([]any{"a", 1, "dangling"})
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].Key)
	assert.Equal(t, "!BADKEY", attrs[1].Key)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel(""))
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core)).With("component", "invoker")

	l.Info("agent.invoke.done", "agent", "fiscal_argentina", "confidence", 92)
	l.Error("agent.invoke.fallback", "agent", "international")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "agent.invoke.done", entries[0].Message)
	assert.Equal(t, "fiscal_argentina", entries[0].ContextMap()["agent"])
	assert.Equal(t, "invoker", entries[0].ContextMap()["component"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestForComponentAndWith(t *testing.T) {
	var buf bytes.Buffer
	sl := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})
	With(ForComponent(sl, "store"), "driver", "redis").Info("store.save")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "store", lines[0]["component"])
	assert.Equal(t, "redis", lines[0]["driver"])

	zc, logs := observer.New(zapcore.DebugLevel)
	With(ForComponent(NewZapAdapter(zap.New(zc)), "registry"), "catalog", "default").Info("registry.update")
	require.Len(t, logs.All(), 1)
	assert.Equal(t, "registry", logs.All()[0].ContextMap()["component"])
	assert.Equal(t, "default", logs.All()[0].ContextMap()["catalog"])

	var noop Logger = NoOpLogger{}
	assert.Equal(t, noop, ForComponent(noop, "x"))
	assert.Equal(t, noop, With(noop, "k", "v"))
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x", "k", "v")
		l.Warn("x")
		l.Error("x")
	})
}
