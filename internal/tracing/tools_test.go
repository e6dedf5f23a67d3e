package tracing

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestExecuteToolRecordsSpanAttributesForSuccess(t *testing.T) {
	spanRecorder := installSpanRecorder(t)
	workdir := t.TempDir()

	exitCode, stdout, stderr, err := ExecuteTool(
		context.Background(),
		"sh",
		[]string{"-c", "echo tmux 3.4"},
		workdir,
	)
	require.NoError(t, err)
	assert.Zero(t, exitCode)
	assert.Equal(t, "tmux 3.4", stdout)
	assert.Empty(t, stderr)

	span := findToolExecSpan(t, spanRecorder.Ended())
	assert.Equal(t, codes.Ok, span.Status().Code)
	assert.Equal(t, "sh", getStringAttr(span.Attributes(), "tool_name"))
	assert.Equal(t, workdir, getStringAttr(span.Attributes(), "cwd"))
	assert.Equal(t, "-c", getStringAttr(span.Attributes(), "operation"))
	assert.Zero(t, getIntAttr(span.Attributes(), "exit_code"))
}

func TestExecuteToolFailureAddsBoundedStdoutStderrEvents(t *testing.T) {
	spanRecorder := installSpanRecorder(t)

	exitCode, _, _, err := ExecuteTool(
		context.Background(),
		"sh",
		[]string{"-c", "head -c 1600 /dev/zero | tr '\\000' 'a'; head -c 1600 /dev/zero | tr '\\000' 'b' 1>&2; exit 3"},
		"",
	)
	require.Error(t, err)
	assert.Equal(t, 3, exitCode)
	assert.True(t, strings.HasPrefix(err.Error(), "run sh -c"), err.Error())

	var exitErr *exec.ExitError
	assert.ErrorAs(t, err, &exitErr)

	span := findToolExecSpan(t, spanRecorder.Ended())
	assert.Equal(t, codes.Error, span.Status().Code)

	stdoutValue := getStringAttr(findEvent(t, span.Events(), "tool.stdout").Attributes, "output")
	stderrValue := getStringAttr(findEvent(t, span.Events(), "tool.stderr").Attributes, "output")
	assert.LessOrEqual(t, len(stdoutValue), maxOutputEventBytes)
	assert.LessOrEqual(t, len(stderrValue), maxOutputEventBytes)
	assert.Contains(t, stdoutValue, "[truncated]")
	assert.Contains(t, stderrValue, "[truncated]")
}

func TestExecuteToolTimeoutReturnsErrorSpan(t *testing.T) {
	spanRecorder := installSpanRecorder(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	exitCode, _, _, err := ExecuteTool(ctx, "sh", []string{"-c", "sleep 1"}, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, -1, exitCode)

	span := findToolExecSpan(t, spanRecorder.Ended())
	assert.Equal(t, codes.Error, span.Status().Code)
}

func TestExecuteToolRequiresName(t *testing.T) {
	_, _, _, err := ExecuteTool(context.Background(), " ", nil, "")
	assert.Error(t, err)
}

func TestFinishSetsStatus(t *testing.T) {
	spanRecorder := installSpanRecorder(t)
	tracer := otel.Tracer("tracing-test")

	_, ok := tracer.Start(context.Background(), "ok")
	Finish(ok, nil)
	_, failed := tracer.Start(context.Background(), "failed")
	Finish(failed, errors.New("prompt timeout"))
	Finish(nil, nil)

	ended := spanRecorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "prompt timeout", ended[1].Status().Description)
}

func TestFormatCommandSkipsBlankParts(t *testing.T) {
	assert.Equal(t, "tmux send-keys -t %1 Tab", FormatCommand(" tmux ", []string{"send-keys", "", "-t", "%1", "Tab"}))
	assert.NoError(t, WrapExecutionError("tmux", nil, nil))
}

func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)

	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Errorf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(previous)
	})

	return spanRecorder
}

func findToolExecSpan(t *testing.T, spans []sdktrace.ReadOnlySpan) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range spans {
		if span.Name() == "tool.exec" {
			return span
		}
	}
	t.Fatalf("tool.exec span not found in %d spans", len(spans))
	return nil
}

func getStringAttr(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}

func getIntAttr(attrs []attribute.KeyValue, key string) int {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return int(attr.Value.AsInt64())
		}
	}
	return 0
}

func findEvent(t *testing.T, events []sdktrace.Event, name string) sdktrace.Event {
	t.Helper()
	for _, event := range events {
		if event.Name == name {
			return event
		}
	}
	t.Fatalf("event %q not found in %d events", name, len(events))
	return sdktrace.Event{}
}
