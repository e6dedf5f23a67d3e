package tracing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxOutputEventBytes = 1024

// ExecuteTool runs an external tool under a tool.exec span. An empty cwd
// runs in the current directory.
func ExecuteTool(
	ctx context.Context,
	toolName string,
	args []string,
	cwd string,
) (int, string, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	toolName = strings.TrimSpace(toolName)
	cwd = strings.TrimSpace(cwd)
	if toolName == "" {
		return 0, "", "", errors.New("tool name must not be empty")
	}

	_, span := otel.Tracer("hub/tracing/tools").Start(
		ctx,
		"tool.exec",
		trace.WithAttributes(
			attribute.String("tool_name", toolName),
			attribute.String("args", strings.Join(args, " ")),
			attribute.String("cwd", cwd),
		),
	)

	started := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int64("duration_ms", time.Since(started).Milliseconds()))
		span.End()
	}()

	cmd := exec.CommandContext(ctx, toolName, args...)
	cmd.Dir = cwd

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := resolveExitCode(cmd, err, ctx)
	stdoutText := strings.TrimSpace(stdout.String())
	stderrText := strings.TrimSpace(stderr.String())

	span.SetAttributes(attribute.Int("exit_code", exitCode))
	if len(args) > 0 {
		span.SetAttributes(attribute.String("operation", strings.TrimSpace(args[0])))
	}
	if stdoutText != "" {
		span.AddEvent(
			"tool.stdout",
			trace.WithAttributes(attribute.String("output", truncateOutput(stdoutText, maxOutputEventBytes))),
		)
	}
	if stderrText != "" {
		span.AddEvent(
			"tool.stderr",
			trace.WithAttributes(attribute.String("output", truncateOutput(stderrText, maxOutputEventBytes))),
		)
	}

	if err != nil {
		err = WrapExecutionError(toolName, args, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return exitCode, stdoutText, stderrText, err
	}

	span.SetStatus(codes.Ok, "tool command completed")
	return exitCode, stdoutText, stderrText, nil
}

// Finish records err on span, if any, and ends it.
func Finish(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func resolveExitCode(cmd *exec.Cmd, runErr error, ctx context.Context) int {
	if runErr == nil {
		return 0
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return -1
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd != nil && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return 0
}

func truncateOutput(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	const marker = "...[truncated]"
	if limit <= len(marker) {
		return value[:limit]
	}
	return value[:limit-len(marker)] + marker
}

// FormatCommand returns a deterministic command preview for traces and logs.
func FormatCommand(toolName string, args []string) string {
	parts := append([]string{strings.TrimSpace(toolName)}, args...)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return strings.Join(out, " ")
}

// WrapExecutionError annotates execution failures with command identity.
func WrapExecutionError(toolName string, args []string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("run %s: %w", FormatCommand(toolName, args), err)
}
