// Package logger provides structured logging for the SDK.
//
// It wraps Go's standard log/slog with:
//   - Session lifecycle logging (connect, handshake, close)
//   - Frame and response logging for the streaming flow
//   - Automatic API key and bearer token redaction
//   - Level-based verbosity control via the LOG_LEVEL environment variable
//
// All exported functions use the global DefaultLogger which can be
// reconfigured with SetLevel or SetVerbose.
package logger

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// SessionConnected logs a successful session handshake.
func SessionConnected(endpoint, sessionName, exerciseKey string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"endpoint", RedactSensitiveData(endpoint),
		"session", sessionName,
		"exercise", exerciseKey,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("session ready", allAttrs...)
}

// FrameSent logs a released frame at debug level.
func FrameSent(seq int64, bytes int, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"seq", seq,
		"bytes", bytes,
	)
	allAttrs = append(allAttrs, attrs...)
	Debug("frame sent", allAttrs...)
}

// ResponseReceived logs a completed analysis response at debug level.
func ResponseReceived(kind string, seq int64, latencyMs int64, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"kind", kind,
		"seq", seq,
		"latency_ms", latencyMs,
	)
	allAttrs = append(allAttrs, attrs...)
	Debug("response received", allAttrs...)
}

// SessionError logs a session-level failure.
func SessionError(kind string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"kind", kind,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	Error("session error", allAttrs...)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(api[_-]?key=)[a-zA-Z0-9_-]+`), // API keys in query strings
		regexp.MustCompile(`vay-[a-zA-Z0-9]{24,}`),             // service API keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.-]+`),         // Bearer tokens
	}
)

// RedactSensitiveData removes API keys and other credentials from strings.
// Matched patterns are replaced with a redacted form that preserves a short
// prefix for debugging while hiding the sensitive portion.
//
// This function is safe for concurrent use as it only reads from the
// compiled patterns.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if idx := strings.Index(match, "="); idx >= 0 {
				return match[:idx+1] + "[REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}
