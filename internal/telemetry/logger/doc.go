// Package logger provides structured logging for MeshSync.
//
// It wraps log/slog:
//
//   - logger.go: handler configuration and the global level
//   - context.go: context-aware logging with session propagation
//   - redact.go: session token redaction
//
// Features:
//
//   - JSON and text output formats
//   - Runtime log level adjustment
//   - Automatic masking of session tokens in log attributes
package logger
