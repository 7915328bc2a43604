// Package logger standardises structured logging across the service.
// It exposes a single factory, New, that builds a *slog.Logger configured
// by functional options (format, level, static attributes), plus a small
// set of attribute constructors so log keys stay consistent between
// components.
package logger
