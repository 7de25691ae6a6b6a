// Package logging configures structured slog output for amanindex.
// Logs are JSON lines written to a size-rotated file under ~/.amanindex/logs/
// and, for CLI commands run with --debug, mirrored to stderr.
package logging
