// Package logging builds the slog loggers used across audiolens.
//
// Two handler formats are supported: a human-oriented console format
// (timestamp, level, component prefix, key=value attributes) and plain
// JSON with normalized keys. The daemon writes to stdout and to
// audiolens.log in the configured log directory.
package logging
