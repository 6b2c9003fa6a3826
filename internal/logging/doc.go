// Package logging assembles the slog loggers used by vidscribe.
//
// It owns the console and JSON handlers, the level and output plumbing, and
// helpers that tag log lines with task IDs, stages and request IDs taken from
// a context. StreamHub keeps a bounded in-memory tail of recent events so the
// daemon can serve them over HTTP.
package logging
