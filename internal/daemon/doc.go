// Package daemon coordinates the long-running vidscribe process.
//
// It wires configuration, the task table, the artifact catalog, the pipeline
// service and the optional watch folder into a single lifecycle with
// flock-based locking to prevent multiple instances, and serves the HTTP API
// clients use to submit, follow, cancel and download jobs.
//
// Keep orchestration logic here: pipeline stages live in internal/pipeline
// while the daemon focuses on startup, shutdown and the HTTP surface.
package daemon
