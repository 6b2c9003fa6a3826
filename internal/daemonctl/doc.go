// Package daemonctl starts, stops, and inspects the vidscribe daemon from the
// CLI. Liveness comes from the HTTP /health endpoint; the daemon lock file
// decides whether a process still owns the data directory when the API is
// unreachable.
package daemonctl
