// Command vidscribe is the command-line client for the vidscribe daemon.
//
// It submits video URLs, follows task progress, downloads the Markdown
// artifacts, and starts or stops the daemon process. Every task command talks
// to the daemon's HTTP API; "status" and "check" fall back to local checks
// when the daemon is not running.
package main
