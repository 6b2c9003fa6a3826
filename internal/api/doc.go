// Package api defines the HTTP wire types served by vidscribed and a typed
// client for them.
//
// # Endpoints
//
//	POST   /api/process-video         submit a URL (JSON or form body)
//	GET    /api/task-status/{id}      one task snapshot
//	GET    /api/task-stream/{id}      server-sent task snapshots
//	DELETE /api/task/{id}             cancel and remove a task
//	GET    /api/download/{filename}   fetch a Markdown artifact
//	GET    /api/tasks                 all tasks, newest first
//	GET    /api/tasks/active          running tasks and claimed URLs
//	GET    /api/tasks/{id}/artifacts  catalog entries for a task
//	POST   /api/check                 run preflight checks
//	GET    /api/logs                  buffered daemon log events
//	GET    /health                    liveness and daemon status
//
// Task, submission, and artifact bodies reuse the tasks, pipeline, and
// artifacts types directly so the server and client cannot drift. Error
// responses always carry both "error" and "detail"; Client turns them into
// *Error values that callers can test with IsNotFound.
//
// Stream reads "data:" lines and hands each decoded event to a callback.
// Heartbeats arrive as StreamEvent values with Heartbeat set. The stream ends
// when the task reaches a terminal state or is removed.
package api
