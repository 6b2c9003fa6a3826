// Package tasks owns task records and the in-memory coordination state around
// them.
//
// Store keeps every task in memory and rewrites the whole JSON table on each
// mutation so a crashed daemon can report what it was doing. DedupIndex stops
// two concurrent jobs from processing the same source URL, and Registry holds
// the cancel functions of running pipelines.
//
// Only the pipeline mutates a task after creation. Store.Update refuses to move
// progress backwards or to modify a task that already reached a terminal
// status, and silently ignores writes for tasks that were deleted.
package tasks
