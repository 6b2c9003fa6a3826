// Package artifacts owns the on-disk results of a task.
//
// Each task gets a directory under the work dir named after its creation time
// and id. Markdown documents written there are recorded in a SQLite catalog so
// downloads can resolve a bare file name back to its path. Lookups fall back
// to scanning task directories and then the work dir root, which keeps files
// from older runs reachable after the catalog is cleared.
package artifacts
