// Package preflight provides readiness checks for the directories, external
// tools and generation backend vidscribe depends on.
//
// The daemon runs the local checks at startup and reports them on /health;
// "vidscribe check" runs every check, including a live backend ping.
package preflight
