// Package language normalizes language codes and maps them to the names used
// in prompts and reports.
//
// Codes arrive from three places: user requests (summary_language), the
// transcriber's detection result, and configuration. All comparisons go
// through Normalize and Base so that "EN", "eng" and "en-US" agree.
package language
