// Package pipeline turns a media URL into a transcript, an optional
// translation and a summary.
//
// Service accepts submissions, enforces one running job per URL and owns the
// goroutine of every job. Orchestrator drives a single job through its stages
// (fetching, transcribing, optimizing, translating, summarizing), writing each
// transition to the task store and publishing the resulting snapshot on the
// update bus. Every generation call goes through GenerateOrFallback so a
// backend outage degrades output quality instead of failing the job.
package pipeline
