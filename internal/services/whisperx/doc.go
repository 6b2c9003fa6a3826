// Package whisperx runs WhisperX through uvx and turns its JSON output into
// the timestamped Markdown transcript consumed by the pipeline.
//
// Configuration options (model, CUDA, VAD method) are passed via Config.
// Tests inject a command runner so no external process is started.
package whisperx
