package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidscribe/internal/artifacts"
	"vidscribe/internal/chunking"
	"vidscribe/internal/config"
	"vidscribe/internal/language"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/services/llm"
	"vidscribe/internal/services/whisperx"
	"vidscribe/internal/services/ytdlp"
	"vidscribe/internal/tasks"
	"vidscribe/internal/updates"
)

// translateChunkThreshold is the length above which translation is chunked.
const translateChunkThreshold = 3000

// Progress checkpoints.
const (
	progressPreparing    = 5
	progressFetching     = 10
	progressTranscribing = 30
	progressOptimizing   = 45
	progressOptimized    = 55
	progressTranslated   = 65
	progressSummarizing  = 70
	progressIntegrating  = 90
	progressSummarized   = 95
	progressCompleted    = 100
)

// errTaskGone means the task was deleted or finished underneath the
// orchestrator; the run stops without writing anything else.
var errTaskGone = errors.New("task no longer active")

// Fetcher downloads the audio of a media URL into dir.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) (ytdlp.Media, error)
}

// Transcriber converts audio into a timestamped transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, outputDir, lang string) (whisperx.Result, error)
}

// Orchestrator drives one task through the pipeline stages.
type Orchestrator struct {
	store       *tasks.Store
	bus         *updates.Bus
	artifacts   *artifacts.Store
	fetcher     Fetcher
	transcriber Transcriber
	generator   llm.Generator
	engine      *chunking.Engine
	prompts     Prompts
	logger      *slog.Logger

	// finishing runs right before a task is stored in a terminal state.
	finishing func(taskID string)
}

// OrchestratorDeps bundles the orchestrator collaborators.
type OrchestratorDeps struct {
	Store       *tasks.Store
	Bus         *updates.Bus
	Artifacts   *artifacts.Store
	Fetcher     Fetcher
	Transcriber Transcriber
	Generator   llm.Generator
	Engine      *chunking.Engine
	Prompts     Prompts
	Logger      *slog.Logger
}

// NewOrchestrator validates deps and returns an orchestrator.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: task store required")
	case deps.Bus == nil:
		return nil, errors.New("orchestrator: update bus required")
	case deps.Artifacts == nil:
		return nil, errors.New("orchestrator: artifact store required")
	case deps.Fetcher == nil:
		return nil, errors.New("orchestrator: fetcher required")
	case deps.Transcriber == nil:
		return nil, errors.New("orchestrator: transcriber required")
	}
	if deps.Engine == nil {
		deps.Engine = chunking.New(config.Default().Chunking, deps.Logger)
	}
	if deps.Prompts == nil {
		deps.Prompts = DefaultPrompts()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Orchestrator{
		store:       deps.Store,
		bus:         deps.Bus,
		artifacts:   deps.Artifacts,
		fetcher:     deps.Fetcher,
		transcriber: deps.Transcriber,
		generator:   deps.Generator,
		engine:      deps.Engine,
		prompts:     deps.Prompts,
		logger:      logging.NewComponentLogger(deps.Logger, "orchestrator"),
	}, nil
}

// job carries what the stages learn about one task.
type job struct {
	id       string
	url      string
	target   string
	dir      string
	title    string
	detected string
	files    tasks.Files
	logger   *slog.Logger
}

// Run executes every stage for taskID. A nil error means the task completed.
// Cancellation surfaces as ctx's error and errTaskGone reports that the task
// vanished; neither leaves the store modified.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	task, err := o.store.Get(taskID)
	if err != nil {
		return errTaskGone
	}
	ctx = services.WithTaskID(ctx, taskID)
	j := &job{
		id:     taskID,
		url:    task.URL,
		target: task.SummaryLanguage,
		logger: logging.TaskLogger(o.logger, taskID),
	}
	start := time.Now()
	j.logger.Info("task started", logging.String("url", j.url), logging.String("summary_language", j.target))

	if err := o.prepare(ctx, j, task.CreatedAt); err != nil {
		return err
	}
	audio, err := o.fetch(ctx, j)
	if err != nil {
		return err
	}
	raw, err := o.transcribe(ctx, j, audio)
	if err != nil {
		return err
	}
	script, err := o.optimize(ctx, j, raw)
	if err != nil {
		return err
	}
	var translation *string
	if ShouldTranslate(j.detected, j.target) {
		text, err := o.translate(ctx, j, script)
		if err != nil {
			return err
		}
		translation = &text
	} else {
		j.logger.Info("translation skipped",
			logging.String("detected_language", j.detected),
			logging.String("summary_language", j.target),
		)
	}
	summary, err := o.summarize(ctx, j, script)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	o.finish(j.id)
	_, err = o.transition(ctx, j.id, func(t *tasks.Task) {
		t.Status = tasks.StatusCompleted
		t.Stage = tasks.StageCompleted
		t.Progress = progressCompleted
		t.Message = "Processing complete"
		t.Result = &tasks.Result{
			Script:           script,
			Summary:          summary,
			Translation:      translation,
			DetectedLanguage: j.detected,
			Files:            j.files,
		}
	})
	if err != nil {
		return err
	}
	j.logger.Info("task completed",
		logging.Duration("elapsed", time.Since(start)),
		logging.Bool("translated", translation != nil),
		logging.String(logging.FieldEventType, "task_completed"),
	)
	return nil
}

// Fail records err as the terminal state of taskID.
func (o *Orchestrator) Fail(taskID string, err error) {
	message := services.UserMessage(err)
	o.finish(taskID)
	snapshot, ok := o.store.Update(taskID, func(t *tasks.Task) {
		t.Status = tasks.StatusError
		t.Stage = tasks.StageError
		t.Error = message
		t.Message = "Processing failed: " + message
	})
	if !ok {
		return
	}
	o.bus.Publish(taskID, snapshot)
	logging.ErrorWithContext(logging.TaskLogger(o.logger, taskID), "task failed", "task_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the collaborator named in the error and resubmit"),
		logging.String(logging.FieldImpact, "no result produced for this url"),
	)
}

// transition applies mutate, publishes the snapshot, and reports errTaskGone
// when the task is no longer writable. It checks ctx first so a cancelled
// run never writes.
func (o *Orchestrator) transition(ctx context.Context, taskID string, mutate func(*tasks.Task)) (tasks.Task, error) {
	if err := ctx.Err(); err != nil {
		return tasks.Task{}, err
	}
	snapshot, ok := o.store.Update(taskID, mutate)
	if !ok {
		return tasks.Task{}, errTaskGone
	}
	o.bus.Publish(taskID, snapshot)
	return snapshot, nil
}

func (o *Orchestrator) finish(taskID string) {
	if o.finishing != nil {
		o.finishing(taskID)
	}
}

func (o *Orchestrator) progress(ctx context.Context, j *job, value int, message string) error {
	_, err := o.transition(ctx, j.id, func(t *tasks.Task) {
		t.Progress = value
		t.Message = message
	})
	return err
}

// subProgress maps done/total onto [from, to].
func (o *Orchestrator) subProgress(ctx context.Context, j *job, from, to int, label string) chunking.ProgressFunc {
	return func(done, total int) {
		if total <= 0 {
			return
		}
		value := from + (to-from)*done/total
		_ = o.progress(ctx, j, value, fmt.Sprintf("%s (%d/%d)", label, done, total))
	}
}

func (o *Orchestrator) enter(ctx context.Context, j *job, stage tasks.Stage, value int, message string) (context.Context, error) {
	_, err := o.transition(ctx, j.id, func(t *tasks.Task) {
		t.Stage = stage
		t.Progress = value
		t.Message = message
	})
	if err != nil {
		return ctx, err
	}
	j.logger.Info("stage started",
		logging.String(logging.FieldStage, string(stage)),
		logging.Int("progress", value),
	)
	return services.WithStage(ctx, string(stage)), nil
}

func (o *Orchestrator) prepare(ctx context.Context, j *job, created time.Time) error {
	if _, err := o.enter(ctx, j, tasks.StageFetching, progressPreparing, "Preparing task"); err != nil {
		return err
	}
	dir, err := o.artifacts.CreateTaskDir(j.id, created)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "fetching", "create task dir", "", err)
	}
	j.dir = dir
	_, err = o.transition(ctx, j.id, func(t *tasks.Task) {
		t.Dir = dir
		t.Progress = progressFetching
		t.Message = "Downloading media"
	})
	return err
}

func (o *Orchestrator) fetch(ctx context.Context, j *job) (string, error) {
	stageCtx := services.WithStage(ctx, string(tasks.StageFetching))
	media, err := o.fetcher.Fetch(stageCtx, j.url, j.dir)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", services.Wrap(services.ErrExternalTool, "fetching", "download media", "", err)
	}
	j.title = strings.TrimSpace(media.Title)
	j.logger.Info("media fetched", logging.String("title", j.title), logging.String("audio", media.AudioPath))
	_, err = o.transition(ctx, j.id, func(t *tasks.Task) {
		t.Title = j.title
		t.Stage = tasks.StageTranscribing
		t.Progress = progressTranscribing
		t.Message = "Transcribing audio"
	})
	return media.AudioPath, err
}

func (o *Orchestrator) transcribe(ctx context.Context, j *job, audio string) (string, error) {
	stageCtx := services.WithStage(ctx, string(tasks.StageTranscribing))
	result, err := o.transcriber.Transcribe(stageCtx, audio, j.dir, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", services.Wrap(services.ErrExternalTool, "transcribing", "whisperx", "", err)
	}
	if strings.TrimSpace(StripTranscriptMeta(result.Markdown)) == "" {
		return "", services.Wrap(services.ErrValidation, "transcribing", "whisperx", "no speech detected", nil)
	}
	j.detected = language.Normalize(result.Language)
	if j.detected == "" {
		j.detected = language.Guess(result.Markdown)
	}
	name, err := o.artifacts.Save(stageCtx, j.id, j.dir, artifacts.KindRaw, j.title, result.Markdown)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "transcribing", "save raw transcript", "", err)
	}
	j.files.Raw = name
	j.logger.Info("transcription finished",
		logging.String("detected_language", j.detected),
		logging.Int("segments", len(result.Segments)),
	)
	return result.Markdown, nil
}

func (o *Orchestrator) optimize(ctx context.Context, j *job, raw string) (string, error) {
	stageCtx, err := o.enter(ctx, j, tasks.StageOptimizing, progressOptimizing, "Optimizing transcript")
	if err != nil {
		return "", err
	}
	cleaned := StripTranscriptMeta(raw)
	policy := o.engine.Policy()

	var script string
	if o.engine.Fits(cleaned) {
		req, err := o.prompts.Render(PromptOptimize, PromptData{Text: cleaned, Language: language.PromptName(j.detected)})
		if err != nil {
			return "", services.Wrap(services.ErrConfiguration, "optimizing", "render prompt", "", err)
		}
		out, _, err := GenerateOrFallback(stageCtx, o.generator, req, o.logFallback(j, "optimize", func() string {
			return chunking.FallbackFormat(cleaned, policy.ParagraphCap)
		}))
		if err != nil {
			return "", err
		}
		script = chunking.EnforceParagraphCap(chunking.NormalizeMarkdown(out), policy.ParagraphCap)
	} else {
		script, err = o.engine.Run(stageCtx, cleaned, j.detected, o.chunkGenerator(PromptOptimize, j),
			o.subProgress(ctx, j, progressOptimizing, progressOptimized, "Optimizing transcript"))
		if err != nil {
			return "", err
		}
	}
	script = chunking.RemoveTranscriptHeadings(script)

	name, err := o.artifacts.Save(stageCtx, j.id, j.dir, artifacts.KindTranscript, j.title, artifacts.Document(j.title, script, j.url))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "optimizing", "save transcript", "", err)
	}
	j.files.Transcript = name
	return script, o.progress(ctx, j, progressOptimized, "Transcript optimized")
}

// chunkGenerator renders key for each chunk and returns the raw generation
// result, leaving fallback to the engine.
func (o *Orchestrator) chunkGenerator(key string, j *job) chunking.ProcessFunc {
	return func(ctx context.Context, c chunking.Chunk) (string, error) {
		if o.generator == nil {
			return "", errors.New("no generation backend configured")
		}
		req, err := o.prompts.Render(key, PromptData{
			Text:     c.Input,
			Language: language.PromptName(j.detected),
			Part:     c.Index + 1,
			Total:    c.Total,
		})
		if err != nil {
			return "", err
		}
		return o.generator.Generate(ctx, req)
	}
}

func (o *Orchestrator) translate(ctx context.Context, j *job, script string) (string, error) {
	stageCtx, err := o.enter(ctx, j, tasks.StageTranslating, progressOptimized, "Translating transcript")
	if err != nil {
		return "", err
	}
	policy := o.engine.Policy()
	data := PromptData{Language: language.PromptName(j.target), SourceLanguage: language.DisplayName(j.detected)}

	var pieces []string
	if len([]rune(script)) <= translateChunkThreshold {
		pieces = []string{script}
	} else {
		pieces = o.engine.Split(script, policy.ChunkChars)
	}
	chunks := make([]chunking.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = chunking.Chunk{Index: i, Total: len(pieces), Text: piece, Input: piece}
	}
	outputs, err := o.engine.Process(stageCtx, chunks, func(ctx context.Context, c chunking.Chunk) (string, error) {
		d := data
		d.Text, d.Part, d.Total = c.Input, c.Index+1, c.Total
		req, err := o.prompts.Render(PromptTranslate, d)
		if err != nil {
			return "", err
		}
		out, _, err := GenerateOrFallback(ctx, o.generator, req, o.logFallback(j, "translate", func() string { return c.Text }))
		return out, err
	}, o.subProgress(ctx, j, progressOptimized, progressTranslated, "Translating transcript"))
	if err != nil {
		return "", err
	}
	translation := chunking.NormalizeMarkdown(strings.Join(outputs, "\n\n"))

	name, err := o.artifacts.Save(stageCtx, j.id, j.dir, artifacts.KindTranslation, j.title, artifacts.Document(j.title, translation, j.url))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "translating", "save translation", "", err)
	}
	j.files.Translation = name
	return translation, o.progress(ctx, j, progressTranslated, "Translation complete")
}

func (o *Orchestrator) summarize(ctx context.Context, j *job, script string) (string, error) {
	stageCtx, err := o.enter(ctx, j, tasks.StageSummarizing, progressSummarizing, "Generating summary")
	if err != nil {
		return "", err
	}
	data := PromptData{Language: language.PromptName(j.target), Title: j.title}

	var summary string
	if o.engine.Fits(script) {
		d := data
		d.Text = script
		req, err := o.prompts.Render(PromptSummarize, d)
		if err != nil {
			return "", services.Wrap(services.ErrConfiguration, "summarizing", "render prompt", "", err)
		}
		summary, _, err = GenerateOrFallback(stageCtx, o.generator, req, o.logFallback(j, "summarize", func() string {
			return FallbackSummary(script, j.target)
		}))
		if err != nil {
			return "", err
		}
	} else {
		summary, err = o.summarizeParts(stageCtx, ctx, j, data, script)
		if err != nil {
			return "", err
		}
	}
	summary = chunking.NormalizeMarkdown(summary)

	name, err := o.artifacts.Save(stageCtx, j.id, j.dir, artifacts.KindSummary, j.title, artifacts.Document(j.title, summary, j.url))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "summarizing", "save summary", "", err)
	}
	j.files.Summary = name
	return summary, o.progress(ctx, j, progressSummarized, "Summary ready")
}

// summarizeParts summarizes each chunk as "Part i/n" and integrates the
// partial summaries, hierarchically when there are more than
// SummaryGroupSize of them.
func (o *Orchestrator) summarizeParts(stageCtx, ctx context.Context, j *job, data PromptData, script string) (string, error) {
	pieces := o.engine.Split(script, 0)
	chunks := make([]chunking.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = chunking.Chunk{Index: i, Total: len(pieces), Text: piece, Input: piece}
	}
	parts, err := o.engine.Process(stageCtx, chunks, func(ctx context.Context, c chunking.Chunk) (string, error) {
		d := data
		d.Text, d.Part, d.Total = c.Input, c.Index+1, c.Total
		req, err := o.prompts.Render(PromptSummarizePart, d)
		if err != nil {
			return "", err
		}
		out, _, err := GenerateOrFallback(ctx, o.generator, req, o.logFallback(j, "summarize-part", func() string {
			return partFallback(c.Index+1, c.Text)
		}))
		return out, err
	}, o.subProgress(ctx, j, progressSummarizing, progressIntegrating, "Summarizing parts"))
	if err != nil {
		return "", err
	}
	if err := o.progress(ctx, j, progressIntegrating, "Integrating summaries"); err != nil {
		return "", err
	}
	return o.integrate(stageCtx, j, data, parts)
}

func (o *Orchestrator) integrate(ctx context.Context, j *job, data PromptData, parts []string) (string, error) {
	group := o.engine.Policy().SummaryGroupSize
	if group < 2 {
		group = 2
	}
	for len(parts) > group {
		var merged []string
		for start := 0; start < len(parts); start += group {
			end := min(start+group, len(parts))
			out, err := o.integrateOnce(ctx, j, data, parts[start:end], start)
			if err != nil {
				return "", err
			}
			merged = append(merged, out)
		}
		parts = merged
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return o.integrateOnce(ctx, j, data, parts, 0)
}

func (o *Orchestrator) integrateOnce(ctx context.Context, j *job, data PromptData, parts []string, offset int) (string, error) {
	labelled := make([]string, len(parts))
	for i, part := range parts {
		labelled[i] = fmt.Sprintf("[Part %d]\n%s", offset+i+1, part)
	}
	joined := strings.Join(labelled, "\n\n")
	d := data
	d.Text = joined
	req, err := o.prompts.Render(PromptIntegrate, d)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "summarizing", "render prompt", "", err)
	}
	out, _, err := GenerateOrFallback(ctx, o.generator, req, o.logFallback(j, "integrate", func() string {
		return strings.Join(parts, "\n\n")
	}))
	return out, err
}

// logFallback wraps a fallback so every degradation is logged once.
func (o *Orchestrator) logFallback(j *job, step string, fallback func() string) FallbackFunc {
	return func(cause error) string {
		logging.WarnWithContext(j.logger, "generation failed; using fallback", "generation_fallback",
			logging.String("step", step),
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "check the generation backend with 'vidscribe check'"),
			logging.String(logging.FieldImpact, "output uses deterministic formatting for this step"),
		)
		return fallback()
	}
}
