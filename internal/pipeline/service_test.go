package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"vidscribe/internal/chunking"
	"vidscribe/internal/config"
	"vidscribe/internal/logging"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/services"
	"vidscribe/internal/services/llm"
	"vidscribe/internal/services/whisperx"
	"vidscribe/internal/tasks"
	"vidscribe/internal/testsupport"
	"vidscribe/internal/updates"
)

const videoURL = "https://www.youtube.com/watch?v=abc123"

// markedPrompts tags every system prompt so tests can tell the steps apart.
func markedPrompts() pipeline.Prompts {
	return pipeline.Prompts{
		pipeline.PromptOptimize:      {System: "OPTIMIZE", User: "{{.Text}}"},
		pipeline.PromptTranslate:     {System: "TRANSLATE {{.Language}}", User: "{{.Text}}"},
		pipeline.PromptSummarize:     {System: "SUMMARIZE {{.Language}}", User: "{{.Title}}\n{{.Text}}"},
		pipeline.PromptSummarizePart: {System: "PART {{.Part}}/{{.Total}}", User: "{{.Text}}"},
		pipeline.PromptIntegrate:     {System: "INTEGRATE", User: "{{.Text}}"},
	}
}

// scriptedGenerator echoes optimize input and tags the other steps.
func scriptedGenerator() *testsupport.FakeGenerator {
	return &testsupport.FakeGenerator{Respond: func(req llm.Request) (string, error) {
		switch {
		case req.System == "OPTIMIZE":
			return req.Prompt, nil
		case strings.HasPrefix(req.System, "TRANSLATE"):
			return "translated: " + req.Prompt, nil
		case strings.HasPrefix(req.System, "SUMMARIZE"):
			return "summary of the video", nil
		case strings.HasPrefix(req.System, "PART"):
			return "part summary " + req.System, nil
		case req.System == "INTEGRATE":
			return "integrated summary", nil
		}
		return "", fmt.Errorf("unexpected prompt %q", req.System)
	}}
}

func countSystem(gen *testsupport.FakeGenerator, prefix string) int {
	n := 0
	for _, req := range gen.Requests() {
		if strings.HasPrefix(req.System, prefix) {
			n++
		}
	}
	return n
}

type harness struct {
	cfg     *config.Config
	store   *tasks.Store
	bus     *updates.Bus
	service *pipeline.Service
}

func newHarness(t *testing.T, fetcher pipeline.Fetcher, transcriber pipeline.Transcriber, gen llm.Generator, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	artifactStore := testsupport.MustOpenArtifacts(t, cfg)
	bus := updates.New(updates.WithBuffer(64))

	orchestrator, err := pipeline.NewOrchestrator(pipeline.OrchestratorDeps{
		Store:       store,
		Bus:         bus,
		Artifacts:   artifactStore,
		Fetcher:     fetcher,
		Transcriber: transcriber,
		Generator:   gen,
		Engine:      chunking.New(cfg.Chunking, logging.NewNop()),
		Prompts:     markedPrompts(),
		Logger:      logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	service, err := pipeline.NewService(pipeline.ServiceDeps{
		Store:           store,
		Bus:             bus,
		Artifacts:       artifactStore,
		Orchestrator:    orchestrator,
		DefaultLanguage: "en",
		Logger:          logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = service.Close(ctx)
	})
	return &harness{cfg: cfg, store: store, bus: bus, service: service}
}

func (h *harness) waitTerminal(t *testing.T, id string) tasks.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := h.service.Get(id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if task.IsTerminal() {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return tasks.Task{}
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.service.Active().ActiveTasks == 0 && len(h.service.Active().ProcessingURLs) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("service still has active tasks: %+v", h.service.Active())
}

func TestSubmitCompletesWithoutTranslation(t *testing.T) {
	gen := scriptedGenerator()
	h := newHarness(t, &testsupport.FakeFetcher{Title: "Go Testing"}, &testsupport.FakeTranscriber{Language: "en"}, gen)

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Message != pipeline.MessageAccepted || sub.Existing {
		t.Fatalf("unexpected submission %+v", sub)
	}

	task := h.waitTerminal(t, sub.TaskID)
	if task.Status != tasks.StatusCompleted || task.Progress != 100 {
		t.Fatalf("expected completed task, got %s at %d (%s)", task.Status, task.Progress, task.Error)
	}
	if task.Title != "Go Testing" {
		t.Fatalf("expected title recorded, got %q", task.Title)
	}
	res := task.Result
	if res == nil {
		t.Fatal("expected result")
	}
	if res.Translation != nil {
		t.Fatalf("expected no translation, got %q", *res.Translation)
	}
	if res.Summary != "summary of the video" {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if res.DetectedLanguage != "en" {
		t.Fatalf("expected detected en, got %q", res.DetectedLanguage)
	}
	if !strings.Contains(res.Script, "testing pipelines") || strings.Contains(res.Script, "**[") {
		t.Fatalf("script should hold spoken text only: %q", res.Script)
	}
	if got := countSystem(gen, "TRANSLATE"); got != 0 {
		t.Fatalf("expected no translate calls, got %d", got)
	}
	if res.Files.Raw == "" || res.Files.Transcript == "" || res.Files.Summary == "" || res.Files.Translation != "" {
		t.Fatalf("unexpected files %+v", res.Files)
	}
	for _, name := range res.Files.Names() {
		path, err := h.service.Artifacts().Resolve(context.Background(), name)
		if err != nil {
			t.Fatalf("Resolve %s: %v", name, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("artifact %s missing: %v", name, err)
		}
	}
	h.waitIdle(t)
}

func TestSubmitTranslatesForeignTranscript(t *testing.T) {
	gen := scriptedGenerator()
	transcriber := &testsupport.FakeTranscriber{
		Language: "zh",
		Segments: []whisperx.Segment{
			{Text: "大家好，歡迎收看本期節目。", Start: 0, End: 3},
			{Text: "今天我們來聊聊測試。", Start: 3, End: 6},
		},
	}
	h := newHarness(t, &testsupport.FakeFetcher{}, transcriber, gen)

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task := h.waitTerminal(t, sub.TaskID)
	if task.Status != tasks.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Status, task.Error)
	}
	if task.Result.Translation == nil || !strings.HasPrefix(*task.Result.Translation, "translated:") {
		t.Fatalf("expected translation, got %v", task.Result.Translation)
	}
	if task.Result.Files.Translation == "" {
		t.Fatal("expected translation artifact")
	}
	if got := countSystem(gen, "TRANSLATE English"); got != 1 {
		t.Fatalf("expected one translate call targeting English, got %d", got)
	}
}

func TestSubmitSkipsTranslationForChineseVariants(t *testing.T) {
	gen := scriptedGenerator()
	h := newHarness(t, &testsupport.FakeFetcher{}, &testsupport.FakeTranscriber{Language: "zh"}, gen)

	sub, err := h.service.Submit(context.Background(), videoURL, "zh-tw")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task := h.waitTerminal(t, sub.TaskID)
	if task.Result == nil || task.Result.Translation != nil {
		t.Fatalf("expected completed task without translation, got %+v", task)
	}
}

func TestSubmitRejectsInvalidURL(t *testing.T) {
	h := newHarness(t, &testsupport.FakeFetcher{}, &testsupport.FakeTranscriber{}, scriptedGenerator())
	for _, raw := range []string{"", "ftp://example.com/a", "not a url"} {
		if _, err := h.service.Submit(context.Background(), raw, ""); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Submit(%q): expected validation error, got %v", raw, err)
		}
	}
	if len(h.service.List()) != 0 {
		t.Fatal("invalid submissions must not create tasks")
	}
}

func TestSubmitDeduplicatesRunningURL(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &testsupport.FakeFetcher{Gate: gate}
	h := newHarness(t, fetcher, &testsupport.FakeTranscriber{Language: "en"}, scriptedGenerator())

	first, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := h.service.Submit(context.Background(), "  "+videoURL+" ", "zh-tw")
	if err != nil {
		t.Fatalf("Submit duplicate: %v", err)
	}
	if second.TaskID != first.TaskID || !second.Existing || second.Message != pipeline.MessageInProgress {
		t.Fatalf("expected duplicate to reuse %s, got %+v", first.TaskID, second)
	}
	if n := len(h.service.List()); n != 1 {
		t.Fatalf("expected one stored task, got %d", n)
	}
	active := h.service.Active()
	if active.ActiveTasks != 1 || len(active.ProcessingURLs) != 1 || active.ProcessingURLs[0] != videoURL {
		t.Fatalf("unexpected active view %+v", active)
	}

	close(gate)
	h.waitTerminal(t, first.TaskID)
	h.waitIdle(t)

	third, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit after completion: %v", err)
	}
	if third.Existing || third.TaskID == first.TaskID {
		t.Fatalf("expected a new task after completion, got %+v", third)
	}
	h.waitTerminal(t, third.TaskID)
}

func TestCancelRemovesTaskAndReleasesClaim(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	h := newHarness(t, &testsupport.FakeFetcher{Gate: gate}, &testsupport.FakeTranscriber{Language: "en"}, scriptedGenerator())

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	stream, _, err := h.service.Subscribe(sub.TaskID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	if err := h.service.Cancel(sub.TaskID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := h.service.Get(sub.TaskID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after cancel, got %v", err)
	}
	if err := h.service.Cancel(sub.TaskID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected second cancel to report not found, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, err := stream.Next(ctx)
		if errors.Is(err, updates.ErrDropped) {
			break
		}
		if err != nil {
			t.Fatalf("expected stream to be dropped, got %v", err)
		}
	}

	again, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit after cancel: %v", err)
	}
	if again.Existing || again.TaskID == sub.TaskID {
		t.Fatalf("expected fresh task after cancel, got %+v", again)
	}
	if err := h.service.Cancel(again.TaskID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	h.waitIdle(t)
	if _, err := h.service.Get(sub.TaskID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("cancelled run must not recreate its task, got %v", err)
	}
}

func TestFetchFailureMarksTaskError(t *testing.T) {
	fetcher := &testsupport.FakeFetcher{Err: errors.New("video unavailable")}
	h := newHarness(t, fetcher, &testsupport.FakeTranscriber{Language: "en"}, scriptedGenerator())

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task := h.waitTerminal(t, sub.TaskID)
	if task.Status != tasks.StatusError || task.Stage != tasks.StageError {
		t.Fatalf("expected error state, got %s/%s", task.Status, task.Stage)
	}
	if !strings.Contains(task.Error, "video unavailable") {
		t.Fatalf("expected error detail, got %q", task.Error)
	}
	if task.Result != nil {
		t.Fatal("failed task must not carry a result")
	}
	h.waitIdle(t)
}

func TestTranscriptionWithoutSpeechFails(t *testing.T) {
	transcriber := &testsupport.FakeTranscriber{Language: "en", Segments: []whisperx.Segment{{Text: "  "}}}
	h := newHarness(t, &testsupport.FakeFetcher{}, transcriber, scriptedGenerator())

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task := h.waitTerminal(t, sub.TaskID)
	if task.Status != tasks.StatusError || !strings.Contains(task.Error, "no speech") {
		t.Fatalf("expected no speech error, got %s %q", task.Status, task.Error)
	}
}

func TestStreamProgressIsMonotonic(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &testsupport.FakeFetcher{Gate: gate}, &testsupport.FakeTranscriber{Language: "en"}, scriptedGenerator())

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	stream, first, err := h.service.Subscribe(sub.TaskID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	last := first.Progress
	var stages []tasks.Stage
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ev.Type != updates.EventSnapshot {
			continue
		}
		if ev.Task.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", ev.Task.Progress, last)
		}
		last = ev.Task.Progress
		if n := len(stages); n == 0 || stages[n-1] != ev.Task.Stage {
			stages = append(stages, ev.Task.Stage)
		}
		if ev.Task.IsTerminal() {
			if ev.Task.Status != tasks.StatusCompleted {
				t.Fatalf("expected completion, got %s", ev.Task.Status)
			}
			break
		}
	}
	if last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
	if stages[len(stages)-1] != tasks.StageCompleted {
		t.Fatalf("unexpected stage sequence %v", stages)
	}
}

func TestSubscribersNeverSeeOlderSnapshotsThanTheFirst(t *testing.T) {
	h := newHarness(t, &testsupport.FakeFetcher{}, &testsupport.FakeTranscriber{Language: "en"}, scriptedGenerator())

	const (
		jobs        = 40
		subscribers = 8
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := range jobs {
		sub, err := h.service.Submit(context.Background(), fmt.Sprintf("%s&n=%d", videoURL, i), "en")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		for range subscribers {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				stream, first, err := h.service.Subscribe(id)
				if err != nil {
					t.Errorf("Subscribe %s: %v", id, err)
					return
				}
				defer stream.Close()
				last := first
				for !last.IsTerminal() {
					ev, err := stream.Next(ctx)
					if err != nil {
						t.Errorf("Next %s: %v", id, err)
						return
					}
					if ev.Type != updates.EventSnapshot {
						continue
					}
					if ev.Task.Version <= last.Version || ev.Task.Progress < last.Progress {
						t.Errorf("task %s: got version %d at %d%% (%q) after version %d at %d%%",
							id, ev.Task.Version, ev.Task.Progress, ev.Task.Message, last.Version, last.Progress)
						return
					}
					last = *ev.Task
				}
			}(sub.TaskID)
		}
	}
	wg.Wait()
}

func TestResubmitOnTerminalSnapshotStartsNewTask(t *testing.T) {
	for _, tc := range []struct {
		name    string
		fetcher *testsupport.FakeFetcher
		status  tasks.Status
	}{
		{"completed", &testsupport.FakeFetcher{}, tasks.StatusCompleted},
		{"failed", &testsupport.FakeFetcher{Err: errors.New("video unavailable")}, tasks.StatusError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.fetcher, &testsupport.FakeTranscriber{Language: "en"}, scriptedGenerator())
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			for round := range 20 {
				sub, err := h.service.Submit(ctx, videoURL, "en")
				if err != nil {
					t.Fatalf("Submit: %v", err)
				}
				if sub.Existing {
					t.Fatalf("round %d: submission joined finished task %s", round, sub.TaskID)
				}
				stream, first, err := h.service.Subscribe(sub.TaskID)
				if err != nil {
					t.Fatalf("Subscribe: %v", err)
				}
				last := first
				for !last.IsTerminal() {
					ev, err := stream.Next(ctx)
					if err != nil {
						t.Fatalf("Next: %v", err)
					}
					if ev.Type == updates.EventSnapshot {
						last = *ev.Task
					}
				}
				stream.Close()
				if last.Status != tc.status {
					t.Fatalf("expected %s, got %s", tc.status, last.Status)
				}
			}
		})
	}
}

func TestLongTranscriptSummarizesInParts(t *testing.T) {
	var segments []whisperx.Segment
	for i := range 12 {
		segments = append(segments, whisperx.Segment{
			Text:  fmt.Sprintf("Sentence number %d explains another detail about the topic at hand.", i+1),
			Start: float64(i * 5),
			End:   float64(i*5 + 5),
		})
	}
	gen := scriptedGenerator()
	h := newHarness(t, &testsupport.FakeFetcher{}, &testsupport.FakeTranscriber{Language: "en", Segments: segments}, gen,
		testsupport.WithChunkChars(200))

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task := h.waitTerminal(t, sub.TaskID)
	if task.Status != tasks.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Status, task.Error)
	}
	if parts := countSystem(gen, "PART"); parts < 2 {
		t.Fatalf("expected several part summaries, got %d", parts)
	}
	if got := countSystem(gen, "INTEGRATE"); got != 1 {
		t.Fatalf("expected one integration call, got %d", got)
	}
	if countSystem(gen, "SUMMARIZE") != 0 {
		t.Fatal("long transcript must not use the single summary prompt")
	}
	if task.Result.Summary != "integrated summary" {
		t.Fatalf("unexpected summary %q", task.Result.Summary)
	}
}

func TestGenerationFailureFallsBack(t *testing.T) {
	gen := &testsupport.FakeGenerator{Respond: func(llm.Request) (string, error) {
		return "", errors.New("backend down")
	}}
	h := newHarness(t, &testsupport.FakeFetcher{}, &testsupport.FakeTranscriber{Language: "en"}, gen)

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task := h.waitTerminal(t, sub.TaskID)
	if task.Status != tasks.StatusCompleted {
		t.Fatalf("generation failures must not fail the task, got %s (%s)", task.Status, task.Error)
	}
	if !strings.Contains(task.Result.Script, "Hello and welcome") {
		t.Fatalf("fallback script should keep the spoken text: %q", task.Result.Script)
	}
	if !strings.Contains(task.Result.Summary, "automatic overview") {
		t.Fatalf("expected fallback summary, got %q", task.Result.Summary)
	}
}

func TestCloseStopsRunningTasks(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	h := newHarness(t, &testsupport.FakeFetcher{Gate: gate}, &testsupport.FakeTranscriber{Language: "en"}, scriptedGenerator())

	sub, err := h.service.Submit(context.Background(), videoURL, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.service.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	task, err := h.service.Get(sub.TaskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.IsTerminal() {
		t.Fatalf("a stopped run must not write a terminal state, got %s", task.Status)
	}
	if _, err := h.service.Submit(context.Background(), "https://example.com/other", "en"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected submit after close to fail, got %v", err)
	}
}
