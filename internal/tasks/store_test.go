package tasks_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/tasks"
)

func openStore(t *testing.T) (*tasks.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	store, err := tasks.Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, path
}

func TestStoreCreatePersistsTable(t *testing.T) {
	store, path := openStore(t)

	task, err := store.Create(tasks.Task{URL: "https://example.com/a", SummaryLanguage: "en"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(task.ID) != 8 {
		t.Fatalf("expected generated 8 char id, got %q", task.ID)
	}
	if task.Status != tasks.StatusProcessing || task.Stage != tasks.StageAccepted {
		t.Fatalf("unexpected initial state %s/%s", task.Status, task.Stage)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	var table map[string]tasks.Task
	if err := json.Unmarshal(data, &table); err != nil {
		t.Fatalf("decode table: %v", err)
	}
	if table[task.ID].URL != "https://example.com/a" {
		t.Fatalf("table missing task: %s", data)
	}
}

func TestStoreCreateRejectsDuplicateID(t *testing.T) {
	store, _ := openStore(t)
	if _, err := store.Create(tasks.Task{ID: "X1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := store.Create(tasks.Task{ID: "X1"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, _ := openStore(t)
	if _, err := store.Get("nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreUpdateKeepsProgressMonotonic(t *testing.T) {
	store, _ := openStore(t)
	task, _ := store.Create(tasks.Task{ID: "A"})

	if _, ok := store.Update(task.ID, func(t *tasks.Task) { t.Progress = 45 }); !ok {
		t.Fatal("expected update to apply")
	}
	updated, _ := store.Update(task.ID, func(t *tasks.Task) {
		t.Progress = 10
		t.Message = "late"
	})
	if updated.Progress != 45 {
		t.Fatalf("progress moved backwards to %d", updated.Progress)
	}
	if updated.Message != "late" {
		t.Fatalf("expected message to apply, got %q", updated.Message)
	}
}

func TestStoreVersionGrowsWithEveryChange(t *testing.T) {
	store, _ := openStore(t)
	task, _ := store.Create(tasks.Task{ID: "A"})
	if task.Version != 1 {
		t.Fatalf("expected version 1 after create, got %d", task.Version)
	}
	first, _ := store.Update(task.ID, func(t *tasks.Task) { t.Progress = 10 })
	second, _ := store.Update(task.ID, func(t *tasks.Task) { t.Message = "same progress" })
	if first.Version != 2 || second.Version != 3 {
		t.Fatalf("expected versions 2 and 3, got %d and %d", first.Version, second.Version)
	}
	got, err := store.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != second.Version {
		t.Fatalf("stored version %d, want %d", got.Version, second.Version)
	}
}

func TestStoreUpdateTerminalIsImmutable(t *testing.T) {
	store, _ := openStore(t)
	task, _ := store.Create(tasks.Task{ID: "A"})
	store.Update(task.ID, func(t *tasks.Task) {
		t.Status = tasks.StatusError
		t.Error = "boom"
	})

	called := false
	got, ok := store.Update(task.ID, func(t *tasks.Task) {
		called = true
		t.Status = tasks.StatusCompleted
	})
	if ok || called {
		t.Fatal("terminal task must not be mutated")
	}
	if got.Status != tasks.StatusError || got.Error != "boom" {
		t.Fatalf("unexpected terminal task %+v", got)
	}
}

func TestStoreUpdateAfterDeleteIsNoop(t *testing.T) {
	store, _ := openStore(t)
	task, _ := store.Create(tasks.Task{ID: "A"})
	if !store.Delete(task.ID) {
		t.Fatal("expected delete to succeed")
	}
	if _, ok := store.Update(task.ID, func(t *tasks.Task) { t.Progress = 90 }); ok {
		t.Fatal("update after delete must be discarded")
	}
	if store.Exists(task.ID) {
		t.Fatal("deleted task reappeared")
	}
	if store.Delete(task.ID) {
		t.Fatal("second delete should report false")
	}
}

func TestStoreClearsResultOutsideCompleted(t *testing.T) {
	store, _ := openStore(t)
	task, _ := store.Create(tasks.Task{ID: "A"})
	updated, _ := store.Update(task.ID, func(t *tasks.Task) {
		t.Result = &tasks.Result{Summary: "early"}
	})
	if updated.Result != nil {
		t.Fatal("processing task must not carry a result")
	}
	done, _ := store.Update(task.ID, func(t *tasks.Task) {
		t.Status = tasks.StatusCompleted
		t.Result = &tasks.Result{Summary: "final"}
	})
	if done.Result == nil || done.Result.Summary != "final" {
		t.Fatalf("expected result on completed task, got %+v", done.Result)
	}
}

func TestOpenMarksInterruptedTasks(t *testing.T) {
	store, path := openStore(t)
	store.Create(tasks.Task{ID: "RUN", URL: "u1"})
	store.Create(tasks.Task{ID: "DONE", URL: "u2"})
	store.Update("DONE", func(t *tasks.Task) {
		t.Status = tasks.StatusCompleted
		t.Progress = 100
		t.Result = &tasks.Result{Summary: "s"}
	})

	reopened, err := tasks.Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	run, err := reopened.Get("RUN")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.Status != tasks.StatusError || !strings.Contains(run.Error, "interrupted") {
		t.Fatalf("expected interrupted error, got %+v", run)
	}
	done, _ := reopened.Get("DONE")
	if done.Status != tasks.StatusCompleted || done.Result == nil {
		t.Fatalf("completed task changed on reload: %+v", done)
	}
}

func TestOpenRejectsCorruptTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := tasks.Open(path, logging.NewNop()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestStorePersistFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	store, err := tasks.Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	task, err := store.Create(tasks.Task{ID: "A"})
	if err != nil {
		t.Fatalf("Create must not surface persistence errors: %v", err)
	}
	if got, _ := store.Get(task.ID); got.ID != "A" {
		t.Fatal("in-memory state lost after persistence failure")
	}
}

func TestCloneIsDeep(t *testing.T) {
	tr := "hola"
	orig := tasks.Task{Result: &tasks.Result{Translation: &tr}}
	clone := orig.Clone()
	*clone.Result.Translation = "changed"
	if *orig.Result.Translation != "hola" {
		t.Fatal("clone shares translation pointer")
	}
}
