package tasks

import "time"

// Status is the coarse lifecycle of a task.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Stage is the pipeline state a task is in.
type Stage string

const (
	StageAccepted     Stage = "accepted"
	StageFetching     Stage = "fetching"
	StageTranscribing Stage = "transcribing"
	StageOptimizing   Stage = "optimizing"
	StageTranslating  Stage = "translating"
	StageSummarizing  Stage = "summarizing"
	StageCompleted    Stage = "completed"
	StageError        Stage = "error"
)

// InterruptedMessage is recorded on tasks that were running when the daemon stopped.
const InterruptedMessage = "interrupted by restart"

// Files names the artifacts written for a task. Empty fields were not produced.
type Files struct {
	Raw         string `json:"raw,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	Translation string `json:"translation,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// Names returns the non-empty artifact file names.
func (f Files) Names() []string {
	var out []string
	for _, name := range []string{f.Raw, f.Transcript, f.Translation, f.Summary} {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Result is the payload of a completed task.
type Result struct {
	Script           string  `json:"script"`
	Summary          string  `json:"summary"`
	Translation      *string `json:"translation"`
	DetectedLanguage string  `json:"detected_language"`
	Files            Files   `json:"files"`
}

// Task is one pipeline job.
type Task struct {
	ID              string    `json:"task_id"`
	Status          Status    `json:"status"`
	Stage           Stage     `json:"stage"`
	Progress        int       `json:"progress"`
	Message         string    `json:"message"`
	URL             string    `json:"url"`
	SummaryLanguage string    `json:"summary_language"`
	Title           string    `json:"video_title,omitempty"`
	Dir             string    `json:"task_dir,omitempty"`
	Result          *Result   `json:"result"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	// Version starts at 1 and grows by one with every stored change.
	Version uint64 `json:"version"`
}

// IsTerminal reports whether the task finished, successfully or not.
func (t Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusError
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t Task) Clone() Task {
	if t.Result != nil {
		res := *t.Result
		if res.Translation != nil {
			tr := *res.Translation
			res.Translation = &tr
		}
		t.Result = &res
	}
	return t
}

// normalize clears fields that do not belong to the task's status.
func (t *Task) normalize() {
	if t.Progress < 0 {
		t.Progress = 0
	}
	if t.Progress > 100 {
		t.Progress = 100
	}
	if t.Status != StatusCompleted {
		t.Result = nil
	}
	if t.Status != StatusError {
		t.Error = ""
	}
}
