package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/api"
	"vidscribe/internal/artifacts"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/services"
	"vidscribe/internal/tasks"
	"vidscribe/internal/testsupport"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func (td *testDaemon) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(td.daemon.api.routes())
	t.Cleanup(srv.Close)
	return srv
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func postJSON(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/process-video", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	return resp
}

func waitStatus(t *testing.T, srv *httptest.Server, id string) tasks.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/task-status/" + id)
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		task := decodeJSON[tasks.Task](t, resp)
		if task.IsTerminal() {
			return task
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return tasks.Task{}
}

func TestSubmitStatusAndDownload(t *testing.T) {
	td := newTestDaemon(t, nil)
	srv := td.server(t)

	resp := postJSON(t, srv, `{"url":"`+testURL+`","summary_language":"en"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
	sub := decodeJSON[pipeline.Submission](t, resp)
	if sub.TaskID == "" || sub.Message != pipeline.MessageAccepted {
		t.Fatalf("unexpected submission %+v", sub)
	}

	task := waitStatus(t, srv, sub.TaskID)
	if task.Status != tasks.StatusCompleted || task.Result == nil {
		t.Fatalf("expected completed task, got %+v", task)
	}

	dl, err := http.Get(srv.URL + "/api/download/" + url.PathEscape(task.Result.Files.Summary))
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from download, got %d: %s", dl.StatusCode, body)
	}
	if !strings.HasPrefix(dl.Header.Get("Content-Type"), "text/markdown") {
		t.Fatalf("unexpected content type %q", dl.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(string(body), "# Daemon Test") || !strings.Contains(string(body), "source: "+testURL) {
		t.Fatalf("unexpected summary document %q", body)
	}

	list, err := http.Get(srv.URL + "/api/tasks/" + sub.TaskID + "/artifacts")
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	entries := decodeJSON[[]artifacts.Entry](t, list)
	if len(entries) != 3 {
		t.Fatalf("expected raw, transcript and summary entries, got %+v", entries)
	}
}

func TestSubmitFormAndValidation(t *testing.T) {
	td := newTestDaemon(t, nil)
	srv := td.server(t)

	resp, err := http.PostForm(srv.URL+"/api/process-video", url.Values{"url": {testURL}})
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	sub := decodeJSON[pipeline.Submission](t, resp)
	if resp.StatusCode != http.StatusOK || sub.TaskID == "" {
		t.Fatalf("form submit failed: %d %+v", resp.StatusCode, sub)
	}
	task, err := td.daemon.Service().Get(sub.TaskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.SummaryLanguage != "zh-tw" {
		t.Fatalf("expected default language, got %q", task.SummaryLanguage)
	}

	bad := postJSON(t, srv, `{"url":"ftp://example.com/file"}`)
	body := decodeJSON[map[string]string](t, bad)
	if bad.StatusCode != http.StatusBadRequest || body["error"] == "" || body["detail"] == "" {
		t.Fatalf("expected 400 with error body, got %d %v", bad.StatusCode, body)
	}

	malformed := postJSON(t, srv, `{"url":`)
	malformed.Body.Close()
	if malformed.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", malformed.StatusCode)
	}
}

func TestUnknownTaskIsNotFound(t *testing.T) {
	td := newTestDaemon(t, nil)
	srv := td.server(t)

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/api/task-status/NOPE"},
		{http.MethodGet, "/api/task-stream/NOPE"},
		{http.MethodDelete, "/api/task/NOPE"},
		{http.MethodGet, "/api/tasks/NOPE/artifacts"},
	} {
		r, _ := http.NewRequest(req.method, srv.URL+req.path, nil)
		resp, err := http.DefaultClient.Do(r)
		if err != nil {
			t.Fatalf("%s %s: %v", req.method, req.path, err)
		}
		body := decodeJSON[map[string]string](t, resp)
		if resp.StatusCode != http.StatusNotFound || !strings.Contains(body["error"], "NOPE") {
			t.Fatalf("%s %s: expected 404, got %d %v", req.method, req.path, resp.StatusCode, body)
		}
	}
}

func TestDownloadRejectsUnsafeNames(t *testing.T) {
	td := newTestDaemon(t, nil)
	srv := td.server(t)

	cases := map[string]int{
		"..%2Fsecret.md":     http.StatusBadRequest,
		"notes.txt":          http.StatusBadRequest,
		"a%5Cb.md":           http.StatusBadRequest,
		"summary_missing.md": http.StatusNotFound,
	}
	for name, want := range cases {
		resp, err := http.Get(srv.URL + "/api/download/" + name)
		if err != nil {
			t.Fatalf("GET %s: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("download %s: expected %d, got %d", name, want, resp.StatusCode)
		}
	}
}

func readEvents(t *testing.T, body io.Reader, events chan<- map[string]any) {
	t.Helper()
	defer close(events)
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Errorf("decode event %q: %v", data, err)
			return
		}
		events <- ev
	}
}

// drainEvents collects events until the server ends the stream.
func drainEvents(t *testing.T, events <-chan map[string]any) []map[string]any {
	t.Helper()
	var seen []map[string]any
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return seen
			}
			seen = append(seen, ev)
		case <-timeout:
			t.Fatal("stream did not end")
			return nil
		}
	}
}

func TestStreamEndsOnCompletion(t *testing.T) {
	gate := make(chan struct{})
	td := newTestDaemon(t, &testsupport.FakeFetcher{Gate: gate})
	srv := td.server(t)

	sub := decodeJSON[pipeline.Submission](t, postJSON(t, srv, `{"url":"`+testURL+`","summary_language":"en"}`))

	resp, err := http.Get(srv.URL + "/api/task-stream/" + sub.TaskID)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := make(chan map[string]any, 64)
	go readEvents(t, resp.Body, events)

	first := <-events
	if first["task_id"] != sub.TaskID {
		t.Fatalf("first event should be the current snapshot, got %v", first)
	}
	close(gate)

	seen := drainEvents(t, events)
	if len(seen) == 0 {
		t.Fatal("stream ended without events")
	}
	last := seen[len(seen)-1]
	if last["status"] != string(tasks.StatusCompleted) {
		t.Fatalf("expected last event completed, got %v", last)
	}
}

func TestCancelEndsStream(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	td := newTestDaemon(t, &testsupport.FakeFetcher{Gate: gate})
	srv := td.server(t)

	sub := decodeJSON[pipeline.Submission](t, postJSON(t, srv, `{"url":"`+testURL+`"}`))

	active := decodeJSON[pipeline.Active](t, mustGet(t, srv.URL+"/api/tasks/active"))
	if active.ActiveTasks != 1 || active.ProcessingURLs[0] != testURL {
		t.Fatalf("unexpected active view %+v", active)
	}

	resp, err := http.Get(srv.URL + "/api/task-stream/" + sub.TaskID)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	events := make(chan map[string]any, 64)
	go readEvents(t, resp.Body, events)
	<-events

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/task/"+sub.TaskID, nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from cancel, got %d", del.StatusCode)
	}

	for _, ev := range drainEvents(t, events) {
		if ev["status"] == string(tasks.StatusCompleted) {
			t.Fatalf("cancelled task must not complete: %v", ev)
		}
	}

	again, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/task/"+sub.TaskID, nil)
	resp2, err := http.DefaultClient.Do(again)
	if err != nil {
		t.Fatalf("DELETE again: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for second cancel, got %d", resp2.StatusCode)
	}
}

func TestAuthRequiredWhenTokenSet(t *testing.T) {
	td := newTestDaemon(t, nil, testsupport.WithAPIToken("s3cret"))
	srv := td.server(t)

	resp := mustGet(t, srv.URL+"/api/tasks/active")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/tasks/active", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	ok, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", ok.StatusCode)
	}

	health := mustGet(t, srv.URL+"/health")
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health must not require auth, got %d", health.StatusCode)
	}
}

func TestLogsEndpoint(t *testing.T) {
	td := newTestDaemon(t, nil)
	srv := td.server(t)

	sub := decodeJSON[pipeline.Submission](t, postJSON(t, srv, `{"url":"`+testURL+`","summary_language":"en"}`))
	waitStatus(t, srv, sub.TaskID)

	all := decodeJSON[api.LogResponse](t, mustGet(t, srv.URL+"/api/logs?limit=500"))
	if len(all.Events) == 0 || all.Next == 0 {
		t.Fatalf("expected log events, got %+v", all)
	}

	filtered := decodeJSON[api.LogResponse](t, mustGet(t, srv.URL+"/api/logs?task="+sub.TaskID))
	if len(filtered.Events) == 0 {
		t.Fatal("expected task scoped events")
	}
	for _, evt := range filtered.Events {
		if evt.TaskID != sub.TaskID {
			t.Fatalf("unexpected event for task %q", evt.TaskID)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.Wrap(services.ErrNotFound, "tasks", "get", "missing", nil), http.StatusNotFound},
		{services.Wrap(services.ErrValidation, "api", "decode", "bad", nil), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func mustGet(t *testing.T, target string) *http.Response {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	return resp
}
