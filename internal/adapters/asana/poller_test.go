package asana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alekspetrov/qa-handoff/internal/testutil"
)

// tagServer fakes the tag listing, tagged task listing and tag mutation
// endpoints used by the poller.
type tagServer struct {
	mu      sync.Mutex
	tasks   []Task
	fetches int
	added   []string
	removed []string
}

func (s *tagServer) setTasks(tasks []Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = tasks
}

func (s *tagServer) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *tagServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case r.URL.Path == "/workspaces/"+testutil.FakeAsanaWorkspaceID+"/tags":
			_ = json.NewEncoder(w).Encode(PagedResponse[Tag]{Data: []Tag{
				{GID: "tag-handoff", Name: "qa-handoff"},
				{GID: "tag-in-progress", Name: "qa-handoff-in-progress"},
				{GID: "tag-done", Name: "qa-handoff-done"},
				{GID: "tag-failed", Name: "qa-handoff-failed"},
			}})
		case r.URL.Path == "/tags/tag-handoff/tasks":
			s.fetches++
			_ = json.NewEncoder(w).Encode(PagedResponse[Task]{Data: s.tasks})
		case r.Method == http.MethodPost:
			var body map[string]map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			entry := r.URL.Path + ":" + body["data"]["tag"]
			if strings.HasSuffix(r.URL.Path, "/addTag") {
				s.added = append(s.added, entry)
			} else {
				s.removed = append(s.removed, entry)
			}
			_, _ = w.Write([]byte(`{"data":{}}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestPoller_Init(t *testing.T) {
	srv := &tagServer{}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	poller := NewPoller(client, DefaultConfig(), 30*time.Second)

	if err := poller.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if poller.handoffTagGID != "tag-handoff" {
		t.Errorf("handoffTagGID = %s, want tag-handoff", poller.handoffTagGID)
	}
	if poller.inProgressTagGID != "tag-in-progress" || poller.doneTagGID != "tag-done" || poller.failedTagGID != "tag-failed" {
		t.Errorf("status tags = %s %s %s", poller.inProgressTagGID, poller.doneTagGID, poller.failedTagGID)
	}
}

func TestPoller_Init_TagNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PagedResponse[Tag]{Data: []Tag{}})
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	poller := NewPoller(client, DefaultConfig(), 30*time.Second)

	if err := poller.Init(context.Background()); err == nil {
		t.Fatal("expected error when hand-off tag not found")
	}
}

func TestPoller_Poll(t *testing.T) {
	now := time.Now()
	srv := &tagServer{tasks: []Task{
		{GID: "task-2", Name: "newer", CreatedAt: now},
		{GID: "task-1", Name: "older", CreatedAt: now.Add(-time.Hour)},
		{GID: "task-3", Name: "done already", CreatedAt: now, Tags: []Tag{{Name: "qa-handoff-done"}}},
	}}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	var order []string
	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	poller := NewPoller(client, DefaultConfig(), 30*time.Second,
		WithOnTask(func(ctx context.Context, gid string) (bool, error) {
			order = append(order, gid)
			switch gid {
			case "task-1":
				return true, nil
			default:
				return false, errors.New("boom")
			}
		}),
	)
	if err := poller.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	poller.Poll(context.Background())

	if len(order) != 2 || order[0] != "task-1" || order[1] != "task-2" {
		t.Errorf("processing order = %v, want [task-1 task-2]", order)
	}
	if poller.ProcessedCount() != 3 {
		t.Errorf("ProcessedCount = %d, want 3", poller.ProcessedCount())
	}

	{
		srv.mu.Lock()
		wantAdded := []string{
			"/tasks/task-1/addTag:tag-in-progress",
			"/tasks/task-1/addTag:tag-done",
			"/tasks/task-2/addTag:tag-in-progress",
			"/tasks/task-2/addTag:tag-failed",
		}
		if len(srv.added) != len(wantAdded) {
			t.Errorf("added = %v, want %v", srv.added, wantAdded)
		} else {
			for i := range wantAdded {
				if srv.added[i] != wantAdded[i] {
					t.Errorf("added[%d] = %s, want %s", i, srv.added[i], wantAdded[i])
				}
			}
		}
		if len(srv.removed) != 2 {
			t.Errorf("removed = %v, want in-progress removed twice", srv.removed)
		}
		srv.mu.Unlock()
	}

	// A second pass fetches the tag again but does not revisit processed tasks.
	order = nil
	poller.Poll(context.Background())
	if srv.fetchCount() != 2 {
		t.Errorf("task fetches = %d, want 2", srv.fetchCount())
	}
	if len(order) != 0 {
		t.Errorf("second poll processed %v", order)
	}
}

func TestPoller_GateFailureGetsNoDoneTag(t *testing.T) {
	srv := &tagServer{tasks: []Task{{GID: "task-1"}}}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	poller := NewPoller(client, DefaultConfig(), 30*time.Second,
		WithOnTask(func(ctx context.Context, gid string) (bool, error) { return false, nil }),
	)
	if err := poller.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	poller.Poll(context.Background())

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.added) != 1 || srv.added[0] != "/tasks/task-1/addTag:tag-in-progress" {
		t.Errorf("added = %v, want only in-progress", srv.added)
	}
}

func TestPoller_Start_ContextCancel(t *testing.T) {
	srv := &tagServer{}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	poller := NewPoller(client, DefaultConfig(), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Start(ctx) }()

	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func TestPoller_RetriesGateFailureAfterChange(t *testing.T) {
	tagged := time.Now().Add(-time.Hour)
	srv := &tagServer{tasks: []Task{{GID: "task-1", ModifiedAt: tagged}}}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	ready := false
	runs := 0
	store := &memStore{marked: map[string]string{}}
	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	poller := NewPoller(client, DefaultConfig(), time.Minute,
		WithProcessedStore(store),
		WithOnTask(func(ctx context.Context, gid string) (bool, error) {
			runs++
			return ready, nil
		}),
	)
	if err := poller.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	poller.Poll(context.Background())
	if runs != 1 {
		t.Fatalf("runs after first poll = %d, want 1", runs)
	}
	if poller.IsProcessed("task-1") {
		t.Error("gate failure must not mark the task processed")
	}
	if _, ok := store.marked["task-1"]; ok {
		t.Error("gate failure must not be persisted as processed")
	}

	// Unchanged since the gate check: not rerun.
	poller.Poll(context.Background())
	if runs != 1 {
		t.Errorf("runs after unchanged poll = %d, want 1", runs)
	}

	// The user fixes the status; the task is handed off on the next pass.
	ready = true
	srv.setTasks([]Task{{GID: "task-1", ModifiedAt: tagged.Add(30 * time.Minute)}})
	poller.Poll(context.Background())
	if runs != 2 {
		t.Errorf("runs after task changed = %d, want 2", runs)
	}
	if !poller.IsProcessed("task-1") || store.marked["task-1"] != ResultDone {
		t.Errorf("task-1 result = %q, want done", store.marked["task-1"])
	}

	poller.Poll(context.Background())
	if runs != 2 {
		t.Errorf("runs after done = %d, want 2", runs)
	}
}

func TestPoller_RetriesGateFailureWithoutModifiedAt(t *testing.T) {
	srv := &tagServer{tasks: []Task{{GID: "task-1"}}}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	runs := 0
	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	poller := NewPoller(client, DefaultConfig(), time.Minute,
		WithOnTask(func(ctx context.Context, gid string) (bool, error) {
			runs++
			return runs > 1, nil
		}),
	)
	if err := poller.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		poller.Poll(context.Background())
	}
	if runs != 2 {
		t.Errorf("handler runs = %d, want 2 (gate failure then hand-off)", runs)
	}
	if poller.ProcessedCount() != 1 {
		t.Errorf("ProcessedCount = %d, want 1", poller.ProcessedCount())
	}
}

type memStore struct {
	mu     sync.Mutex
	marked map[string]string
}

func (m *memStore) MarkProcessed(gid, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[gid] = result
	return nil
}

func (m *memStore) LoadProcessed() (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.marked))
	for gid := range m.marked {
		out[gid] = true
	}
	return out, nil
}

func TestPoller_ProcessedStore(t *testing.T) {
	srv := &tagServer{tasks: []Task{{GID: "task-1"}, {GID: "task-2"}, {GID: "task-3"}}}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	store := &memStore{marked: map[string]string{"task-1": "done"}}
	var handled []string
	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	poller := NewPoller(client, DefaultConfig(), time.Minute,
		WithProcessedStore(store),
		WithOnTask(func(ctx context.Context, gid string) (bool, error) {
			handled = append(handled, gid)
			if gid == "task-3" {
				return false, errors.New("boom")
			}
			return false, nil
		}),
	)
	if !poller.IsProcessed("task-1") {
		t.Fatal("task-1 should be loaded from the store")
	}
	if err := poller.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	poller.Poll(context.Background())

	if len(handled) != 2 || handled[0] != "task-2" || handled[1] != "task-3" {
		t.Errorf("handled = %v, want [task-2 task-3]", handled)
	}
	if _, ok := store.marked["task-2"]; ok {
		t.Errorf("task-2 persisted as %q, want gate failure left eligible", store.marked["task-2"])
	}
	if store.marked["task-3"] != ResultFailed {
		t.Errorf("task-3 result = %q, want failed", store.marked["task-3"])
	}
}
