package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alekspetrov/qa-handoff/internal/artifacts"
	"github.com/alekspetrov/qa-handoff/internal/comment"
	"github.com/alekspetrov/qa-handoff/internal/config"
	"github.com/alekspetrov/qa-handoff/internal/gate"
	"github.com/alekspetrov/qa-handoff/internal/handoff"
	"github.com/alekspetrov/qa-handoff/internal/journal"
	"github.com/alekspetrov/qa-handoff/internal/storage"
	"github.com/alekspetrov/qa-handoff/internal/storage/graph"
	"github.com/alekspetrov/qa-handoff/internal/storage/objstore"
	"github.com/alekspetrov/qa-handoff/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"run": false, "serve": false, "watch": false, "history": false, "config": false, "doctor": false, "version": false}
	for _, c := range newRootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "handoff v"+version) {
		t.Errorf("output = %q", out)
	}
}

func TestRunCmd_RequiresTaskID(t *testing.T) {
	if _, err := execute(t, "run"); err == nil {
		t.Error("expected error without task id")
	}
}

func TestRunOptions(t *testing.T) {
	tests := []struct {
		name    string
		draft   bool
		mode    string
		dryRun  bool
		want    int
		wantErr bool
	}{
		{name: "defaults", want: 0},
		{name: "draft flag", draft: true, want: 1},
		{name: "draft mode", mode: "draft", want: 1},
		{name: "final mode", mode: "final", want: 1},
		{name: "draft and dry run", draft: true, dryRun: true, want: 2},
		{name: "unknown mode", mode: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := runOptions(tt.draft, tt.mode, tt.dryRun)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("runOptions failed: %v", err)
			}
			if len(opts) != tt.want {
				t.Errorf("len(opts) = %d, want %d", len(opts), tt.want)
			}
		})
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := execute(t, "config", "init", "--config", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Error("expected init to refuse overwriting")
	}

	// Defaults have no Asana token.
	if _, err := execute(t, "config", "validate", "--config", path); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("validate error = %v, want ErrInvalid", err)
	}

	cfg := config.DefaultConfig()
	cfg.Asana.AccessToken = testutil.FakeAsanaAccessToken
	cfg.Asana.WorkspaceID = testutil.FakeAsanaWorkspaceID
	if err := config.Save(cfg, path); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "config", "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "is valid") {
		t.Errorf("output = %q", out)
	}
	if _, err := execute(t, "config", "validate", "--serve", "--config", path); err == nil {
		t.Error("expected --serve to require a trigger secret")
	}
}

func TestHistoryCmd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	store, err := journal.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Record(t.Context(), journal.Run{
		RunID: "run-1", ItemID: "1200", Title: "CF-123 Checkout", Outcome: "submitted", State: "submit",
		PreviewLinks: 2, Images: 3, StartedAt: started, FinishedAt: started.Add(time.Second),
	}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("journal:\n  path: "+dbPath+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "history", "--config", cfgPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "CF-123 Checkout") || !strings.Contains(out, "1200") {
		t.Errorf("history output missing run:\n%s", out)
	}
}

func TestBuildBackend(t *testing.T) {
	cfg := config.DefaultConfig()

	b, err := buildBackend(cfg)
	if err != nil {
		t.Fatalf("graph backend: %v", err)
	}
	if _, ok := b.(*graph.Client); !ok {
		t.Errorf("default backend = %T, want *graph.Client", b)
	}

	cfg.Storage.Backend = config.BackendS3
	cfg.Storage.S3 = objstore.Config{Endpoint: "localhost:9000", AccessKey: testutil.FakeS3AccessKey, SecretKey: testutil.FakeS3SecretKey}
	b, err = buildBackend(cfg)
	if err != nil {
		t.Fatalf("s3 backend: %v", err)
	}
	if _, ok := b.(*objstore.Client); !ok {
		t.Errorf("s3 backend = %T, want *objstore.Client", b)
	}

	cfg.Storage.Backend = config.BackendNone
	b, err = buildBackend(cfg)
	if err != nil || b != nil {
		t.Errorf("none backend = %v, %v; want nil, nil", b, err)
	}
}

func TestRenderResult(t *testing.T) {
	r := &handoff.Result{
		RunID:           "run-1",
		ItemID:          "1200",
		Title:           "CF-123 Checkout",
		Outcome:         handoff.OutcomeDryRun,
		Decision:        gate.Decision{Passed: true, StatusObserved: "Needs Approval (Dev)", RequiredStatus: "Needs Approval (Dev)", CheckboxObserved: true, Rechecked: true},
		Spreadsheet:     &storage.Entry{Name: "CF-123.xlsx"},
		SpreadsheetTier: artifacts.TierExact,
		PreviewLinks:    []string{"https://a.preview.example.com"},
		LinkSource:      handoff.SourceSpreadsheet,
		ImageSource:     handoff.SourceStorage,
		ImageErrors:     1,
		Degraded:        true,
		Comment:         comment.Comment{Body: []string{"Preview links:", "https://a.preview.example.com"}},
	}

	out := renderResult(r)
	for _, want := range []string{"1200", "CF-123.xlsx", "exact", "re-checked", "1 failed", "fallbacks", "https://a.preview.example.com", "notify off"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderResult missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHistory_Empty(t *testing.T) {
	if out := renderHistory(nil); !strings.Contains(out, "No hand-off runs") {
		t.Errorf("output = %q", out)
	}
}
