package asana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alekspetrov/qa-handoff/internal/comment"
	"github.com/alekspetrov/qa-handoff/internal/testutil"
	"github.com/alekspetrov/qa-handoff/internal/tracker"
)

func ptr[T any](v T) *T { return &v }

func TestFieldValue(t *testing.T) {
	tests := []struct {
		name      string
		field     CustomField
		wantKind  tracker.Kind
		wantStr   string
		wantCheck bool
	}{
		{
			name:     "text",
			field:    CustomField{Type: "text", TextValue: ptr("https://contoso.sharepoint.com/x")},
			wantKind: tracker.KindText,
			wantStr:  "https://contoso.sharepoint.com/x",
		},
		{
			name:      "number one is checked",
			field:     CustomField{Type: "number", NumberValue: ptr(1.0)},
			wantKind:  tracker.KindNumber,
			wantStr:   "1",
			wantCheck: true,
		},
		{
			name:      "enum yes",
			field:     CustomField{Type: "enum", EnumValue: &EnumOption{Name: "Yes"}},
			wantKind:  tracker.KindText,
			wantStr:   "Yes",
			wantCheck: true,
		},
		{
			name:     "empty enum is absent",
			field:    CustomField{Type: "enum"},
			wantKind: tracker.KindAbsent,
		},
		{
			name:     "multi enum joins names",
			field:    CustomField{Type: "multi_enum", MultiEnumValues: []EnumOption{{Name: "Design"}, {Name: "Dev"}}},
			wantKind: tracker.KindText,
			wantStr:  "Design, Dev",
		},
		{
			name:     "people yields gids",
			field:    CustomField{Type: "people", PeopleValue: []User{{GID: "11"}, {GID: "22"}}},
			wantKind: tracker.KindText,
			wantStr:  "11, 22",
		},
		{
			name:      "explicit boolean",
			field:     CustomField{Type: "enum", BooleanValue: ptr(true)},
			wantKind:  tracker.KindBool,
			wantStr:   "true",
			wantCheck: true,
		},
		{
			name:     "unknown type uses display value",
			field:    CustomField{Type: "date", DisplayValue: ptr("2026-10-01")},
			wantKind: tracker.KindText,
			wantStr:  "2026-10-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := fieldValue(tt.field)
			if v.Kind() != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", v.Kind(), tt.wantKind)
			}
			if v.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", v.String(), tt.wantStr)
			}
			if v.Checked() != tt.wantCheck {
				t.Errorf("Checked() = %v, want %v", v.Checked(), tt.wantCheck)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	task := &Task{
		Memberships: []Membership{
			{Project: &Project{GID: "p1"}, Section: &Section{Name: "Backlog"}},
			{Project: &Project{GID: "p2"}, Section: &Section{Name: "Needs Approval (Dev)"}},
		},
		CustomFields: []CustomField{
			{GID: "cf-status", Name: "Stage", Type: "enum", EnumValue: &EnumOption{Name: "QA"}},
		},
	}

	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"first section", &Config{}, "Backlog"},
		{"configured project", &Config{ProjectID: "p2"}, "Needs Approval (Dev)"},
		{"status field wins", &Config{ProjectID: "p2", StatusField: "stage"}, "QA"},
		{"missing status field falls back", &Config{StatusField: "nope"}, "Backlog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(nil, tt.cfg)
			item := tr.toWorkItem(task, nil)
			if item.StatusLabel != tt.want {
				t.Errorf("StatusLabel = %q, want %q", item.StatusLabel, tt.want)
			}
		})
	}
}

func TestTracker_GetItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/555":
			resp := APIResponse[Task]{Data: Task{
				GID:   "555",
				Name:  "CF-123",
				Notes: "see https://x.test/?action=preview",
				CustomFields: []CustomField{
					{GID: "cf-1", Name: "Ready for QA", Type: "enum", EnumValue: &EnumOption{Name: "Checked"}},
				},
				Memberships: []Membership{{Section: &Section{Name: "Needs Approval (Dev)"}}},
			}}
			_ = json.NewEncoder(w).Encode(resp)
		case "/attachments":
			resp := PagedResponse[Attachment]{Data: []Attachment{
				{GID: "a1", Name: "shot.PNG", ViewURL: "https://asana.test/view/a1"},
			}}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID)
	tr := NewTracker(client, nil)

	item, err := tr.GetItem(context.Background(), "555")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.Title != "CF-123" || item.StatusLabel != "Needs Approval (Dev)" {
		t.Errorf("item = %+v", item)
	}
	if !item.FieldValue("ready for qa").Checked() {
		t.Error("expected Ready for QA to be checked")
	}
	if len(item.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(item.Attachments))
	}
	if item.Attachments[0].MimeType != "image/png" || item.Attachments[0].URL != "https://asana.test/view/a1" {
		t.Errorf("attachment = %+v", item.Attachments[0])
	}
}

func TestTracker_GetItem_AttachmentErrorIsNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/attachments" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"gid":"1","name":"t"}}`))
	}))
	defer server.Close()

	tr := NewTracker(NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID), nil)
	item, err := tr.GetItem(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if len(item.Attachments) != 0 {
		t.Errorf("attachments = %d, want 0", len(item.Attachments))
	}
}

func TestTracker_GetItem_TaskError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"message":"task not found"}]}`))
	}))
	defer server.Close()

	tr := NewTracker(NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID), nil)
	if _, err := tr.GetItem(context.Background(), "1"); err == nil {
		t.Fatal("expected error for missing task")
	}
}

func TestRenderHTML(t *testing.T) {
	c := comment.Comment{
		Banner:   "DRAFT",
		Mentions: []string{"111", "222"},
		Body:     []string{"QA hand-off: A & B", "• <link>"},
	}

	got := RenderHTML(c, true)
	want := "<body><strong>DRAFT</strong>\n" +
		`<a data-asana-gid="111"/> <a data-asana-gid="222"/>` + "\n" +
		"QA hand-off: A &amp; B\n• &lt;link&gt;</body>"
	if got != want {
		t.Errorf("RenderHTML() =\n%s\nwant\n%s", got, want)
	}

	silent := RenderHTML(c, false)
	if strings.Contains(silent, "data-asana-gid") {
		t.Errorf("mentions rendered without notify: %s", silent)
	}
}

func TestTracker_PostCommentAndUpload(t *testing.T) {
	var posted string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/7/stories":
			var body map[string]map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			posted = body["data"]["html_text"]
			_, _ = w.Write([]byte(`{"data":{"gid":"s1"}}`))
		case "/attachments":
			_, _ = w.Write([]byte(`{"data":{"gid":"a1","download_url":"https://asana.test/dl/a1"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	tr := NewTracker(NewClientWithBaseURL(server.URL, testutil.FakeAsanaAccessToken, testutil.FakeAsanaWorkspaceID), nil)

	if err := tr.PostComment(context.Background(), "7", comment.Comment{Body: []string{"hello"}}, false); err != nil {
		t.Fatalf("PostComment failed: %v", err)
	}
	if posted != "<body>hello</body>" {
		t.Errorf("posted = %q", posted)
	}

	url, err := tr.UploadAttachment(context.Background(), "7", "shot.jpg", []byte("jpg"))
	if err != nil {
		t.Fatalf("UploadAttachment failed: %v", err)
	}
	if url != "https://asana.test/dl/a1" {
		t.Errorf("url = %s, want download URL fallback", url)
	}
}
