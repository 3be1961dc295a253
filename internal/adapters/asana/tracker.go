package asana

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/alekspetrov/qa-handoff/internal/comment"
	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/tracker"
)

// Tracker exposes an Asana workspace as the hand-off work-item tracker.
type Tracker struct {
	client *Client
	config *Config
	logger *slog.Logger
}

// NewTracker creates a tracker backed by client.
func NewTracker(client *Client, config *Config) *Tracker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Tracker{
		client: client,
		config: config,
		logger: logging.WithComponent("asana"),
	}
}

// GetItem reads a task with its custom fields, section and attachments.
func (t *Tracker) GetItem(ctx context.Context, id string) (*tracker.WorkItem, error) {
	task, err := t.client.GetTaskWithFields(ctx, id, taskFields)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task %s: %w", id, err)
	}

	attachments, err := t.client.GetTaskAttachments(ctx, id)
	if err != nil {
		// Attachments only feed the image fallback.
		t.logger.Warn("Failed to list task attachments",
			slog.String("task", id),
			slog.Any("error", err))
		attachments = nil
	}

	return t.toWorkItem(task, attachments), nil
}

func (t *Tracker) toWorkItem(task *Task, attachments []Attachment) *tracker.WorkItem {
	item := &tracker.WorkItem{
		ID:          task.GID,
		Title:       task.Name,
		Description: task.Notes,
	}
	for _, cf := range task.CustomFields {
		item.CustomFields = append(item.CustomFields, tracker.CustomField{
			Name:  cf.Name,
			ID:    cf.GID,
			Type:  cf.Type,
			Value: fieldValue(cf),
		})
	}
	item.StatusLabel = t.statusLabel(task, item)

	for _, a := range attachments {
		item.Attachments = append(item.Attachments, tracker.Attachment{
			Name:     a.Name,
			MimeType: mimeTypeFromName(a.Name),
			URL:      attachmentURL(a),
		})
	}
	return item
}

// statusLabel reads the configured status field, falling back to the
// section of the configured project, then the first section.
func (t *Tracker) statusLabel(task *Task, item *tracker.WorkItem) string {
	if t.config.StatusField != "" {
		if f, ok := item.Field(t.config.StatusField); ok {
			return f.Value.String()
		}
	}

	var first string
	for _, m := range task.Memberships {
		if m.Section == nil {
			continue
		}
		if t.config.ProjectID != "" && m.Project != nil && m.Project.GID == t.config.ProjectID {
			return m.Section.Name
		}
		if first == "" {
			first = m.Section.Name
		}
	}
	return first
}

// fieldValue converts an Asana custom field into the tracker's value union.
func fieldValue(cf CustomField) tracker.FieldValue {
	if cf.BooleanValue != nil {
		return tracker.Bool(*cf.BooleanValue)
	}

	switch cf.Type {
	case "number":
		if cf.NumberValue != nil {
			return tracker.Number(*cf.NumberValue)
		}
		return tracker.Absent()
	case "text":
		if cf.TextValue != nil {
			return tracker.Text(*cf.TextValue)
		}
		return tracker.Absent()
	case "enum":
		if cf.EnumValue != nil {
			return tracker.Text(cf.EnumValue.Name)
		}
		return tracker.Absent()
	case "multi_enum":
		if len(cf.MultiEnumValues) == 0 {
			return tracker.Absent()
		}
		names := make([]string, len(cf.MultiEnumValues))
		for i, o := range cf.MultiEnumValues {
			names[i] = o.Name
		}
		return tracker.Text(strings.Join(names, ", "))
	case "people":
		if len(cf.PeopleValue) == 0 {
			return tracker.Absent()
		}
		gids := make([]string, len(cf.PeopleValue))
		for i, u := range cf.PeopleValue {
			gids[i] = u.GID
		}
		return tracker.Text(strings.Join(gids, ", "))
	}

	if cf.DisplayValue != nil {
		return tracker.Text(*cf.DisplayValue)
	}
	return tracker.Absent()
}

func attachmentURL(a Attachment) string {
	switch {
	case a.PermanentURL != "":
		return a.PermanentURL
	case a.ViewURL != "":
		return a.ViewURL
	default:
		return a.DownloadURL
	}
}

var extMimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".heic": "image/heic",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xlsm": "application/vnd.ms-excel.sheet.macroEnabled.12",
}

// mimeTypeFromName guesses a MIME type from the file extension. Asana does
// not report one for attachments.
func mimeTypeFromName(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return extMimeTypes[strings.ToLower(name[i:])]
}

// PostComment posts c as an HTML story. Mentions are only rendered when
// notify is set; Asana notifies mentioned users and has no other
// per-comment notification switch.
func (t *Tracker) PostComment(ctx context.Context, id string, c comment.Comment, notify bool) error {
	body := RenderHTML(c, notify)
	if _, err := t.client.AddHTMLComment(ctx, id, body); err != nil {
		return fmt.Errorf("failed to post comment on task %s: %w", id, err)
	}
	t.logger.Info("Posted comment",
		slog.String("task", id),
		slog.Bool("notify", notify),
		slog.Int("mentions", len(c.Mentions)))
	return nil
}

// UploadAttachment attaches a file to the task and returns its URL.
func (t *Tracker) UploadAttachment(ctx context.Context, id, name string, data []byte) (string, error) {
	a, err := t.client.UploadAttachment(ctx, id, name, mimeTypeFromName(name), data)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to task %s: %w", name, id, err)
	}
	return attachmentURL(*a), nil
}

// RenderHTML renders a comment as Asana rich text.
func RenderHTML(c comment.Comment, notify bool) string {
	var b strings.Builder
	b.WriteString("<body>")

	var lines []string
	if c.Banner != "" {
		lines = append(lines, "<strong>"+html.EscapeString(c.Banner)+"</strong>")
	}
	if notify && len(c.Mentions) > 0 {
		anchors := make([]string, len(c.Mentions))
		for i, gid := range c.Mentions {
			anchors[i] = fmt.Sprintf(`<a data-asana-gid="%s"/>`, html.EscapeString(gid))
		}
		lines = append(lines, strings.Join(anchors, " "))
	}
	for _, l := range c.Body {
		lines = append(lines, html.EscapeString(l))
	}

	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("</body>")
	return b.String()
}
