// Package asana provides the Asana work-item tracker adapter: task reads,
// comments, attachment uploads, webhooks and tag polling.
package asana

import (
	"time"
)

// Config holds Asana adapter configuration
type Config struct {
	AccessToken   string `yaml:"access_token"`   // Personal access token or service account token
	WorkspaceID   string `yaml:"workspace_id"`   // Asana workspace GID
	ProjectID     string `yaml:"project_id"`     // Project whose section is used as status
	StatusField   string `yaml:"status_field"`   // Custom field (name or GID) holding status; empty = section
	HandoffTag    string `yaml:"handoff_tag"`    // Tag that marks tasks for watch mode
	WebhookSecret string `yaml:"webhook_secret"` // X-Hook-Secret from the handshake
	WebhookField  string `yaml:"webhook_field"`  // custom field GID whose changes trigger a run; empty = any
	BaseURL       string `yaml:"base_url,omitempty"`

	Polling *PollingConfig `yaml:"polling,omitempty"`
}

// PollingConfig holds watch-mode polling configuration
type PollingConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
	Schedule string        `yaml:"schedule,omitempty"` // cron expression; overrides Interval
}

// DefaultConfig returns default Asana configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    BaseURL,
		HandoffTag: "qa-handoff",
		Polling: &PollingConfig{
			Interval: 2 * time.Minute,
		},
	}
}

// Task represents an Asana task
type Task struct {
	GID          string        `json:"gid"`
	Name         string        `json:"name"`
	Notes        string        `json:"notes"`
	Completed    bool          `json:"completed"`
	Tags         []Tag         `json:"tags,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
	Memberships  []Membership  `json:"memberships,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ModifiedAt   time.Time     `json:"modified_at"`
	Permalink    string        `json:"permalink_url,omitempty"`
	ResourceType string        `json:"resource_type"`
}

// taskFields are the opt_fields requested when reading a task for hand-off.
var taskFields = []string{
	"gid", "name", "notes", "completed", "permalink_url",
	"tags.name",
	"memberships.project.gid", "memberships.project.name", "memberships.section.name",
	"custom_fields.gid", "custom_fields.name", "custom_fields.type", "custom_fields.resource_subtype",
	"custom_fields.display_value", "custom_fields.text_value", "custom_fields.number_value",
	"custom_fields.enum_value.name", "custom_fields.multi_enum_values.name",
	"custom_fields.people_value.name", "custom_fields.people_value.gid",
}

// CustomField is a custom field value on a task. Which value member is set
// depends on Type.
type CustomField struct {
	GID             string       `json:"gid"`
	Name            string       `json:"name"`
	Type            string       `json:"type"` // text, number, enum, multi_enum, people, date
	ResourceSubtype string       `json:"resource_subtype,omitempty"`
	DisplayValue    *string      `json:"display_value,omitempty"`
	TextValue       *string      `json:"text_value,omitempty"`
	NumberValue     *float64     `json:"number_value,omitempty"`
	BooleanValue    *bool        `json:"boolean_value,omitempty"`
	EnumValue       *EnumOption  `json:"enum_value,omitempty"`
	MultiEnumValues []EnumOption `json:"multi_enum_values,omitempty"`
	PeopleValue     []User       `json:"people_value,omitempty"`
}

// EnumOption is one option of an enum custom field
type EnumOption struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Membership links a task to a project section
type Membership struct {
	Project *Project `json:"project,omitempty"`
	Section *Section `json:"section,omitempty"`
}

// User represents an Asana user
type User struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	ResourceType string `json:"resource_type"`
}

// Project represents an Asana project
type Project struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
}

// Tag represents an Asana tag
type Tag struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
}

// Section represents an Asana project section
type Section struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
}

// Workspace represents an Asana workspace
type Workspace struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
}

// Story represents an Asana story (comment or activity)
type Story struct {
	GID          string    `json:"gid"`
	Text         string    `json:"text"`
	HTMLText     string    `json:"html_text,omitempty"`
	Type         string    `json:"type"` // "comment" or "system"
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    *User     `json:"created_by,omitempty"`
	ResourceType string    `json:"resource_type"`
}

// Attachment represents an Asana attachment
type Attachment struct {
	GID             string    `json:"gid"`
	Name            string    `json:"name"`
	Host            string    `json:"host,omitempty"`
	ResourceSubtype string    `json:"resource_subtype,omitempty"`
	ViewURL         string    `json:"view_url,omitempty"`
	DownloadURL     string    `json:"download_url,omitempty"`
	PermanentURL    string    `json:"permanent_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ResourceType    string    `json:"resource_type"`
}

// attachmentFields are the opt_fields requested for task attachments.
var attachmentFields = []string{"gid", "name", "host", "resource_subtype", "view_url", "download_url", "permanent_url"}

// APIResponse wraps all Asana API responses
type APIResponse[T any] struct {
	Data   T          `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

// APIError represents an Asana API error
type APIError struct {
	Message string `json:"message"`
	Help    string `json:"help,omitempty"`
}

// PagedResponse wraps paginated Asana API responses
type PagedResponse[T any] struct {
	Data     []T       `json:"data"`
	NextPage *NextPage `json:"next_page,omitempty"`
}

// NextPage represents pagination info
type NextPage struct {
	Offset string `json:"offset"`
	Path   string `json:"path"`
	URI    string `json:"uri"`
}

// WebhookEventType represents the type of webhook event
type WebhookEventType string

const (
	EventTaskAdded   WebhookEventType = "added"
	EventTaskChanged WebhookEventType = "changed"
)

// WebhookPayload represents the webhook request body from Asana
type WebhookPayload struct {
	Events []WebhookEvent `json:"events"`
}

// WebhookEvent represents a single event in the webhook payload
type WebhookEvent struct {
	Action    string           `json:"action"`
	User      *User            `json:"user"`
	Resource  WebhookResource  `json:"resource"`
	Parent    *WebhookResource `json:"parent,omitempty"`
	Change    *WebhookChange   `json:"change,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// WebhookResource represents the resource in a webhook event
type WebhookResource struct {
	GID          string `json:"gid"`
	ResourceType string `json:"resource_type"`
	Name         string `json:"name,omitempty"`
}

// WebhookChange represents what changed in an event
type WebhookChange struct {
	Field    string           `json:"field"`
	Action   string           `json:"action"`
	NewValue *WebhookNewValue `json:"new_value,omitempty"`
}

// WebhookNewValue identifies the custom field that changed, when Field is
// "custom_fields".
type WebhookNewValue struct {
	GID          string `json:"gid"`
	ResourceType string `json:"resource_type"`
}
