package asana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	// BaseURL is the Asana API base URL
	BaseURL = "https://app.asana.com/api/1.0"
)

// Client is an Asana API client
type Client struct {
	baseURL     string
	accessToken string
	workspaceID string
	httpClient  *http.Client
}

// NewClient creates a new Asana client
func NewClient(accessToken, workspaceID string) *Client {
	return NewClientWithBaseURL(BaseURL, accessToken, workspaceID)
}

// NewClientWithBaseURL creates a new Asana client with a custom base URL (for testing)
func NewClientWithBaseURL(baseURL, accessToken, workspaceID string) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		workspaceID: workspaceID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// doRequest performs a JSON request to the Asana API
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	contentType := ""
	if body != nil {
		contentType = "application/json"
	}
	return c.send(ctx, method, path, contentType, bodyReader, result)
}

// send executes a request with an already encoded body and decodes the
// response into result.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiResp APIResponse[interface{}]
		if err := json.Unmarshal(respBody, &apiResp); err == nil && len(apiResp.Errors) > 0 {
			return fmt.Errorf("asana API error (status %d): %s", resp.StatusCode, apiResp.Errors[0].Message)
		}
		return fmt.Errorf("asana API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// GetTaskWithFields fetches a task with specific fields
func (c *Client) GetTaskWithFields(ctx context.Context, taskGID string, fields []string) (*Task, error) {
	path := fmt.Sprintf("/tasks/%s?opt_fields=%s", url.PathEscape(taskGID), strings.Join(fields, ","))
	var resp APIResponse[Task]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetTaskAttachments lists attachments whose parent is the task
func (c *Client) GetTaskAttachments(ctx context.Context, taskGID string) ([]Attachment, error) {
	q := url.Values{}
	q.Set("parent", taskGID)
	q.Set("opt_fields", strings.Join(attachmentFields, ","))

	var out []Attachment
	offset := ""
	for {
		if offset != "" {
			q.Set("offset", offset)
		}
		var resp PagedResponse[Attachment]
		if err := c.doRequest(ctx, http.MethodGet, "/attachments?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Data...)
		if resp.NextPage == nil || resp.NextPage.Offset == "" {
			return out, nil
		}
		offset = resp.NextPage.Offset
	}
}

// AddHTMLComment adds an HTML-formatted comment to a task
func (c *Client) AddHTMLComment(ctx context.Context, taskGID, htmlText string) (*Story, error) {
	path := fmt.Sprintf("/tasks/%s/stories", url.PathEscape(taskGID))
	reqBody := map[string]interface{}{
		"data": map[string]string{
			"html_text": htmlText,
		},
	}
	var resp APIResponse[Story]
	if err := c.doRequest(ctx, http.MethodPost, path, reqBody, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UploadAttachment uploads a file and attaches it to the task
func (c *Client) UploadAttachment(ctx context.Context, taskGID, name, mimeType string, data []byte) (*Attachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("parent", taskGID); err != nil {
		return nil, fmt.Errorf("failed to write parent field: %w", err)
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	var resp APIResponse[Attachment]
	if err := c.send(ctx, http.MethodPost, "/attachments", w.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// AddTag adds a tag to a task
func (c *Client) AddTag(ctx context.Context, taskGID, tagGID string) error {
	path := fmt.Sprintf("/tasks/%s/addTag", url.PathEscape(taskGID))
	reqBody := map[string]interface{}{
		"data": map[string]string{
			"tag": tagGID,
		},
	}
	return c.doRequest(ctx, http.MethodPost, path, reqBody, nil)
}

// RemoveTag removes a tag from a task
func (c *Client) RemoveTag(ctx context.Context, taskGID, tagGID string) error {
	path := fmt.Sprintf("/tasks/%s/removeTag", url.PathEscape(taskGID))
	reqBody := map[string]interface{}{
		"data": map[string]string{
			"tag": tagGID,
		},
	}
	return c.doRequest(ctx, http.MethodPost, path, reqBody, nil)
}

// GetWorkspaceTags fetches all tags in the workspace
func (c *Client) GetWorkspaceTags(ctx context.Context) ([]Tag, error) {
	path := fmt.Sprintf("/workspaces/%s/tags", c.workspaceID)
	var resp PagedResponse[Tag]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FindTagByName finds a tag by name in the workspace. It returns nil, nil
// when no tag matches.
func (c *Client) FindTagByName(ctx context.Context, name string) (*Tag, error) {
	tags, err := c.GetWorkspaceTags(ctx)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		if strings.EqualFold(tag.Name, name) {
			return &tag, nil
		}
	}
	return nil, nil
}

// GetWorkspace fetches workspace info
func (c *Client) GetWorkspace(ctx context.Context) (*Workspace, error) {
	path := fmt.Sprintf("/workspaces/%s", c.workspaceID)
	var resp APIResponse[Workspace]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetActiveTasksByTag fetches non-completed tasks with a specific tag.
func (c *Client) GetActiveTasksByTag(ctx context.Context, tagGID string) ([]Task, error) {
	path := fmt.Sprintf("/tags/%s/tasks?opt_fields=gid,name,completed,tags.name,created_at,modified_at", tagGID)
	var resp PagedResponse[Task]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	var activeTasks []Task
	for _, task := range resp.Data {
		if !task.Completed {
			activeTasks = append(activeTasks, task)
		}
	}
	return activeTasks, nil
}

// Ping checks if the Asana API is accessible and the token is valid
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetWorkspace(ctx)
	return err
}
