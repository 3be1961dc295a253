// Package graph implements the storage backend on the Microsoft Graph drive
// API. A drive ID is the container and a drive item ID is the item.
package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/storage"
)

// BaseURL is the Graph API base URL
const BaseURL = "https://graph.microsoft.com/v1.0"

const pageSize = 200

// TokenSource hands out bearer tokens. An empty token with a nil error
// means no credentials are configured.
type TokenSource interface {
	AcquireToken(ctx context.Context) (string, error)
}

// Client is a Graph drive client
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API base URL (for testing)
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Graph drive client
func NewClient(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: BaseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.WithComponent("graph"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ storage.Backend = (*Client)(nil)

type driveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
	ParentReference struct {
		DriveID string `json:"driveId"`
	} `json:"parentReference"`
}

func (d driveItem) entry() storage.Entry {
	e := storage.Entry{
		ID:          d.ID,
		ContainerID: d.ParentReference.DriveID,
		Name:        d.Name,
		IsFolder:    d.Folder != nil,
		Size:        d.Size,
	}
	if d.File != nil {
		e.MimeType = d.File.MimeType
	}
	return e
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink,omitempty"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ShareID encodes a sharing URL as a Graph share identifier.
func ShareID(sharingURL string) string {
	return "u!" + base64.RawURLEncoding.EncodeToString([]byte(strings.TrimSpace(sharingURL)))
}

// Resolve turns a sharing URL into the drive and item it points at.
func (c *Client) Resolve(ctx context.Context, folderURL string) (storage.Ref, error) {
	if strings.TrimSpace(folderURL) == "" {
		return storage.Ref{}, fmt.Errorf("empty folder URL")
	}
	path := "/shares/" + ShareID(folderURL) + "/driveItem?$select=id,name,folder,parentReference"

	var item driveItem
	if err := c.getJSON(ctx, c.baseURL+path, &item); err != nil {
		return storage.Ref{}, fmt.Errorf("failed to resolve folder URL: %w", err)
	}
	if item.ID == "" || item.ParentReference.DriveID == "" {
		return storage.Ref{}, fmt.Errorf("share did not resolve to a drive item")
	}
	return storage.Ref{Container: item.ParentReference.DriveID, Item: item.ID}, nil
}

// List returns the children of a folder in listing order, following
// @odata.nextLink until exhausted.
func (c *Client) List(ctx context.Context, folder storage.Ref) ([]storage.Entry, error) {
	next := fmt.Sprintf("%s/drives/%s/items/%s/children?$top=%d",
		c.baseURL, url.PathEscape(folder.Container), url.PathEscape(folder.Item), pageSize)

	var entries []storage.Entry
	for next != "" {
		var page childrenPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("failed to list folder: %w", err)
		}
		for _, item := range page.Value {
			e := item.entry()
			if e.ContainerID == "" {
				e.ContainerID = folder.Container
			}
			entries = append(entries, e)
		}
		next = page.NextLink
	}

	c.logger.Debug("Listed folder",
		slog.String("drive", folder.Container),
		slog.String("item", folder.Item),
		slog.Int("entries", len(entries)))
	return entries, nil
}

// Download returns the content of a file.
func (c *Client) Download(ctx context.Context, item storage.Ref) ([]byte, error) {
	u := fmt.Sprintf("%s/drives/%s/items/%s/content",
		c.baseURL, url.PathEscape(item.Container), url.PathEscape(item.Item))

	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to download item: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read item content: %w", err)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, u string, result interface{}) error {
	resp, err := c.do(ctx, u)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// do performs an authenticated GET and returns a response with a 2xx status.
func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	token, err := c.tokens.AcquireToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	if token == "" {
		return nil, storage.ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("graph API error (status %d): %s: %s", resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("graph API error (status %d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}
