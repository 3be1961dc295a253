// Package storage defines the folder-listing contract shared by the cloud
// storage backends.
package storage

import (
	"context"
	"errors"
	"path"
)

// ErrUnavailable is returned when a backend cannot be reached at all, for
// example because no access token could be acquired.
var ErrUnavailable = errors.New("storage unavailable")

// Ref addresses an item inside a backend: a container (drive, bucket) plus
// an item identifier (drive item ID, object key or prefix).
type Ref struct {
	Container string
	Item      string
}

// Entry is one item returned by a folder listing. It is a snapshot for the
// duration of a single run.
type Entry struct {
	ID          string
	ContainerID string
	Name        string
	IsFolder    bool
	MimeType    string
	Size        int64
}

// Ref returns the address needed to list or download the entry later.
func (e Entry) Ref() Ref {
	return Ref{Container: e.ContainerID, Item: e.ID}
}

// Ext returns the entry's file extension including the dot.
func (e Entry) Ext() string {
	return path.Ext(e.Name)
}

// Backend lists and downloads folder contents.
type Backend interface {
	// Resolve turns a human-facing folder URL into a Ref.
	Resolve(ctx context.Context, folderURL string) (Ref, error)
	// List returns the direct children of a folder.
	List(ctx context.Context, folder Ref) ([]Entry, error)
	// Download returns the raw bytes of a file.
	Download(ctx context.Context, item Ref) ([]byte, error)
}
