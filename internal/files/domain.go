// Package files stores file metadata in PostgreSQL and file content in an
// S3-compatible object store.
package files

import (
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates an unknown or deleted file.
	ErrNotFound = errors.New("files: not found")
	// ErrUnavailable indicates the metadata store could not be reached.
	ErrUnavailable = errors.New("files: store unavailable")
	// ErrStorage indicates the object store could not be reached.
	ErrStorage = errors.New("files: object storage unavailable")
)

// Status tracks the upload lifecycle of a file.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// File is the metadata record of one stored object.
type File struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       *uuid.UUID `json:"owner_id,omitempty"`
	AppIdentifier string     `json:"app_identifier"`
	Filename      string     `json:"filename"`
	Size          int64      `json:"size"`
	ContentType   string     `json:"content_type"`
	Category      string     `json:"category"`
	StoragePath   string     `json:"storage_path"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

var categoryByExt = map[string]string{
	".jpg": "image", ".jpeg": "image", ".png": "image", ".gif": "image", ".webp": "image", ".svg": "image",
	".mp4": "video", ".mov": "video", ".avi": "video", ".mkv": "video",
	".pdf": "document", ".doc": "document", ".docx": "document", ".xls": "document", ".xlsx": "document",
	".mp3": "audio", ".wav": "audio", ".flac": "audio", ".aac": "audio",
	".zip": "archive", ".rar": "archive", ".7z": "archive", ".tar": "archive", ".gz": "archive",
}

// Categorize maps a filename extension to a coarse category.
func Categorize(filename string) string {
	if cat, ok := categoryByExt[strings.ToLower(path.Ext(filename))]; ok {
		return cat
	}
	return "other"
}
