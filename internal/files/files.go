package files

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("files: not found")
	ErrInvalidInput = errors.New("files: invalid input")
)

// File describes one attachment stored against an asset. URLs are short-lived
// presigned links minted at read time; they are never persisted.
type File struct {
	ID          string    `json:"id"`
	AssetID     string    `json:"asset_id"`
	Category    string    `json:"category"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ViewURL     string    `json:"view_url,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
}

// UploadInput is one file submitted in a multipart upload.
type UploadInput struct {
	Name        string
	Category    string
	ContentType string
	Data        []byte
}

// UploadSummary reports a possibly partial multi-file upload. Uploaded may be
// less than Total; Failed lists the names that did not make it.
type UploadSummary struct {
	Uploaded int      `json:"uploaded"`
	Total    int      `json:"total"`
	Files    []File   `json:"files"`
	Failed   []string `json:"failed,omitempty"`
}
