package internal

import (
	"time"
)

// ShareRequest is a raw share URL split into the canonical resource URL and the
// caller-supplied markers that were appended to it.
type ShareRequest struct {
	RawURL   string `json:"raw_url"`
	URL      string `json:"url"`
	Domain   string `json:"domain"` // scheme://host[:port]
	Host     string `json:"host"`
	Password string `json:"password,omitempty"`
	Folder   bool   `json:"folder"`
}

// AjaxRequest is the POST a provider page's own script would have issued.
type AjaxRequest struct {
	PostURL    string            `json:"post_url"`
	FormFields map[string]string `json:"form_fields"`
}

// FolderEntry is one file row of a folder listing page.
type FolderEntry struct {
	Name       string `json:"name_all"`
	Size       string `json:"size"`
	UploadTime string `json:"time"`
	ID         string `json:"id"`
}

// Progress is a single throttled progress report of a running transfer.
type Progress struct {
	Percent       float64
	BytesReceived int64
	TotalBytes    int64 // -1 when the server did not declare a length
}

// TotalKnown reports whether the transfer declared its length.
func (p Progress) TotalKnown() bool {
	return p.TotalBytes >= 0
}

// ProgressFunc receives progress reports from the download engine.
type ProgressFunc func(Progress)

// DownloadConfig contains configuration for download operations
type DownloadConfig struct {
	OutputDir string
	RateLimit int64 // bytes per second, 0 for unlimited
	Quiet     bool
	Progress  ProgressFunc
}

// DownloadSummary describes a finished transfer.
type DownloadSummary struct {
	Path       string
	Filename   string
	Bytes      int64
	TotalBytes int64
	Elapsed    time.Duration
}
