package internal

import (
	"context"
	"net/http"
)

// Transport issues every request of a resolution session against one shared
// cookie jar. Redirects are never followed.
type Transport interface {
	GetString(ctx context.Context, rawURL string, headers map[string]string) (string, error)
	PostForm(ctx context.Context, rawURL string, form map[string]string, referer string) (string, error)
	PeekRedirect(ctx context.Context, rawURL string) (string, error)
	SetCookie(rawURL string, cookie *http.Cookie) error
}

// DownloadEngine streams a resolved URL to local storage.
type DownloadEngine interface {
	Download(ctx context.Context, fileURL string, config *DownloadConfig) (*DownloadSummary, error)
}

// RateLimiter controls bandwidth usage
type RateLimiter interface {
	WaitN(ctx context.Context, n int) error
}
