package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkfetch/internal"
	"linkfetch/utils"
)

var extendedFilenamePattern = regexp.MustCompile(`(?i)filename\*=(?:([^']*)'')?([^;]+)`)

// StreamEngine implements the DownloadEngine interface with a single
// sequential stream per transfer.
type StreamEngine struct {
	httpClient *utils.HTTPClient
	planner    *DownloadPlanner
	fileOps    *utils.FileOperations
	newName    func() string
}

// NewStreamEngine creates an engine that downloads through httpClient so the
// resolution session's cookies apply.
func NewStreamEngine(httpClient *utils.HTTPClient) *StreamEngine {
	return &StreamEngine{
		httpClient: httpClient,
		planner:    NewDownloadPlanner(),
		fileOps:    utils.NewFileOperations(),
		newName:    randomFilename,
	}
}

func randomFilename() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Download streams fileURL into config.OutputDir. The body is written to a
// .tmp sibling and only renamed into place once fully received; on any failure
// or cancellation the temporary file is removed.
func (e *StreamEngine) Download(ctx context.Context, fileURL string, config *internal.DownloadConfig) (*internal.DownloadSummary, error) {
	if config == nil {
		config = &internal.DownloadConfig{OutputDir: "."}
	}
	if strings.TrimSpace(fileURL) == "" {
		return nil, internal.NewInvalidURLError(fileURL, "download URL cannot be empty")
	}

	outputDir := config.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := e.fileOps.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := e.httpClient.Do(ctx, http.MethodGet, fileURL, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, internal.NewHTTPStatusError(fileURL, resp.StatusCode).WithStep("download")
	}

	filename := FilenameFromHeader(resp.Header.Get("Content-Disposition"))
	finalPath, ok := e.fileOps.SafeJoin(outputDir, filename)
	if !ok {
		filename = e.newName()
		finalPath, _ = e.fileOps.SafeJoin(outputDir, filename)
		internal.LogDebug("No usable file name in response, saving as %s", filename)
	}

	total := resp.ContentLength
	if total < 0 {
		total = -1
	}
	plan := e.planner.PlanTransfer(total)
	internal.LogDebug("Streaming %s to %s with %d byte buffer", fileURL, finalPath, plan.BufferSize)

	received, err := e.stream(ctx, resp.Body, finalPath, plan, total, config)
	if err != nil {
		if rmErr := e.fileOps.RemoveIfExists(e.fileOps.TempPath(finalPath)); rmErr != nil {
			internal.LogWarn("Failed to remove temporary file: %v", rmErr)
		}
		return nil, err
	}

	if err := e.verifyTempFile(finalPath, received); err != nil {
		e.fileOps.RemoveIfExists(e.fileOps.TempPath(finalPath))
		return nil, err
	}

	if e.fileOps.FileExists(finalPath) {
		internal.LogInfo("Replacing existing file %s", finalPath)
	}
	if err := e.fileOps.CommitTemp(finalPath); err != nil {
		e.fileOps.RemoveIfExists(e.fileOps.TempPath(finalPath))
		return nil, err
	}

	internal.LogInfo("Saved %s (%s)", finalPath, utils.FormatBytes(received))

	return &internal.DownloadSummary{
		Path:       finalPath,
		Filename:   filename,
		Bytes:      received,
		TotalBytes: total,
		Elapsed:    time.Since(start),
	}, nil
}

// stream copies body into the temporary sibling of finalPath. The file is
// always closed before returning.
func (e *StreamEngine) stream(ctx context.Context, body io.Reader, finalPath string, plan TransferPlan, total int64, config *internal.DownloadConfig) (int64, error) {
	file, err := e.fileOps.CreateTemp(finalPath)
	if err != nil {
		return 0, err
	}

	var limiter internal.RateLimiter
	if config.RateLimit > 0 {
		limiter = utils.NewBandwidthLimiter(config.RateLimit)
	}
	reader := utils.LimitReader(ctx, body, limiter)

	gate := newProgressGate(plan, total, config.Progress)
	buf := make([]byte, plan.BufferSize)
	var received int64

	for {
		if ctx.Err() != nil {
			file.Close()
			return received, contextError(ctx, finalPath)
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				file.Close()
				return received, internal.NewFileSystemError(file.Name(), err)
			}
			received += int64(n)
			gate.observe(received)
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			file.Close()
			if ctx.Err() != nil {
				return received, contextError(ctx, finalPath)
			}
			return received, internal.NewTransportError(finalPath, readErr).WithStep("download")
		}
	}

	if err := file.Close(); err != nil {
		return received, internal.NewFileSystemError(file.Name(), err)
	}

	gate.complete(received)
	return received, nil
}

// verifyTempFile checks that the temporary file holds every received byte.
func (e *StreamEngine) verifyTempFile(finalPath string, received int64) error {
	tempPath := e.fileOps.TempPath(finalPath)
	size, err := e.fileOps.GetFileSize(tempPath)
	if err != nil {
		return internal.NewFileSystemError(tempPath, err)
	}
	if size != received {
		return internal.NewFileSystemError(tempPath,
			fmt.Errorf("file size mismatch: expected %d bytes, got %d bytes", received, size))
	}
	return nil
}

func contextError(ctx context.Context, path string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return internal.NewCancelledError("download").WithContext("path", path)
	}
	return internal.NewTransportError(path, ctx.Err()).WithStep("download")
}

// FilenameFromHeader extracts the file name from a Content-Disposition value.
// The RFC 5987 filename* parameter is preferred and percent-decoded; a plain
// filename parameter is used otherwise. It returns "" when neither is present.
func FilenameFromHeader(header string) string {
	if header == "" {
		return ""
	}

	if m := extendedFilenamePattern.FindStringSubmatch(header); m != nil {
		value := strings.Trim(strings.TrimSpace(m[2]), `"`)
		if decoded, err := url.PathUnescape(value); err == nil {
			return decoded
		}
		return value
	}

	if _, params, err := mime.ParseMediaType(header); err == nil {
		return params["filename"]
	}
	return ""
}
