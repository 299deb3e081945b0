package utils

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"

	"linkfetch/internal"
)

const (
	knownTotalTemplate   = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`
	unknownTotalTemplate = `{{string . "prefix"}}{{counters . }} {{speed . }}`
)

// ProgressTracker renders engine progress reports as a terminal bar and keeps
// speed statistics for the final summary.
type ProgressTracker struct {
	bar       *pb.ProgressBar
	out       io.Writer
	quiet     bool
	startTime time.Time
	total     int64
	current   int64
	filename  string
	mutex     sync.RWMutex

	// Statistics tracking
	lastUpdate   time.Time
	lastBytes    int64
	speedSamples []float64
	maxSamples   int
}

// TransferStats contains final download statistics
type TransferStats struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
	PeakSpeed    float64 // bytes per second
	Filename     string
}

// NewProgressTracker creates a tracker writing to out. The bar is started on
// the first report, once the declared length is known.
func NewProgressTracker(out io.Writer, quiet bool) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		out:          out,
		quiet:        quiet,
		startTime:    now,
		total:        -1,
		lastUpdate:   now,
		speedSamples: make([]float64, 0),
		maxSamples:   10,
	}
}

// Report consumes one engine progress report. It satisfies internal.ProgressFunc.
func (p *ProgressTracker) Report(progress internal.Progress) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if progress.TotalKnown() {
		p.total = progress.TotalBytes
	}
	if !p.quiet && p.bar == nil {
		p.startBar()
	}
	p.update(progress.BytesReceived)
}

func (p *ProgressTracker) startBar() {
	tmpl := unknownTotalTemplate
	total := int64(0)
	if p.total >= 0 {
		tmpl = knownTotalTemplate
		total = p.total
	}

	bar := pb.New64(total).SetTemplateString(tmpl).SetWriter(p.out)
	bar.Set(pb.Bytes, true)
	bar.Set(pb.SIBytesPrefix, true)
	bar.Set("prefix", "Downloading: ")
	p.bar = bar.Start()
}

// Update records the number of bytes received so far.
func (p *ProgressTracker) Update(current int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.update(current)
}

func (p *ProgressTracker) update(current int64) {
	now := time.Now()
	p.current = current

	if p.bar != nil {
		p.bar.SetCurrent(current)
	}

	timeDiff := now.Sub(p.lastUpdate).Seconds()
	if timeDiff > 0.1 {
		bytesDiff := current - p.lastBytes
		p.speedSamples = append(p.speedSamples, float64(bytesDiff)/timeDiff)
		if len(p.speedSamples) > p.maxSamples {
			p.speedSamples = p.speedSamples[1:]
		}
		p.lastUpdate = now
		p.lastBytes = current
	}
}

// SetFilename sets the filename shown in the summary
func (p *ProgressTracker) SetFilename(filename string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.filename = filename
}

// Finish completes the progress bar and returns the transfer statistics
func (p *ProgressTracker) Finish() *TransferStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)

	if p.bar != nil {
		p.bar.Finish()
	}

	var averageSpeed float64
	if totalTime > 0 {
		averageSpeed = float64(p.current) / totalTime.Seconds()
	}

	var peakSpeed float64
	for _, speed := range p.speedSamples {
		if speed > peakSpeed {
			peakSpeed = speed
		}
	}

	stats := &TransferStats{
		TotalBytes:   p.current,
		TotalTime:    totalTime,
		AverageSpeed: averageSpeed,
		PeakSpeed:    peakSpeed,
		Filename:     p.filename,
	}

	if !p.quiet {
		p.displaySummary(stats)
	}

	return stats
}

// Abort stops the bar without printing a summary.
func (p *ProgressTracker) Abort() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}

func (p *ProgressTracker) displaySummary(stats *TransferStats) {
	fmt.Fprintf(p.out, "\n")
	fmt.Fprintf(p.out, "Download completed successfully!\n")
	fmt.Fprintf(p.out, "Total size: %s\n", FormatBytes(stats.TotalBytes))
	fmt.Fprintf(p.out, "Total time: %v\n", stats.TotalTime.Round(time.Millisecond))
	fmt.Fprintf(p.out, "Average speed: %s/s\n", FormatBytes(int64(stats.AverageSpeed)))
	if stats.PeakSpeed > 0 {
		fmt.Fprintf(p.out, "Peak speed: %s/s\n", FormatBytes(int64(stats.PeakSpeed)))
	}
	if stats.Filename != "" {
		fmt.Fprintf(p.out, "Saved to: %s\n", stats.Filename)
	}
}

// GetCurrentStats returns current download statistics. The percentage is zero
// while the length is unknown.
func (p *ProgressTracker) GetCurrentStats() (speed float64, eta time.Duration, percentage float64) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var currentSpeed float64
	if len(p.speedSamples) > 0 {
		sampleCount := len(p.speedSamples)
		if sampleCount > 3 {
			sampleCount = 3
		}
		for i := len(p.speedSamples) - sampleCount; i < len(p.speedSamples); i++ {
			currentSpeed += p.speedSamples[i]
		}
		currentSpeed /= float64(sampleCount)
	}

	var etaTime time.Duration
	if currentSpeed > 0 && p.total > p.current {
		etaSeconds := float64(p.total-p.current) / currentSpeed
		etaTime = time.Duration(etaSeconds) * time.Second
	}

	var percent float64
	if p.total > 0 {
		percent = float64(p.current) / float64(p.total) * 100
	}

	return currentSpeed, etaTime, percent
}

// IsQuiet returns whether the tracker is in quiet mode
func (p *ProgressTracker) IsQuiet() bool {
	return p.quiet
}

// FormatBytes formats byte count as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
