package downloader

import (
	"time"

	"linkfetch/internal"
)

const (
	// ReportBytes is the minimum amount of new data between progress reports (1MiB)
	ReportBytes = 1024 * 1024
	// ReportInterval is the minimum time between progress reports
	ReportInterval = 200 * time.Millisecond
)

// bufferTier maps an upper content length bound to a read buffer size.
type bufferTier struct {
	maxSize    int64
	bufferSize int
}

var bufferTiers = []bufferTier{
	{maxSize: 100 * 1024, bufferSize: 4096},
	{maxSize: 5 * 1024 * 1024, bufferSize: 16 * 1024},
	{maxSize: 50 * 1024 * 1024, bufferSize: 64 * 1024},
	{maxSize: 500 * 1024 * 1024, bufferSize: 256 * 1024},
}

const (
	smallBufferSize = 4096
	largeBufferSize = 512 * 1024
)

// TransferPlan describes how a single stream is copied to disk.
type TransferPlan struct {
	BufferSize     int
	ReportBytes    int64
	ReportInterval time.Duration
}

// DownloadPlanner sizes buffers and progress throttling for a transfer
type DownloadPlanner struct {
	reportBytes    int64
	reportInterval time.Duration
}

// NewDownloadPlanner creates a new instance of DownloadPlanner
func NewDownloadPlanner() *DownloadPlanner {
	return &DownloadPlanner{
		reportBytes:    ReportBytes,
		reportInterval: ReportInterval,
	}
}

// PlanTransfer picks the buffer size for a declared content length. An
// unknown length (negative) gets the smallest buffer.
func (p *DownloadPlanner) PlanTransfer(contentLength int64) TransferPlan {
	return TransferPlan{
		BufferSize:     BufferSize(contentLength),
		ReportBytes:    p.reportBytes,
		ReportInterval: p.reportInterval,
	}
}

// BufferSize returns the read/write buffer size for a content length.
func BufferSize(contentLength int64) int {
	if contentLength < 0 {
		return smallBufferSize
	}
	for _, tier := range bufferTiers {
		if contentLength <= tier.maxSize {
			return tier.bufferSize
		}
	}
	return largeBufferSize
}

// progressGate throttles progress callbacks. A report passes only when both
// the byte and the time thresholds have been crossed since the last one.
type progressGate struct {
	plan         TransferPlan
	total        int64
	lastBytes    int64
	lastReport   time.Time
	now          func() time.Time
	sink         internal.ProgressFunc
	reportsFired int
}

func newProgressGate(plan TransferPlan, total int64, sink internal.ProgressFunc) *progressGate {
	return &progressGate{
		plan:       plan,
		total:      total,
		lastReport: time.Now(),
		now:        time.Now,
		sink:       sink,
	}
}

// observe is called after every written chunk with the running byte count.
func (g *progressGate) observe(received int64) {
	if g.sink == nil {
		return
	}
	now := g.now()
	if received-g.lastBytes < g.plan.ReportBytes || now.Sub(g.lastReport) < g.plan.ReportInterval {
		return
	}
	g.emit(received, percentOf(received, g.total))
	g.lastBytes = received
	g.lastReport = now
}

// complete emits the final 100% report.
func (g *progressGate) complete(received int64) {
	if g.sink == nil {
		return
	}
	g.emit(received, 100)
}

func (g *progressGate) emit(received int64, percent float64) {
	g.reportsFired++
	g.sink(internal.Progress{
		Percent:       percent,
		BytesReceived: received,
		TotalBytes:    g.total,
	})
}

func percentOf(received, total int64) float64 {
	if total <= 0 {
		return 0
	}
	percent := float64(received) / float64(total) * 100
	if percent > 100 {
		return 100
	}
	if percent < 0 {
		return 0
	}
	return percent
}
