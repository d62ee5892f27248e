package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress for long-running operations such as
// exporting the audit trail.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// ExportProgress renders a single-line progress bar with throughput and an
// estimated time remaining once enough samples exist to make the estimate
// meaningful.
type ExportProgress struct {
	mu      sync.Mutex
	writer  io.Writer
	total   int64
	current int64
	started time.Time
}

// NewProgressReporter creates a progress reporter writing to w, or os.Stdout
// when w is nil.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stdout
	}
	return &ExportProgress{writer: w}
}

// Start begins a run of total items.
func (p *ExportProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.started = time.Now()
	p.render()
}

// Update advances the run to current items done.
func (p *ExportProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	p.render()
}

// Finish completes the bar and terminates the line.
func (p *ExportProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer, " done")
}

// Error abandons the line and reports the failure.
func (p *ExportProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ export failed: %v\n", err)
}

func (p *ExportProgress) render() {
	if p.total <= 0 {
		return
	}

	frac := float64(p.current) / float64(p.total)
	const width = 30
	filled := int(frac * width)
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
	line := fmt.Sprintf("\r[%s] %d/%d events (%.0f%%)", bar, p.current, p.total, frac*100)

	// Rate and ETA need at least a second of samples to be worth printing.
	if elapsed := time.Since(p.started); elapsed > time.Second && p.current > 0 {
		rate := float64(p.current) / elapsed.Seconds()
		if remaining := p.total - p.current; remaining > 0 && rate > 0 {
			eta := time.Duration(float64(remaining) / rate * float64(time.Second))
			line += fmt.Sprintf(", %.0f events/s, ~%s left", rate, eta.Round(time.Second))
		}
	}
	fmt.Fprint(p.writer, line)
}
