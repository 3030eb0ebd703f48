package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nitrodev1/telegram-gift-parser/pkg/engine"
)

// ProgressDisplay renders a single updating progress line for a scan
type ProgressDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	collection string
	startTime  time.Time
	now        func() time.Time
	last       engine.Progress
}

// NewProgressDisplay creates a display writing to out
func NewProgressDisplay(out io.Writer, collection string) *ProgressDisplay {
	return &ProgressDisplay{
		out:        out,
		collection: collection,
		startTime:  time.Now(),
		now:        time.Now,
	}
}

// Update redraws the progress line; it is an engine.ProgressFunc
func (p *ProgressDisplay) Update(progress engine.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = progress
	if progress.State == engine.StateWaitingOnRateLimit {
		fmt.Fprintf(p.out, "\n%s Rate limit reached after ID %d. Waiting %s...\n",
			Yellow("!"), progress.LastID, formatDuration(progress.Wait))
		return
	}
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), p.line(progress))
}

func (p *ProgressDisplay) line(progress engine.Progress) string {
	total := progress.EndID - progress.StartID + 1
	done := progress.LastID - progress.StartID + 1
	if done < 0 {
		done = 0
	}

	fraction := 0.0
	if total > 0 {
		fraction = float64(done) / float64(total)
	}
	barWidth := 20
	filled := int(fraction * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	return fmt.Sprintf("%s [%s] %d/%d • %d owners • %d links • %s",
		Cyan(p.collection),
		bar,
		progress.LastID,
		progress.EndID,
		progress.Resolved,
		progress.Links,
		p.eta(done, total),
	)
}

// eta estimates the remaining time from the rate so far
func (p *ProgressDisplay) eta(done, total int64) string {
	elapsed := p.now().Sub(p.startTime)
	if done <= 0 || elapsed <= 0 {
		return "calculating..."
	}
	perID := elapsed / time.Duration(done)
	return formatDuration(perID*time.Duration(total-done)) + " left"
}

// Complete prints the run summary
func (p *ProgressDisplay) Complete(stats engine.Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	PrintSummary(p.out, p.collection, stats)
}

// PrintSummary prints the final statistics of a scan
func PrintSummary(w io.Writer, collection string, stats engine.Stats) {
	verb := "Scanned"
	if stats.Interrupted {
		verb = "Interrupted after scanning"
	}
	fmt.Fprintf(w, "\n\n%s %s %d IDs of %s (up to %d)\n",
		Green("✓"), verb, stats.Processed, collection, stats.LastID)
	fmt.Fprintf(w, "  %s %d owners, %d valid links in %s\n",
		Dim("•"), stats.Resolved, stats.Links, formatDuration(stats.Duration))

	if stats.RateLimitWaits > 0 {
		fmt.Fprintf(w, "  %s %d rate-limit waits\n", Dim("•"), stats.RateLimitWaits)
	}
	if stats.Skipped > 0 {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Yellow(fmt.Sprintf("%d IDs skipped after repeated rate limits", stats.Skipped)))
	}
	if stats.FailedBatches > 0 {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d batches failed to write", stats.FailedBatches)))
	}
	if stats.Interrupted {
		fmt.Fprintf(w, "  %s resume with --resume-from %d\n", Dim("•"), stats.LastID+1)
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
