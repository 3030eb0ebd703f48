package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nitrodev1/telegram-gift-parser/pkg/engine"
)

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer

	PrintError(&buf, "scan failed", errors.New("gateway down"))
	PrintSuccess(&buf, "done")
	PrintInfo(&buf, "Collection", "LolPop")
	PrintWarning(&buf, "careful")

	out := buf.String()
	assert.Contains(t, out, "scan failed: gateway down")
	assert.Contains(t, out, Green("done"))
	assert.Contains(t, out, Yellow("LolPop"))
	assert.Contains(t, out, "careful")
}

func TestProgressLine(t *testing.T) {
	var buf bytes.Buffer
	display := NewProgressDisplay(&buf, "LolPop")
	start := time.Unix(0, 0)
	display.startTime = start
	display.now = func() time.Time { return start.Add(10 * time.Second) }

	display.Update(engine.Progress{
		State:    engine.StateScanning,
		StartID:  1,
		EndID:    100,
		LastID:   50,
		Resolved: 7,
		Links:    3,
	})

	out := buf.String()
	assert.Contains(t, out, "50/100")
	assert.Contains(t, out, "7 owners")
	assert.Contains(t, out, "3 links")
	assert.Contains(t, out, "10s left")
	assert.Contains(t, out, "━━━━━━━━━━──────────")
}

func TestProgressRateLimitNotice(t *testing.T) {
	var buf bytes.Buffer
	display := NewProgressDisplay(&buf, "LolPop")

	display.Update(engine.Progress{
		State:  engine.StateWaitingOnRateLimit,
		LastID: 5,
		Wait:   90 * time.Second,
	})

	assert.Contains(t, buf.String(), "Rate limit reached after ID 5. Waiting 1m30s")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, "LolPop", engine.Stats{
		Processed:      40,
		Resolved:       4,
		Links:          2,
		LastID:         40,
		RateLimitWaits: 1,
		Skipped:        2,
		Interrupted:    true,
		Duration:       2 * time.Hour,
	})

	out := buf.String()
	assert.Contains(t, out, "Interrupted after scanning 40 IDs of LolPop")
	assert.Contains(t, out, "4 owners, 2 valid links in 2h0m")
	assert.Contains(t, out, "2 IDs skipped")
	assert.Contains(t, out, "--resume-from 41")
	assert.NotContains(t, out, "batches failed")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{61 * time.Second, "1m1s"},
		{3*time.Hour + 5*time.Minute, "3h5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
