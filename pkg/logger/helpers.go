package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRateLimit logs a provider-imposed cooldown
func LogRateLimit(l Logger, batchStart, batchEnd int64, wait time.Duration, attempt int) {
	l.WithFields(map[string]interface{}{
		"batch_start": batchStart,
		"batch_end":   batchEnd,
		"retry_after": wait,
		"attempt":     attempt,
		"action":      "rate_limited",
	}).Warn("Rate limit reached, waiting before next dispatch")
}

// LogScanProgress logs periodic scan progress
func LogScanProgress(l Logger, lastID, endID int64, processed, resolved, links int) {
	percentage := 0.0
	if endID > 0 {
		percentage = float64(lastID) / float64(endID) * 100
	}

	l.WithFields(map[string]interface{}{
		"last_id":    lastID,
		"processed":  processed,
		"resolved":   resolved,
		"links":      links,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Info("Scan progress")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l = l.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
