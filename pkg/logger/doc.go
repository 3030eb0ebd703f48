// Package logger provides the structured logging interface used across the
// gift parser.
//
// It wraps zerolog. Library packages receive a Logger explicitly; the CLI
// layer may use the global instance set up by Initialize.
//
//	log, err := logger.New(&config.LoggingConfig{Level: "info", File: "scan.log"})
//	if err != nil {
//	    return err
//	}
//	log.WithField("run_id", runID).Info("Scan started")
//
// Tests can use NewTestLogger to capture messages, or NewNopLogger to discard
// them.
package logger
