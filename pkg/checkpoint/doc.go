// Package checkpoint persists the flush cursor of a scan.
//
// A checkpoint is written after every flush with the highest flushed ID and
// the next ID to resume from. It is informational: a scan only resumes when
// the operator passes that ID explicitly. Files are replaced atomically via
// a synced temporary file and a rename.
package checkpoint
