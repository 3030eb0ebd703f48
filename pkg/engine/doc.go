// Package engine runs a scan over a range of gift IDs.
//
// A run connects to the provider, makes sure the session is authorized,
// opens the output, then walks the range in fixed-size batches. Each batch is resolved
// concurrently, committed to the sink in ID order and followed by a fixed
// delay. A batch that hits a provider rate limit is replayed after the
// signaled wait, up to a configurable number of times. Records are flushed
// whenever a batch crosses a multiple of the flush interval and once more
// when the run drains.
package engine
