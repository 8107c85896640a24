// Package demux classifies sequencing reads against a panel of expected
// barcodes and rewrites their read-group tags accordingly.
//
// Every record carries an observed barcode (aux tag BC by default) and its
// quality string (QT). The matcher tolerates a bounded number of mismatches,
// requires a minimum distance gap over the runner-up before accepting a call,
// and, for dual-indexed panels, detects "tag hops": reads whose two index
// halves each exactly match a panel entry, but not the same one.
//
// The pipeline groups the record stream into templates (runs of records
// sharing a read name), classifies each template once, and preserves input
// order in the output, including in parallel mode where template batches are
// fanned out to a worker pool and re-sequenced through an ordered queue.
// Per-barcode counters and tag-hop tables are kept private to each job and
// merged on a single goroutine, so the hot path takes no locks.
package demux
