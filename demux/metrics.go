package demux

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/grailbio/base/tsv"
)

func writeCount(w *tsv.Writer, v uint64) {
	w.WriteString(strconv.FormatUint(v, 10))
}

func writeRatio(w *tsv.Writer, num, den uint64) {
	r := 0.0
	if den != 0 {
		r = float64(num) / float64(den)
	}
	w.WriteString(strconv.FormatFloat(r, 'f', 6, 64))
}

// WriteMetrics writes the per-barcode report: a comment header recording the
// matcher policy, a column header, one row per barcode in panel order, and
// the unassigned sentinel as the last row with its name blanked and its
// perfect counters zeroed. Opts.IgnorePF suppresses every PF_* column.
func WriteMetrics(w io.Writer, t *Table, counts []Counts, opts Opts) error {
	var (
		totalReads           = counts[0].Reads
		totalPFReads         = counts[0].PFReads
		totalPFReadsAssigned uint64
		maxReads             uint64
		maxPFReads           uint64
	)
	nBarcodes := uint64(len(t.Entries) - 1)
	for i := 1; i < len(counts); i++ {
		c := &counts[i]
		totalReads += c.Reads
		totalPFReads += c.PFReads
		totalPFReadsAssigned += c.PFReads
		if maxReads < c.Reads {
			maxReads = c.Reads
		}
		if maxPFReads < c.PFReads {
			maxPFReads = c.PFReads
		}
	}

	if _, err := fmt.Fprintf(w, "##\n# BARCODE_TAG_NAME=%s MAX_MISMATCHES=%d MIN_MISMATCH_DELTA=%d MAX_NO_CALLS=%d \n##\n#\n\n##\n",
		opts.BarcodeTag, opts.MaxMismatches, opts.MinMismatchDelta, opts.MaxNoCalls); err != nil {
		return err
	}

	out := tsv.NewWriter(w)
	out.WriteString("BARCODE")
	out.WriteString("BARCODE_NAME")
	out.WriteString("LIBRARY_NAME")
	out.WriteString("SAMPLE_NAME")
	out.WriteString("DESCRIPTION")
	out.WriteString("READS")
	if !opts.IgnorePF {
		out.WriteString("PF_READS")
	}
	out.WriteString("PERFECT_MATCHES")
	if !opts.IgnorePF {
		out.WriteString("PF_PERFECT_MATCHES")
	}
	out.WriteString("ONE_MISMATCH_MATCHES")
	if !opts.IgnorePF {
		out.WriteString("PF_ONE_MISMATCH_MATCHES")
	}
	out.WriteString("PCT_MATCHES")
	out.WriteString("RATIO_THIS_BARCODE_TO_BEST_BARCODE_PCT")
	if !opts.IgnorePF {
		out.WriteString("PF_PCT_MATCHES")
		out.WriteString("PF_RATIO_THIS_BARCODE_TO_BEST_BARCODE_PCT")
		out.WriteString("PF_NORMALIZED_MATCHES")
	}
	if err := out.EndLine(); err != nil {
		return err
	}

	line := func(e *Entry, name string, c Counts, pfAssigned uint64) error {
		out.WriteString(e.Seq)
		out.WriteString(name)
		out.WriteString(e.Library)
		out.WriteString(e.Sample)
		out.WriteString(e.Description)
		writeCount(out, c.Reads)
		if !opts.IgnorePF {
			writeCount(out, c.PFReads)
		}
		writeCount(out, c.Perfect)
		if !opts.IgnorePF {
			writeCount(out, c.PFPerfect)
		}
		writeCount(out, c.OneMismatch)
		if !opts.IgnorePF {
			writeCount(out, c.PFOneMismatch)
		}
		writeRatio(out, c.Reads, totalReads)
		writeRatio(out, c.Reads, maxReads)
		if !opts.IgnorePF {
			writeRatio(out, c.PFReads, totalPFReads)
			writeRatio(out, c.PFReads, maxPFReads)
			writeRatio(out, c.PFReads*nBarcodes, pfAssigned)
		}
		return out.EndLine()
	}

	for i := 1; i < len(t.Entries); i++ {
		if err := line(&t.Entries[i], t.Entries[i].Name, counts[i], totalPFReadsAssigned); err != nil {
			return err
		}
	}
	// The sentinel goes last with a blank name. Its perfect counters only
	// reflect wildcard self-matches, so they are zeroed rather than reported.
	sentinel := counts[0]
	sentinel.Perfect = 0
	sentinel.PFPerfect = 0
	if err := line(&t.Entries[0], "", sentinel, 0); err != nil {
		return err
	}
	return out.Flush()
}

// WriteTagHops writes the tag-hop report: one row per synthesized barcode
// with a non-zero read count, sorted by descending reads, then descending
// perfect matches, then sequence for stability.
func WriteTagHops(w io.Writer, t *Table, hops TagHopTable, opts Opts) error {
	keys := make([]string, 0, len(hops))
	for key, c := range hops {
		if c.Reads == 0 {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := hops[keys[i]], hops[keys[j]]
		if ci.Reads != cj.Reads {
			return ci.Reads > cj.Reads
		}
		if ci.Perfect != cj.Perfect {
			return ci.Perfect > cj.Perfect
		}
		return keys[i] < keys[j]
	})

	if _, err := fmt.Fprintf(w, "##\n# TAG_HOPS BARCODE_TAG_NAME=%s MAX_MISMATCHES=%d MIN_MISMATCH_DELTA=%d MAX_NO_CALLS=%d \n##\n",
		opts.BarcodeTag, opts.MaxMismatches, opts.MinMismatchDelta, opts.MaxNoCalls); err != nil {
		return err
	}

	out := tsv.NewWriter(w)
	out.WriteString("BARCODE")
	out.WriteString("READS")
	if !opts.IgnorePF {
		out.WriteString("PF_READS")
	}
	out.WriteString("PERFECT_MATCHES")
	if !opts.IgnorePF {
		out.WriteString("PF_PERFECT_MATCHES")
	}
	if err := out.EndLine(); err != nil {
		return err
	}
	for _, key := range keys {
		c := hops[key]
		out.WriteString(key)
		writeCount(out, c.Reads)
		if !opts.IgnorePF {
			writeCount(out, c.PFReads)
		}
		writeCount(out, c.Perfect)
		if !opts.IgnorePF {
			writeCount(out, c.PFPerfect)
		}
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}
