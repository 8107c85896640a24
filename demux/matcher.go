package demux

// isNoCall reports whether a base is a no-call.
func isNoCall(b byte) bool {
	return b == 'N' || b == 'n' || b == '.'
}

// noCalls counts the no-call bases in a sequence.
func noCalls(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if isNoCall(s[i]) {
			n++
		}
	}
	return n
}

// countMismatches returns the Hamming distance between a candidate barcode
// and an observed one. No-calls on either side match anything, and non-letter
// positions (index separators) are skipped. The scan stops as soon as the
// count exceeds limit, returning limit+1; callers pass the current
// second-best distance so hopeless candidates are abandoned early.
func countMismatches(candidate, observed string, limit int) int {
	n := len(candidate)
	if len(observed) < n {
		n = len(observed)
	}
	mismatches := 0
	for i := 0; i < n; i++ {
		c, o := candidate[i], observed[i]
		if isNoCall(c) || isNoCall(o) {
			continue
		}
		if !isLetter(c) || !isLetter(o) {
			continue
		}
		if c != o {
			mismatches++
			if mismatches > limit {
				return limit + 1
			}
		}
	}
	return mismatches
}

// Matcher classifies observed barcodes against a panel. It is stateless apart
// from the shared read-only table, so one Matcher may be used from many
// goroutines.
type Matcher struct {
	table *Table
	opts  Opts
}

// NewMatcher returns a Matcher over the given panel.
func NewMatcher(table *Table, opts Opts) *Matcher {
	return &Matcher{table: table, opts: opts}
}

// Match returns the position of the panel entry the observed barcode resolves
// to; position 0 is the unassigned sentinel. When the barcode fails to match
// a dual-index panel but each index half independently equals some panel
// entry's corresponding half, the synthesized tag-hop sequence is returned as
// hopKey ("" otherwise).
//
// An observed barcode with more than MaxNoCalls no-call bases is unassigned
// outright: no tie-break and no tag-hop check.
func (m *Matcher) Match(observed string) (entry int, hopKey string) {
	if noCalls(observed) > m.opts.MaxNoCalls {
		return 0, ""
	}

	// With a tie-break margin of at most 1, an exact hit dominates every
	// non-identical candidate, so the lookup map settles it in O(1).
	if m.opts.MinMismatchDelta <= 1 {
		if n, ok := m.table.Lookup(observed); ok {
			return n, ""
		}
	}

	best := 0
	nmBest := m.table.SeqLen()
	nm2Best := m.table.SeqLen()
	for i := 1; i < len(m.table.Entries); i++ {
		nm := countMismatches(m.table.Entries[i].Seq, observed, nm2Best)
		if nm < nmBest {
			if best != 0 {
				nm2Best = nmBest
			}
			nmBest = nm
			best = i
		} else if nm < nm2Best {
			nm2Best = nm
		}
	}

	if best != 0 && nmBest <= m.opts.MaxMismatches && nm2Best-nmBest >= m.opts.MinMismatchDelta {
		return best, ""
	}
	if m.table.DualIndex() {
		hopKey = m.findTagHop(observed)
	}
	return 0, hopKey
}

// findTagHop resolves each index half of the observed barcode independently
// against the panel halves, requiring an exact (distance 0) hit for both. The
// two halves may come from different entries; that disagreement is precisely
// what evidences index hopping.
func (m *Matcher) findTagHop(observed string) string {
	t := m.table
	if len(observed) < t.SeqLen() {
		return ""
	}
	obs1 := observed[:t.Index1Len]
	off := t.Index1Len + len(t.Separator)
	obs2 := observed[off : off+t.Index2Len]

	var hop1, hop2 string
	for i := 1; i < len(t.Entries); i++ {
		e := &t.Entries[i]
		if hop1 == "" && countMismatches(e.Index1, obs1, 0) == 0 {
			hop1 = e.Index1
		}
		if hop2 == "" && countMismatches(e.Index2, obs2, 0) == 0 {
			hop2 = e.Index2
		}
		if hop1 != "" && hop2 != "" {
			return t.HopKey(hop1, hop2)
		}
	}
	return ""
}

// UpdateMetrics records one classified template in counts. Reads counters
// always advance; perfect and one-mismatch counters advance at distance 0 and
// 1 respectively. The pf variants advance only for templates whose first
// record passed quality control.
//
// Note the sentinel's wildcard sequence makes every unassigned read "perfect";
// the report writer zeroes those counters, they are not meaningful.
func (m *Matcher) UpdateMetrics(counts []Counts, entry int, observed string, pf bool) {
	nm := countMismatches(m.table.Entries[entry].Seq, observed, m.table.SeqLen())
	c := &counts[entry]
	c.Reads++
	if pf {
		c.PFReads++
	}
	switch nm {
	case 0:
		c.Perfect++
		if pf {
			c.PFPerfect++
		}
	case 1:
		c.OneMismatch++
		if pf {
			c.PFOneMismatch++
		}
	}
}
