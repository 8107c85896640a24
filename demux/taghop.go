package demux

// TagHopTable accumulates counters for synthesized tag-hop sequences, keyed
// by the combined barcode built from the exactly-matching index halves.
// Entries are created lazily. During parallel runs each job owns a private
// table; tables are merged on the drain goroutine, so no locking is needed.
type TagHopTable map[string]*Counts

// Update records one tag-hopped template under key. The observed barcode
// equals the key at every called position by construction, so the perfect
// counters advance together with the read counters.
func (h TagHopTable) Update(key string, pf bool) {
	c := h[key]
	if c == nil {
		c = &Counts{}
		h[key] = c
	}
	c.Reads++
	c.Perfect++
	if pf {
		c.PFReads++
		c.PFPerfect++
	}
}

// Merge folds o into h, summing counters on key collision. Merging is
// commutative and associative, so job completion order cannot change the
// final table.
func (h TagHopTable) Merge(o TagHopTable) {
	for key, oc := range o {
		c := h[key]
		if c == nil {
			c = &Counts{}
			h[key] = c
		}
		c.merge(*oc)
	}
}
