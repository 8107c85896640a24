package demux

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ConfigError reports a malformed barcode panel file. It is fatal at startup.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Entry is one row of the barcode panel. The identity fields are immutable
// after load; counters are kept separately (see Counts) so that parallel jobs
// can copy them without copying sequences.
type Entry struct {
	// Seq is the full barcode sequence as it appears in the panel file,
	// including any separator between the two index halves.
	Seq string
	// Index1 and Index2 are the split halves of Seq. Index2 is empty for
	// single-index panels.
	Index1 string
	Index2 string

	Name        string
	Library     string
	Sample      string
	Description string
}

// Counts holds the per-barcode counters. The slice returned by
// Table.NewCounts is indexed by entry position.
type Counts struct {
	Reads         uint64
	PFReads       uint64
	Perfect       uint64
	PFPerfect     uint64
	OneMismatch   uint64
	PFOneMismatch uint64
}

func (c *Counts) merge(o Counts) {
	c.Reads += o.Reads
	c.PFReads += o.PFReads
	c.Perfect += o.Perfect
	c.PFPerfect += o.PFPerfect
	c.OneMismatch += o.OneMismatch
	c.PFOneMismatch += o.PFOneMismatch
}

// Table is the barcode panel. Entries[0] is the reserved "unassigned"
// sentinel whose index halves are all-wildcard; it absorbs every read that
// fails to match. The table is read-only once loaded.
type Table struct {
	Entries []Entry

	// Index1Len and Index2Len are established by the first data row. Every
	// later row must split to the same lengths.
	Index1Len int
	Index2Len int

	// Separator sits between the two index halves in Seq ("" when the panel
	// was split at a fixed offset or is single-index).
	Separator string

	seqLen int
	lookup map[string]int
}

// SeqLen returns the length of a full barcode sequence, separator included.
// Observed barcodes longer than this are truncated before matching.
func (t *Table) SeqLen() int { return t.seqLen }

// DualIndex reports whether the panel has a second index half, which is what
// makes tag-hop detection meaningful.
func (t *Table) DualIndex() bool { return t.Index2Len > 0 }

// NewCounts returns a zeroed counter set for this table, one element per
// entry.
func (t *Table) NewCounts() []Counts { return make([]Counts, len(t.Entries)) }

// Lookup returns the position of the entry whose full sequence equals seq.
// When the panel contains duplicate sequences the last row wins; this is
// deliberate, not per-run dependent.
func (t *Table) Lookup(seq string) (int, bool) {
	n, ok := t.lookup[seq]
	return n, ok
}

// HopKey synthesizes the full sequence for a pair of index halves, using the
// same separator convention as the panel.
func (t *Table) HopKey(index1, index2 string) string {
	return index1 + t.Separator + index2
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// splitSeq splits a barcode sequence into its index halves. With a fixed
// split position the sequence is cut at that offset; otherwise the first
// non-letter byte is taken as the separator.
func splitSeq(seq string, dualTagSplit int) (index1, index2, sep string, err error) {
	if dualTagSplit > 0 {
		if len(seq) < dualTagSplit {
			return "", "", "", configErrorf("barcode %q is shorter than the dual-tag split position %d", seq, dualTagSplit)
		}
		return seq[:dualTagSplit], seq[dualTagSplit:], "", nil
	}
	for i := 0; i < len(seq); i++ {
		if !isLetter(seq[i]) {
			return seq[:i], seq[i+1:], seq[i : i+1], nil
		}
	}
	return seq, "", "", nil
}

// LoadTable reads a barcode panel. The input is tab-delimited text: a header
// line (discarded), then one row per barcode of the form
// sequence<TAB>name[<TAB>library[<TAB>sample[<TAB>description]]]. The first
// data row establishes the index lengths; any later row that splits to
// different lengths is a ConfigError.
func LoadTable(r io.Reader, opts Opts) (*Table, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, configErrorf("barcode file is empty")
	}

	t := &Table{
		// Entry 0 is the unassigned sentinel. Its wildcard halves are filled
		// in once the index lengths are known.
		Entries: []Entry{{Name: "0"}},
		lookup:  map[string]int{},
	}
	lineno := 1
	for scanner.Scan() {
		lineno++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		e := Entry{Seq: fields[0]}
		if len(fields) > 1 {
			e.Name = fields[1]
		}
		if len(fields) > 2 {
			e.Library = fields[2]
		}
		if len(fields) > 3 {
			e.Sample = fields[3]
		}
		if len(fields) > 4 {
			e.Description = fields[4]
		}
		if e.Seq == "" || e.Name == "" {
			return nil, configErrorf("barcode file line %d: sequence and name are required", lineno)
		}

		var sep string
		var err error
		e.Index1, e.Index2, sep, err = splitSeq(e.Seq, opts.DualTagSplit)
		if err != nil {
			return nil, err
		}
		if len(t.Entries) == 1 {
			t.Index1Len = len(e.Index1)
			t.Index2Len = len(e.Index2)
			t.Separator = sep
			t.seqLen = len(e.Seq)
		} else if len(e.Index1) != t.Index1Len || len(e.Index2) != t.Index2Len {
			return nil, configErrorf("barcode file line %d: %q splits to lengths %d+%d, previous rows split to %d+%d",
				lineno, e.Seq, len(e.Index1), len(e.Index2), t.Index1Len, t.Index2Len)
		}
		t.lookup[e.Seq] = len(t.Entries)
		t.Entries = append(t.Entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(t.Entries) == 1 {
		return nil, configErrorf("barcode file has no data rows")
	}

	sentinel := &t.Entries[0]
	sentinel.Index1 = strings.Repeat("N", t.Index1Len)
	sentinel.Index2 = strings.Repeat("N", t.Index2Len)
	sentinel.Seq = t.HopKey(sentinel.Index1, sentinel.Index2)
	return t, nil
}
