package demux

import (
	"fmt"
	"strings"

	"github.com/grailbio/hts/sam"
)

var rgTag = sam.Tag{'R', 'G'}

// FormatError reports a template whose records disagree on the raw barcode
// tag, or a barcode/quality pair of different lengths. Templates are
// consistent by construction upstream, so this is not recoverable per record;
// it aborts the run.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string { return e.Msg }

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}

// RecordReader is an ordered stream of records, in the shape of
// bamprovider.Iterator. The pipeline only ever consumes records through this
// interface; it performs no file I/O itself.
type RecordReader interface {
	// Scan advances to the next record, returning false at end of stream or
	// on error.
	Scan() bool
	// Record returns the current record. Valid only after Scan returns true.
	Record() *sam.Record
	// Err returns the error that terminated the stream, or nil.
	Err() error
}

// RecordWriter accepts records for serialization in the order presented. The
// pipeline guarantees that order equals input order.
type RecordWriter interface {
	Write(r *sam.Record) error
}

// TemplateReader groups the record stream into templates: maximal runs of
// records sharing one read name. It is single-pass; the source cannot be
// rewound.
type TemplateReader struct {
	in      RecordReader
	pending *sam.Record
	started bool
}

// NewTemplateReader returns a TemplateReader over in.
func NewTemplateReader(in RecordReader) *TemplateReader {
	return &TemplateReader{in: in}
}

// Next returns the next template, or (nil, nil) at end of stream.
func (tr *TemplateReader) Next() ([]*sam.Record, error) {
	if !tr.started {
		tr.started = true
		if tr.in.Scan() {
			tr.pending = tr.in.Record()
		} else if err := tr.in.Err(); err != nil {
			return nil, err
		}
	}
	if tr.pending == nil {
		return nil, nil
	}
	tmpl := []*sam.Record{tr.pending}
	name := tr.pending.Name
	tr.pending = nil
	for tr.in.Scan() {
		r := tr.in.Record()
		if r.Name != name {
			tr.pending = r
			break
		}
		tmpl = append(tmpl, r)
	}
	if tr.pending == nil {
		if err := tr.in.Err(); err != nil {
			return nil, err
		}
	}
	return tmpl, nil
}

// auxString returns the string value of the given tag, or "".
func auxString(r *sam.Record, tag sam.Tag) string {
	aux := r.AuxFields.Get(tag)
	if aux == nil {
		return ""
	}
	s, _ := aux.Value().(string)
	return s
}

// setAuxString replaces the value of tag on r, appending the field if absent.
func setAuxString(r *sam.Record, tag sam.Tag, val string) error {
	aux, err := sam.NewAux(tag, val)
	if err != nil {
		return err
	}
	for i := range r.AuxFields {
		if r.AuxFields[i].Tag() == tag {
			r.AuxFields[i] = aux
			return nil
		}
	}
	r.AuxFields = append(r.AuxFields, aux)
	return nil
}

// convertLowQuality returns a copy of barcode with every base whose paired
// quality is at most maxLQ rewritten to 'N'. Qualities are phred+33;
// separator positions are left alone.
func convertLowQuality(barcode, quality string, maxLQ int) (string, error) {
	if len(barcode) != len(quality) {
		return "", formatErrorf("barcode %q and quality %q have different lengths", barcode, quality)
	}
	b := []byte(barcode)
	for i := 0; i < len(b); i++ {
		if isLetter(b[i]) && int(quality[i])-33 <= maxLQ {
			b[i] = 'N'
		}
	}
	return string(b), nil
}

// templateBarcode extracts the shared raw barcode and quality tag values from
// a template. Two records carrying different raw barcodes is a FormatError.
// Both values are "" when no record carries the barcode tag.
func templateBarcode(tmpl []*sam.Record, bcTag, qtTag sam.Tag) (barcode, quality string, err error) {
	for _, r := range tmpl {
		bc := auxString(r, bcTag)
		if bc == "" {
			continue
		}
		if barcode != "" {
			if bc != barcode {
				return "", "", formatErrorf("record %s has two different barcode tags: %s and %s", r.Name, barcode, bc)
			}
			continue
		}
		barcode = bc
		quality = auxString(r, qtTag)
	}
	return barcode, quality, nil
}

// processTemplate classifies one template against the panel and rewrites its
// records' tags. The quality-control flag of the template's first record
// decides whether the classification counts toward the pf metrics, even
// though every record receives the rewritten tag.
func processTemplate(tmpl []*sam.Record, m *Matcher, counts []Counts, hops TagHopTable, opts Opts) error {
	barcode, quality, err := templateBarcode(tmpl, sam.NewTag(opts.BarcodeTag), sam.NewTag(opts.QualityTag))
	if err != nil {
		return err
	}
	if barcode == "" {
		// No barcode tag anywhere in the template: pass it through untouched.
		return nil
	}

	observed := barcode
	if opts.ConvertLowQuality && quality != "" {
		if observed, err = convertLowQuality(barcode, quality, opts.MaxLowQualityToConvert); err != nil {
			return err
		}
	}
	if len(observed) > m.table.SeqLen() {
		observed = observed[:m.table.SeqLen()]
	}

	entry, hopKey := m.Match(observed)
	pf := tmpl[0].Flags&sam.QCFail == 0
	m.UpdateMetrics(counts, entry, observed, pf)
	if hopKey != "" {
		hops.Update(hopKey, pf)
	}

	suffix := "#" + m.table.Entries[entry].Name
	for _, r := range tmpl {
		rg := auxString(r, rgTag)
		if !strings.HasSuffix(rg, suffix) {
			if err := setAuxString(r, rgTag, rg+suffix); err != nil {
				return err
			}
		}
		if opts.ChangeReadName && !strings.HasSuffix(r.Name, suffix) {
			r.Name += suffix
		}
	}
	return nil
}
