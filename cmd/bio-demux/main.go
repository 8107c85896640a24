package main

/*
  bio-demux assigns reads in a BAM file to samples by decoding their barcode
  tags against a barcode panel, rewriting RG tags (and optionally read names),
  and writing per-barcode metrics. Dual-indexed panels additionally get a
  .hops report of suspected index cross-contamination.
*/

import (
	"flag"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio-demux/demux"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

const version = "1.0"

var (
	inputFile       = flag.String("input", "", "Input BAM filename")
	outputFile      = flag.String("output", "", "Output BAM filename")
	barcodeFile     = flag.String("barcode-file", "", "File containing the barcode panel")
	metricsFile     = flag.String("metrics-file", "", "Per-barcode metrics written to this file")
	maxMismatches   = flag.Int("max-mismatches", demux.DefaultOpts.MaxMismatches, "Maximum mismatches for a barcode to be considered a match")
	minDelta        = flag.Int("min-mismatch-delta", demux.DefaultOpts.MinMismatchDelta, "Minimum difference between the best and second best match counts for a match to be accepted")
	maxNoCalls      = flag.Int("max-no-calls", demux.DefaultOpts.MaxNoCalls, "Maximum no-calls in a barcode read before it is considered unmatchable")
	convertLQ       = flag.Bool("convert-low-quality", false, "Convert low quality bases in the barcode read to N before matching")
	maxLQ           = flag.Int("max-low-quality-to-convert", demux.DefaultOpts.MaxLowQualityToConvert, "Max phred value at which a barcode base is converted to N")
	changeReadName  = flag.Bool("change-read-name", false, "Append #<barcode name> to each read name")
	ignorePF        = flag.Bool("ignore-pf", false, "Suppress the PF_* columns in the metrics report")
	barcodeTagName  = flag.String("barcode-tag-name", demux.DefaultOpts.BarcodeTag, "Aux tag holding the barcode read")
	qualityTagName  = flag.String("quality-tag-name", demux.DefaultOpts.QualityTag, "Aux tag holding the barcode quality")
	dualTagSplit    = flag.Int("dual-tag", 0, "Split barcodes at this fixed position instead of at a separator character")
	threads         = flag.Int("threads", demux.DefaultOpts.Threads, "Number of worker threads; 1 means sequential")
	batchSize       = flag.Int("batch-size", demux.DefaultOpts.BatchSize, "Templates per parallel job")
	compressWorkers = flag.Int("compress-workers", 1, "BGZF compression/decompression workers per BAM stream")
)

// bamIterator adapts bam.Reader to demux.RecordReader.
type bamIterator struct {
	r   *bam.Reader
	rec *sam.Record
	err error
}

func (it *bamIterator) Scan() bool {
	rec, err := it.r.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		it.err = err
		return false
	}
	it.rec = rec
	return true
}

func (it *bamIterator) Record() *sam.Record { return it.rec }
func (it *bamIterator) Err() error          { return it.err }

// rewriteRG expands one @RG header line into one line per panel entry. Each
// gets ID (and PU, if present) suffixed with #<barcode name>, and LB, SM and
// DS replaced by the panel row's values where those are non-empty. The
// unassigned sentinel contributes the #0 variant with no replacements.
func rewriteRG(line string, t *demux.Table) []string {
	fields := strings.Split(line, "\t")
	out := make([]string, 0, len(t.Entries))
	for i := range t.Entries {
		e := &t.Entries[i]
		newFields := make([]string, 0, len(fields))
		for _, f := range fields {
			switch {
			case strings.HasPrefix(f, "ID:") || strings.HasPrefix(f, "PU:"):
				f = f + "#" + e.Name
			case strings.HasPrefix(f, "LB:") && e.Library != "":
				f = "LB:" + e.Library
			case strings.HasPrefix(f, "SM:") && e.Sample != "":
				f = "SM:" + e.Sample
			case strings.HasPrefix(f, "DS:") && e.Description != "":
				f = "DS:" + e.Description
			}
			newFields = append(newFields, f)
		}
		out = append(out, strings.Join(newFields, "\t"))
	}
	return out
}

// rewriteHeader returns a copy of the input header with every read group
// expanded per barcode and a @PG line recording this run.
func rewriteHeader(h *sam.Header, t *demux.Table, cmdline string) (*sam.Header, error) {
	text, err := h.MarshalText()
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(text), "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "@RG\t") {
			lines = append(lines, rewriteRG(line, t)...)
			continue
		}
		lines = append(lines, line)
	}
	lines = append(lines, "@PG\tID:bio-demux\tPN:bio-demux\tCL:"+cmdline+"\tVN:"+version)
	return sam.NewHeader([]byte(strings.Join(lines, "\n")+"\n"), nil)
}

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unparsed arguments: %s", strings.Join(flag.Args(), " "))
	}
	if *inputFile == "" || *outputFile == "" {
		log.Fatalf("-input and -output are required")
	}
	if *barcodeFile == "" {
		log.Fatalf("-barcode-file is required")
	}

	opts := demux.Opts{
		MaxMismatches:          *maxMismatches,
		MinMismatchDelta:       *minDelta,
		MaxNoCalls:             *maxNoCalls,
		ConvertLowQuality:      *convertLQ,
		MaxLowQualityToConvert: *maxLQ,
		DualTagSplit:           *dualTagSplit,
		BarcodeTag:             *barcodeTagName,
		QualityTag:             *qualityTagName,
		ChangeReadName:         *changeReadName,
		IgnorePF:               *ignorePF,
		Threads:                *threads,
		BatchSize:              *batchSize,
	}

	ctx := vcontext.Background()

	bcIn, err := file.Open(ctx, *barcodeFile)
	if err != nil {
		log.Fatalf("open %s: %v", *barcodeFile, err)
	}
	var bcReader io.Reader = bcIn.Reader(ctx)
	if u := compress.NewReaderPath(bcReader, bcIn.Name()); u != nil {
		bcReader = u
	}
	table, err := demux.LoadTable(bcReader, opts)
	if err != nil {
		log.Fatalf("load %s: %v", *barcodeFile, err)
	}
	if err := bcIn.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", *barcodeFile, err)
	}
	log.Printf("loaded %d barcodes (index lengths %d+%d)", len(table.Entries)-1, table.Index1Len, table.Index2Len)

	in, err := file.Open(ctx, *inputFile)
	if err != nil {
		log.Fatalf("open %s: %v", *inputFile, err)
	}
	reader, err := bam.NewReader(in.Reader(ctx), *compressWorkers)
	if err != nil {
		log.Fatalf("read %s: %v", *inputFile, err)
	}

	header, err := rewriteHeader(reader.Header(), table, strings.Join(os.Args, " "))
	if err != nil {
		log.Fatalf("rewrite header: %v", err)
	}

	out, err := file.Create(ctx, *outputFile)
	if err != nil {
		log.Fatalf("create %s: %v", *outputFile, err)
	}
	writer, err := bam.NewWriter(out.Writer(ctx), header, *compressWorkers)
	if err != nil {
		log.Fatalf("write %s: %v", *outputFile, err)
	}

	pipeline := &demux.Pipeline{
		Table: table,
		Opts:  opts,
		In:    &bamIterator{r: reader},
		Out:   writer,
	}
	if err := pipeline.Run(); err != nil {
		log.Fatalf("demux: %v", err)
	}

	if err := reader.Close(); err != nil {
		log.Fatalf("close %s: %v", *inputFile, err)
	}
	if err := in.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", *inputFile, err)
	}
	if err := writer.Close(); err != nil {
		log.Fatalf("close %s: %v", *outputFile, err)
	}
	if err := out.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", *outputFile, err)
	}

	if *metricsFile != "" {
		f, err := file.Create(ctx, *metricsFile)
		if err != nil {
			log.Fatalf("create %s: %v", *metricsFile, err)
		}
		if err := demux.WriteMetrics(f.Writer(ctx), table, pipeline.Counts(), opts); err != nil {
			log.Fatalf("write %s: %v", *metricsFile, err)
		}
		if err := f.Close(ctx); err != nil {
			log.Fatalf("close %s: %v", *metricsFile, err)
		}
		if table.DualIndex() {
			hopsPath := *metricsFile + ".hops"
			hf, err := file.Create(ctx, hopsPath)
			if err != nil {
				log.Fatalf("create %s: %v", hopsPath, err)
			}
			if err := demux.WriteTagHops(hf.Writer(ctx), table, pipeline.TagHops(), opts); err != nil {
				log.Fatalf("write %s: %v", hopsPath, err)
			}
			if err := hf.Close(ctx); err != nil {
				log.Fatalf("close %s: %v", hopsPath, err)
			}
		}
	}
	log.Printf("all done")
}
