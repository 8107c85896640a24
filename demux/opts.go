package demux

// Opts controls barcode matching and pipeline execution.
type Opts struct {
	// MaxMismatches is the largest Hamming distance at which an observed
	// barcode is still considered a match.
	MaxMismatches int
	// MinMismatchDelta is the minimum gap between the best and second-best
	// match distances for the best match to be accepted. With the default of
	// 1, an exact hit always dominates, which enables the exact-lookup fast
	// path.
	MinMismatchDelta int
	// MaxNoCalls is the number of no-call bases (N, n, .) tolerated in an
	// observed barcode before it is declared unmatchable outright.
	MaxNoCalls int

	// ConvertLowQuality rewrites barcode bases whose paired quality is at most
	// MaxLowQualityToConvert to 'N' before matching.
	ConvertLowQuality      bool
	MaxLowQualityToConvert int

	// DualTagSplit, when >0, splits barcode sequences at a fixed offset
	// instead of at a separator character.
	DualTagSplit int

	// BarcodeTag and QualityTag name the aux tags carrying the observed
	// barcode and its quality string.
	BarcodeTag string
	QualityTag string

	// ChangeReadName appends "#<barcode name>" to every read name in addition
	// to rewriting the RG tag.
	ChangeReadName bool

	// IgnorePF suppresses the PF_* columns in the metrics report. Pass/fail
	// status is still read from the QC-fail flag while counting.
	IgnorePF bool

	// Threads is the worker count. 1 means fully sequential processing with
	// no pool and no locking.
	Threads int
	// BatchSize is the number of templates per parallel job.
	BatchSize int
}

// DefaultOpts holds the default option values.
var DefaultOpts = Opts{
	MaxMismatches:          1,
	MinMismatchDelta:       1,
	MaxNoCalls:             2,
	ConvertLowQuality:      false,
	MaxLowQualityToConvert: 15,
	BarcodeTag:             "BC",
	QualityTag:             "QT",
	Threads:                1,
	BatchSize:              5000,
}
