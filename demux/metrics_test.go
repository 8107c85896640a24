package demux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metricsRows parses a report into its non-comment, non-empty tab-split rows.
func metricsRows(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

func TestWriteMetrics(t *testing.T) {
	table := mustTable(t, DefaultOpts,
		"AAAA-TTTT\tbc1\tlib1\tsample1\tfirst",
		"CCCC-GGGG\tbc2\tlib2\tsample2")
	counts := table.NewCounts()
	counts[1] = Counts{Reads: 60, PFReads: 50, Perfect: 40, PFPerfect: 35, OneMismatch: 20, PFOneMismatch: 15}
	counts[2] = Counts{Reads: 30, PFReads: 25, Perfect: 30, PFPerfect: 25}
	counts[0] = Counts{Reads: 10, PFReads: 8, Perfect: 10, PFPerfect: 8}

	var buf strings.Builder
	require.NoError(t, WriteMetrics(&buf, table, counts, DefaultOpts))
	text := buf.String()

	assert.Contains(t, text, "# BARCODE_TAG_NAME=BC MAX_MISMATCHES=1 MIN_MISMATCH_DELTA=1 MAX_NO_CALLS=2 \n")

	rows := metricsRows(text)
	require.Equal(t, 4, len(rows), "header plus one row per barcode plus the sentinel")
	header := rows[0]
	assert.Equal(t, []string{
		"BARCODE", "BARCODE_NAME", "LIBRARY_NAME", "SAMPLE_NAME", "DESCRIPTION",
		"READS", "PF_READS", "PERFECT_MATCHES", "PF_PERFECT_MATCHES",
		"ONE_MISMATCH_MATCHES", "PF_ONE_MISMATCH_MATCHES",
		"PCT_MATCHES", "RATIO_THIS_BARCODE_TO_BEST_BARCODE_PCT",
		"PF_PCT_MATCHES", "PF_RATIO_THIS_BARCODE_TO_BEST_BARCODE_PCT",
		"PF_NORMALIZED_MATCHES",
	}, header)

	bc1 := rows[1]
	require.Equal(t, len(header), len(bc1))
	assert.Equal(t, "AAAA-TTTT", bc1[0])
	assert.Equal(t, "bc1", bc1[1])
	assert.Equal(t, "lib1", bc1[2])
	assert.Equal(t, "sample1", bc1[3])
	assert.Equal(t, "first", bc1[4])
	assert.Equal(t, "60", bc1[5])
	assert.Equal(t, "0.600000", bc1[11], "60 of 100 total reads")
	assert.Equal(t, "1.000000", bc1[12], "bc1 is the best barcode")
	// 50 pf reads * 2 barcodes / 75 assigned pf reads.
	assert.Equal(t, "1.333333", bc1[15])

	bc2 := rows[2]
	assert.Equal(t, "0.500000", bc2[12], "30 of best 60")

	sentinel := rows[3]
	assert.Equal(t, "NNNN-NNNN", sentinel[0])
	assert.Equal(t, "", sentinel[1], "sentinel name is blanked")
	assert.Equal(t, "10", sentinel[5])
	assert.Equal(t, "0", sentinel[7], "wildcard perfect counter is zeroed")
	assert.Equal(t, "0", sentinel[8])
	assert.Equal(t, "0.000000", sentinel[15])
}

func TestWriteMetricsIgnorePF(t *testing.T) {
	opts := DefaultOpts
	opts.IgnorePF = true
	table := mustTable(t, opts, "AAAA\tbc1", "CCCC\tbc2")
	counts := table.NewCounts()
	counts[1].Reads = 5
	counts[1].Perfect = 5

	var buf strings.Builder
	require.NoError(t, WriteMetrics(&buf, table, counts, opts))
	rows := metricsRows(buf.String())

	assert.Equal(t, []string{
		"BARCODE", "BARCODE_NAME", "LIBRARY_NAME", "SAMPLE_NAME", "DESCRIPTION",
		"READS", "PERFECT_MATCHES", "ONE_MISMATCH_MATCHES",
		"PCT_MATCHES", "RATIO_THIS_BARCODE_TO_BEST_BARCODE_PCT",
	}, rows[0])
	for _, row := range rows[1:] {
		assert.Equal(t, len(rows[0]), len(row))
	}
	assert.NotContains(t, buf.String(), "PF_")
}

func TestWriteMetricsEmptyRun(t *testing.T) {
	table := mustTable(t, DefaultOpts, "AAAA\tbc1", "CCCC\tbc2")
	var buf strings.Builder
	require.NoError(t, WriteMetrics(&buf, table, table.NewCounts(), DefaultOpts))
	rows := metricsRows(buf.String())
	require.Equal(t, 4, len(rows))
	assert.Equal(t, "0.000000", rows[1][11], "zero denominators report as zero")
}

func TestWriteTagHops(t *testing.T) {
	table := mustTable(t, DefaultOpts, "AAAA-TTTT\tbc1", "CCCC-GGGG\tbc2", "GGGG-CCCC\tbc3")
	hops := TagHopTable{
		"AAAA-GGGG": &Counts{Reads: 5, PFReads: 4, Perfect: 5, PFPerfect: 4},
		"CCCC-TTTT": &Counts{Reads: 9, PFReads: 9, Perfect: 9, PFPerfect: 9},
		"GGGG-TTTT": &Counts{Reads: 5, PFReads: 5, Perfect: 5, PFPerfect: 5},
		"AAAA-CCCC": &Counts{},
	}

	var buf strings.Builder
	require.NoError(t, WriteTagHops(&buf, table, hops, DefaultOpts))
	rows := metricsRows(buf.String())

	require.Equal(t, 4, len(rows), "zero-read hops are omitted")
	assert.Equal(t, []string{"BARCODE", "READS", "PF_READS", "PERFECT_MATCHES", "PF_PERFECT_MATCHES"}, rows[0])
	assert.Equal(t, "CCCC-TTTT", rows[1][0], "most reads first")
	assert.Equal(t, "AAAA-GGGG", rows[2][0], "ties broken by sequence")
	assert.Equal(t, "GGGG-TTTT", rows[3][0])
	assert.Equal(t, []string{"CCCC-TTTT", "9", "9", "9", "9"}, rows[1])
}

func TestWriteTagHopsIgnorePF(t *testing.T) {
	opts := DefaultOpts
	opts.IgnorePF = true
	table := mustTable(t, opts, "AAAA-TTTT\tbc1", "CCCC-GGGG\tbc2")
	hops := TagHopTable{"AAAA-GGGG": &Counts{Reads: 3, Perfect: 3}}

	var buf strings.Builder
	require.NoError(t, WriteTagHops(&buf, table, hops, opts))
	rows := metricsRows(buf.String())
	assert.Equal(t, []string{"BARCODE", "READS", "PERFECT_MATCHES"}, rows[0])
	assert.Equal(t, []string{"AAAA-GGGG", "3", "3"}, rows[1])
}
