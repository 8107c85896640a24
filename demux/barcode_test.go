package demux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTable(t *testing.T) {
	table := mustTable(t, DefaultOpts,
		"AAAA-TTTT\tbc1\tlib1\tsample1\tfirst",
		"CCCC-GGGG\tbc2\tlib2\tsample2",
		"GGGG-CCCC\tbc3")

	require.Equal(t, 4, len(table.Entries))
	assert.Equal(t, 4, table.Index1Len)
	assert.Equal(t, 4, table.Index2Len)
	assert.Equal(t, "-", table.Separator)
	assert.Equal(t, 9, table.SeqLen())
	assert.True(t, table.DualIndex())

	// Sentinel is all-wildcard with name "0".
	assert.Equal(t, "NNNN-NNNN", table.Entries[0].Seq)
	assert.Equal(t, "0", table.Entries[0].Name)

	assert.Equal(t, "AAAA", table.Entries[1].Index1)
	assert.Equal(t, "TTTT", table.Entries[1].Index2)
	assert.Equal(t, "lib1", table.Entries[1].Library)
	assert.Equal(t, "sample1", table.Entries[1].Sample)
	assert.Equal(t, "first", table.Entries[1].Description)
	// Optional columns default to empty.
	assert.Equal(t, "", table.Entries[2].Description)
	assert.Equal(t, "", table.Entries[3].Library)

	n, ok := table.Lookup("CCCC-GGGG")
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	_, ok = table.Lookup("NNNN-NNNN")
	assert.False(t, ok, "sentinel must not be in the exact-match index")
}

func TestLoadTableSingleIndex(t *testing.T) {
	table := mustTable(t, DefaultOpts, "ACGT\tbc1", "TGCA\tbc2")
	assert.Equal(t, 4, table.Index1Len)
	assert.Equal(t, 0, table.Index2Len)
	assert.Equal(t, "", table.Separator)
	assert.False(t, table.DualIndex())
	assert.Equal(t, "NNNN", table.Entries[0].Seq)
}

func TestLoadTableDualTagSplit(t *testing.T) {
	opts := DefaultOpts
	opts.DualTagSplit = 3
	table := mustTable(t, opts, "AAATTT\tbc1", "CCCGGG\tbc2")
	assert.Equal(t, 3, table.Index1Len)
	assert.Equal(t, 3, table.Index2Len)
	assert.Equal(t, "", table.Separator)
	assert.Equal(t, "AAA", table.Entries[1].Index1)
	assert.Equal(t, "TTT", table.Entries[1].Index2)
	assert.Equal(t, "NNNNNN", table.Entries[0].Seq)
}

func TestLoadTableErrors(t *testing.T) {
	load := func(rows ...string) error {
		text := "header\n" + strings.Join(rows, "\n") + "\n"
		_, err := LoadTable(strings.NewReader(text), DefaultOpts)
		return err
	}

	err := load("AAAA-TTTT\tbc1", "CCC-GGGG\tbc2")
	require.Error(t, err)
	assert.IsType(t, &ConfigError{}, err, "ragged index lengths must be a ConfigError")

	err = load("AAAA-TTTT")
	require.Error(t, err)
	assert.IsType(t, &ConfigError{}, err, "missing name must be a ConfigError")

	err = load()
	require.Error(t, err)

	_, err = LoadTable(strings.NewReader(""), DefaultOpts)
	require.Error(t, err)
}

func TestLoadTableDuplicateSeqLastWins(t *testing.T) {
	table := mustTable(t, DefaultOpts, "AAAA\tbc1", "AAAA\tbc2")
	n, ok := table.Lookup("AAAA")
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, "bc2", table.Entries[n].Name)
}
