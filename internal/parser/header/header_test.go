package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"Sample_ID", "sample_id"},
		{"Sample ID", "sample_id"},
		{" sample-id ", "sample_id"},
		{"\uFEFFSample_ID", "sample_id"},
		{"Intensität", "intensitat"},
		{"Protein/Gene", "protein_gene"},
		{"Intensity (LFQ)", "intensity_lfq"},
		{"__x__", "x"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Key(tc.in), "Key(%q)", tc.in)
	}
}

func TestStripBOM(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"gene", "S1"}, StripBOM([]string{"\uFEFFgene", "S1"}))
	assert.Empty(t, StripBOM(nil))
	// Only the first cell is touched.
	assert.Equal(t, []string{"a", "\uFEFFb"}, StripBOM([]string{"a", "\uFEFFb"}))
}

func TestIndex(t *testing.T) {
	t.Parallel()

	idx, dups := Index(
		[]string{"Sample", "Protein", "Intensity", "Batch", "intensity"},
		map[string]string{"sample": "Sample_ID"},
	)
	assert.Equal(t, 0, idx["sample_id"])
	assert.Equal(t, 1, idx["protein"])
	assert.Equal(t, 2, idx["intensity"])
	assert.Equal(t, 3, idx["batch"])
	_, hasRaw := idx["sample"]
	assert.False(t, hasRaw)
	assert.Equal(t, []string{"intensity"}, dups)
}

func TestIndexSkipsEmptyHeaders(t *testing.T) {
	t.Parallel()

	idx, dups := Index([]string{"", "Protein", "  "}, nil)
	assert.Len(t, idx, 1)
	assert.Empty(t, dups)
}
