package harmonize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoenix/internal/anonymize"
	"phoenix/internal/artifact"
	"phoenix/internal/config"
	"phoenix/internal/records"
)

func fixtures() (a, b, c records.Table) {
	s1, s2 := anonymize.ID("S1"), anonymize.ID("S2")
	a = records.Table{Source: "calls.vcf", Records: []records.Record{
		{SampleID: s1, DataType: records.Genotype, FeatureID: "rs1", Value: "0/1", Metadata: records.Metadata{"pos": "100", "ref": "A", "alt": "G"}},
		{SampleID: s2, DataType: records.Genotype, FeatureID: "rs1", Value: "1/1", Metadata: records.Metadata{"pos": "100", "ref": "A", "alt": "G"}},
	}}
	b = records.Table{Source: "expr.tsv", Records: []records.Record{
		{SampleID: s1, DataType: records.GeneExpression, FeatureID: "TP53", Value: "1.5"},
		{SampleID: s2, DataType: records.GeneExpression, FeatureID: "TP53", Value: ""},
	}}
	c = records.Table{Source: "prot.csv", Records: []records.Record{
		{SampleID: s1, DataType: records.ProteinExpression, FeatureID: "ALB", Value: "12345.6", Metadata: records.Metadata{"tissue": "liver"}},
	}}
	return a, b, c
}

func TestHarmonizeOrderAndCopy(t *testing.T) {
	t.Parallel()

	a, b, c := fixtures()
	got := Harmonize(a, b, c)
	require.Len(t, got, 5)

	var want []records.Record
	want = append(want, a.Records...)
	want = append(want, b.Records...)
	want = append(want, c.Records...)
	assert.Equal(t, want, got)

	// Mutating the input afterwards must not leak into the output.
	a.Records[0].Metadata["pos"] = "999"
	assert.Equal(t, "100", got[0].Metadata["pos"])
	assert.Nil(t, got[2].Metadata)
}

func TestHarmonizeEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Harmonize())
	assert.Empty(t, Harmonize(records.Table{Source: "empty"}))
}

func readArtifact(t *testing.T, path string) []records.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	recs, err := artifact.Decode(data)
	require.NoError(t, err)
	return recs
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "genome_phoenix.parquet")
	a, b, c := fixtures()

	h := New(config.Output{Compression: "snappy"}, nil)
	sum, err := h.Write(ctx, path, a, b, c)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Rows)
	assert.Equal(t, map[string]int{"calls.vcf": 2, "expr.tsv": 2, "prot.csv": 1}, sum.PerSource)
	assert.Equal(t, map[records.DataType]int{
		records.Genotype: 2, records.GeneExpression: 2, records.ProteinExpression: 1,
	}, sum.PerDataType)
	assert.Positive(t, sum.Bytes)
	assert.Equal(t, sum.Bytes, sum.Info.Size)

	got := readArtifact(t, path)
	assert.Equal(t, Harmonize(a, b, c), got)
	assert.Nil(t, got[2].Metadata, "null metadata stays null")
	assert.Equal(t, records.Metadata{"tissue": "liver"}, got[4].Metadata)
}

func TestWriteIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.parquet")
	a, b, c := fixtures()
	h := New(config.Output{}, nil)

	_, err := h.Write(ctx, path, a, b, c)
	require.NoError(t, err)
	first := readArtifact(t, path)

	_, err = h.Write(ctx, path, a, b, c)
	require.NoError(t, err)
	second := readArtifact(t, path)

	assert.Equal(t, first, second)
	assert.Len(t, second, 5, "rewrite replaces rather than appends")
}

func TestWriteOverwritesWithNewContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.parquet")
	a, b, _ := fixtures()
	h := New(config.Output{}, nil)

	_, err := h.Write(ctx, path, a, b)
	require.NoError(t, err)
	_, err = h.Write(ctx, path, b)
	require.NoError(t, err)
	assert.Equal(t, b.Records, readArtifact(t, path))
}

func TestWriteRejectsInvalidRecords(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rec  records.Record
	}{
		{"raw sample id", records.Record{SampleID: "S1", DataType: records.Genotype, FeatureID: "rs1", Value: "0/1"}},
		{"unknown data type", records.Record{SampleID: anonymize.ID("S1"), DataType: "Methylation", FeatureID: "cg1"}},
		{"empty feature", records.Record{SampleID: anonymize.ID("S1"), DataType: records.Genotype}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "out.parquet")
			_, err := New(config.Output{}, nil).Write(context.Background(), path, records.Table{Records: []records.Record{c.rec}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, records.ErrInvalidRecord))
			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "nothing is written")
		})
	}
}

func TestWriteBadCompression(t *testing.T) {
	t.Parallel()

	a, _, _ := fixtures()
	_, err := New(config.Output{Compression: "lzo"}, nil).Write(context.Background(), filepath.Join(t.TempDir(), "x.parquet"), a)
	assert.Error(t, err)
}
