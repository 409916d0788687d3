package proteomics

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoenix/internal/anonymize"
	"phoenix/internal/config"
	"phoenix/internal/parser"
	"phoenix/internal/records"
)

func parse(t *testing.T, cfg Config, in string) (records.Table, error) {
	t.Helper()
	return New(cfg, nil).Parse(context.Background(), "prot.csv", strings.NewReader(in))
}

func TestParseBasic(t *testing.T) {
	t.Parallel()

	in := "Sample_ID,Protein,Intensity,Metadata,Run\n" +
		`P1,ALB,12345.6,"{""tissue"":""liver"",""population"":""AFR""}",r1` + "\n" +
		"P2,APOA1,98,tissue=liver;population=EUR,r1\n" +
		"P1,TTR,7,,r2\n"

	tbl, err := parse(t, Config{}, in)
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())

	assert.Equal(t, records.Record{
		SampleID:  anonymize.ID("P1"),
		DataType:  records.ProteinExpression,
		FeatureID: "ALB",
		Value:     "12345.6",
		Metadata:  records.Metadata{"tissue": "liver", "population": "AFR"},
	}, tbl.Records[0])
	assert.Equal(t, records.Metadata{"tissue": "liver", "population": "EUR"}, tbl.Records[1].Metadata)
	assert.Nil(t, tbl.Records[2].Metadata)
	assert.Equal(t, tbl.Records[0].SampleID, tbl.Records[2].SampleID)
	for _, r := range tbl.Records {
		assert.NoError(t, r.Validate())
	}
}

func TestParseWithoutMetadataColumn(t *testing.T) {
	t.Parallel()

	tbl, err := parse(t, Config{}, "Sample_ID,Protein,Intensity\nP1,ALB,1\n")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.Nil(t, tbl.Records[0].Metadata)
}

func TestParseHeaderVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
		in   string
	}{
		{"case and spacing", Config{}, "sample id,PROTEIN,intensity\nP1,ALB,1\n"},
		{"bom", Config{}, "\uFEFFSample_ID,Protein,Intensity\nP1,ALB,1\n"},
		{"column order", Config{}, "Intensity,Protein,Sample_ID\n1,ALB,P1\n"},
		{"header map", Config{HeaderMap: map[string]string{"Sample": "Sample_ID", "LFQ Intensity": "Intensity"}},
			"Sample,Protein,LFQ Intensity\nP1,ALB,1\n"},
		{"tab delimited", Config{Comma: '\t'}, "Sample_ID\tProtein\tIntensity\nP1\tALB\t1\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			tbl, err := parse(t, c.cfg, c.in)
			require.NoError(t, err)
			require.Equal(t, 1, tbl.Len())
			assert.Equal(t, anonymize.ID("P1"), tbl.Records[0].SampleID)
			assert.Equal(t, "ALB", tbl.Records[0].FeatureID)
			assert.Equal(t, "1", tbl.Records[0].Value)
		})
	}
}

func TestParseMissingColumnFailsBeforeRows(t *testing.T) {
	t.Parallel()

	// Even with a lenient policy no row is emitted.
	tbl, err := parse(t, Config{Policy: parser.Policy{SkipMalformed: true}}, "Sample_ID,Protein\nP1,ALB\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrMissingColumn))
	assert.Contains(t, err.Error(), "intensity")
	assert.Zero(t, tbl.Len())
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	hdr := "Sample_ID,Protein,Intensity,Metadata\n"
	cases := []struct {
		name     string
		in       string
		sentinel error
	}{
		{"empty input", "", parser.ErrMissingColumn},
		{"ambiguous sample column", "Sample_ID,Sample ID,Protein,Intensity\nP1,P2,ALB,1\n", parser.ErrMalformed},
		{"short row", hdr + "P1,ALB,1\n", parser.ErrMalformed},
		{"empty protein", hdr + "P1,,1,\n", parser.ErrMalformed},
		{"empty sample", hdr + " ,ALB,1,\n", parser.ErrMalformed},
		{"bad metadata", hdr + "P1,ALB,1,liver\n", parser.ErrMalformed},
		{"nested metadata", hdr + `P1,ALB,1,"{""a"":{""b"":1}}"` + "\n", parser.ErrMalformed},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			_, err := parse(t, Config{}, c.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, c.sentinel), "want %v, got %v", c.sentinel, err)
		})
	}
}

func TestParseSkipMalformed(t *testing.T) {
	t.Parallel()

	in := "Sample_ID,Protein,Intensity,Metadata\n" +
		"P1,ALB,1,tissue=liver\n" +
		"P1,ALB\n" +
		"P2,TTR,2,not-a-pair\n" +
		"P3,APOA1,3,\n"

	var lines []int
	tbl, err := parse(t, Config{Policy: parser.Policy{
		SkipMalformed: true,
		OnError:       func(line int, _ error) { lines = append(lines, line) },
	}}, in)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Skipped)
	assert.Equal(t, []int{3, 4}, lines)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "APOA1", tbl.Records[1].FeatureID)
}

func TestParseMetadata(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    records.Metadata
		wantErr bool
	}{
		{"", nil, false},
		{"   ", nil, false},
		{"{}", nil, false},
		{`{"tissue":"liver"}`, records.Metadata{"tissue": "liver"}, false},
		{`{"age":42,"ratio":0.5,"ok":true,"gone":null}`, records.Metadata{"age": "42", "ratio": "0.5", "ok": "true"}, false},
		{"tissue=liver; population = AFR ;", records.Metadata{"tissue": "liver", "population": "AFR"}, false},
		{"flag=", records.Metadata{"flag": ""}, false},
		{";;", nil, false},
		{"=x", nil, true},
		{"tissue", nil, true},
		{`{"a":[1]}`, nil, true},
		{`{"a":"b"} trailing`, nil, true},
		{`{"a":`, nil, true},
	}
	for _, c := range cases {
		got, err := ParseMetadata(c.in)
		if c.wantErr {
			assert.Error(t, err, "ParseMetadata(%q)", c.in)
			continue
		}
		require.NoError(t, err, "ParseMetadata(%q)", c.in)
		assert.Equal(t, c.want, got, "ParseMetadata(%q)", c.in)
	}
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()

	cfg := ConfigFrom(config.Options{
		"comma":      `\t`,
		"header_map": map[string]any{"Sample": "Sample_ID"},
	})
	assert.Equal(t, '\t', cfg.Comma)
	assert.Equal(t, map[string]string{"Sample": "Sample_ID"}, cfg.HeaderMap)

	p, err := parser.New(Kind, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.KindProteomics, p.Kind())
}
