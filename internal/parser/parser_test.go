package parser

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phoenix/internal/anonymize"
	"phoenix/internal/config"
	"phoenix/internal/records"
)

// lineParser emits one genotype record per non-empty line.
type lineParser struct{ opt config.Options }

func (lineParser) Kind() string { return "lines" }

func (lineParser) Parse(_ context.Context, name string, r io.Reader) (records.Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return records.Table{}, err
	}
	t := records.Table{Source: name}
	for _, l := range strings.Fields(string(b)) {
		t.Records = append(t.Records, records.Record{SampleID: anonymize.ID(l), DataType: records.Genotype, FeatureID: l, Value: "0/0"})
	}
	return t, nil
}

type memSource struct {
	name, body string
	openErr    error
	closed     bool
}

func (m *memSource) Name() string { return m.name }

func (m *memSource) Open(context.Context) (io.ReadCloser, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m, nil
}

func (m *memSource) Read(p []byte) (int, error) {
	n := copy(p, m.body)
	m.body = m.body[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (m *memSource) Close() error { m.closed = true; return nil }

func init() {
	Register("lines", func(opt config.Options, _ *zap.SugaredLogger) (Parser, error) {
		if opt.Bool("fail", false) {
			return nil, errors.New("bad options")
		}
		return lineParser{opt: opt}, nil
	})
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Contains(t, Kinds(), "lines")

	p, err := New("lines", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "lines", p.Kind())
	assert.NotNil(t, p.(lineParser).opt, "nil options are replaced by an empty map")

	_, err = New("lines", config.Options{"fail": true}, nil)
	require.Error(t, err)

	_, err = New("bam", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bam"`)
}

func TestParseSource(t *testing.T) {
	t.Parallel()

	p, err := New("lines", nil, nil)
	require.NoError(t, err)

	src := &memSource{name: "mem.txt", body: "rs1\nrs2\n"}
	tbl, err := ParseSource(context.Background(), p, src, nil)
	require.NoError(t, err)
	assert.Equal(t, "mem.txt", tbl.Source)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "rs2", tbl.Records[1].FeatureID)
	assert.True(t, src.closed)

	_, err = ParseSource(context.Background(), p, &memSource{name: "gone", openErr: errors.New("boom")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open source")
	assert.Contains(t, err.Error(), "boom")
}

func TestParseErrorFormatting(t *testing.T) {
	t.Parallel()

	err := Errorf("calls.vcf", 7, ErrMalformed, "expected %d fields, got %d", 10, 9)
	assert.Equal(t, "calls.vcf:7: expected 10 fields, got 9", err.Error())
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.False(t, errors.Is(err, ErrMissingHeader))

	err = Errorf("calls.vcf", 0, ErrMissingHeader, "no #CHROM header")
	assert.Equal(t, "calls.vcf: no #CHROM header", err.Error())

	// Wrapping keeps both the sentinel and the location reachable.
	wrapped := errors.Wrap(err, "source 0")
	var pe *ParseError
	require.True(t, errors.As(wrapped, &pe))
	assert.Equal(t, "calls.vcf", pe.Source)
	assert.True(t, errors.Is(wrapped, ErrMissingHeader))
}

func TestTracker(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		skip        bool
		sentinel    error
		wantErr     bool
		wantSkipped int
	}{
		{"fail_fast_malformed", false, ErrMalformed, true, 0},
		{"skip_malformed", true, ErrMalformed, false, 1},
		{"skip_never_hides_missing_header", true, ErrMissingHeader, true, 0},
		{"skip_never_hides_missing_column", true, ErrMissingColumn, true, 0},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			var seen []int
			tr := Policy{SkipMalformed: c.skip, OnError: func(line int, _ error) { seen = append(seen, line) }}.Track(nil)
			err := tr.Handle(Errorf("x", 3, c.sentinel, "bad"))
			if c.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, c.sentinel))
				assert.Empty(t, seen)
			} else {
				require.NoError(t, err)
				assert.Equal(t, []int{3}, seen)
			}
			assert.Equal(t, c.wantSkipped, tr.Skipped())
		})
	}
}

func TestPolicyFrom(t *testing.T) {
	t.Parallel()

	assert.False(t, PolicyFrom(config.Options{}).SkipMalformed)
	assert.True(t, PolicyFrom(config.Options{"skip_malformed": true}).SkipMalformed)
	assert.False(t, PolicyFrom(config.Options{"skip_malformed": "yes"}).SkipMalformed)
}
