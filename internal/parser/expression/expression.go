// Package expression parses wide gene-expression matrices (genes × samples)
// into long GeneExpression records.
//
// Two layouts are accepted:
//
//	tsv:  gene  S1  S2 ...         first header cell names the index column
//	gct:  #1.2                     version line
//	      <rows> <cols>            dimension line
//	      Name  Description  S1 ...
//
// Every (gene, sample) cell becomes one record. Rows are emitted gene-major:
// file order for genes, header order for samples within a gene.
package expression

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"phoenix/internal/anonymize"
	"phoenix/internal/config"
	"phoenix/internal/logging"
	"phoenix/internal/parser"
	"phoenix/internal/parser/header"
	"phoenix/internal/records"
)

// Kind is the registry name of this parser.
const Kind = config.KindExpression

// Supported matrix layouts.
const (
	FormatTSV = "tsv"
	FormatGCT = "gct"
)

const (
	gctPreambleLines = 2
	checkEveryN      = 1024
)

// Config holds the parser settings decoded from source options.
type Config struct {
	// Comma is the field delimiter. Defaults to tab.
	Comma rune
	// Format is FormatTSV (default) or FormatGCT.
	Format string
	Policy parser.Policy
}

// ConfigFrom reads comma, format and skip_malformed from opt.
func ConfigFrom(opt config.Options) (Config, error) {
	cfg := Config{
		Comma:  opt.Rune("comma", '\t'),
		Format: strings.ToLower(opt.String("format", FormatTSV)),
		Policy: parser.PolicyFrom(opt),
	}
	switch cfg.Format {
	case FormatTSV, FormatGCT:
	default:
		return Config{}, errors.Newf("expression: unknown format %q", cfg.Format)
	}
	return cfg, nil
}

// Parser reads expression matrices.
type Parser struct {
	cfg Config
	log *zap.SugaredLogger
}

var _ parser.Parser = (*Parser)(nil)

func init() {
	parser.Register(Kind, func(opt config.Options, log *zap.SugaredLogger) (parser.Parser, error) {
		cfg, err := ConfigFrom(opt)
		if err != nil {
			return nil, err
		}
		return New(cfg, log), nil
	})
}

// New returns a parser for cfg. A zero Comma means tab.
func New(cfg Config, log *zap.SugaredLogger) *Parser {
	if cfg.Comma == 0 {
		cfg.Comma = '\t'
	}
	if cfg.Format == "" {
		cfg.Format = FormatTSV
	}
	return &Parser{cfg: cfg, log: logging.OrNop(log)}
}

// Kind implements parser.Parser.
func (p *Parser) Kind() string { return Kind }

// Parse reads r to EOF. Metadata is always nil and cell text is kept
// verbatim, empty cells included.
func (p *Parser) Parse(ctx context.Context, name string, r io.Reader) (records.Table, error) {
	tr := p.cfg.Policy.Track(p.log)

	cr := csv.NewReader(r)
	cr.Comma = p.cfg.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	firstSample := 1
	if p.cfg.Format == FormatGCT {
		firstSample = 2 // Name, Description
		for i := 0; i < gctPreambleLines; i++ {
			if _, err := cr.Read(); err != nil {
				if err == io.EOF {
					return records.Table{}, parser.Errorf(name, i+1, parser.ErrMissingHeader, "truncated gct preamble")
				}
				return records.Table{}, errors.Wrapf(err, "%s: read gct preamble", name)
			}
		}
	}

	hdr, err := cr.Read()
	if err == io.EOF {
		return records.Table{}, parser.Errorf(name, 0, parser.ErrMissingColumn, "empty matrix: no header row")
	}
	if err != nil {
		return records.Table{}, errors.Wrapf(err, "%s: read header", name)
	}
	hdr = header.StripBOM(hdr)
	hdrLine, _ := cr.FieldPos(0)
	if len(hdr) <= firstSample {
		return records.Table{}, parser.Errorf(name, hdrLine, parser.ErrMissingColumn, "header has no sample columns")
	}

	samples, err := sampleColumns(name, hdrLine, hdr[firstSample:])
	if err != nil {
		return records.Table{}, err
	}
	width := len(hdr)
	// A TSV whose first row is one field wider than the header has no label
	// over the gene column, as R's write.table emits it.
	layoutKnown := p.cfg.Format == FormatGCT

	out := records.Table{Source: name}
	for rows := 0; ; rows++ {
		if rows%checkEveryN == 0 {
			if err := ctx.Err(); err != nil {
				return records.Table{}, err
			}
		}
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var ce *csv.ParseError
			if !errors.As(err, &ce) {
				return records.Table{}, errors.Wrapf(err, "%s: read row", name)
			}
			if herr := tr.Handle(parser.Errorf(name, ce.Line, parser.ErrMalformed, "%v", ce.Err)); herr != nil {
				return records.Table{}, herr
			}
			continue
		}
		line, _ := cr.FieldPos(0)

		if !layoutKnown {
			layoutKnown = true
			if len(row) == width+1 {
				if samples, err = sampleColumns(name, hdrLine, hdr); err != nil {
					return records.Table{}, err
				}
				width++
				p.log.Debugw("header has no gene column label", logging.FieldSource, name)
			}
		}
		if len(row) != width {
			if herr := tr.Handle(parser.Errorf(name, line, parser.ErrMalformed,
				"expected %d fields, got %d", width, len(row))); herr != nil {
				return records.Table{}, herr
			}
			continue
		}
		gene := row[0]
		if strings.TrimSpace(gene) == "" {
			if herr := tr.Handle(parser.Errorf(name, line, parser.ErrMalformed, "empty gene id")); herr != nil {
				return records.Table{}, herr
			}
			continue
		}
		for i, sample := range samples {
			out.Records = append(out.Records, records.Record{
				SampleID:  sample,
				DataType:  records.GeneExpression,
				FeatureID: gene,
				Value:     row[firstSample+i],
			})
		}
	}

	out.Skipped = tr.Skipped()
	return out, nil
}

func sampleColumns(name string, line int, cols []string) ([]string, error) {
	out := make([]string, 0, len(cols))
	seen := make(map[string]struct{}, len(cols))
	for _, s := range cols {
		if _, dup := seen[s]; dup {
			return nil, parser.Errorf(name, line, parser.ErrMalformed, "duplicate sample column %q", s)
		}
		seen[s] = struct{}{}
		out = append(out, anonymize.ID(s))
	}
	return out, nil
}
