// Package vcf parses variant-call text (VCF) into Genotype records.
//
// Layout handled:
//
//	##fileformat=VCFv4.2                          meta line, skipped
//	#CHROM POS ID REF ALT QUAL FILTER INFO FORMAT S1 S2 ...
//	1      100 rs1 A  G   .    PASS   .    GT:DP  0/1:30 1/1:25
//
// One record is emitted per (sample, variant). Only the first sub-field of
// each genotype entry (the call) is kept.
package vcf

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"phoenix/internal/anonymize"
	"phoenix/internal/config"
	"phoenix/internal/logging"
	"phoenix/internal/parser"
	"phoenix/internal/records"
)

// Kind is the registry name of this parser.
const Kind = config.KindVCF

// Fixed column positions of the VCF body.
const (
	colChrom = iota
	colPos
	colID
	colRef
	colAlt
	colQual
	colFilter
	colInfo
	colFormat
	firstSampleCol
)

// Metadata keys attached to every genotype record.
const (
	MetaPos = "pos"
	MetaRef = "ref"
	MetaAlt = "alt"
)

const (
	headerPrefix = "#CHROM"
	metaPrefix   = "##"
	missingID    = "."

	// Lines between cooperative cancellation checks and progress logs.
	checkEveryN = 4096
	logEveryN   = 100_000
)

// Parser reads VCF text. It is safe for concurrent use: all per-parse state
// lives on the stack of Parse.
type Parser struct {
	policy parser.Policy
	log    *zap.SugaredLogger
}

var _ parser.Parser = (*Parser)(nil)

func init() {
	parser.Register(Kind, func(opt config.Options, log *zap.SugaredLogger) (parser.Parser, error) {
		return New(parser.PolicyFrom(opt), log), nil
	})
}

// New returns a VCF parser applying policy to malformed lines.
func New(policy parser.Policy, log *zap.SugaredLogger) *Parser {
	return &Parser{policy: policy, log: logging.OrNop(log)}
}

// Kind implements parser.Parser.
func (p *Parser) Kind() string { return Kind }

// Parse reads r to EOF.
//
// The #CHROM header must precede every data line. Each data line must have
// exactly as many tab-separated fields as the header, and every genotype
// entry must carry a non-empty call; violations are ErrMalformed and either
// fail the parse or are skipped according to the policy.
func (p *Parser) Parse(ctx context.Context, name string, r io.Reader) (records.Table, error) {
	tr := p.policy.Track(p.log)
	br := bufio.NewReaderSize(r, 1<<20)

	var (
		samples []string // anonymized, header order
		width   int      // header column count; 0 until the header is seen
		out     = records.Table{Source: name}
		lineNo  int
	)

	for {
		raw, rerr := br.ReadString('\n')
		if rerr != nil && rerr != io.EOF {
			return records.Table{}, errors.Wrapf(rerr, "%s: read line %d", name, lineNo+1)
		}
		if raw == "" && rerr == io.EOF {
			break
		}
		lineNo++
		if lineNo%checkEveryN == 0 {
			if err := ctx.Err(); err != nil {
				return records.Table{}, err
			}
		}
		if lineNo%logEveryN == 0 {
			p.log.Debugw("reader progress", logging.FieldLine, lineNo, logging.FieldRows, len(out.Records))
		}

		// Surrounding whitespace is not part of any column.
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case strings.HasPrefix(line, metaPrefix):
		case strings.HasPrefix(line, headerPrefix):
			if width > 0 {
				if err := tr.Handle(parser.Errorf(name, lineNo, parser.ErrMalformed, "duplicate %s header", headerPrefix)); err != nil {
					return records.Table{}, err
				}
				break
			}
			cols := strings.Split(line, "\t")
			if len(cols) < colFormat {
				return records.Table{}, parser.Errorf(name, lineNo, parser.ErrMissingHeader,
					"header has %d columns, want at least %d", len(cols), colFormat)
			}
			if len(cols) > firstSampleCol {
				samples = make([]string, 0, len(cols)-firstSampleCol)
				for _, s := range cols[firstSampleCol:] {
					samples = append(samples, anonymize.ID(s))
				}
			}
			width = len(cols)
		case width == 0:
			return records.Table{}, parser.Errorf(name, lineNo, parser.ErrMissingHeader,
				"data line before %s header", headerPrefix)
		default:
			recs, perr := parseDataLine(name, lineNo, line, width, samples)
			if perr != nil {
				if err := tr.Handle(perr); err != nil {
					return records.Table{}, err
				}
				break
			}
			out.Records = append(out.Records, recs...)
		}

		if rerr == io.EOF {
			break
		}
	}

	if width == 0 {
		return records.Table{}, parser.Errorf(name, 0, parser.ErrMissingHeader, "no %s header line", headerPrefix)
	}
	out.Skipped = tr.Skipped()
	return out, nil
}

// parseDataLine turns one body line into one record per sample. The line is
// rejected as a whole: a malformed line never contributes partial records.
func parseDataLine(name string, lineNo int, line string, width int, samples []string) ([]records.Record, *parser.ParseError) {
	fields := strings.Split(line, "\t")
	if len(fields) != width {
		return nil, parser.Errorf(name, lineNo, parser.ErrMalformed,
			"expected %d fields, got %d", width, len(fields))
	}

	feature := fields[colID]
	if feature == missingID {
		feature = fields[colChrom]
	}
	if feature == "" {
		return nil, parser.Errorf(name, lineNo, parser.ErrMalformed, "empty variant id and chromosome")
	}

	recs := make([]records.Record, 0, len(samples))
	for i, sample := range samples {
		entry := fields[firstSampleCol+i]
		call := entry
		if j := strings.IndexByte(entry, ':'); j >= 0 {
			call = entry[:j]
		}
		if call == "" {
			return nil, parser.Errorf(name, lineNo, parser.ErrMalformed,
				"sample column %d has an empty genotype call", firstSampleCol+i+1)
		}
		recs = append(recs, records.Record{
			SampleID:  sample,
			DataType:  records.Genotype,
			FeatureID: feature,
			Value:     call,
			Metadata: records.Metadata{
				MetaPos: fields[colPos],
				MetaRef: fields[colRef],
				MetaAlt: fields[colAlt],
			},
		})
	}
	return recs, nil
}
