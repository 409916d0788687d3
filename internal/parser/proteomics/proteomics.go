// Package proteomics parses PRIDE-style protein quantification tables into
// ProteinExpression records.
package proteomics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
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
const Kind = config.KindProteomics

// Canonical column keys, as produced by header.Key.
const (
	ColSample    = "sample_id"
	ColProtein   = "protein"
	ColIntensity = "intensity"
	ColMetadata  = "metadata"
)

var required = []string{ColSample, ColProtein, ColIntensity}

const checkEveryN = 1024

// Config holds the parser settings decoded from source options.
type Config struct {
	// Comma is the field delimiter. Defaults to ','.
	Comma rune
	// HeaderMap renames source headers to canonical ones, e.g.
	// {"Sample": "Sample_ID", "LFQ intensity": "Intensity"}.
	HeaderMap map[string]string
	Policy    parser.Policy
}

// ConfigFrom reads comma, header_map and skip_malformed from opt.
func ConfigFrom(opt config.Options) Config {
	return Config{
		Comma:     opt.Rune("comma", ','),
		HeaderMap: opt.StringMap("header_map"),
		Policy:    parser.PolicyFrom(opt),
	}
}

// Parser reads proteomics tables.
type Parser struct {
	cfg Config
	log *zap.SugaredLogger
}

var _ parser.Parser = (*Parser)(nil)

func init() {
	parser.Register(Kind, func(opt config.Options, log *zap.SugaredLogger) (parser.Parser, error) {
		return New(ConfigFrom(opt), log), nil
	})
}

// New returns a parser for cfg. A zero Comma means ','.
func New(cfg Config, log *zap.SugaredLogger) *Parser {
	if cfg.Comma == 0 {
		cfg.Comma = ','
	}
	return &Parser{cfg: cfg, log: logging.OrNop(log)}
}

// Kind implements parser.Parser.
func (p *Parser) Kind() string { return Kind }

// Parse reads r to EOF. Required columns are resolved from the header before
// any row is read; extra columns are ignored.
func (p *Parser) Parse(ctx context.Context, name string, r io.Reader) (records.Table, error) {
	tr := p.cfg.Policy.Track(p.log)

	cr := csv.NewReader(r)
	cr.Comma = p.cfg.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	hdr, err := cr.Read()
	if err == io.EOF {
		return records.Table{}, parser.Errorf(name, 0, parser.ErrMissingColumn, "empty table: no header row")
	}
	if err != nil {
		return records.Table{}, errors.Wrapf(err, "%s: read header", name)
	}
	hdr = header.StripBOM(hdr)
	hdrLine, _ := cr.FieldPos(0)

	idx, dups := header.Index(hdr, p.cfg.HeaderMap)
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return records.Table{}, parser.Errorf(name, hdrLine, parser.ErrMissingColumn,
			"required columns not found: %s", strings.Join(missing, ", "))
	}
	for _, d := range dups {
		if d == ColSample || d == ColProtein || d == ColIntensity || d == ColMetadata {
			return records.Table{}, parser.Errorf(name, hdrLine, parser.ErrMalformed, "ambiguous column %q", d)
		}
	}
	iSample, iProtein, iIntensity := idx[ColSample], idx[ColProtein], idx[ColIntensity]
	iMeta, hasMeta := idx[ColMetadata]
	width := len(hdr)

	// Repeated sample ids are common; hash each one once.
	tokens := map[string]string{}
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

		rec, perr := p.record(name, line, row, width, iSample, iProtein, iIntensity, iMeta, hasMeta)
		if perr != nil {
			if herr := tr.Handle(perr); herr != nil {
				return records.Table{}, herr
			}
			continue
		}
		raw := row[iSample]
		tok, ok := tokens[raw]
		if !ok {
			tok = anonymize.ID(raw)
			tokens[raw] = tok
		}
		rec.SampleID = tok
		out.Records = append(out.Records, rec)
	}

	out.Skipped = tr.Skipped()
	return out, nil
}

func (p *Parser) record(name string, line int, row []string, width, iSample, iProtein, iIntensity, iMeta int, hasMeta bool) (records.Record, *parser.ParseError) {
	if len(row) != width {
		return records.Record{}, parser.Errorf(name, line, parser.ErrMalformed,
			"expected %d fields, got %d", width, len(row))
	}
	if strings.TrimSpace(row[iSample]) == "" {
		return records.Record{}, parser.Errorf(name, line, parser.ErrMalformed, "empty sample id")
	}
	if strings.TrimSpace(row[iProtein]) == "" {
		return records.Record{}, parser.Errorf(name, line, parser.ErrMalformed, "empty protein id")
	}
	rec := records.Record{
		DataType:  records.ProteinExpression,
		FeatureID: row[iProtein],
		Value:     row[iIntensity],
	}
	if hasMeta {
		md, err := ParseMetadata(row[iMeta])
		if err != nil {
			return records.Record{}, parser.Errorf(name, line, parser.ErrMalformed, "metadata: %v", err)
		}
		rec.Metadata = md
	}
	return rec, nil
}

// ParseMetadata decodes a metadata cell. Accepted forms:
//
//	""                         null
//	{"tissue":"liver","n":3}   JSON object; scalars are stringified, null members dropped
//	tissue=liver;population=AFR
//
// An object or pair list without any entries is null.
func ParseMetadata(cell string) (records.Metadata, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") {
		return parseJSONObject(s)
	}
	return parsePairs(s)
}

func parseJSONObject(s string) (records.Metadata, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.Wrap(err, "invalid JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	md := make(records.Metadata, len(obj))
	for k, v := range obj {
		switch x := v.(type) {
		case nil:
		case string:
			md[k] = x
		case json.Number:
			md[k] = x.String()
		case bool:
			md[k] = strconv.FormatBool(x)
		default:
			return nil, errors.Newf("key %q: nested values are not supported", k)
		}
	}
	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}

func parsePairs(s string) (records.Metadata, error) {
	md := records.Metadata{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.Newf("expected key=value, got %q", part)
		}
		md[k] = strings.TrimSpace(v)
	}
	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}

