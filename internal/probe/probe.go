// Package probe samples the first bytes of an input, guesses which of the
// supported formats it is and trial-parses the sample. The result is a
// starter sources[] entry for a pipeline config plus a few counts that show
// whether the guess is plausible.
//
// Sampling prefers an HTTP Range request for remote inputs but always limits
// reads client-side, so it works when Range is ignored. A truncated sample
// is cut back to its last complete line.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"phoenix/internal/config"
	"phoenix/internal/datasource"
	"phoenix/internal/datasource/file"
	"phoenix/internal/datasource/httpds"
	"phoenix/internal/logging"
	"phoenix/internal/parser"
	_ "phoenix/internal/parser/all"
	"phoenix/internal/parser/header"
	"phoenix/internal/parser/proteomics"
)

// DefaultMaxBytes is the sample size when Options.MaxBytes is not set.
const DefaultMaxBytes = 64 << 10

// ErrUnknownFormat is returned when the sample matches no supported format.
var ErrUnknownFormat = errors.New("unrecognized input format")

// Options controls one probe.
type Options struct {
	// Path is a local path or an http(s) URL.
	Path string
	// MaxBytes bounds the sample taken from the start of the input.
	MaxBytes int
	// Kind skips detection when set.
	Kind string
}

// Result describes a probed input.
type Result struct {
	// Source is a config entry that parses the input as detected.
	Source    config.Source `json:"source"`
	Sampled   int           `json:"sampled_bytes"`
	Truncated bool          `json:"truncated"`
	Rows      int           `json:"rows"`
	Skipped   int           `json:"skipped"`
	Samples   int           `json:"samples"`
	Features  int           `json:"features"`
}

// Probe samples opt.Path and trial-parses the sample leniently.
func Probe(ctx context.Context, opt Options, log *zap.SugaredLogger) (Result, error) {
	log = logging.Component(log, "probe")
	if strings.TrimSpace(opt.Path) == "" {
		return Result{}, errors.New("probe: path is required")
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = DefaultMaxBytes
	}

	sample, truncated, err := Sample(ctx, opt.Path, opt.MaxBytes)
	if err != nil {
		return Result{}, err
	}

	src := config.Source{Kind: opt.Kind, Path: opt.Path, Options: config.Options{}}
	if src.Kind == "" {
		kind, opts, err := Detect(sample)
		if err != nil {
			return Result{}, errors.Wrapf(err, "probe %s", opt.Path)
		}
		src.Kind, src.Options = kind, opts
	}

	trial := config.Options{"skip_malformed": true}
	for k, v := range src.Options {
		trial[k] = v
	}
	p, err := parser.New(src.Kind, trial, log)
	if err != nil {
		return Result{}, err
	}
	t, err := p.Parse(ctx, opt.Path, bytes.NewReader(sample))
	if err != nil {
		return Result{}, errors.Wrapf(err, "probe %s as %s", opt.Path, src.Kind)
	}

	res := Result{
		Source:    src,
		Sampled:   len(sample),
		Truncated: truncated,
		Rows:      t.Len(),
		Skipped:   t.Skipped,
	}
	samples := map[string]struct{}{}
	features := map[string]struct{}{}
	for _, r := range t.Records {
		samples[r.SampleID] = struct{}{}
		features[r.FeatureID] = struct{}{}
	}
	res.Samples, res.Features = len(samples), len(features)

	log.Infow("probed source",
		logging.FieldSource, opt.Path,
		logging.FieldKind, src.Kind,
		logging.FieldRows, res.Rows,
		logging.FieldSkipped, res.Skipped,
	)
	return res, nil
}

// Sample returns up to n decompressed bytes from the start of path. When
// the input is longer than n, the sample ends at the last complete line and
// truncated is true.
func Sample(ctx context.Context, path string, n int) (sample []byte, truncated bool, err error) {
	var ds datasource.Source
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		cfg := httpds.Config{}
		// Range counts compressed bytes; gzip inputs are limited client-side only.
		if !strings.HasSuffix(strings.ToLower(path), ".gz") {
			cfg.Headers = http.Header{"Range": {fmt.Sprintf("bytes=0-%d", n-1)}}
		}
		ds = httpds.New(path, cfg)
	} else {
		ds = file.NewLocal(path)
	}

	rc, err := ds.Open(ctx)
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	// Read one byte past n to learn whether the input continues.
	buf, err := io.ReadAll(io.LimitReader(rc, int64(n)+1))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, false, errors.Wrapf(err, "sample %s", path)
	}
	if len(buf) <= n {
		return buf, false, nil
	}
	buf = buf[:n]
	if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
		buf = buf[:i+1]
	}
	return buf, true, nil
}

// Detect guesses the source kind and parser options from the first lines of
// sample.
func Detect(sample []byte) (kind string, opts config.Options, err error) {
	first := strings.TrimPrefix(firstLine(sample), "\uFEFF")
	opts = config.Options{}
	switch {
	case strings.HasPrefix(first, "##fileformat=VCF"), strings.HasPrefix(first, "#CHROM"):
		return config.KindVCF, opts, nil
	case strings.HasPrefix(first, "#1.2"):
		opts["format"] = "gct"
		return config.KindExpression, opts, nil
	}

	sep := ","
	if strings.Contains(first, "\t") {
		sep = "\t"
	}
	cols := header.StripBOM(strings.Split(first, sep))
	if len(cols) < 2 {
		return "", nil, ErrUnknownFormat
	}

	idx, _ := header.Index(cols, nil)
	_, hasSample := idx[proteomics.ColSample]
	_, hasProtein := idx[proteomics.ColProtein]
	_, hasIntensity := idx[proteomics.ColIntensity]
	if hasSample && hasProtein && hasIntensity {
		if sep == "\t" {
			opts["comma"] = `\t`
		}
		return config.KindProteomics, opts, nil
	}

	if sep == "," {
		opts["comma"] = ","
	}
	return config.KindExpression, opts, nil
}

func firstLine(sample []byte) string {
	for _, l := range strings.Split(string(sample), "\n") {
		if l = strings.TrimRight(l, "\r"); strings.TrimSpace(l) != "" {
			return l
		}
	}
	return ""
}
