package parser

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"phoenix/internal/config"
	"phoenix/internal/logging"
)

// Sentinel errors. Use errors.Is to classify a parse failure.
var (
	// ErrMalformed marks a line that violates its format's structure
	// (wrong field count, empty genotype call, unparseable metadata).
	ErrMalformed = errors.New("malformed input")

	// ErrMissingHeader marks data seen before the header line, or a source
	// without any header.
	ErrMissingHeader = errors.New("missing header")

	// ErrMissingColumn marks a header that lacks a required column.
	ErrMissingColumn = errors.New("missing required column")
)

// ParseError locates a failure in a source. Line is 1-based; 0 means the
// failure is not tied to a single line.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Errorf builds a ParseError whose cause is marked with sentinel.
func Errorf(source string, line int, sentinel error, format string, args ...any) *ParseError {
	return &ParseError{
		Source: source,
		Line:   line,
		Err:    errors.Mark(errors.Newf(format, args...), sentinel),
	}
}

// Policy decides what happens to a malformed line. The zero value fails fast.
type Policy struct {
	// SkipMalformed drops malformed lines instead of failing the parse.
	SkipMalformed bool

	// OnError, when set, observes every dropped line.
	OnError func(line int, err error)
}

// PolicyFrom reads skip_malformed from opt.
func PolicyFrom(opt config.Options) Policy {
	return Policy{SkipMalformed: opt.Bool("skip_malformed", false)}
}

// Tracker applies a Policy during one parse and counts dropped lines.
type Tracker struct {
	policy  Policy
	log     *zap.SugaredLogger
	skipped int
}

// Track starts a fresh tracker for one parse.
func (p Policy) Track(log *zap.SugaredLogger) *Tracker {
	return &Tracker{policy: p, log: logging.OrNop(log)}
}

// Handle returns err when the policy is fail-fast. Otherwise the line is
// counted, reported and nil is returned so parsing continues. Missing
// headers and columns are never skippable.
func (t *Tracker) Handle(err *ParseError) error {
	if !t.policy.SkipMalformed || !errors.Is(err, ErrMalformed) {
		return err
	}
	t.skipped++
	t.log.Warnw("skipping malformed line",
		logging.FieldSource, err.Source,
		logging.FieldLine, err.Line,
		logging.FieldError, err.Err.Error(),
	)
	if t.policy.OnError != nil {
		t.policy.OnError(err.Line, err)
	}
	return nil
}

// Skipped returns how many lines were dropped.
func (t *Tracker) Skipped() int { return t.skipped }
