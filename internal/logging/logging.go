// Package logging builds the zap loggers used across the pipeline.
//
// Components take a *zap.SugaredLogger and log with structured key/value
// pairs using the Field* names below. A nil logger is always safe: use OrNop.
package logging

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names so that every stage logs the same keys.
const (
	FieldRunID      = "run_id"
	FieldJob        = "job"
	FieldComponent  = "component"
	FieldSource     = "source"
	FieldKind       = "kind"
	FieldDataType   = "data_type"
	FieldLine       = "line"
	FieldRows       = "rows"
	FieldSkipped    = "skipped"
	FieldLocation   = "location"
	FieldSize       = "size"
	FieldFilters    = "filters"
	FieldEngine     = "engine"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
)

// Config selects the output format and level.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `mapstructure:"level" json:"level"`
	// JSON switches from the console encoder to production JSON output.
	JSON bool `mapstructure:"json" json:"json"`
}

// New builds a sugared logger writing to stderr.
func New(cfg Config) (*zap.SugaredLogger, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var enc zapcore.Encoder
	if cfg.JSON {
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "ts"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core).Sugar(), nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, errors.Wrapf(err, "log level %q", s)
	}
	return lvl, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Component returns a named child logger tagged with the component field.
func Component(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	return OrNop(l).Named(name).With(FieldComponent, name)
}
