// Package harmonize merges parser output into one record set and writes it
// as the Parquet artifact.
package harmonize

import (
	"bytes"
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"phoenix/internal/artifact"
	"phoenix/internal/config"
	"phoenix/internal/logging"
	"phoenix/internal/records"
	"phoenix/internal/store"
	_ "phoenix/internal/store/all"
)

// Harmonize concatenates tables in argument order, keeping each table's
// record order. The result shares no metadata maps with the input.
func Harmonize(tables ...records.Table) []records.Record {
	n := 0
	for _, t := range tables {
		n += t.Len()
	}
	out := make([]records.Record, 0, n)
	for _, t := range tables {
		for _, r := range t.Records {
			r.Metadata = r.Metadata.Clone()
			out = append(out, r)
		}
	}
	return out
}

// Summary describes one written artifact.
type Summary struct {
	Location    string                   `json:"location"`
	Rows        int                      `json:"rows"`
	PerSource   map[string]int           `json:"per_source"`
	PerDataType map[records.DataType]int `json:"per_data_type"`
	Bytes       int64                    `json:"bytes"`
	Info        store.Info               `json:"info"`
}

// Harmonizer writes artifacts through a store.
type Harmonizer struct {
	compression string
	s3          config.S3Config
	log         *zap.SugaredLogger
}

// New returns a harmonizer writing with the given output settings.
func New(out config.Output, log *zap.SugaredLogger) *Harmonizer {
	return &Harmonizer{
		compression: out.Compression,
		s3:          out.S3,
		log:         logging.Component(log, "harmonize"),
	}
}

// Write harmonizes tables, validates every record and overwrites the
// artifact at location. Nothing is written when a record is invalid.
func (h *Harmonizer) Write(ctx context.Context, location string, tables ...records.Table) (Summary, error) {
	start := time.Now()
	recs := Harmonize(tables...)

	sum := Summary{
		Location:    location,
		Rows:        len(recs),
		PerSource:   make(map[string]int, len(tables)),
		PerDataType: make(map[records.DataType]int, len(records.DataTypes)),
	}
	for _, t := range tables {
		sum.PerSource[t.Source] += t.Len()
	}
	for i, r := range recs {
		if err := r.Validate(); err != nil {
			return Summary{}, errors.Wrapf(err, "record %d", i)
		}
		sum.PerDataType[r.DataType]++
	}

	data, err := artifact.Encode(recs, h.compression)
	if err != nil {
		return Summary{}, errors.Wrap(err, "encode artifact")
	}
	sum.Bytes = int64(len(data))

	s, key, err := store.Open(ctx, location, h.s3)
	if err != nil {
		return Summary{}, err
	}
	info, err := s.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		return Summary{}, errors.Wrapf(err, "write artifact %s", location)
	}
	sum.Info = info

	h.log.Infow("artifact written",
		logging.FieldLocation, location,
		logging.FieldRows, sum.Rows,
		logging.FieldSize, humanize.Bytes(uint64(sum.Bytes)),
		logging.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	for _, dt := range records.DataTypes {
		if n := sum.PerDataType[dt]; n > 0 {
			h.log.Debugw("rows by data type", logging.FieldDataType, dt, logging.FieldRows, humanize.Comma(int64(n)))
		}
	}
	return sum, nil
}
