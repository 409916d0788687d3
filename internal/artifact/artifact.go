// Package artifact encodes harmonized records as a Parquet file and decodes
// them back.
//
// Schema:
//
//	sample_id   BYTE_ARRAY (STRING)
//	data_type   BYTE_ARRAY (STRING), dictionary encoded
//	feature_id  BYTE_ARRAY (STRING)
//	value       BYTE_ARRAY (STRING)
//	metadata    optional MAP<STRING, STRING>
package artifact

import (
	"bytes"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"phoenix/internal/records"
)

// SchemaVersion is stored in the file key/value metadata.
const (
	SchemaVersion    = "1"
	schemaVersionKey = "phoenix.schema_version"
)

// Compression names accepted by ParseCompression.
const (
	CompressionSnappy = "snappy"
	CompressionZstd   = "zstd"
	CompressionGzip   = "gzip"
	CompressionNone   = "none"
)

type row struct {
	SampleID  string            `parquet:"sample_id"`
	DataType  string            `parquet:"data_type,dict"`
	FeatureID string            `parquet:"feature_id"`
	Value     string            `parquet:"value"`
	Metadata  map[string]string `parquet:"metadata,optional"`
}

// ParseCompression maps a config name to a codec. The empty name is snappy.
func ParseCompression(name string) (compress.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CompressionSnappy:
		return &parquet.Snappy, nil
	case CompressionZstd:
		return &parquet.Zstd, nil
	case CompressionGzip:
		return &parquet.Gzip, nil
	case CompressionNone:
		return &parquet.Uncompressed, nil
	}
	return nil, errors.Newf("unknown compression %q", name)
}

// Encode returns recs as a complete Parquet file.
func Encode(recs []records.Record, compression string) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, recs, compression); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes recs to w as a Parquet file. Row order is preserved.
func EncodeTo(w io.Writer, recs []records.Record, compression string) error {
	codec, err := ParseCompression(compression)
	if err != nil {
		return err
	}
	pw := parquet.NewGenericWriter[row](w,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(schemaVersionKey, SchemaVersion),
	)

	const batch = 4096
	rows := make([]row, 0, min(batch, len(recs)))
	for i, r := range recs {
		rows = append(rows, row{
			SampleID:  r.SampleID,
			DataType:  string(r.DataType),
			FeatureID: r.FeatureID,
			Value:     r.Value,
			Metadata:  r.Metadata,
		})
		if len(rows) == batch || i == len(recs)-1 {
			if _, err := pw.Write(rows); err != nil {
				return errors.Wrap(err, "write parquet rows")
			}
			rows = rows[:0]
		}
	}
	if err := pw.Close(); err != nil {
		return errors.Wrap(err, "close parquet writer")
	}
	return nil
}

// Decode parses a Parquet file produced by Encode.
func Decode(data []byte) ([]records.Record, error) {
	return DecodeFrom(bytes.NewReader(data), int64(len(data)))
}

// DecodeFrom reads every row of the Parquet file in r. Rows are returned in
// file order. An empty metadata map is returned as null.
func DecodeFrom(r io.ReaderAt, size int64) ([]records.Record, error) {
	rows, err := parquet.Read[row](r, size)
	if err != nil {
		return nil, errors.Wrap(err, "read parquet")
	}
	out := make([]records.Record, len(rows))
	for i, rw := range rows {
		dt, err := records.ParseDataType(rw.DataType)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		var md records.Metadata
		if len(rw.Metadata) > 0 {
			md = records.Metadata(rw.Metadata)
		}
		out[i] = records.Record{
			SampleID:  rw.SampleID,
			DataType:  dt,
			FeatureID: rw.FeatureID,
			Value:     rw.Value,
			Metadata:  md,
		}
	}
	return out, nil
}
