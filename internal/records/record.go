// Package records defines the harmonized record shared by every parser, the
// harmonizer and the query engine.
//
// A Record is one (sample, measurement) observation. Parsers create records;
// nothing downstream mutates them in place.
package records

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"phoenix/internal/anonymize"
)

// DataType tags the kind of measurement a record carries.
type DataType string

const (
	Genotype          DataType = "Genotype"
	GeneExpression    DataType = "GeneExpression"
	ProteinExpression DataType = "ProteinExpression"
)

// DataTypes lists the known data types in canonical order.
var DataTypes = []DataType{Genotype, GeneExpression, ProteinExpression}

// Valid reports whether d is one of the known data types.
func (d DataType) Valid() bool {
	switch d {
	case Genotype, GeneExpression, ProteinExpression:
		return true
	}
	return false
}

// ParseDataType maps the stored string form back to a DataType.
func ParseDataType(s string) (DataType, error) {
	d := DataType(s)
	if !d.Valid() {
		return "", errors.Wrapf(ErrInvalidRecord, "unknown data_type %q", s)
	}
	return d, nil
}

// Metadata holds source-specific annotations. A nil Metadata is null; it is
// distinct from a filter miss and is never matched by a metadata filter.
type Metadata map[string]string

// Clone returns an independent copy. Clone of nil is nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether m is non-null and contains every key of filters
// with exactly the expected value. An empty filter set matches every row,
// null metadata included.
func (m Metadata) Matches(filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}
	if m == nil {
		return false
	}
	for k, want := range filters {
		got, ok := m[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// String renders m as "k=v;k=v" with sorted keys, or "" for null.
func (m Metadata) String() string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	for i, k := range m.Keys() {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
	}
	return b.String()
}

// Record is one harmonized row.
type Record struct {
	SampleID  string   `json:"sample_id"`
	DataType  DataType `json:"data_type"`
	FeatureID string   `json:"feature_id"`
	Value     string   `json:"value"`
	Metadata  Metadata `json:"metadata"`
}

// ErrInvalidRecord marks records that violate the harmonized schema.
var ErrInvalidRecord = errors.New("invalid record")

// Validate checks the schema invariants that every persisted row must hold.
func (r Record) Validate() error {
	if !anonymize.IsToken(r.SampleID) {
		return errors.Wrapf(ErrInvalidRecord, "sample_id %q is not a pseudonymous token", r.SampleID)
	}
	if !r.DataType.Valid() {
		return errors.Wrapf(ErrInvalidRecord, "unknown data_type %q", r.DataType)
	}
	if r.FeatureID == "" {
		return errors.Wrap(ErrInvalidRecord, "empty feature_id")
	}
	return nil
}

// Table is the output of one parser run over one source, in source order.
type Table struct {
	// Source names where the records came from (usually the input path).
	Source  string
	Records []Record
	// Skipped counts malformed input lines dropped under a lenient policy.
	Skipped int
}

// Len returns the number of records in t.
func (t Table) Len() int { return len(t.Records) }
