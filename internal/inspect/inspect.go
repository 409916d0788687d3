// Package inspect inventories a harmonized artifact. It counts rows per data
// type, distinct samples and features, and for every metadata key how many
// rows carry it together with its most frequent values. The report is a
// starting point for choosing query filters.
package inspect

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"

	"phoenix/internal/records"
)

// DefaultTopValues is how many values per key a report keeps.
const DefaultTopValues = 5

// ValueCount is one metadata value and how many rows carry it.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// KeyAgg aggregates one metadata key across all rows.
type KeyAgg struct {
	RecordsWith int          `json:"records_with"`
	Distinct    int          `json:"distinct"`
	TopValues   []ValueCount `json:"top_values,omitempty"`
}

// Report is the inventory of one artifact.
type Report struct {
	TotalRows       int                      `json:"total_rows"`
	Samples         int                      `json:"samples"`
	Features        int                      `json:"features"`
	PerDataType     map[records.DataType]int `json:"per_data_type"`
	WithoutMetadata int                      `json:"without_metadata"`
	Keys            map[string]KeyAgg        `json:"keys"`
}

// Summarize builds a report over rows. topN bounds TopValues per key; values
// are ordered by count, then lexically. topN <= 0 uses DefaultTopValues.
func Summarize(rows []records.Record, topN int) Report {
	if topN <= 0 {
		topN = DefaultTopValues
	}
	rep := Report{
		TotalRows:   len(rows),
		PerDataType: map[records.DataType]int{},
		Keys:        map[string]KeyAgg{},
	}

	samples := map[string]struct{}{}
	features := map[string]struct{}{}
	values := map[string]map[string]int{} // key -> value -> count

	for _, r := range rows {
		rep.PerDataType[r.DataType]++
		samples[r.SampleID] = struct{}{}
		features[string(r.DataType)+"\x00"+r.FeatureID] = struct{}{}
		if len(r.Metadata) == 0 {
			rep.WithoutMetadata++
			continue
		}
		for k, v := range r.Metadata {
			vm := values[k]
			if vm == nil {
				vm = map[string]int{}
				values[k] = vm
			}
			vm[v]++
		}
	}
	rep.Samples = len(samples)
	rep.Features = len(features)

	for k, vm := range values {
		agg := KeyAgg{Distinct: len(vm)}
		top := make([]ValueCount, 0, len(vm))
		for v, c := range vm {
			agg.RecordsWith += c
			top = append(top, ValueCount{Value: v, Count: c})
		}
		sort.Slice(top, func(i, j int) bool {
			if top[i].Count != top[j].Count {
				return top[i].Count > top[j].Count
			}
			return top[i].Value < top[j].Value
		})
		if len(top) > topN {
			top = top[:topN]
		}
		agg.TopValues = top
		rep.Keys[k] = agg
	}
	return rep
}

// SortedKeys returns the metadata keys of rep in lexical order.
func (rep Report) SortedKeys() []string {
	out := make([]string, 0, len(rep.Keys))
	for k := range rep.Keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WriteText renders rep for a terminal.
func (rep Report) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("rows      %s\n", humanize.Comma(int64(rep.TotalRows)))
	ew.printf("samples   %s\n", humanize.Comma(int64(rep.Samples)))
	ew.printf("features  %s\n", humanize.Comma(int64(rep.Features)))
	for _, dt := range records.DataTypes {
		if n := rep.PerDataType[dt]; n > 0 {
			ew.printf("  %-20s %s\n", dt, humanize.Comma(int64(n)))
		}
	}
	ew.printf("without metadata  %s\n", humanize.Comma(int64(rep.WithoutMetadata)))
	for _, k := range rep.SortedKeys() {
		agg := rep.Keys[k]
		ew.printf("key %s: %s rows, %d distinct\n", k, humanize.Comma(int64(agg.RecordsWith)), agg.Distinct)
		for _, vc := range agg.TopValues {
			ew.printf("    %s=%s  %s\n", k, vc.Value, humanize.Comma(int64(vc.Count)))
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
