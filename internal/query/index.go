package query

import (
	"context"
	"sort"

	"github.com/zeebo/xxh3"

	"phoenix/internal/bitmap"
	"phoenix/internal/records"
)

// Index maps each metadata (key, value) pair to the rows carrying it.
//
// Pairs are keyed by their xxh3 hash, so two pairs may share a posting list.
// Lookup verifies every candidate with the exact predicate; a collision only
// costs a wasted check.
type Index struct {
	rows     []records.Record
	postings map[uint64]*posting
}

// posting is a row-id set that starts as a sorted slice and switches to a
// bitmap once the slice would be larger than the bitmap.
type posting struct {
	ids []int
	bm  *bitmap.Bitmap
}

func (p *posting) add(id, n int) {
	if p.bm != nil {
		p.bm.Add(id)
		return
	}
	// Two pairs of one row can hash to the same posting.
	if m := len(p.ids); m > 0 && p.ids[m-1] == id {
		return
	}
	p.ids = append(p.ids, id)
	if len(p.ids) > (n+63)/64 {
		p.bm = bitmap.New(n)
		for _, x := range p.ids {
			p.bm.Add(x)
		}
		p.ids = nil
	}
}

func (p *posting) count() int {
	if p.bm != nil {
		return p.bm.Count()
	}
	return len(p.ids)
}

func (p *posting) has(id int) bool {
	if p.bm != nil {
		return p.bm.Has(id)
	}
	i := sort.SearchInts(p.ids, id)
	return i < len(p.ids) && p.ids[i] == id
}

func pairKey(k, v string) uint64 {
	h := xxh3.New()
	_, _ = h.WriteString(k)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(v)
	return h.Sum64()
}

// NewIndex indexes rows. The index keeps a reference to rows; callers must
// not modify them afterwards.
func NewIndex(rows []records.Record) *Index {
	idx := &Index{rows: rows, postings: map[uint64]*posting{}}
	n := len(rows)
	for i, r := range rows {
		for k, v := range r.Metadata {
			key := pairKey(k, v)
			p, ok := idx.postings[key]
			if !ok {
				p = &posting{}
				idx.postings[key] = p
			}
			p.add(i, n)
		}
	}
	return idx
}

// Len returns the number of indexed rows.
func (idx *Index) Len() int { return len(idx.rows) }

// Lookup returns the rows matching filters in row order.
func (idx *Index) Lookup(filters map[string]string) []records.Record {
	if len(filters) == 0 {
		return append(make([]records.Record, 0, len(idx.rows)), idx.rows...)
	}

	ps := make([]*posting, 0, len(filters))
	for k, v := range filters {
		p, ok := idx.postings[pairKey(k, v)]
		if !ok {
			return []records.Record{}
		}
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].count() < ps[j].count() })

	out := make([]records.Record, 0)
	for _, id := range candidates(ps) {
		if r := idx.rows[id]; r.Metadata.Matches(filters) {
			out = append(out, r)
		}
	}
	return out
}

// candidates intersects postings sorted by ascending count. When the smallest
// is already a bitmap every posting is one, and the words are ANDed directly.
func candidates(ps []*posting) []int {
	if ps[0].bm != nil {
		acc := ps[0].bm.Clone()
		for _, p := range ps[1:] {
			acc.And(p.bm)
		}
		return acc.IDs()
	}
	out := make([]int, 0, len(ps[0].ids))
next:
	for _, id := range ps[0].ids {
		for _, p := range ps[1:] {
			if !p.has(id) {
				continue next
			}
		}
		out = append(out, id)
	}
	return out
}

// Indexed builds an Index over the rows and answers the query from it.
type Indexed struct{}

// Name implements Engine.
func (Indexed) Name() string { return EngineIndex }

// Filter implements Engine.
func (Indexed) Filter(ctx context.Context, rows []records.Record, filters map[string]string) ([]records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewIndex(rows).Lookup(filters), nil
}
