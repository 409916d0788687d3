// Package header normalizes column headers of delimited sources so that
// required columns are found regardless of case, accents, separators or a
// leading byte-order mark.
package header

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// StripBOM removes a UTF-8 BOM from the first header cell if present.
func StripBOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}
	return headers
}

// Key converts header text into a lowercase ASCII identifier:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC) and format characters (BOM, ZWSP)
//  3. keep [a-z0-9_]; convert space/dash/dot/slash to underscore; drop others
//
// "Sample ID", "sample-id" and "Sample_ID" all map to "sample_id".
func Key(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.In(unicode.Cf)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.' || r == '/':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// Index maps normalized header keys to their column position. aliases maps
// source header text to a canonical name (both sides are normalized with
// Key, so alias keys are case-insensitive). When two columns normalize to
// the same key the first one wins and the key is reported in dups.
func Index(headers []string, aliases map[string]string) (idx map[string]int, dups []string) {
	al := make(map[string]string, len(aliases))
	for from, to := range aliases {
		al[Key(from)] = Key(to)
	}

	idx = make(map[string]int, len(headers))
	for i, h := range headers {
		k := Key(h)
		if mapped, ok := al[k]; ok {
			k = mapped
		}
		if k == "" {
			continue
		}
		if _, seen := idx[k]; seen {
			dups = append(dups, k)
			continue
		}
		idx[k] = i
	}
	return idx, dups
}
