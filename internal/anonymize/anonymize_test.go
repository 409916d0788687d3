package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDMatchesTruncatedSHA256(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "NA12878", "GTEX-1117F", "sample with spaces", "ß-ü"} {
		sum := sha256.Sum256([]byte(raw))
		want := hex.EncodeToString(sum[:])[:TokenLen]
		assert.Equal(t, want, ID(raw), "raw=%q", raw)
	}
}

func TestIDIsDeterministic(t *testing.T) {
	t.Parallel()

	first := ID("HG00096")
	for i := 0; i < 100; i++ {
		require.Equal(t, first, ID("HG00096"))
	}
}

func TestIDNeverEqualsInput(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "S1", "0123456789abcdef"} {
		tok := ID(raw)
		assert.Len(t, tok, TokenLen)
		assert.NotEqual(t, raw, tok)
		assert.True(t, IsToken(tok))
	}
}

func TestIDDistinctInputs(t *testing.T) {
	t.Parallel()

	seen := make(map[string]string, 1000)
	for i := 0; i < 1000; i++ {
		raw := "sample-" + string(rune('A'+i%26)) + hex.EncodeToString([]byte{byte(i), byte(i >> 8)})
		tok := ID(raw)
		if prev, ok := seen[tok]; ok {
			t.Fatalf("collision between %q and %q", prev, raw)
		}
		seen[tok] = raw
	}
}

func TestIsToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", "e3b0c44298fc1c14", true},
		{"too_short", "e3b0c442", false},
		{"too_long", "e3b0c44298fc1c149", false},
		{"uppercase", "E3B0C44298FC1C14", false},
		{"non_hex", "g3b0c44298fc1c14", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsToken(tc.in))
		})
	}
}
