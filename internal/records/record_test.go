package records

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoenix/internal/anonymize"
)

func TestMetadataMatches(t *testing.T) {
	t.Parallel()

	liverAFR := Metadata{"tissue": "liver", "population": "AFR"}
	lung := Metadata{"tissue": "lung"}

	cases := []struct {
		name    string
		meta    Metadata
		filters map[string]string
		want    bool
	}{
		{"all_keys_match", liverAFR, map[string]string{"tissue": "liver", "population": "AFR"}, true},
		{"subset_match", liverAFR, map[string]string{"tissue": "liver"}, true},
		{"value_mismatch", liverAFR, map[string]string{"tissue": "liver", "population": "EUR"}, false},
		{"missing_key", lung, map[string]string{"tissue": "lung", "population": "AFR"}, false},
		{"null_metadata", nil, map[string]string{"tissue": "liver"}, false},
		{"empty_filters_null", nil, nil, true},
		{"empty_filters_set", lung, map[string]string{}, true},
		{"case_sensitive", lung, map[string]string{"tissue": "Lung"}, false},
		{"empty_value_matches_empty", Metadata{"k": ""}, map[string]string{"k": ""}, true},
		{"empty_value_requires_key", Metadata{}, map[string]string{"k": ""}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.meta.Matches(tc.filters))
		})
	}
}

func TestMetadataClone(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Metadata(nil).Clone())

	orig := Metadata{"pos": "100"}
	cp := orig.Clone()
	cp["pos"] = "200"
	assert.Equal(t, "100", orig["pos"])
}

func TestMetadataString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Metadata(nil).String())
	assert.Equal(t, "alt=G;pos=100;ref=A", Metadata{"ref": "A", "alt": "G", "pos": "100"}.String())
}

func TestRecordValidate(t *testing.T) {
	t.Parallel()

	good := Record{
		SampleID:  anonymize.ID("S1"),
		DataType:  GeneExpression,
		FeatureID: "ENSG00000141510",
		Value:     "",
	}
	require.NoError(t, good.Validate())

	raw := good
	raw.SampleID = "S1"
	assert.True(t, errors.Is(raw.Validate(), ErrInvalidRecord))

	badType := good
	badType.DataType = "Methylation"
	assert.True(t, errors.Is(badType.Validate(), ErrInvalidRecord))

	noFeature := good
	noFeature.FeatureID = ""
	assert.True(t, errors.Is(noFeature.Validate(), ErrInvalidRecord))
}

func TestParseDataType(t *testing.T) {
	t.Parallel()

	for _, d := range DataTypes {
		got, err := ParseDataType(string(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDataType("genotype")
	assert.True(t, errors.Is(err, ErrInvalidRecord))
}
