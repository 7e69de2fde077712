package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		lines    []string
		town     string
		postcode string
	}{
		{
			name:     "full address with postcode",
			input:    "Flat 2, 9 Waterfront Mews, London, E1 4GJ",
			lines:    []string{"Flat 2", "9 Waterfront Mews"},
			town:     "London",
			postcode: "E14GJ",
		},
		{
			name:     "two segments keep no town",
			input:    "9 Waterfront Mews, E1 4GJ",
			lines:    []string{"9 Waterfront Mews"},
			postcode: "E14GJ",
		},
		{
			name:  "no postcode",
			input: "9 Waterfront Mews, Shadwell, London",
			lines: []string{"9 Waterfront Mews", "Shadwell"},
			town:  "London",
		},
		{
			name:     "lowercase postcode",
			input:    "12 Dock Road, e14 9ge",
			lines:    []string{"12 Dock Road"},
			postcode: "E149GE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Parse(tt.input)
			assert.Equal(t, tt.lines, f.Lines)
			assert.Equal(t, tt.town, f.Town)
			assert.Equal(t, tt.postcode, f.Postcode)
		})
	}
}

func TestNormalize_CanonicalKeyStable(t *testing.T) {
	a := Normalize(Parse("Flat 2, 9 Waterfront Mews, London, E1 4GJ"))
	b := Normalize(Parse("FLAT 2 , 9 Waterfront Mews, London, e1 4gj"))

	require.NotEmpty(t, a.CanonicalKey)
	assert.Equal(t, a.CanonicalKey, b.CanonicalKey)

	c := Normalize(Parse("Flat 3, 9 Waterfront Mews, London, E1 4GJ"))
	assert.NotEqual(t, a.CanonicalKey, c.CanonicalKey)
}

func TestNormalize_Fields(t *testing.T) {
	a := Normalize(Parse("Flat 2, 9 Waterfront Mews, London, E1 4GJ"))

	assert.Equal(t, "2", a.SAON)
	assert.Equal(t, "9", a.PAON)
	assert.Equal(t, "waterfront mews", a.Street)
	assert.Equal(t, "london", a.Town)
	assert.Equal(t, "E14GJ", a.Postcode)
	assert.False(t, a.LowConfidence)
}

func TestNormalize_UnitField(t *testing.T) {
	fromLines := Normalize(Fragments{
		Lines:    []string{"Flat 2", "9 Waterfront Mews"},
		Postcode: "E1 4GJ",
	})
	fromUnit := Normalize(Fragments{
		Lines:    []string{"9 Waterfront Mews"},
		Unit:     "Flat 2",
		Postcode: "E1 4GJ",
	})
	assert.Equal(t, fromLines.CanonicalKey, fromUnit.CanonicalKey)

	bare := Normalize(Fragments{
		Lines:    []string{"9 Waterfront Mews"},
		Unit:     "2b",
		Postcode: "E1 4GJ",
	})
	assert.Equal(t, "2b", bare.SAON)
}

func TestNormalize_SAONLabels(t *testing.T) {
	a := Normalize(Parse("Apartment 3b, 12 Dock Road, London, E14 9GE"))
	assert.Equal(t, "3b", a.SAON)
	assert.Equal(t, "12", a.PAON)

	b := Normalize(Parse("Unit 7, 4 Quay Street, Manchester, M3 3JZ"))
	assert.Equal(t, "7", b.SAON)
}

func TestNormalize_NoPostcodeIsLowConfidence(t *testing.T) {
	a := Normalize(Parse("9 Waterfront Mews, London"))
	assert.True(t, a.LowConfidence)
	assert.Empty(t, a.Postcode)
	assert.NotEmpty(t, a.CanonicalKey)
}

func TestNormalize_Diacritics(t *testing.T) {
	a := Normalize(Fragments{Lines: []string{"5 Café Street"}, Postcode: "N1 7AA"})
	assert.Equal(t, "cafe street", a.Street)
}

func TestNormalize_Variants(t *testing.T) {
	a := Normalize(Parse("Flat 2, 9 Waterfront Mews, London, E1 4GJ"))

	assert.Contains(t, a.Variants, "9 waterfront mews")
	assert.Contains(t, a.Variants, "2 9 waterfront mews")
	assert.Contains(t, a.Variants, "flat 2 9 waterfront mews")
	assert.Contains(t, a.Variants, "9 waterfront mews london")

	// Variants are deduplicated.
	seen := make(map[string]bool)
	for _, v := range a.Variants {
		assert.False(t, seen[v], "duplicate variant %q", v)
		seen[v] = true
	}
}

func TestNormalize_BuildingVariants(t *testing.T) {
	a := Normalize(Fragments{
		Lines:    []string{"Flat 2", "9 Waterfront Mews"},
		Building: "Harbour House",
		Postcode: "E1 4GJ",
	})
	assert.Contains(t, a.Variants, "harbour house 9 waterfront mews")
	assert.Contains(t, a.Variants, "2 harbour house 9 waterfront mews")
}

func TestFoldJoin(t *testing.T) {
	assert.Equal(t, "o brien sean", FoldJoin("O'BRIEN, Seán"))
	assert.Equal(t, "smith jane", FoldJoin("SMITH, Jane"))
	assert.Empty(t, FoldJoin(""))
}

func TestNormalizePostcode(t *testing.T) {
	assert.Equal(t, "E14GJ", NormalizePostcode("E1 4GJ"))
	assert.Equal(t, "E14GJ", NormalizePostcode("e1 4gj"))
	assert.Equal(t, "SW1A1AA", NormalizePostcode(" SW1A 1AA "))
	assert.Empty(t, NormalizePostcode(""))
	assert.Empty(t, NormalizePostcode(" - "))
}
