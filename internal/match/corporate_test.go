package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

func target(t *testing.T, freeText string) model.NormalizedAddress {
	t.Helper()
	return address.Normalize(address.Parse(freeText))
}

func TestBest_ExactCanonicalKey(t *testing.T) {
	tgt := target(t, "Flat 2, 9 Waterfront Mews, London, E1 4GJ")

	records := []model.CorporateOwnerRecord{
		{
			OwnerName:    "DOCKSIDE HOLDINGS LTD",
			TitleNumber:  "TGL90210",
			AddressLine1: "Flat 2",
			AddressLine2: "9 Waterfront Mews",
			Town:         "London",
			Postcode:     "E1 4GJ",
		},
	}

	res := Best(tgt, records)
	require.NotNil(t, res)
	assert.True(t, res.ExactKey)
	assert.Equal(t, "canonical key equal", res.Reason)
	assert.Equal(t, "TGL90210", res.Record.TitleNumber)
}

func TestBest_SAONDisagreementRejects(t *testing.T) {
	tgt := target(t, "Flat 2, 9 Waterfront Mews, London, E1 4GJ")

	records := []model.CorporateOwnerRecord{
		{
			OwnerName:    "OTHER FLAT LTD",
			AddressLine1: "Flat 3",
			AddressLine2: "9 Waterfront Mews",
			Town:         "London",
			Postcode:     "E1 4GJ",
		},
	}

	assert.Nil(t, Best(tgt, records))
}

func TestBest_VariantSupersetMatch(t *testing.T) {
	// The dataset row appends a building name to the street line; its
	// tokens still cover a target variant.
	tgt := target(t, "9 Waterfront Mews, London, E1 4GJ")

	records := []model.CorporateOwnerRecord{
		{
			OwnerName:    "DOCKSIDE HOLDINGS LTD",
			AddressLine1: "9 Waterfront Mews Harbour House",
			Town:         "London",
			Postcode:     "E1 4GJ",
		},
	}

	res := Best(tgt, records)
	require.NotNil(t, res)
	assert.False(t, res.ExactKey)
	assert.Contains(t, res.Reason, "variant superset match")
}

func TestBest_PAONDisagreementRejects(t *testing.T) {
	tgt := target(t, "9 Waterfront Mews, London, E1 4GJ")

	records := []model.CorporateOwnerRecord{
		{
			OwnerName:    "NEXT DOOR LTD",
			AddressLine1: "11 Waterfront Mews",
			Town:         "London",
			Postcode:     "E1 4GJ",
		},
	}

	assert.Nil(t, Best(tgt, records))
}

func TestBest_RanksExactSAONFirst(t *testing.T) {
	tgt := target(t, "Flat 2, 9 Waterfront Mews, London, E1 4GJ")

	records := []model.CorporateOwnerRecord{
		{
			// Whole-building row, no SAON of its own.
			OwnerName:    "BLOCK FREEHOLD LTD",
			AddressLine1: "9 Waterfront Mews",
			Town:         "London",
			Postcode:     "E1 4GJ",
		},
		{
			OwnerName:    "FLAT TWO LTD",
			AddressLine1: "Flat 2",
			AddressLine2: "9 Waterfront Mews East",
			Town:         "London",
			Postcode:     "E1 4GJ",
		},
	}

	res := Best(tgt, records)
	require.NotNil(t, res)
	assert.Equal(t, "FLAT TWO LTD", res.Record.OwnerName)
}

func TestBest_FewerExtraTokensWins(t *testing.T) {
	tgt := target(t, "9 Waterfront Mews, London, E1 4GJ")

	records := []model.CorporateOwnerRecord{
		{
			OwnerName:    "VERBOSE LTD",
			AddressLine1: "9 Waterfront Mews Harbour House East Wing",
			Town:         "London",
			Postcode:     "E1 4GJ",
		},
		{
			OwnerName:    "TIDY LTD",
			AddressLine1: "9 Waterfront Mews",
			Town:         "London",
			Postcode:     "E1 4GJ",
		},
	}

	res := Best(tgt, records)
	require.NotNil(t, res)
	assert.Equal(t, "TIDY LTD", res.Record.OwnerName)
}

func TestBest_NoRecords(t *testing.T) {
	tgt := target(t, "9 Waterfront Mews, London, E1 4GJ")
	assert.Nil(t, Best(tgt, nil))
}

func TestBest_UnrelatedAddress(t *testing.T) {
	tgt := target(t, "9 Waterfront Mews, London, E1 4GJ")

	records := []model.CorporateOwnerRecord{
		{
			OwnerName:    "ELSEWHERE LTD",
			AddressLine1: "4 Quay Street",
			Town:         "Manchester",
			Postcode:     "E1 4GJ",
		},
	}

	assert.Nil(t, Best(tgt, records))
}
