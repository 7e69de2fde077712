package rubric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

func intPtr(v int) *int { return &v }

func testContext() Context {
	return Context{
		ConfirmedKeys: map[string]bool{},
		CurrentYear:   2026,
	}
}

func signal(t *testing.T, score model.OccupantScore, id string) *model.RubricSignal {
	t.Helper()
	for i := range score.Signals {
		if score.Signals[i].ID == id {
			return &score.Signals[i]
		}
	}
	return nil
}

func TestNewContext(t *testing.T) {
	pool := []model.OccupantCandidate{
		{FullName: "Jane Smith"},
		{FullName: "John Smith"},
		{FullName: "Tom Jones"},
	}
	ctx := NewContext(pool, []string{"Mrs Jane Smith"}, intPtr(2018))

	assert.True(t, ctx.ConfirmedKeys["jane smith"])
	assert.Equal(t, 2, ctx.DistinctSurnames)
	assert.Equal(t, 2018, *ctx.LatestSaleYear)
	assert.Equal(t, time.Now().UTC().Year(), ctx.CurrentYear)
}

func TestScore_RegistryAnchorWeights(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()

	director := model.OccupantCandidate{
		NameKey:  "jane smith",
		FullName: "Jane Smith",
		Tags:     []string{model.TagPersonalAddressMatch},
		Sources:  []string{model.SourceOfficer},
		CompanyRelations: []model.CompanyRelation{
			{Role: "secretary", CompanyNumber: "1"},
			{Role: "director", CompanyNumber: "2"},
		},
	}

	scores := Score([]model.OccupantCandidate{director}, ctx, cfg)
	require.Len(t, scores, 1)

	sig := signal(t, scores[0], "registry_anchor")
	require.NotNil(t, sig)
	assert.Equal(t, cfg.Weights.DirectorAnchor, sig.Weight)
	assert.Contains(t, sig.Reason, "director")
}

func TestScore_NoAnchorWithoutTag(t *testing.T) {
	cfg := DefaultConfig()
	officer := model.OccupantCandidate{
		NameKey:          "jane smith",
		FullName:         "Jane Smith",
		Sources:          []string{model.SourceOfficer},
		CompanyRelations: []model.CompanyRelation{{Role: "director"}},
	}

	scores := Score([]model.OccupantCandidate{officer}, testContext(), cfg)
	assert.Nil(t, signal(t, scores[0], "registry_anchor"))
	assert.Nil(t, signal(t, scores[0], "corroboration"))
}

func TestScore_Corroboration(t *testing.T) {
	cfg := DefaultConfig()
	c := model.OccupantCandidate{
		NameKey:          "jane smith",
		FullName:         "Jane Smith",
		Tags:             []string{model.TagPersonalAddressMatch},
		Sources:          []string{model.SourceOfficer, model.SourceOpenRegister},
		CompanyRelations: []model.CompanyRelation{{Role: "director"}},
	}

	scores := Score([]model.OccupantCandidate{c}, testContext(), cfg)
	require.NotNil(t, signal(t, scores[0], "corroboration"))
	require.NotNil(t, signal(t, scores[0], "open_register"))
}

func TestScore_ConfirmedName(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()
	ctx.ConfirmedKeys["jane smith"] = true

	c := model.OccupantCandidate{NameKey: "jane smith", FullName: "Jane Smith"}
	scores := Score([]model.OccupantCandidate{c}, ctx, cfg)

	sig := signal(t, scores[0], "confirmed_name")
	require.NotNil(t, sig)
	assert.Equal(t, cfg.Weights.ConfirmedName, sig.Contribution)
}

func TestScore_TenureBands(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()

	tests := []struct {
		name  string
		first int
		last  int
		value float64
	}{
		{"short tenure", 2023, 2024, -1},
		{"long tenure", 2010, 2024, 1},
		{"mid tenure", 2020, 2024, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := model.OccupantCandidate{
				NameKey:       "x",
				FirstSeenYear: intPtr(tt.first),
				LastSeenYear:  intPtr(tt.last),
			}
			scores := Score([]model.OccupantCandidate{c}, ctx, cfg)
			sig := signal(t, scores[0], "tenure")
			require.NotNil(t, sig)
			assert.InDelta(t, tt.value, sig.Value, 1e-9)
		})
	}
}

func TestScore_SaleAlignment(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()
	ctx.LatestSaleYear = intPtr(2018)

	t.Run("arrived at sale", func(t *testing.T) {
		c := model.OccupantCandidate{NameKey: "x", FirstSeenYear: intPtr(2019)}
		sig := signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "sale_alignment")
		require.NotNil(t, sig)
		assert.Equal(t, 1.0, sig.Value)
	})

	t.Run("arrived long before and gone", func(t *testing.T) {
		c := model.OccupantCandidate{
			NameKey:       "x",
			FirstSeenYear: intPtr(2010),
			LastSeenYear:  intPtr(2017),
		}
		sig := signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "sale_alignment")
		require.NotNil(t, sig)
		assert.Equal(t, -1.0, sig.Value)
	})

	t.Run("arrived before but still present", func(t *testing.T) {
		c := model.OccupantCandidate{
			NameKey:       "x",
			FirstSeenYear: intPtr(2010),
			LastSeenYear:  intPtr(2024),
		}
		sig := signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "sale_alignment")
		require.NotNil(t, sig)
		assert.Equal(t, -0.5, sig.Value)
	})

	t.Run("just before sale is neutral", func(t *testing.T) {
		c := model.OccupantCandidate{NameKey: "x", FirstSeenYear: intPtr(2017)}
		assert.Nil(t, signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "sale_alignment"))
	})
}

func TestScore_Recency(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()

	c := model.OccupantCandidate{NameKey: "x", LastSeenYear: intPtr(2021)}
	sig := signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "recency")
	require.NotNil(t, sig)
	assert.InDelta(t, 0.5, sig.Value, 1e-9)

	old := model.OccupantCandidate{NameKey: "y", LastSeenYear: intPtr(2000)}
	sig = signal(t, Score([]model.OccupantCandidate{old}, ctx, cfg)[0], "recency")
	require.NotNil(t, sig)
	assert.Zero(t, sig.Value)
}

func TestScore_LegacyOwner(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()

	anchored := model.OccupantCandidate{
		NameKey:          "x",
		Tags:             []string{model.TagPersonalAddressMatch},
		CompanyRelations: []model.CompanyRelation{{Role: "director"}},
	}

	t.Run("no register trail", func(t *testing.T) {
		require.NotNil(t, signal(t, Score([]model.OccupantCandidate{anchored}, ctx, cfg)[0], "legacy_owner"))
	})

	t.Run("stale trail", func(t *testing.T) {
		c := anchored
		c.LastSeenYear = intPtr(2019)
		require.NotNil(t, signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "legacy_owner"))
	})

	t.Run("fresh trail suppresses", func(t *testing.T) {
		c := anchored
		c.LastSeenYear = intPtr(2025)
		assert.Nil(t, signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "legacy_owner"))
	})
}

func TestScore_AgePlausibility(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()

	t.Run("ideal age from birth year", func(t *testing.T) {
		c := model.OccupantCandidate{NameKey: "x", FirstSeenYear: intPtr(2020), BirthYear: intPtr(1975)}
		sig := signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "age_plausibility")
		require.NotNil(t, sig)
		assert.Equal(t, 0.5, sig.Value)
	})

	t.Run("young from age estimate", func(t *testing.T) {
		// Estimated 30 now, first seen 6 years ago, so 24 at first seen.
		c := model.OccupantCandidate{NameKey: "x", FirstSeenYear: intPtr(2020), AgeEstimate: intPtr(30)}
		sig := signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "age_plausibility")
		require.NotNil(t, sig)
		assert.Equal(t, -0.5, sig.Value)
	})

	t.Run("no age evidence", func(t *testing.T) {
		c := model.OccupantCandidate{NameKey: "x", FirstSeenYear: intPtr(2020)}
		assert.Nil(t, signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "age_plausibility"))
	})
}

func TestScore_HouseholdConflict(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()
	ctx.DistinctSurnames = 4

	t.Run("single source penalized", func(t *testing.T) {
		c := model.OccupantCandidate{NameKey: "x", Sources: []string{model.SourcePSC}}
		sig := signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "household_conflict")
		require.NotNil(t, sig)
		assert.Equal(t, -1.0, sig.Value)
	})

	t.Run("open register suppresses", func(t *testing.T) {
		c := model.OccupantCandidate{NameKey: "x", Sources: []string{model.SourceOpenRegister}}
		assert.Nil(t, signal(t, Score([]model.OccupantCandidate{c}, ctx, cfg)[0], "household_conflict"))
	})

	t.Run("quiet household", func(t *testing.T) {
		quiet := testContext()
		quiet.DistinctSurnames = 2
		c := model.OccupantCandidate{NameKey: "x", Sources: []string{model.SourcePSC}}
		assert.Nil(t, signal(t, Score([]model.OccupantCandidate{c}, quiet, cfg)[0], "household_conflict"))
	})
}

func TestScore_Ranks(t *testing.T) {
	cfg := DefaultConfig()
	ctx := testContext()
	ctx.ConfirmedKeys["strong one"] = true

	pool := []model.OccupantCandidate{
		{NameKey: "weak one", FullName: "Weak One"},
		{NameKey: "strong one", FullName: "Strong One"},
		{NameKey: "weak two", FullName: "Weak Two"},
	}

	scores := Score(pool, ctx, cfg)
	require.Len(t, scores, 3)

	// Input order is preserved; ranks are dense with ties shared.
	assert.Equal(t, "weak one", scores[0].NameKey)
	assert.Equal(t, 2, scores[0].Rank)
	assert.Equal(t, 1, scores[1].Rank)
	assert.Equal(t, 2, scores[2].Rank)
	assert.Greater(t, scores[1].Total, scores[0].Total)
}

func TestScore_TotalSumsContributions(t *testing.T) {
	cfg := DefaultConfig()
	c := model.OccupantCandidate{
		NameKey:       "jane smith",
		FullName:      "Jane Smith",
		Sources:       []string{model.SourceOpenRegister},
		FirstSeenYear: intPtr(2012),
		LastSeenYear:  intPtr(2024),
	}

	scores := Score([]model.OccupantCandidate{c}, testContext(), cfg)
	var sum float64
	for _, sig := range scores[0].Signals {
		sum += sig.Contribution
	}
	assert.InDelta(t, sum, scores[0].Total, 1e-9)
}
