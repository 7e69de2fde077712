package rubric

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Weights holds the per-signal weights. All weights are >= 0; a signal's
// direction comes from its value, never its weight.
type Weights struct {
	DirectorAnchor    float64 `yaml:"director_anchor" mapstructure:"director_anchor"`
	PSCAnchor         float64 `yaml:"psc_anchor" mapstructure:"psc_anchor"`
	OfficerAnchor     float64 `yaml:"officer_anchor" mapstructure:"officer_anchor"`
	OpenRegister      float64 `yaml:"open_register" mapstructure:"open_register"`
	Corroboration     float64 `yaml:"corroboration" mapstructure:"corroboration"`
	ConfirmedName     float64 `yaml:"confirmed_name" mapstructure:"confirmed_name"`
	Tenure            float64 `yaml:"tenure" mapstructure:"tenure"`
	SaleAlignment     float64 `yaml:"sale_alignment" mapstructure:"sale_alignment"`
	Recency           float64 `yaml:"recency" mapstructure:"recency"`
	LegacyOwner       float64 `yaml:"legacy_owner" mapstructure:"legacy_owner"`
	AgePlausibility   float64 `yaml:"age_plausibility" mapstructure:"age_plausibility"`
	HouseholdConflict float64 `yaml:"household_conflict" mapstructure:"household_conflict"`
}

// Breakpoints holds the tunable year/age boundaries. These are operating
// parameters, not derived constants; defaults reflect current production
// tuning.
type Breakpoints struct {
	LongTenureYears     int `yaml:"long_tenure_years" mapstructure:"long_tenure_years"`
	ShortTenureYears    int `yaml:"short_tenure_years" mapstructure:"short_tenure_years"`
	SaleGraceYears      int `yaml:"sale_grace_years" mapstructure:"sale_grace_years"`
	SaleEarlyYears      int `yaml:"sale_early_years" mapstructure:"sale_early_years"`
	RecencyHorizonYears int `yaml:"recency_horizon_years" mapstructure:"recency_horizon_years"`
	StaleYears          int `yaml:"stale_years" mapstructure:"stale_years"`
	AgeIdealMin         int `yaml:"age_ideal_min" mapstructure:"age_ideal_min"`
	AgeIdealMax         int `yaml:"age_ideal_max" mapstructure:"age_ideal_max"`
	AgeYoungMax         int `yaml:"age_young_max" mapstructure:"age_young_max"`
	ConflictSurnames    int `yaml:"conflict_surnames" mapstructure:"conflict_surnames"`
}

// Config is the full rubric tuning.
type Config struct {
	Weights     Weights     `yaml:"weights" mapstructure:"weights"`
	Breakpoints Breakpoints `yaml:"breakpoints" mapstructure:"breakpoints"`
}

// DefaultConfig returns the production rubric tuning.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			DirectorAnchor:    2.5,
			PSCAnchor:         2.5,
			OfficerAnchor:     2.0,
			OpenRegister:      1.5,
			Corroboration:     1.0,
			ConfirmedName:     1.0,
			Tenure:            1.0,
			SaleAlignment:     2.0,
			Recency:           1.0,
			LegacyOwner:       1.0,
			AgePlausibility:   0.5,
			HouseholdConflict: 1.0,
		},
		Breakpoints: Breakpoints{
			LongTenureYears:     7,
			ShortTenureYears:    1,
			SaleGraceYears:      2,
			SaleEarlyYears:      2,
			RecencyHorizonYears: 10,
			StaleYears:          5,
			AgeIdealMin:         35,
			AgeIdealMax:         65,
			AgeYoungMax:         30,
			ConflictSurnames:    3,
		},
	}
}

// LoadFile overlays tuning from a YAML file onto the defaults. A missing
// path returns the defaults unchanged.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, eris.Wrapf(err, "rubric: read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, eris.Wrapf(err, "rubric: parse config %s", path)
	}
	return cfg, nil
}
