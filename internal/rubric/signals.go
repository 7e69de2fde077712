package rubric

import (
	"fmt"
	"strings"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// Emitter produces one signal for a candidate, or nil when the signal does
// not apply. Emitters are pure and must not inspect other candidates.
type Emitter func(c model.OccupantCandidate, ctx Context, cfg Config) *model.RubricSignal

// emitters is the flat signal list folded by Score. Order is irrelevant.
var emitters = []Emitter{
	registryAnchor,
	openRegisterPresence,
	corroboration,
	confirmedName,
	tenureLength,
	saleAlignment,
	lastSeenRecency,
	legacyOwner,
	agePlausibility,
	householdConflict,
}

// registryAnchor rewards an officer/director/PSC whose personal filed
// address equals the target. A company's registered office address never
// sets the anchor tag, so it can never fire this signal.
func registryAnchor(c model.OccupantCandidate, _ Context, cfg Config) *model.RubricSignal {
	if !c.RegistryAnchored() {
		return nil
	}

	weight := 0.0
	role := ""
	for _, rel := range c.CompanyRelations {
		w := cfg.Weights.OfficerAnchor
		switch strings.ToLower(rel.Role) {
		case "director":
			w = cfg.Weights.DirectorAnchor
		case "psc":
			w = cfg.Weights.PSCAnchor
		}
		if w > weight {
			weight = w
			role = rel.Role
		}
	}

	return &model.RubricSignal{
		ID:     "registry_anchor",
		Label:  "Registry anchor",
		Weight: weight,
		Value:  1,
		Reason: fmt.Sprintf("%s personal address filed at target", role),
	}
}

func openRegisterPresence(c model.OccupantCandidate, _ Context, cfg Config) *model.RubricSignal {
	if !c.HasSource(model.SourceOpenRegister) {
		return nil
	}
	return &model.RubricSignal{
		ID:     "open_register",
		Label:  "Open register presence",
		Weight: cfg.Weights.OpenRegister,
		Value:  1,
		Reason: "listed on the open register at target",
	}
}

// corroboration is the bonus for open-register presence backed by
// registry-anchor evidence.
func corroboration(c model.OccupantCandidate, _ Context, cfg Config) *model.RubricSignal {
	if !c.HasSource(model.SourceOpenRegister) || !c.RegistryAnchored() {
		return nil
	}
	return &model.RubricSignal{
		ID:     "corroboration",
		Label:  "Register corroborated by registry anchor",
		Weight: cfg.Weights.Corroboration,
		Value:  1,
		Reason: "open register and registry filings agree",
	}
}

func confirmedName(c model.OccupantCandidate, ctx Context, cfg Config) *model.RubricSignal {
	if !ctx.ConfirmedKeys[c.NameKey] && !c.HasTag(model.TagConfirmedName) {
		return nil
	}
	return &model.RubricSignal{
		ID:     "confirmed_name",
		Label:  "Confirmed-name match",
		Weight: cfg.Weights.ConfirmedName,
		Value:  1,
		Reason: "name appears in the confirmed-match set",
	}
}

// tenureLength scores years observed at the address: long tenure positive,
// a year or less negative, in between scaled linearly.
func tenureLength(c model.OccupantCandidate, _ Context, cfg Config) *model.RubricSignal {
	if c.FirstSeenYear == nil || c.LastSeenYear == nil {
		return nil
	}
	years := *c.LastSeenYear - *c.FirstSeenYear
	bp := cfg.Breakpoints

	var value float64
	switch {
	case years <= bp.ShortTenureYears:
		value = -1
	case years >= bp.LongTenureYears:
		value = 1
	default:
		value = float64(years-bp.ShortTenureYears) / float64(bp.LongTenureYears-bp.ShortTenureYears)
	}

	return &model.RubricSignal{
		ID:     "tenure",
		Label:  "Tenure length",
		Weight: cfg.Weights.Tenure,
		Value:  value,
		Reason: fmt.Sprintf("%d year tenure", years),
	}
}

// saleAlignment compares first-seen with the latest known sale year.
// Arriving at or soon after the sale is strongly positive; arriving
// materially before it is negative, with the penalty halved when the person
// is still present after the sale date.
func saleAlignment(c model.OccupantCandidate, ctx Context, cfg Config) *model.RubricSignal {
	if ctx.LatestSaleYear == nil || c.FirstSeenYear == nil {
		return nil
	}
	sale := *ctx.LatestSaleYear
	first := *c.FirstSeenYear
	bp := cfg.Breakpoints

	switch {
	case first >= sale && first <= sale+bp.SaleGraceYears:
		return &model.RubricSignal{
			ID:     "sale_alignment",
			Label:  "Sale-year alignment",
			Weight: cfg.Weights.SaleAlignment,
			Value:  1,
			Reason: fmt.Sprintf("first seen %d, sale %d", first, sale),
		}
	case sale-first >= bp.SaleEarlyYears:
		value := -1.0
		reason := fmt.Sprintf("first seen %d, %d years before the %d sale", first, sale-first, sale)
		if c.LastSeenYear != nil && *c.LastSeenYear > sale {
			value = -0.5
			reason += "; still present after sale"
		}
		return &model.RubricSignal{
			ID:     "sale_alignment",
			Label:  "Sale-year alignment",
			Weight: cfg.Weights.SaleAlignment,
			Value:  value,
			Reason: reason,
		}
	default:
		return nil
	}
}

// lastSeenRecency tapers from 1 at the current year down to 0 at the
// recency horizon.
func lastSeenRecency(c model.OccupantCandidate, ctx Context, cfg Config) *model.RubricSignal {
	if c.LastSeenYear == nil {
		return nil
	}
	gap := ctx.CurrentYear - *c.LastSeenYear
	if gap < 0 {
		gap = 0
	}
	horizon := cfg.Breakpoints.RecencyHorizonYears
	if horizon <= 0 {
		return nil
	}
	value := 1 - float64(gap)/float64(horizon)
	if value < 0 {
		value = 0
	}
	return &model.RubricSignal{
		ID:     "recency",
		Label:  "Last-seen recency",
		Weight: cfg.Weights.Recency,
		Value:  value,
		Reason: fmt.Sprintf("last seen %d years ago", gap),
	}
}

// legacyOwner rewards a registry anchor whose register trail has gone stale:
// owners who bought long ago and dropped off the open register still file
// their address with the company registry.
func legacyOwner(c model.OccupantCandidate, ctx Context, cfg Config) *model.RubricSignal {
	if !c.RegistryAnchored() {
		return nil
	}
	stale := c.LastSeenYear == nil ||
		ctx.CurrentYear-*c.LastSeenYear >= cfg.Breakpoints.StaleYears
	if !stale {
		return nil
	}
	return &model.RubricSignal{
		ID:     "legacy_owner",
		Label:  "Legacy owner",
		Weight: cfg.Weights.LegacyOwner,
		Value:  1,
		Reason: "registry anchor with stale or missing register trail",
	}
}

// agePlausibility scores the candidate's age at first-seen: 35-65 is mildly
// positive, under 30 mildly negative. Birth year is preferred; otherwise the
// current age estimate is projected back by the elapsed years.
func agePlausibility(c model.OccupantCandidate, ctx Context, cfg Config) *model.RubricSignal {
	if c.FirstSeenYear == nil {
		return nil
	}

	var age int
	switch {
	case c.BirthYear != nil:
		age = *c.FirstSeenYear - *c.BirthYear
	case c.AgeEstimate != nil:
		age = *c.AgeEstimate - (ctx.CurrentYear - *c.FirstSeenYear)
	default:
		return nil
	}

	bp := cfg.Breakpoints
	var value float64
	switch {
	case age >= bp.AgeIdealMin && age <= bp.AgeIdealMax:
		value = 0.5
	case age < bp.AgeYoungMax:
		value = -0.5
	default:
		return nil
	}

	return &model.RubricSignal{
		ID:     "age_plausibility",
		Label:  "Age at first seen",
		Weight: cfg.Weights.AgePlausibility,
		Value:  value,
		Reason: fmt.Sprintf("estimated age %d at first seen", age),
	}
}

// householdConflict penalizes single-source candidates in a crowded
// household (three or more distinct surnames). Registry-anchor or
// open-register evidence for the candidate suppresses the penalty.
func householdConflict(c model.OccupantCandidate, ctx Context, cfg Config) *model.RubricSignal {
	if ctx.DistinctSurnames < cfg.Breakpoints.ConflictSurnames {
		return nil
	}
	if len(c.Sources) != 1 {
		return nil
	}
	if c.RegistryAnchored() || c.HasSource(model.SourceOpenRegister) {
		return nil
	}
	return &model.RubricSignal{
		ID:     "household_conflict",
		Label:  "Household conflict",
		Weight: cfg.Weights.HouseholdConflict,
		Value:  -1,
		Reason: fmt.Sprintf("%d distinct surnames, single-source evidence", ctx.DistinctSurnames),
	}
}
