// Package match picks the best corporate-ownership record for a target
// address using strict identifier checks plus token-overlap scoring.
package match

import (
	"fmt"
	"strings"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// Result is a matched corporate-ownership record with the reason it won.
type Result struct {
	Record   model.CorporateOwnerRecord
	ExactKey bool
	Reason   string
}

// candidate holds a qualifying record and its tie-break ranking fields.
type candidate struct {
	record    model.CorporateOwnerRecord
	order     int
	exactSAON bool
	exactPAON bool
	extra     int // unmatched candidate tokens in the best variant pair
	matched   int // size of the largest matched target variant
}

// Best returns the single best match for the target among candidate records
// sharing its postcode, or nil when none qualifies. Callers fall back to a
// live registry lookup on nil.
//
// Rules, in order: equal canonical keys are a hard accept; a resolvable SAON
// on both sides that disagrees rejects the record outright; otherwise a
// record qualifies only if one of its address variants is a token superset
// of some target variant, with PAON agreement when both sides expose one.
// Qualifiers are ranked exact-SAON, then exact-PAON, then fewest extra
// tokens, then largest matched target variant; ties keep first-seen order.
func Best(target model.NormalizedAddress, records []model.CorporateOwnerRecord) *Result {
	targetVariants := tokenizeVariants(target.Variants)

	var best *candidate
	for i, rec := range records {
		recAddr := normalizeRecord(rec)

		if recAddr.CanonicalKey == target.CanonicalKey && target.CanonicalKey != "" {
			return &Result{
				Record:   rec,
				ExactKey: true,
				Reason:   "canonical key equal",
			}
		}

		// A disagreeing sub-building identifier can never be the same
		// property, whatever the rest of the tokens say.
		if target.HasSAON() && recAddr.HasSAON() && recAddr.SAON != target.SAON {
			continue
		}

		cand, ok := qualify(target, targetVariants, recAddr)
		if !ok {
			continue
		}
		cand.record = rec
		cand.order = i

		if best == nil || better(cand, *best) {
			c := cand
			best = &c
		}
	}

	if best == nil {
		return nil
	}
	return &Result{
		Record: best.record,
		Reason: fmt.Sprintf("variant superset match (extra=%d, matched=%d)", best.extra, best.matched),
	}
}

// qualify checks the token-superset rule and computes tie-break fields.
func qualify(target model.NormalizedAddress, targetVariants []map[string]bool, rec model.NormalizedAddress) (candidate, bool) {
	recVariants := tokenizeVariants(rec.Variants)

	found := false
	bestExtra := 0
	bestMatched := 0
	for _, rv := range recVariants {
		for _, tv := range targetVariants {
			if len(tv) == 0 || !superset(rv, tv) {
				continue
			}
			if target.HasPAON() && rec.HasPAON() && target.PAON != rec.PAON {
				continue
			}
			extra := len(rv) - len(tv)
			if !found || extra < bestExtra || (extra == bestExtra && len(tv) > bestMatched) {
				bestExtra = extra
				bestMatched = len(tv)
				found = true
			}
		}
	}
	if !found {
		return candidate{}, false
	}

	return candidate{
		exactSAON: target.HasSAON() && rec.SAON == target.SAON,
		exactPAON: target.HasPAON() && rec.PAON == target.PAON,
		extra:     bestExtra,
		matched:   bestMatched,
	}, true
}

// better reports whether a outranks b. First-seen order wins ties, so every
// comparison here is strict.
func better(a, b candidate) bool {
	if a.exactSAON != b.exactSAON {
		return a.exactSAON
	}
	if a.exactPAON != b.exactPAON {
		return a.exactPAON
	}
	if a.extra != b.extra {
		return a.extra < b.extra
	}
	if a.matched != b.matched {
		return a.matched > b.matched
	}
	return a.order < b.order
}

func normalizeRecord(rec model.CorporateOwnerRecord) model.NormalizedAddress {
	return address.Normalize(address.Fragments{
		Lines:    []string{rec.AddressLine1, rec.AddressLine2},
		Town:     rec.Town,
		Postcode: rec.Postcode,
	})
}

func tokenizeVariants(variants []string) []map[string]bool {
	out := make([]map[string]bool, 0, len(variants))
	for _, v := range variants {
		set := make(map[string]bool)
		for _, tok := range strings.Fields(v) {
			set[tok] = true
		}
		out = append(out, set)
	}
	return out
}

func superset(super, sub map[string]bool) bool {
	if len(sub) > len(super) {
		return false
	}
	for tok := range sub {
		if !super[tok] {
			return false
		}
	}
	return true
}
