// Package occupant deduplicates candidate-occupant records from multiple
// provenance sources into one record per person, and projects each source's
// record shape into the common candidate form.
package occupant

import (
	"sort"
	"strings"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// honorifics are stripped before keying so "Mr J Smith" and "J Smith" merge.
var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "dr": true,
	"prof": true, "sir": true, "dame": true, "lord": true, "lady": true,
}

// NameKey returns the normalized full-name key used to merge candidates.
func NameKey(fullName string) string {
	tokens := strings.Fields(address.FoldJoin(fullName))
	var kept []string
	for _, tok := range tokens {
		if honorifics[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// Surname returns the last token of the name key, the grouping unit for the
// household-conflict signal.
func Surname(fullName string) string {
	key := NameKey(fullName)
	if i := strings.LastIndexByte(key, ' '); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Merge combines two candidates sharing a name key. It is commutative,
// associative, and idempotent: first-seen takes the minimum (missing counts
// as later than anything), last-seen the maximum (missing counts as earlier
// than anything), the longer full name wins, tags and sources union, and
// company relations union deduplicated by (role, company number, officer id).
func Merge(a, b model.OccupantCandidate) model.OccupantCandidate {
	out := a

	if len(b.FullName) > len(out.FullName) {
		out.FullName = b.FullName
		out.Forename = b.Forename
		out.Surname = b.Surname
	}
	if out.NameKey == "" {
		out.NameKey = b.NameKey
	}

	out.FirstSeenYear = minYear(a.FirstSeenYear, b.FirstSeenYear)
	out.LastSeenYear = maxYear(a.LastSeenYear, b.LastSeenYear)
	out.BirthYear = firstYear(a.BirthYear, b.BirthYear)
	out.AgeEstimate = firstYear(a.AgeEstimate, b.AgeEstimate)

	out.Sources = unionStrings(a.Sources, b.Sources)
	out.Tags = unionStrings(a.Tags, b.Tags)
	out.CompanyRelations = unionRelations(a.CompanyRelations, b.CompanyRelations)

	return out
}

// MergeAll folds a list of candidates into one record per name key,
// preserving first-appearance order. Order of the input does not affect the
// merged contents, only the output ordering.
func MergeAll(candidates []model.OccupantCandidate) []model.OccupantCandidate {
	byKey := make(map[string]model.OccupantCandidate)
	var order []string

	for _, c := range candidates {
		if c.NameKey == "" {
			c.NameKey = NameKey(c.FullName)
		}
		if c.NameKey == "" {
			continue
		}
		if existing, ok := byKey[c.NameKey]; ok {
			byKey[c.NameKey] = Merge(existing, c)
		} else {
			byKey[c.NameKey] = c
			order = append(order, c.NameKey)
		}
	}

	out := make([]model.OccupantCandidate, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

func minYear(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a <= *b:
		return a
	default:
		return b
	}
}

func maxYear(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	default:
		return b
	}
}

func firstYear(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type relationKey struct {
	role          string
	companyNumber string
	officerID     string
}

func unionRelations(a, b []model.CompanyRelation) []model.CompanyRelation {
	seen := make(map[relationKey]bool, len(a)+len(b))
	var out []model.CompanyRelation
	for _, rel := range append(append([]model.CompanyRelation{}, a...), b...) {
		k := relationKey{rel.Role, rel.CompanyNumber, rel.OfficerID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompanyNumber != out[j].CompanyNumber {
			return out[i].CompanyNumber < out[j].CompanyNumber
		}
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].OfficerID < out[j].OfficerID
	})
	return out
}
