package occupant

import (
	"strconv"
	"strings"
	"time"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/companieshouse"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/openregister"
)

// Converters project each provenance source's record shape into the common
// OccupantCandidate form. Heterogeneous payloads never reach the merger or
// rubric directly.

// FromOpenRegister converts an open-register entry.
func FromOpenRegister(o openregister.Occupant) model.OccupantCandidate {
	c := model.OccupantCandidate{
		NameKey:       NameKey(o.FullName),
		FullName:      strings.TrimSpace(o.FullName),
		FirstSeenYear: o.FirstSeenYear,
		LastSeenYear:  o.LastSeenYear,
		BirthYear:     o.BirthYear,
		AgeEstimate:   o.AgeEstimate,
		Sources:       []string{model.SourceOpenRegister},
	}
	splitName(&c)
	return c
}

// FromOfficer converts a company-registry officer whose personal filed
// address matched the target. addressMatched tags registry-anchor evidence;
// a company's registered office match never sets it.
func FromOfficer(o companieshouse.Officer, companyNumber, companyName string, addressMatched bool) model.OccupantCandidate {
	full := registryName(o.Name)
	c := model.OccupantCandidate{
		NameKey:  NameKey(full),
		FullName: full,
		Sources:  []string{model.SourceOfficer},
		CompanyRelations: []model.CompanyRelation{{
			Role:          o.Role,
			CompanyNumber: companyNumber,
			CompanyName:   companyName,
			OfficerID:     o.OfficerID,
			AppointedOn:   o.AppointedOn,
			ResignedOn:    o.ResignedOn,
		}},
	}
	if o.DateOfBirth != nil && o.DateOfBirth.Year > 0 {
		year := o.DateOfBirth.Year
		c.BirthYear = &year
	}
	if year := yearOf(o.AppointedOn); year > 0 {
		c.FirstSeenYear = &year
	}
	if addressMatched {
		c.Tags = []string{model.TagPersonalAddressMatch}
	}
	splitName(&c)
	return c
}

// FromPSC converts a person-with-significant-control record.
func FromPSC(p companieshouse.PSC, companyName string, addressMatched bool) model.OccupantCandidate {
	full := registryName(p.Name)
	c := model.OccupantCandidate{
		NameKey:  NameKey(full),
		FullName: full,
		Sources:  []string{model.SourcePSC},
		CompanyRelations: []model.CompanyRelation{{
			Role:          "psc",
			CompanyNumber: p.CompanyNumber,
			CompanyName:   companyName,
			AppointedOn:   p.NotifiedOn,
			ResignedOn:    p.CeasedOn,
		}},
	}
	if p.DateOfBirth != nil && p.DateOfBirth.Year > 0 {
		year := p.DateOfBirth.Year
		c.BirthYear = &year
	}
	if year := yearOf(p.NotifiedOn); year > 0 {
		c.FirstSeenYear = &year
	}
	if addressMatched {
		c.Tags = []string{model.TagPersonalAddressMatch}
	}
	splitName(&c)
	return c
}

// FromOfficerSearch converts a free-text officer search hit. Search snippets
// only place the person at postcode granularity, so the result carries
// registry provenance but never the personal-address-match tag.
func FromOfficerSearch(h companieshouse.OfficerHit) model.OccupantCandidate {
	full := registryName(h.Name)
	c := model.OccupantCandidate{
		NameKey:  NameKey(full),
		FullName: full,
		Sources:  []string{model.SourceOfficer},
	}
	if h.DateOfBirth != nil && h.DateOfBirth.Year > 0 {
		year := h.DateOfBirth.Year
		c.BirthYear = &year
	}
	splitName(&c)
	return c
}

// AddressMatches reports whether a registry-filed address refers to the
// target property. It normalizes the filed fields and compares canonical
// keys, falling back to PAON/SAON+postcode agreement when street naming
// differs between the two sources.
func AddressMatches(filed companieshouse.Address, target model.NormalizedAddress) bool {
	norm := address.Normalize(address.Fragments{
		Lines:    []string{strings.TrimSpace(filed.Premises + " " + filed.AddressLine1), filed.AddressLine2},
		Town:     filed.Locality,
		Postcode: filed.PostalCode,
	})

	if norm.CanonicalKey == target.CanonicalKey {
		return true
	}
	if norm.Postcode == "" || norm.Postcode != target.Postcode {
		return false
	}
	if target.HasSAON() != norm.HasSAON() {
		return false
	}
	if target.HasSAON() && norm.SAON != target.SAON {
		return false
	}
	return target.HasPAON() && norm.PAON == target.PAON
}

// registryName converts registry "SURNAME, Forename" ordering to the
// natural form used everywhere else.
func registryName(name string) string {
	parts := strings.SplitN(name, ",", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0])
	}
	return strings.TrimSpace(name)
}

// splitName fills Forename/Surname from the full name when absent.
func splitName(c *model.OccupantCandidate) {
	if c.Forename != "" || c.Surname != "" {
		return
	}
	fields := strings.Fields(c.FullName)
	if len(fields) == 0 {
		return
	}
	c.Surname = fields[len(fields)-1]
	if len(fields) > 1 {
		c.Forename = fields[0]
	}
}

// yearOf parses the year from a YYYY-MM-DD registry date.
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year < 1800 || year > time.Now().Year()+1 {
		return 0
	}
	return year
}
