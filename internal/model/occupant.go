package model

// Provenance labels for occupant evidence sources.
const (
	SourceOpenRegister  = "open_register"
	SourceOfficer       = "officer"
	SourcePSC           = "psc"
	SourceSiteVerify    = "site_verification"
	SourcePersonVerify  = "person_verification"
	SourceConfirmedList = "confirmed_list"
)

// Indicator tags attached to occupant candidates during enrichment.
const (
	TagPersonalAddressMatch = "personal_address_match"
	TagConfirmedName        = "confirmed_name"
)

// CompanyRelation links an occupant candidate to a company registry entry.
type CompanyRelation struct {
	Role          string `json:"role"`
	CompanyNumber string `json:"company_number,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	OfficerID     string `json:"officer_id,omitempty"`
	AppointedOn   string `json:"appointed_on,omitempty"`
	ResignedOn    string `json:"resigned_on,omitempty"`
}

// OccupantCandidate is one person potentially linked to the target address,
// assembled from one or more provenance sources. Candidates are uniquely
// keyed by NameKey within a resolution run; merging two candidates with the
// same key is commutative and associative.
type OccupantCandidate struct {
	// NameKey is the normalized full name used as the merge key.
	NameKey  string `json:"name_key"`
	FullName string `json:"full_name"`
	Forename string `json:"forename,omitempty"`
	Surname  string `json:"surname,omitempty"`

	BirthYear   *int `json:"birth_year,omitempty"`
	AgeEstimate *int `json:"age_estimate,omitempty"`

	// FirstSeenYear/LastSeenYear bound the years the person was observed
	// at the address. Nil means unknown.
	FirstSeenYear *int `json:"first_seen_year,omitempty"`
	LastSeenYear  *int `json:"last_seen_year,omitempty"`

	// Sources and Tags are kept sorted and deduplicated.
	Sources []string `json:"sources,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	CompanyRelations []CompanyRelation `json:"company_relations,omitempty"`
}

// HasSource reports whether the candidate carries the given provenance label.
func (c OccupantCandidate) HasSource(source string) bool {
	for _, s := range c.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// HasTag reports whether the candidate carries the given indicator tag.
func (c OccupantCandidate) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RegistryAnchored reports whether the candidate has registry-anchor
// evidence: an officer/PSC relation whose personal filed address matched
// the target. A company's registered office address never counts.
func (c OccupantCandidate) RegistryAnchored() bool {
	return len(c.CompanyRelations) > 0 && c.HasTag(TagPersonalAddressMatch)
}
