package model

// NormalizedAddress is the canonical form of a property address. It is
// produced once per resolution by the address normalizer and treated as
// immutable afterwards.
type NormalizedAddress struct {
	// CanonicalKey is a deterministic, case- and punctuation-insensitive
	// key built from the normalized fragments. Two addresses with the same
	// postcode, house number and unit always produce the same key.
	CanonicalKey string `json:"canonical_key"`

	// SAON is the sub-building identifier (flat/unit number), if any.
	SAON string `json:"saon,omitempty"`
	// PAON is the primary building/house identifier, if any.
	PAON string `json:"paon,omitempty"`

	Street   string `json:"street,omitempty"`
	Town     string `json:"town,omitempty"`
	Postcode string `json:"postcode,omitempty"`

	// Variants are alternate normalized renderings of the address (line
	// reorderings, with/without building name or unit) used for fuzzy
	// matching against records with a different field layout.
	Variants []string `json:"variants,omitempty"`

	// LowConfidence marks addresses normalized without a postcode. The key
	// is still usable but matches against it should not be trusted on
	// their own.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// HasSAON reports whether a sub-building identifier was resolved.
func (a NormalizedAddress) HasSAON() bool { return a.SAON != "" }

// HasPAON reports whether a primary building identifier was resolved.
func (a NormalizedAddress) HasPAON() bool { return a.PAON != "" }
