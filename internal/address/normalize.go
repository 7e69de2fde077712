// Package address turns loose UK address fragments into a canonical key and
// matchable token variants. It is pure: no I/O, no global state.
package address

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// Fragments is the loose input to normalization. Any field may be empty;
// free text should be pre-split with Parse.
type Fragments struct {
	Lines    []string `json:"lines,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Building string   `json:"building,omitempty"`
	Town     string   `json:"town,omitempty"`
	Postcode string   `json:"postcode,omitempty"`
}

// saonLabels is the sub-building label vocabulary. A label followed by an
// alphanumeric token claims that token as the SAON.
var saonLabels = map[string]bool{
	"flat": true, "apartment": true, "apt": true, "suite": true,
	"unit": true, "room": true, "floor": true, "annex": true,
	"annexe": true, "maisonette": true, "studio": true,
}

// postcodeRe matches a UK postcode at the end of a free-text address.
var postcodeRe = regexp.MustCompile(`(?i)\b([A-Z]{1,2}[0-9][A-Z0-9]?)\s*([0-9][A-Z]{2})\b\s*$`)

// foldTransform strips diacritics: NFD, drop combining marks, NFC.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Parse splits free-text into Fragments. Comma-separated segments become
// lines; a trailing postcode is lifted out; the segment before the postcode
// is treated as the town when three or more segments remain.
func Parse(freeText string) Fragments {
	text := strings.TrimSpace(freeText)
	var f Fragments

	if m := postcodeRe.FindStringSubmatch(text); m != nil {
		f.Postcode = strings.ToUpper(m[1] + m[2])
		text = strings.TrimSpace(postcodeRe.ReplaceAllString(text, ""))
		text = strings.TrimRight(text, ", ")
	}

	segments := strings.Split(text, ",")
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			f.Lines = append(f.Lines, seg)
		}
	}
	if len(f.Lines) >= 3 {
		f.Town = f.Lines[len(f.Lines)-1]
		f.Lines = f.Lines[:len(f.Lines)-1]
	}
	return f
}

// Normalize produces the canonical form of the given fragments. The result
// depends only on the input: equal postcode + house number + unit always
// yield the same canonical key regardless of case, punctuation, or which
// field carried the unit.
func Normalize(f Fragments) model.NormalizedAddress {
	var addr model.NormalizedAddress

	addr.Postcode = NormalizePostcode(f.Postcode)
	addr.LowConfidence = addr.Postcode == ""
	addr.Town = strings.Join(fold(f.Town), " ")

	building := strings.Join(fold(f.Building), " ")

	// The unit field, when present, is the strongest SAON source.
	if saon := saonFromTokens(fold(f.Unit)); saon != "" {
		addr.SAON = saon
	}

	// Walk the lines: claim a SAON from a label pair if still unknown, then
	// take the first remaining numeric-led token as the PAON. The line the
	// PAON came from supplies the street tokens.
	var street []string
	for _, line := range f.Lines {
		tokens := fold(line)
		if len(tokens) == 0 {
			continue
		}
		claimed := make([]bool, len(tokens))
		for i := 0; i+1 < len(tokens); i++ {
			if saonLabels[tokens[i]] && hasDigit(tokens[i+1]) {
				if addr.SAON == "" {
					addr.SAON = tokens[i+1]
				}
				claimed[i] = true
				claimed[i+1] = true
				break
			}
		}

		var rest []string
		for i, tok := range tokens {
			if claimed[i] {
				continue
			}
			if addr.PAON == "" && leadsWithDigit(tok) {
				addr.PAON = tok
				continue
			}
			if !saonLabels[tok] {
				rest = append(rest, tok)
			}
		}
		if len(street) == 0 {
			street = rest
		}
	}
	addr.Street = strings.Join(street, " ")

	addr.CanonicalKey = strings.Join([]string{
		addr.SAON, addr.PAON, addr.Street, addr.Town, addr.Postcode,
	}, "|")

	addr.Variants = buildVariants(addr, building)
	return addr
}

// buildVariants produces alternate normalized renderings used for fuzzy
// matching against records laid out differently (unit embedded in line 1,
// building name present or absent, town dropped).
func buildVariants(addr model.NormalizedAddress, building string) []string {
	base := strings.TrimSpace(addr.PAON + " " + addr.Street)
	if base == "" {
		base = addr.Street
	}

	candidates := []string{base}
	if addr.SAON != "" {
		candidates = append(candidates,
			addr.SAON+" "+base,
			"flat "+addr.SAON+" "+base,
		)
	}
	if building != "" {
		candidates = append(candidates, building+" "+base)
		if addr.SAON != "" {
			candidates = append(candidates, addr.SAON+" "+building+" "+base)
		}
	}
	if addr.Town != "" {
		candidates = append(candidates, base+" "+addr.Town)
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, v := range candidates {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// fold lower-cases, strips diacritics and punctuation, and tokenizes.
func fold(s string) []string {
	if s == "" {
		return nil
	}
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// FoldJoin normalizes s the same way address fields are normalized and
// joins the tokens with single spaces. Shared by name-keying callers.
func FoldJoin(s string) string {
	return strings.Join(fold(s), " ")
}

// NormalizePostcode reduces a postcode to upper-case alphanumerics. Stored
// ownership rows and lookups key on this form, so publisher spacing never
// splits a postcode across two keys.
func NormalizePostcode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// saonFromTokens resolves a SAON from a standalone unit field: either a
// label/value pair ("flat 2") or a single alphanumeric token ("2b").
func saonFromTokens(tokens []string) string {
	for i := 0; i+1 < len(tokens); i++ {
		if saonLabels[tokens[i]] && hasDigit(tokens[i+1]) {
			return tokens[i+1]
		}
	}
	if len(tokens) == 1 && hasDigit(tokens[0]) && !saonLabels[tokens[0]] {
		return tokens[0]
	}
	return ""
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func leadsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
