// internal/models/address.go
package models

import "strings"

// Street suffixes collapsed during normalization so "123 Oak Street" and
// "123 OAK ST." land in the same household.
var streetSuffixes = map[string]string{
	"STREET":    "ST",
	"AVENUE":    "AVE",
	"AV":        "AVE",
	"BOULEVARD": "BLVD",
	"CIRCLE":    "CIR",
	"COURT":     "CT",
	"DRIVE":     "DR",
	"LANE":      "LN",
	"PLACE":     "PL",
	"ROAD":      "RD",
	"TERRACE":   "TER",
	"TRAIL":     "TRL",
	"WAY":       "WAY",
	"HIGHWAY":   "HWY",
	"PARKWAY":   "PKWY",
}

var unitPrefixes = map[string]struct{}{
	"APT":   {},
	"UNIT":  {},
	"SUITE": {},
	"STE":   {},
	"#":     {},
}

// NormalizeStreetAddress canonicalizes a street address for household
// grouping: uppercase, punctuation stripped, whitespace collapsed, common
// suffixes abbreviated, and unit designators dropped so apartments in one
// building share a household key only when the unit matches exactly.
func NormalizeStreetAddress(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', ';':
			return ' '
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(raw)))

	fields := strings.Fields(cleaned)
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		word := fields[i]
		if abbr, ok := streetSuffixes[word]; ok {
			word = abbr
		}
		if _, ok := unitPrefixes[word]; ok {
			// Keep the designator and its value in canonical "# value"
			// form so distinct units stay distinct households.
			if i+1 < len(fields) {
				out = append(out, "#", strings.TrimPrefix(fields[i+1], "#"))
				i++
			}
			continue
		}
		if strings.HasPrefix(word, "#") && len(word) > 1 {
			out = append(out, "#", word[1:])
			continue
		}
		out = append(out, word)
	}
	return strings.Join(out, " ")
}
