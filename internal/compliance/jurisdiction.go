package compliance

import (
	"strings"
)

// Jurisdiction is a canonical US state name such as "Wyoming".
type Jurisdiction string

const (
	Wyoming   Jurisdiction = "Wyoming"
	Delaware  Jurisdiction = "Delaware"
	NewMexico Jurisdiction = "New Mexico"
)

// annualReportStates require an annual report on the formation anniversary.
var annualReportStates = map[Jurisdiction]bool{
	Wyoming:  true,
	Delaware: true,
}

var states = map[string]Jurisdiction{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": Delaware,
	"DC": "District of Columbia", "FL": "Florida", "GA": "Georgia", "HI": "Hawaii",
	"ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine",
	"MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska",
	"NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey", "NM": NewMexico,
	"NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island",
	"SC": "South Carolina", "SD": "South Dakota", "TN": "Tennessee", "TX": "Texas",
	"UT": "Utah", "VT": "Vermont", "VA": "Virginia", "WA": "Washington",
	"WV": "West Virginia", "WI": "Wisconsin", "WY": Wyoming,
}

var byName = func() map[string]Jurisdiction {
	m := make(map[string]Jurisdiction, len(states))
	for _, name := range states {
		m[strings.ToLower(string(name))] = name
	}
	return m
}()

// NormalizeJurisdiction maps a postal code or a state name in any case to
// its canonical name. Unknown values are returned trimmed with collapsed
// whitespace so they still compare stably.
func NormalizeJurisdiction(raw string) Jurisdiction {
	cleaned := strings.Join(strings.Fields(raw), " ")
	if cleaned == "" {
		return ""
	}
	if j, ok := states[strings.ToUpper(cleaned)]; ok {
		return j
	}
	if j, ok := byName[strings.ToLower(cleaned)]; ok {
		return j
	}
	return Jurisdiction(cleaned)
}

// Known reports whether j is a recognised state.
func (j Jurisdiction) Known() bool {
	_, ok := byName[strings.ToLower(string(j))]
	return ok
}

// RequiresAnnualReport reports whether the state is in the annual-report set.
func (j Jurisdiction) RequiresAnnualReport() bool {
	return annualReportStates[NormalizeJurisdiction(string(j))]
}
