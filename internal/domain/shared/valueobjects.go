package shared

import (
	"strings"
	"unicode"
)

// Location is the denormalized country/region pair used for leaderboard sharding.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
}

// NewLocation normalizes country and region codes.
// Region is dropped when country is unknown.
func NewLocation(country, region string) Location {
	c := normalizeCode(country)
	if c == "" {
		return Location{}
	}
	return Location{Country: c, Region: normalizeCode(region)}
}

// HasCountry reports whether the country is known.
func (l Location) HasCountry() bool { return l.Country != "" }

// HasRegion reports whether both country and region are known.
func (l Location) HasRegion() bool { return l.Country != "" && l.Region != "" }

// IsZero reports whether nothing is known.
func (l Location) IsZero() bool { return l.Country == "" && l.Region == "" }

// normalizeCode upper-cases a code and strips characters that would break a cache key.
func normalizeCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, s)
}

// ValidUserID reports whether id is usable as a user identifier.
func ValidUserID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && len(id) <= 128 && !strings.ContainsAny(id, " :\t\n")
}
