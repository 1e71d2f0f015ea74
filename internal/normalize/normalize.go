// Package normalize cleans raw business observations into structured
// records. Every cleaning step is a pure function: malformed field values
// are dropped, never raised, so a single bad field can't sink a record.
package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/listings-cli/internal/model"
)

var (
	multiSpaceRe   = regexp.MustCompile(`\s+`)
	trailingSepRe  = regexp.MustCompile(`[·•\-\s]+$`)
	legalSuffixRe  = regexp.MustCompile(`(?i)\s+(ltd\.?|limited|plc|llp)$`)
	addressLabelRe = regexp.MustCompile(`(?i)^address:\s*`)
	phoneLabelRe   = regexp.MustCompile(`(?i)^phone:\s*`)
	phoneCharsRe   = regexp.MustCompile(`[^\d+\s()\-]`)
	queryFragRe    = regexp.MustCompile(`[?#].*$`)
	postcodeRe     = regexp.MustCompile(`[A-Z]{1,2}[0-9R][0-9A-Z]?\s*[0-9][A-Z]{2}`)
	emailRe        = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)

	titleCaser = cases.Title(language.BritishEnglish)
)

// Normalize cleans a single raw observation. It returns nil when the
// observation has no usable name; all other malformed fields are simply
// omitted from the result.
func Normalize(raw model.RawObservation) *model.Record {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil
	}

	rec := &model.Record{
		Name:           CleanName(name),
		PlaceID:        raw.PlaceID,
		Industry:       raw.Industry,
		SearchTerm:     raw.SearchTerm,
		SearchLocation: raw.SearchLocation,
		OpeningHours:   raw.OpeningHours,
	}

	if addr := strings.TrimSpace(raw.Address); addr != "" {
		rec.Address = CleanAddress(addr)
		rec.Postcode = ExtractPostcode(addr)
	}
	if phone := strings.TrimSpace(raw.Phone); phone != "" {
		rec.Phone = CleanPhone(phone)
	}
	if site := strings.TrimSpace(raw.Website); site != "" {
		rec.Website = CleanWebsite(site)
	}
	rec.Email = extractEmail(raw)

	rec.Rating = coerceFloat(raw.Rating)
	rec.ReviewCount = coerceInt(raw.ReviewCount)

	// Coordinates only make sense as a pair.
	lat, lng := coerceFloat(raw.Latitude), coerceFloat(raw.Longitude)
	if lat != nil && lng != nil {
		rec.Latitude = lat
		rec.Longitude = lng
	}

	return rec
}

// CleanName collapses whitespace, strips trailing separator characters
// and legal-entity suffixes, and title-cases the result.
func CleanName(name string) string {
	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	// Suffixes and separators can stack ("x trading limited ltd"), so
	// strip until the name is stable.
	for {
		next := legalSuffixRe.ReplaceAllString(name, "")
		next = trailingSepRe.ReplaceAllString(next, "")
		if next == name {
			break
		}
		name = next
	}
	return titleCaser.String(name)
}

// CleanAddress collapses whitespace and strips a leading "Address:" label.
func CleanAddress(address string) string {
	address = multiSpaceRe.ReplaceAllString(address, " ")
	address = strings.TrimSpace(address)
	return addressLabelRe.ReplaceAllString(address, "")
}

// ExtractPostcode pulls a UK postcode out of an address, reformatted so
// exactly one space precedes the inward code (final three characters).
// Returns "" when no postcode is present.
func ExtractPostcode(address string) string {
	match := postcodeRe.FindString(strings.ToUpper(address))
	if match == "" {
		return ""
	}
	compact := strings.ReplaceAll(match, " ", "")
	if len(compact) <= 3 {
		return match
	}
	return compact[:len(compact)-3] + " " + compact[len(compact)-3:]
}

// CleanPhone strips a leading "Phone:" label, collapses whitespace, and
// keeps only digits, '+', spaces, parentheses and hyphens.
func CleanPhone(phone string) string {
	phone = phoneLabelRe.ReplaceAllString(phone, "")
	phone = multiSpaceRe.ReplaceAllString(phone, " ")
	phone = strings.TrimSpace(phone)
	return phoneCharsRe.ReplaceAllString(phone, "")
}

// CleanWebsite prepends https:// when no scheme is present and drops the
// query string and fragment.
func CleanWebsite(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if !strings.HasPrefix(website, "http://") && !strings.HasPrefix(website, "https://") {
		website = "https://" + website
	}
	return queryFragRe.ReplaceAllString(website, "")
}

// extractEmail scans name, address, phone and website in that order and
// returns the first email-shaped substring, lower-cased.
func extractEmail(raw model.RawObservation) string {
	for _, field := range []string{raw.Name, raw.Address, raw.Phone, raw.Website} {
		if m := emailRe.FindString(field); m != "" {
			return strings.ToLower(m)
		}
	}
	return ""
}

// Validate reports whether a normalized record carries the minimum data
// worth keeping: a plausibly-sized name and at least one piece of
// location information.
func Validate(rec *model.Record) bool {
	if rec == nil {
		return false
	}
	if len(rec.Name) < 2 || len(rec.Name) > 200 {
		return false
	}
	return rec.Address != "" || rec.Postcode != "" || rec.HasCoordinates()
}

// coerceFloat parses a loosely-typed numeric value. Unparsable values
// yield nil rather than an error.
func coerceFloat(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
	}
	return nil
}

// coerceInt parses a loosely-typed integer value, truncating floats.
func coerceInt(v any) *int {
	f := coerceFloat(v)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}
