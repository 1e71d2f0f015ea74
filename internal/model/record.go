package model

import "time"

// RawObservation is one sighting of a business from a single collection
// method (maps scrape, place lookup, seed list). Numeric fields are `any`
// because sources disagree on types: ratings arrive as floats, ints, or
// strings depending on the scraper. Coercion happens in normalize.
type RawObservation struct {
	Name           string `json:"name"`
	Address        string `json:"address,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Website        string `json:"website,omitempty"`
	Email          string `json:"email,omitempty"`
	Rating         any    `json:"rating,omitempty"`
	ReviewCount    any    `json:"review_count,omitempty"`
	Latitude       any    `json:"latitude,omitempty"`
	Longitude      any    `json:"longitude,omitempty"`
	PlaceID        string `json:"place_id,omitempty"`
	Industry       string `json:"industry,omitempty"`
	SearchTerm     string `json:"search_term,omitempty"`
	SearchLocation string `json:"search_location,omitempty"`
	OpeningHours   string `json:"opening_hours,omitempty"`
}

// Record is a cleaned business listing. It is produced by normalization
// and progressively enriched: quality score and category during
// processing, registry fields after verification. Absent optional values
// are nil pointers, never sentinel strings.
type Record struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Address        string `json:"address,omitempty"`
	Postcode       string `json:"postcode,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Website        string `json:"website,omitempty"`
	Email          string `json:"email,omitempty"`
	Category       string `json:"category,omitempty"`
	Industry       string `json:"industry,omitempty"`
	SearchTerm     string `json:"search_term,omitempty"`
	SearchLocation string `json:"search_location,omitempty"`
	OpeningHours   string `json:"opening_hours,omitempty"`
	PlaceID        string `json:"place_id,omitempty"`

	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`

	DataQualityScore float64 `json:"data_quality_score"`

	// Registry verification fields, set only when a match was accepted.
	RegistryNumber     string     `json:"registry_number,omitempty"`
	RegistryStatus     string     `json:"registry_status,omitempty"`
	IncorporationDate  string     `json:"incorporation_date,omitempty"`
	SICCodes           []string   `json:"sic_codes,omitempty"`
	RegistryMatchScore *float64   `json:"registry_match_score,omitempty"`
	LastVerified       *time.Time `json:"last_verified,omitempty"`
}

// Verified reports whether the record carries registry data.
func (r *Record) Verified() bool {
	return r.RegistryNumber != ""
}

// HasCoordinates reports whether both latitude and longitude are present.
func (r *Record) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}
