// Package dedupe collapses duplicate business listings within a batch.
//
// Two listings are duplicates when a weighted combination of name
// similarity (Jaccard over name tokens) and location similarity (shared
// postcode, or coordinates within 100m) exceeds a threshold. A cheap
// signature pre-bucket skips the pairwise scan for byte-identical keys;
// the pairwise rule stays the ground truth for everything else.
package dedupe

import (
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/model"
)

// DefaultThreshold is the hand-tuned duplicate cutoff. The comparison is
// strictly greater-than: a combined score of exactly the threshold is not
// a duplicate.
const DefaultThreshold = 0.8

const (
	nameWeight     = 0.7
	locationWeight = 0.3

	postcodeLocationSim  = 0.9
	proximityLocationSim = 0.8
	proximityKm          = 0.1

	earthRadiusKm = 6371
)

var (
	businessWordsRe = regexp.MustCompile(`\b(ltd|limited|plc|llp|restaurant|cafe|shop|store)\b`)
	nonWordRe       = regexp.MustCompile(`\W`)
)

// Deduper removes duplicates from batches of normalized records.
type Deduper struct {
	threshold float64
}

// New returns a Deduper with the given duplicate threshold. A
// non-positive threshold falls back to DefaultThreshold.
func New(threshold float64) *Deduper {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Deduper{threshold: threshold}
}

// Signature derives the duplicate-bucketing key for a record: the lowered
// name with common business-entity words and non-word characters removed,
// joined with the space-stripped postcode.
func Signature(rec *model.Record) string {
	name := strings.ToLower(rec.Name)
	name = businessWordsRe.ReplaceAllString(name, "")
	name = nonWordRe.ReplaceAllString(name, "")

	postcode := strings.ToLower(strings.ReplaceAll(rec.Postcode, " ", ""))
	return name + "_" + postcode
}

// Dedupe returns the records believed to represent distinct businesses,
// preserving first-occurrence order. Each candidate is compared against
// every record already accepted; O(n²) in the batch size, which is
// bounded by a single collection run.
func (d *Deduper) Dedupe(recs []*model.Record) []*model.Record {
	unique := make([]*model.Record, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))

	for _, rec := range recs {
		sig := Signature(rec)
		if _, ok := seen[sig]; ok {
			continue
		}

		duplicate := false
		for _, kept := range unique {
			if d.similar(rec, kept) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		unique = append(unique, rec)
		seen[sig] = struct{}{}
	}

	zap.L().Info("dedupe: removed duplicates",
		zap.Int("input", len(recs)),
		zap.Int("unique", len(unique)),
	)
	return unique
}

// similar applies the pairwise duplicate rule: strictly greater than the
// threshold means duplicate.
func (d *Deduper) similar(a, b *model.Record) bool {
	return d.Combined(a, b) > d.threshold
}

// Combined computes the weighted similarity score between two records.
func (d *Deduper) Combined(a, b *model.Record) float64 {
	nameSim := Jaccard(strings.ToLower(a.Name), strings.ToLower(b.Name))
	locSim := locationSimilarity(a, b)
	return nameWeight*nameSim + locationWeight*locSim
}

// locationSimilarity scores how likely two records share a location:
// matching postcodes beat coordinate proximity.
func locationSimilarity(a, b *model.Record) float64 {
	if a.Postcode != "" && a.Postcode == b.Postcode {
		return postcodeLocationSim
	}
	if a.HasCoordinates() && b.HasCoordinates() {
		dist := haversineKm(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
		if dist < proximityKm {
			return proximityLocationSim
		}
	}
	return 0
}

// Jaccard computes the Jaccard index of the whitespace token sets of two
// strings. Empty inputs score 0.
func Jaccard(s1, s2 string) float64 {
	if s1 == "" || s2 == "" {
		return 0
	}

	set1 := tokenSet(s1)
	set2 := tokenSet(s2)

	intersection := 0
	for tok := range set1 {
		if _, ok := set2[tok]; ok {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// haversineKm returns the great-circle distance between two WGS84 points.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
