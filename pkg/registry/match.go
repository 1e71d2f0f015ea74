package registry

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MatcherConfig tunes candidate scoring. The thresholds are hand-tuned
// and exposed in configuration so they can be recalibrated per dataset.
type MatcherConfig struct {
	// MatchThreshold is the minimum score (strictly greater-than) for a
	// candidate to be accepted. Default 0.6.
	MatchThreshold float64

	// SearchPageSize is how many candidates to request per search.
	// Default 20.
	SearchPageSize int
}

// DefaultMatcherConfig returns the production scoring parameters.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		MatchThreshold: 0.6,
		SearchPageSize: 20,
	}
}

// Scoring adjustments applied on top of the name similarity.
const (
	postcodeBonus    = 0.3
	dissolvedPenalty = -0.5
)

// querySuffixRe strips trailing legal-entity and business-type suffixes
// from a name before it is sent as a search query. Anchored at the end so
// interior words survive.
var querySuffixRe = regexp.MustCompile(
	`(?i)\s+(ltd\.?|limited|plc|llp|partnership|& co\.?|inc\.?|restaurant|cafe|shop|store)$`)

var (
	// \w is ASCII-only in Go regexps; accented trading names keep their
	// letters in the query.
	nonWordSpaceRe = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	multiSpaceRe   = regexp.MustCompile(`\s+`)
)

// Match is an accepted registry match: the winning candidate merged with
// its full company profile, carrying the computed score.
type Match struct {
	Candidate
	Profile *CompanyProfile
	Score   float64
}

// Matcher scores registry candidates against observed business names.
type Matcher struct {
	client Client
	cfg    MatcherConfig
}

// NewMatcher returns a Matcher over the given client. Zero-value config
// fields fall back to the defaults.
func NewMatcher(client Client, cfg MatcherConfig) *Matcher {
	def := DefaultMatcherConfig()
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = def.MatchThreshold
	}
	if cfg.SearchPageSize <= 0 {
		cfg.SearchPageSize = def.SearchPageSize
	}
	return &Matcher{client: client, cfg: cfg}
}

// FindMatch searches the registry for the business and returns the best
// candidate when its score strictly exceeds the threshold, enriched with
// the full company profile. A nil result with a nil error means no
// acceptable match, which is the common case and not a failure.
func (m *Matcher) FindMatch(ctx context.Context, name, postcode string) (*Match, error) {
	query := CleanQueryName(name)
	if query == "" {
		return nil, nil
	}

	candidates, err := m.client.SearchCompanies(ctx, query, m.cfg.SearchPageSize)
	if err != nil {
		return nil, eris.Wrap(err, "registry: search")
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best, score := m.bestCandidate(name, postcode, candidates)
	if best == nil {
		return nil, nil
	}

	match := &Match{Candidate: *best, Score: score}

	profile, err := m.client.GetCompanyProfile(ctx, best.CompanyNumber)
	if err != nil {
		return nil, eris.Wrap(err, "registry: get profile")
	}
	if profile != nil {
		match.Profile = profile
		if len(profile.SICCodes) > 0 {
			match.SICCodes = profile.SICCodes
		}
	}

	zap.L().Debug("registry: match accepted",
		zap.String("name", name),
		zap.String("company_number", best.CompanyNumber),
		zap.Float64("score", score),
	)
	return match, nil
}

// bestCandidate scores every candidate and returns the highest scorer
// when it strictly exceeds the threshold.
func (m *Matcher) bestCandidate(name, postcode string, candidates []Candidate) (*Candidate, float64) {
	type scored struct {
		idx   int
		score float64
	}

	ranked := make([]scored, len(candidates))
	for i, cand := range candidates {
		ranked[i] = scored{idx: i, score: ScoreCandidate(name, postcode, cand)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	top := ranked[0]
	if top.score <= m.cfg.MatchThreshold {
		return nil, 0
	}
	return &candidates[top.idx], top.score
}

// ScoreCandidate computes the match score for a single candidate:
// Jaccard similarity of the original business name vs the candidate
// title, plus a postcode bonus when the compact postcode appears in the
// address snippet, minus a penalty for dissolved companies.
func ScoreCandidate(name, postcode string, cand Candidate) float64 {
	score := jaccardWords(strings.ToLower(name), strings.ToLower(cand.Title))

	if postcode != "" {
		compact := strings.ToLower(strings.ReplaceAll(postcode, " ", ""))
		snippet := strings.ToLower(strings.ReplaceAll(cand.AddressSnippet, " ", ""))
		if compact != "" && strings.Contains(snippet, compact) {
			score += postcodeBonus
		}
	}

	if strings.EqualFold(cand.CompanyStatus, "dissolved") {
		score += dissolvedPenalty
	}

	return score
}

// CleanQueryName prepares a business name for the search endpoint:
// lower-cased, trailing suffixes stripped, punctuation replaced with
// spaces, whitespace collapsed.
func CleanQueryName(name string) string {
	cleaned := strings.ToLower(strings.TrimSpace(name))

	// Suffixes can stack ("x trading ltd."), so strip repeatedly.
	for {
		next := querySuffixRe.ReplaceAllString(cleaned, "")
		if next == cleaned {
			break
		}
		cleaned = next
	}

	cleaned = nonWordSpaceRe.ReplaceAllString(cleaned, " ")
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// jaccardWords is the Jaccard index over whitespace-tokenized word sets.
func jaccardWords(s1, s2 string) float64 {
	if s1 == "" || s2 == "" {
		return 0
	}

	set1 := make(map[string]struct{})
	for _, tok := range strings.Fields(s1) {
		set1[tok] = struct{}{}
	}
	set2 := make(map[string]struct{})
	for _, tok := range strings.Fields(s2) {
		set2[tok] = struct{}{}
	}

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
