package normalize

import "strings"

// categoryKeywords maps a category to name keywords that imply it.
// Checked in a fixed order so inference is deterministic when a name
// matches keywords from more than one category.
var categoryOrder = []string{"restaurant", "cafe", "retail", "healthcare", "professional", "automotive"}

var categoryKeywords = map[string][]string{
	"restaurant":   {"restaurant", "bistro", "diner", "eatery", "grill"},
	"cafe":         {"cafe", "coffee", "espresso", "barista"},
	"retail":       {"shop", "store", "boutique", "emporium"},
	"healthcare":   {"clinic", "medical", "dental", "pharmacy", "doctor"},
	"professional": {"solicitor", "accountant", "consultant", "advisor"},
	"automotive":   {"garage", "motors", "automotive", "car"},
}

// InferCategory guesses a business category from name keywords.
// Returns "" when nothing matches.
func InferCategory(name string) string {
	lower := strings.ToLower(name)
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				return cat
			}
		}
	}
	return ""
}
