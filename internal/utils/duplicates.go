package utils

// SuggestionFilter drops repeated suggestion values, comparing them case-insensitively.
// It is not safe for concurrent use; make one per merge.
type SuggestionFilter struct {
	seen map[string]bool
}

// NewSuggestionFilter creates a new filter instance that will exclude the given input
func NewSuggestionFilter(input string) *SuggestionFilter {
	seen := make(map[string]bool)
	seen[Fold(input)] = true
	return &SuggestionFilter{seen: seen}
}

// ShouldInclude checks if a value should be included in results (not a duplicate)
// Returns true if the value should be included, false if it's a duplicate
func (f *SuggestionFilter) ShouldInclude(value string) bool {
	key := Fold(value)
	if f.seen[key] {
		return false
	}
	f.seen[key] = true
	return true
}
