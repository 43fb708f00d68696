// Package suggest holds the local prefix search over the compiled index,
// the suggestion item model shown to users and the per-session suggestion cache.
package suggest

// Completer answers local prefix queries.
type Completer interface {
	// Complete returns at most limit items for prefix, skipping records
	// associated with any hidden tag.
	Complete(prefix string, limit int, hidden Hidden) []Item

	// Stats returns statistics about the loaded index
	Stats() map[string]int
}

var _ Completer = (*Searcher)(nil)
