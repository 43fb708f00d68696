package suggest

import (
	"strconv"
	"strings"

	"github.com/bastiangx/tagserve/internal/utils"
	"github.com/bastiangx/tagserve/pkg/index"
)

// Kind tells where a suggestion came from.
type Kind int

const (
	KindLocal Kind = iota
	KindAlias
	KindHistory
	// KindSeparator marks the divider between history and tag items.
	// It is never selectable.
	KindSeparator
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindAlias:
		return "alias"
	case KindHistory:
		return "history"
	case KindSeparator:
		return "separator"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Item is one row of the suggestion list.
type Item struct {
	Kind Kind
	// Value is what gets written into the field when the item is accepted.
	// For aliases it is the canonical tag.
	Value string
	// Alias is the matched alias name, only set for KindAlias.
	Alias string
	// Count is the image count of the tag. Zero for history items.
	Count int
	// MatchLength is how many leading bytes of the label matched the term.
	MatchLength int
}

// Selectable reports whether keyboard navigation may land on the item.
func (it Item) Selectable() bool {
	return it.Kind != KindSeparator
}

// Label renders the item the way the popup shows it, e.g.
// "marvelous → beautiful  30" or "mare  20".
func (it Item) Label() string {
	switch it.Kind {
	case KindSeparator:
		return ""
	case KindHistory:
		return it.Value
	case KindAlias:
		return it.Alias + " → " + it.Value + "  " + FormatImageCount(it.Count)
	default:
		return it.Value + "  " + FormatImageCount(it.Count)
	}
}

// FormatImageCount groups digits by three with spaces: 1234567 -> "1 234 567".
func FormatImageCount(n int) string {
	return utils.GroupDigits(n, " ")
}

// Separator returns the divider item.
func Separator() Item {
	return Item{Kind: KindSeparator}
}

// FromRecords converts local search results into items.
func FromRecords(records []index.TagRecord, matchLength int) []Item {
	if len(records) == 0 {
		return nil
	}
	items := make([]Item, len(records))
	for i, r := range records {
		items[i] = Item{
			Kind:        KindLocal,
			Value:       r.Name,
			Count:       int(r.ImageCount),
			MatchLength: matchLength,
		}
	}
	return items
}

// History converts history terms into items.
func History(terms []string, matchLength int) []Item {
	if len(terms) == 0 {
		return nil
	}
	items := make([]Item, len(terms))
	for i, t := range terms {
		items[i] = Item{Kind: KindHistory, Value: t, MatchLength: matchLength}
	}
	return items
}

// Merge lays out the display list: history first, then tags. The separator
// only appears when both groups are non-empty. Tag items repeating a value
// already listed are dropped.
func Merge(history, tags []Item) []Item {
	out := make([]Item, 0, len(history)+len(tags)+1)
	out = append(out, history...)

	filter := utils.NewSuggestionFilter("")
	var kept []Item
	for _, t := range tags {
		if filter.ShouldInclude(t.Value) {
			kept = append(kept, t)
		}
	}

	if len(history) > 0 && len(kept) > 0 {
		out = append(out, Separator())
	}
	return append(out, kept...)
}

// Labels renders every item, mostly useful in logs and tests.
func Labels(items []Item) []string {
	labels := make([]string, 0, len(items))
	for _, it := range items {
		if it.Kind == KindSeparator {
			labels = append(labels, "---")
			continue
		}
		labels = append(labels, it.Label())
	}
	return labels
}

// Values returns the values of the selectable items.
func Values(items []Item) []string {
	values := make([]string, 0, len(items))
	for _, it := range items {
		if it.Selectable() {
			values = append(values, it.Value)
		}
	}
	return values
}

// TrimmedLabel is Label with the trailing count removed.
func (it Item) TrimmedLabel() string {
	label := it.Label()
	if i := strings.LastIndex(label, "  "); i >= 0 && it.Kind != KindHistory {
		return label[:i]
	}
	return label
}
