// Package autocomplete drives tag suggestions for input fields.
//
// A Session owns everything shared between fields: the compiled index, the
// suggestion cache, the history buckets and the remote client. Each field
// gets a Controller from Session.Attach, which turns focus, input and key
// events into a suggestion list and edits of the field value.
package autocomplete

import (
	"strconv"
	"time"

	"github.com/bastiangx/tagserve/pkg/index"
	"github.com/bastiangx/tagserve/pkg/suggest"
	"github.com/bastiangx/tagserve/pkg/terms"
)

// Config holds the knobs shared by every field of a session.
type Config struct {
	// MaxSuggestions caps the list and is the limit sent to the server.
	MaxSuggestions int
	// HistoryWhenTyping caps history items once something is typed.
	HistoryWhenTyping int
	Debounce          time.Duration
	// MinRemoteTerm is the shortest term, in characters, worth a server request.
	MinRemoteTerm int
	// HistoryHiddenKey names the kv flag that hides history suggestions.
	HistoryHiddenKey string
	// HistoryLimitKey names the kv number overriding HistoryWhenTyping.
	HistoryLimitKey string
	// HiddenTags are suppressed from local results unless UnfilterKey is set.
	HiddenTags  []index.TagID
	UnfilterKey string
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		MaxSuggestions:    10,
		HistoryWhenTyping: 3,
		Debounce:          300 * time.Millisecond,
		MinRemoteTerm:     1,
		HistoryHiddenKey:  "autocomplete_search_history_hidden",
		HistoryLimitKey:   "autocomplete_search_history_max_suggestions_when_typing",
	}
}

// Field describes one autocompleted input.
type Field struct {
	Mode terms.Mode
	// Condition names a kv flag that must be truthy for the field to be enabled.
	// Empty means always enabled.
	Condition string
	// HistoryID selects the history bucket. Empty disables history.
	HistoryID string
	// MaxSuggestions overrides Config.MaxSuggestions when positive.
	MaxSuggestions int
}

// State is where a controller is in its lifecycle.
type State int

const (
	Disabled State = iota
	Idle
	AwaitingLocalIndex
	Ready
	Suggesting
	AwaitingRemote
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Idle:
		return "idle"
	case AwaitingLocalIndex:
		return "awaiting-local-index"
	case Ready:
		return "ready"
	case Suggesting:
		return "suggesting"
	case AwaitingRemote:
		return "awaiting-remote"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// KeyEvent is a key press in the field. Some input sources leave Code
// empty, so Enter is recognized by either field.
type KeyEvent struct {
	Code  string
	Key   string
	Ctrl  bool
	Shift bool
}

func (e KeyEvent) isEnter() bool {
	return e.Code == "Enter" || e.Code == "NumpadEnter" || e.Key == "Enter"
}

func (e KeyEvent) name() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Key
}

// View is what a field should currently display.
type View struct {
	State  State
	Value  string
	Cursor int
	// Items is empty when the popup is hidden.
	Items []suggest.Item
	// Selected is the index into Items, or NoSelection.
	Selected int
}

// Labels renders the visible items.
func (v View) Labels() []string {
	return suggest.Labels(v.Items)
}
