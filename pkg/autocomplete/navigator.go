package autocomplete

import "github.com/bastiangx/tagserve/pkg/suggest"

// NoSelection is the navigator position before the first item.
const NoSelection = -1

// Navigator moves a selection over a suggestion list, skipping separators.
type Navigator struct {
	items  []suggest.Item
	cursor int
}

// Reset replaces the list and clears the selection.
func (n *Navigator) Reset(items []suggest.Item) {
	n.items = items
	n.cursor = NoSelection
}

// Index returns the selected index or NoSelection.
func (n *Navigator) Index() int {
	return n.cursor
}

// Selected returns the selected item.
func (n *Navigator) Selected() (suggest.Item, bool) {
	if n.cursor < 0 || n.cursor >= len(n.items) {
		return suggest.Item{}, false
	}
	return n.items[n.cursor], true
}

// Clear drops the selection.
func (n *Navigator) Clear() {
	n.cursor = NoSelection
}

// Down selects the next item. Past the last item the selection is cleared.
func (n *Navigator) Down() {
	from := n.cursor + 1
	if n.cursor == NoSelection {
		from = 0
	}
	n.cursor = n.next(from)
}

// Up selects the previous item. From no selection it wraps to the last
// item, before the first one the selection is cleared.
func (n *Navigator) Up() {
	from := n.cursor - 1
	if n.cursor == NoSelection {
		from = len(n.items) - 1
	}
	n.cursor = n.prev(from)
}

// First jumps to the first selectable item.
func (n *Navigator) First() {
	n.cursor = n.next(0)
}

// Last jumps to the last selectable item.
func (n *Navigator) Last() {
	n.cursor = n.prev(len(n.items) - 1)
}

// Select moves to i if it is a selectable item.
func (n *Navigator) Select(i int) bool {
	if i < 0 || i >= len(n.items) || !n.items[i].Selectable() {
		return false
	}
	n.cursor = i
	return true
}

func (n *Navigator) next(from int) int {
	for i := max(from, 0); i < len(n.items); i++ {
		if n.items[i].Selectable() {
			return i
		}
	}
	return NoSelection
}

func (n *Navigator) prev(from int) int {
	for i := min(from, len(n.items)-1); i >= 0; i-- {
		if n.items[i].Selectable() {
			return i
		}
	}
	return NoSelection
}
