package autocomplete

import (
	"strings"
	"sync"

	"github.com/bastiangx/tagserve/internal/metrics"
	"github.com/bastiangx/tagserve/pkg/history"
	"github.com/bastiangx/tagserve/pkg/suggest"
	"github.com/bastiangx/tagserve/pkg/terms"
)

// Controller runs autocompletion for one field. Its methods are safe to
// call from any goroutine; listeners run outside the controller lock.
type Controller struct {
	s       *Session
	field   Field
	history *history.Store
	max     int

	mu       sync.Mutex
	state    State
	enabled  bool
	focused  bool
	value    string
	cursor   int
	orig     string
	origCur  int
	span     terms.Span
	items    []suggest.Item
	nav      Navigator
	gen      uint64
	timer    Timer
	listener func(View)
	unwatch  []func()
}

// Attach creates the controller for field.
func (s *Session) Attach(field Field) *Controller {
	if field.Mode == "" {
		field.Mode = terms.MultiTags
	}
	c := &Controller{
		s:       s,
		field:   field,
		history: s.history.Load(field.HistoryID),
		max:     s.cfg.MaxSuggestions,
		state:   Idle,
	}
	if field.MaxSuggestions > 0 {
		c.max = field.MaxSuggestions
	}
	c.nav.Reset(nil)
	c.enabled = s.enabled(field)
	if !c.enabled {
		c.state = Disabled
	}

	watched := []string{field.Condition, s.cfg.HistoryHiddenKey, s.cfg.HistoryLimitKey, s.cfg.UnfilterKey}
	for _, key := range watched {
		if key == "" {
			continue
		}
		c.unwatch = append(c.unwatch, s.store.Watch(key, func([]byte, bool) { c.settingsChanged() }))
	}
	return c
}

// OnChange registers fn to receive the view after every change, including
// ones caused by asynchronous index loads and server responses.
func (c *Controller) OnChange(fn func(View)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// Detach stops watching settings and drops pending work.
func (c *Controller) Detach() {
	c.mu.Lock()
	c.cancelPendingLocked()
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()

	for _, fn := range unwatch {
		fn()
	}
	c.s.forget(c)
}

// View returns what the field currently shows.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Focus is called when the field gains focus with its current content.
// A popup that is already open is left alone.
func (c *Controller) Focus(value string, cursor int) {
	c.mu.Lock()
	c.focused = true
	if len(c.items) > 0 {
		c.mu.Unlock()
		return
	}
	c.refreshLocked(value, cursor)
	c.emitUnlock()
}

// Input is called after every edit of the field or cursor move.
func (c *Controller) Input(value string, cursor int) {
	c.mu.Lock()
	c.focused = true
	c.refreshLocked(value, cursor)
	c.emitUnlock()
}

// Blur hides the popup and forgets pending requests.
func (c *Controller) Blur() {
	c.mu.Lock()
	c.focused = false
	c.cancelPendingLocked()
	c.setItemsLocked(nil)
	if c.enabled {
		c.state = Idle
	}
	c.emitUnlock()
}

// KeyDown handles navigation keys. It reports whether the key was consumed
// and its default action should be suppressed.
func (c *Controller) KeyDown(ev KeyEvent) bool {
	c.mu.Lock()
	if !c.enabled || !c.focused {
		c.mu.Unlock()
		return false
	}

	if c.field.Mode == terms.SingleTag && (ev.Key == "," || ev.isEnter()) {
		// a comma or Enter ends the tag in single-tag fields
		if it, ok := c.nav.Selected(); ok {
			return c.commitUnlock(it, ev.Ctrl, ev.Shift)
		}
		c.closeLocked()
		c.emitUnlock()
		return false
	}

	switch {
	case ev.isEnter():
		it, ok := c.nav.Selected()
		if !ok {
			c.closeLocked()
			value := c.value
			c.emitUnlock()
			c.record(value)
			return false
		}
		return c.commitUnlock(it, ev.Ctrl, ev.Shift)

	case ev.Key == ",":
		it, ok := c.nav.Selected()
		if !ok {
			c.closeLocked()
			c.emitUnlock()
			return false
		}
		// the comma is only typed when no separator follows the new term
		value, cursor := c.apply(it)
		separated := strings.HasPrefix(value[cursor:], ",")
		c.commitUnlock(it, false, true)
		return separated

	case ev.name() == "Escape":
		shown := len(c.items) > 0
		c.value, c.cursor = c.orig, c.origCur
		c.closeLocked()
		c.emitUnlock()
		return shown

	case ev.name() == "ArrowDown", ev.name() == "ArrowUp":
		if len(c.items) == 0 {
			c.mu.Unlock()
			return false
		}
		switch {
		case ev.name() == "ArrowDown" && ev.Ctrl:
			c.nav.Last()
		case ev.name() == "ArrowDown":
			c.nav.Down()
		case ev.Ctrl:
			c.nav.First()
		default:
			c.nav.Up()
		}
		c.previewLocked()
		c.emitUnlock()
		return true
	}

	c.mu.Unlock()
	return false
}

// Click accepts the i-th item as if it was selected and Enter was pressed.
func (c *Controller) Click(i int, ctrl, shift bool) {
	c.mu.Lock()
	if !c.enabled || !c.nav.Select(i) {
		c.mu.Unlock()
		return
	}
	it, _ := c.nav.Selected()
	c.commitUnlock(it, ctrl, shift)
}

// Submit records the field value in history, like a form submission.
func (c *Controller) Submit() {
	c.mu.Lock()
	c.closeLocked()
	value := c.value
	c.emitUnlock()
	c.record(value)
}

func (c *Controller) record(value string) {
	if c.history == nil {
		return
	}
	if err := c.history.Record(value); err != nil {
		c.s.log.Debugf("Not recorded in history: %v", err)
	}
}

// refreshLocked recomputes the suggestion list for a new field value.
func (c *Controller) refreshLocked(value string, cursor int) {
	c.cancelPendingLocked()
	c.value, c.cursor = value, cursor
	c.orig, c.origCur = value, cursor
	c.span = terms.CurrentTerm(c.field.Mode, value, cursor)

	c.enabled = c.s.enabled(c.field)
	if !c.enabled {
		c.setItemsLocked(nil)
		c.state = Disabled
		return
	}

	idx := c.s.ensureIndex(c)
	histLimit, histOn := c.s.historyLimit()
	trimmed := strings.TrimSpace(value)
	query := strings.ToLower(trimmed)

	var hist []suggest.Item
	if histOn && c.history != nil {
		if trimmed == "" {
			hist = suggest.History(history.Terms(c.history.Matching("", c.max)), 0)
			c.showLocked(hist, nil, idx)
			return
		}
		hist = suggest.History(history.Terms(c.history.Matching(query, min(histLimit, c.max))), len(query))
	}

	if c.span.Empty() || len(hist) >= c.max {
		c.showLocked(hist, nil, idx)
		return
	}

	room := c.max - len(hist)
	var tags []suggest.Item
	if idx == indexReady {
		// local results depend on the hidden set and the field limit,
		// only server-side results go through the shared cache
		if s := c.s.searcher(); s != nil {
			tags = s.Complete(c.span.Text, c.max, c.s.hidden())
		}
	}
	cached := false
	if len(tags) == 0 {
		tags, cached = c.s.cache.Get(c.span.Text)
	}
	c.showLocked(hist, truncate(tags, room), idx)

	if len(tags) > 0 || cached || idx == indexLoading || c.s.remote == nil {
		return
	}
	if len([]rune(strings.TrimSpace(c.span.Text))) < c.s.cfg.MinRemoteTerm {
		return
	}

	gen, term := c.gen, c.span.Text
	c.timer = c.s.clock.AfterFunc(c.s.cfg.Debounce, func() { c.fetchRemote(gen, term, hist) })
	c.state = AwaitingRemote
}

// fetchRemote runs when the debounce window of gen elapses.
func (c *Controller) fetchRemote(gen uint64, term string, hist []suggest.Item) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	items, err := c.s.cache.Do(c.s.ctx, term, c.s.fetchSuggestions)

	c.mu.Lock()
	if gen != c.gen {
		metrics.StaleResponses.Inc()
		c.s.log.Debugf("Dropping suggestions for %q, the term has changed", term)
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.s.log.Warnf("Server-side suggestions for %q failed: %v", term, err)
		items = nil
	}
	c.showLocked(hist, truncate(items, c.max-len(hist)), indexReady)
	c.emitUnlock()
}

// indexSettled is called by the session once the compiled index load ends.
func (c *Controller) indexSettled() {
	c.mu.Lock()
	if !c.focused || !c.enabled {
		c.mu.Unlock()
		return
	}
	c.refreshLocked(c.orig, c.origCur)
	c.emitUnlock()
}

// settingsChanged re-evaluates the field after a watched kv key changed.
func (c *Controller) settingsChanged() {
	c.mu.Lock()
	if !c.focused {
		c.enabled = c.s.enabled(c.field)
		if !c.enabled {
			c.state = Disabled
		} else if c.state == Disabled {
			c.state = Idle
		}
		c.mu.Unlock()
		return
	}
	c.refreshLocked(c.orig, c.origCur)
	c.emitUnlock()
}

func (c *Controller) showLocked(hist, tags []suggest.Item, idx indexState) {
	c.setItemsLocked(suggest.Merge(hist, tags))
	switch {
	case len(c.items) > 0:
		c.state = Suggesting
	case idx == indexLoading:
		c.state = AwaitingLocalIndex
	default:
		c.state = Ready
	}
}

func (c *Controller) setItemsLocked(items []suggest.Item) {
	c.items = items
	c.nav.Reset(items)
}

// previewLocked writes the selected item into the field without committing,
// or restores the typed text when nothing is selected.
func (c *Controller) previewLocked() {
	it, ok := c.nav.Selected()
	if !ok {
		c.value, c.cursor = c.orig, c.origCur
		return
	}
	c.value, c.cursor = c.apply(it)
}

func (c *Controller) apply(it suggest.Item) (string, int) {
	if it.Kind == suggest.KindHistory {
		return it.Value, len(it.Value)
	}
	return terms.Replace(c.field.Mode, c.orig, c.span, it.Value)
}

// commitUnlock accepts it, closes the popup and releases c.mu. Accepting a
// history item without Shift, or anything with Ctrl, submits the field.
func (c *Controller) commitUnlock(it suggest.Item, ctrl, shift bool) bool {
	value, cursor := c.apply(it)
	c.value, c.cursor = value, cursor
	c.orig, c.origCur = value, cursor
	c.span = terms.CurrentTerm(c.field.Mode, value, cursor)
	c.closeLocked()
	c.state = Idle
	submit := ctrl || (it.Kind == suggest.KindHistory && !shift)
	c.emitUnlock()

	if submit {
		c.record(value)
	}
	return true
}

// closeLocked hides the popup and invalidates pending remote work.
func (c *Controller) closeLocked() {
	c.cancelPendingLocked()
	c.setItemsLocked(nil)
	if c.enabled {
		c.state = Ready
		if !c.focused {
			c.state = Idle
		}
	}
}

func (c *Controller) cancelPendingLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) viewLocked() View {
	return View{
		State:    c.state,
		Value:    c.value,
		Cursor:   c.cursor,
		Items:    append([]suggest.Item(nil), c.items...),
		Selected: c.nav.Index(),
	}
}

// emitUnlock releases c.mu and hands the current view to the listener.
func (c *Controller) emitUnlock() {
	v := c.viewLocked()
	fn := c.listener
	c.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func truncate(items []suggest.Item, n int) []suggest.Item {
	if n <= 0 {
		return nil
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
