/*
Package server implements msgpack IPC for tag autocompletion.

The server reads a stream of msgpack maps from stdin and writes msgpack maps to stdout.
There is no framing besides msgpack itself; every request is one map.

# IPC

A client first attaches a field and gets a handle back:

	{"id": "a1", "op": "attach", "mode": "multi-tags", "hist": "search"}
	{"type": "view", "id": "a1", "f": 1, "st": "idle", "v": "", "cur": 0, "s": [], "sel": -1, "t": 12}

Every later request names the field handle:

	{"id": "r1", "op": "input", "f": 1, "v": "forest, t", "cur": 9}
	{"id": "r2", "op": "key", "f": 1, "code": "ArrowDown"}
	{"id": "r3", "op": "click", "f": 1, "i": 2, "ctrl": true}

Each request is answered with a view message carrying the same id. Key
requests also report whether the key was consumed in "h", in which case the
editor must suppress its default action.

Suggestions coming back from the server after the debounce window, and
refreshes after the compiled index finished loading, are pushed as update
messages without an id:

	{"type": "update", "f": 1, "st": "suggesting", "v": "forest, t", "cur": 9, "s": [...], "sel": -1}

Errors carry the request id, a message and an http-like code:

	{"type": "error", "id": "r9", "e": "unknown field 7", "c": 404}

# Ops

	attach   mode, cond, hist, l      create a field controller
	detach   f                        drop it
	focus    f, v, cur                field gained focus
	input    f, v, cur                field content or cursor changed
	key      f, code, key, ctrl, shift
	click    f, i, ctrl, shift        accept the i-th item
	submit   f                        the form was submitted
	blur     f                        field lost focus
	view     f                        current view, no side effects
	set      k, raw                   write a JSON value into the kv store
	health                            liveness probe
*/
package server

// Request is any client message. Unused fields are omitted per op.
type Request struct {
	ID    string `msgpack:"id"`
	Op    string `msgpack:"op"`
	Field uint32 `msgpack:"f,omitempty"`

	// attach
	Mode      string `msgpack:"mode,omitempty"`
	Condition string `msgpack:"cond,omitempty"`
	HistoryID string `msgpack:"hist,omitempty"`
	Limit     int    `msgpack:"l,omitempty"`

	// focus, input
	Value  string `msgpack:"v,omitempty"`
	Cursor int    `msgpack:"cur,omitempty"`

	// key, click
	Code  string `msgpack:"code,omitempty"`
	Key   string `msgpack:"key,omitempty"`
	Ctrl  bool   `msgpack:"ctrl,omitempty"`
	Shift bool   `msgpack:"shift,omitempty"`
	Index int    `msgpack:"i,omitempty"`

	// set
	StoreKey string `msgpack:"k,omitempty"`
	Raw      string `msgpack:"raw,omitempty"`
}

// Suggestion is one row of the popup.
type Suggestion struct {
	Label string `msgpack:"l"`
	Value string `msgpack:"v"`
	Kind  string `msgpack:"k"`
	Count int    `msgpack:"c,omitempty"`
}

// ViewMessage answers field requests and carries pushed updates.
type ViewMessage struct {
	Type        string       `msgpack:"type"`
	ID          string       `msgpack:"id,omitempty"`
	Field       uint32       `msgpack:"f"`
	State       string       `msgpack:"st"`
	Value       string       `msgpack:"v"`
	Cursor      int          `msgpack:"cur"`
	Suggestions []Suggestion `msgpack:"s"`
	Selected    int          `msgpack:"sel"`
	Handled     bool         `msgpack:"h,omitempty"`
	TimeTaken   int64        `msgpack:"t,omitempty"`
}

// StatusMessage is sent on startup and in reply to health and set.
type StatusMessage struct {
	Type   string `msgpack:"type"`
	ID     string `msgpack:"id,omitempty"`
	Status string `msgpack:"status"`
}

// ErrorMessage holds basic error information for a failed request
type ErrorMessage struct {
	Type  string `msgpack:"type"`
	ID    string `msgpack:"id,omitempty"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}

const (
	typeView   = "view"
	typeUpdate = "update"
	typeStatus = "status"
	typeError  = "error"
)
