package server

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/bastiangx/tagserve/pkg/autocomplete"
	"github.com/bastiangx/tagserve/pkg/index"
	"github.com/bastiangx/tagserve/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// reply decodes every message type the server writes.
type reply struct {
	Type        string       `msgpack:"type"`
	ID          string       `msgpack:"id"`
	Field       uint32       `msgpack:"f"`
	State       string       `msgpack:"st"`
	Value       string       `msgpack:"v"`
	Cursor      int          `msgpack:"cur"`
	Suggestions []Suggestion `msgpack:"s"`
	Selected    int          `msgpack:"sel"`
	Handled     bool         `msgpack:"h"`
	Status      string       `msgpack:"status"`
	Error       string       `msgpack:"e"`
	Code        int          `msgpack:"c"`
}

func newSession(t *testing.T, store kv.Store) *autocomplete.Session {
	t.Helper()
	blob, err := index.Encode([]index.TagRecord{
		{Name: "forest", ImageCount: 900},
		{Name: "fox", ImageCount: 300},
		{Name: "flower", ImageCount: 50},
		{Name: "safe", ImageCount: 1200},
	})
	require.NoError(t, err)
	ci, err := index.Decode(blob)
	require.NoError(t, err)

	cfg := autocomplete.DefaultConfig()
	s := autocomplete.NewSession(cfg, store, autocomplete.WithIndex(ci))
	t.Cleanup(s.Close)
	return s
}

// run feeds reqs to a fresh server and returns everything it wrote.
func run(t *testing.T, store kv.Store, reqs ...any) []reply {
	t.Helper()
	var in bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	for _, r := range reqs {
		require.NoError(t, enc.Encode(r))
	}

	var out bytes.Buffer
	srv := NewServerWithIO(newSession(t, store), store, &in, &out)
	require.NoError(t, srv.Start())
	srv.Close()

	var replies []reply
	dec := msgpack.NewDecoder(&out)
	for {
		var r reply
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		replies = append(replies, r)
	}
	return replies
}

func TestServerReady(t *testing.T) {
	replies := run(t, kv.NewMemory())
	require.Len(t, replies, 1)
	assert.Equal(t, "status", replies[0].Type)
	assert.Equal(t, "ready", replies[0].Status)
}

func TestServerCompletionFlow(t *testing.T) {
	replies := run(t, kv.NewMemory(),
		Request{ID: "a", Op: "attach", Mode: "multi-tags"},
		Request{ID: "i", Op: "input", Field: 1, Value: "safe, fo", Cursor: 8},
		Request{ID: "k1", Op: "key", Field: 1, Code: "ArrowDown"},
		Request{ID: "k2", Op: "key", Field: 1, Code: "Enter"},
	)
	require.Len(t, replies, 5)

	attach := replies[1]
	assert.Equal(t, "view", attach.Type)
	assert.Equal(t, "a", attach.ID)
	assert.Equal(t, uint32(1), attach.Field)
	assert.Equal(t, "idle", attach.State)

	input := replies[2]
	assert.Equal(t, "suggesting", input.State)
	require.Len(t, input.Suggestions, 2)
	assert.Equal(t, "forest  900", input.Suggestions[0].Label)
	assert.Equal(t, "fox", input.Suggestions[1].Value)
	assert.Equal(t, "local", input.Suggestions[1].Kind)
	assert.Equal(t, -1, input.Selected)

	down := replies[3]
	assert.True(t, down.Handled)
	assert.Equal(t, 0, down.Selected)
	assert.Equal(t, "safe, forest", down.Value)

	enter := replies[4]
	assert.True(t, enter.Handled)
	assert.Equal(t, "safe, forest", enter.Value)
	assert.Equal(t, 12, enter.Cursor)
	assert.Empty(t, enter.Suggestions)
}

func TestServerClick(t *testing.T) {
	replies := run(t, kv.NewMemory(),
		Request{ID: "a", Op: "attach", Mode: "single-tag"},
		Request{ID: "i", Op: "input", Field: 1, Value: "-fo", Cursor: 3},
		Request{ID: "c", Op: "click", Field: 1, Index: 1},
	)
	require.Len(t, replies, 4)
	assert.Equal(t, "-fox", replies[3].Value)
	assert.Equal(t, 4, replies[3].Cursor)
}

func TestServerErrors(t *testing.T) {
	replies := run(t, kv.NewMemory(),
		Request{ID: "1", Op: "input", Field: 9},
		Request{ID: "2", Op: "attach", Mode: "tags"},
		Request{ID: "3"},
		Request{ID: "4", Op: "attach"},
		Request{ID: "5", Op: "dance", Field: 1},
		Request{ID: "6", Op: "key", Field: 1},
		Request{ID: "7", Op: "set", StoreKey: "k", Raw: "{nope"},
	)
	require.Len(t, replies, 8)

	codes := map[string]int{}
	for _, r := range replies[1:] {
		if r.Type == "error" {
			codes[r.ID] = r.Code
		}
	}
	assert.Equal(t, map[string]int{"1": 404, "2": 400, "3": 400, "5": 400, "6": 400, "7": 400}, codes)
}

func TestServerPushesUpdatesOnSettingChange(t *testing.T) {
	store := kv.NewMemory()
	replies := run(t, store,
		Request{ID: "s1", Op: "set", StoreKey: "tags_on", Raw: "true"},
		Request{ID: "a", Op: "attach", Condition: "tags_on"},
		Request{ID: "i", Op: "input", Field: 1, Value: "fo", Cursor: 2},
		Request{ID: "s2", Op: "set", StoreKey: "tags_on", Raw: "false"},
	)
	require.Len(t, replies, 6)

	assert.Equal(t, "suggesting", replies[3].State)

	update := replies[4]
	assert.Equal(t, "update", update.Type)
	assert.Empty(t, update.ID)
	assert.Equal(t, uint32(1), update.Field)
	assert.Equal(t, "disabled", update.State)
	assert.Empty(t, update.Suggestions)

	assert.Equal(t, "status", replies[5].Type)
	assert.Equal(t, "s2", replies[5].ID)

	raw, ok, err := store.Get("tags_on")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "false", string(raw))
}

func TestServerDetach(t *testing.T) {
	replies := run(t, kv.NewMemory(),
		Request{ID: "a", Op: "attach"},
		Request{ID: "d", Op: "detach", Field: 1},
		Request{ID: "v", Op: "view", Field: 1},
	)
	require.Len(t, replies, 4)
	assert.Equal(t, "detached", replies[2].Status)
	assert.Equal(t, "error", replies[3].Type)
	assert.Equal(t, 404, replies[3].Code)
}
