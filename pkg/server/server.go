package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bastiangx/tagserve/internal/encoding/jsonx"
	"github.com/bastiangx/tagserve/internal/logger"
	"github.com/bastiangx/tagserve/pkg/autocomplete"
	"github.com/bastiangx/tagserve/pkg/kv"
	"github.com/bastiangx/tagserve/pkg/terms"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// field is one attached controller.
type field struct {
	id   uint32
	ctrl *autocomplete.Controller
	// busy is set while a request for the field runs; its view goes into
	// the reply instead of an update message.
	busy atomic.Bool
}

// Server handles the IPC for tag autocompletion.
type Server struct {
	session *autocomplete.Session
	store   kv.Store
	dec     *msgpack.Decoder
	log     *log.Logger

	wmu sync.Mutex
	w   *bufio.Writer
	enc *msgpack.Encoder

	mu     sync.Mutex
	fields map[uint32]*field
	nextID uint32
}

// NewServer creates a server on stdin/stdout.
func NewServer(session *autocomplete.Session, store kv.Store) *Server {
	return NewServerWithIO(session, store, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server reading requests from r and writing to w.
func NewServerWithIO(session *autocomplete.Session, store kv.Store, r io.Reader, w io.Writer) *Server {
	bw := bufio.NewWriter(w)
	return &Server{
		session: session,
		store:   store,
		dec:     msgpack.NewDecoder(bufio.NewReader(r)),
		log:     logger.New("server"),
		w:       bw,
		enc:     msgpack.NewEncoder(bw),
		fields:  make(map[uint32]*field),
	}
}

// Start sends the ready status and processes requests until the input ends.
func (s *Server) Start() error {
	s.log.Debug("Starting server")
	s.send(StatusMessage{Type: typeStatus, Status: "ready"})

	for {
		raw, err := s.dec.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Debug("Input closed, stopping")
				return nil
			}
			s.log.Errorf("Reading request: %v", err)
			return err
		}

		var req Request
		if err := msgpack.Unmarshal(raw, &req); err != nil {
			s.log.Debugf("Invalid request: %v", err)
			s.sendError("", "invalid request", 400)
			continue
		}
		s.handle(req)
	}
}

// Close detaches every field. The session is left to the caller.
func (s *Server) Close() {
	s.mu.Lock()
	fields := s.fields
	s.fields = make(map[uint32]*field)
	s.mu.Unlock()

	for _, f := range fields {
		f.ctrl.Detach()
	}
}

func (s *Server) handle(req Request) {
	start := time.Now()

	switch req.Op {
	case "health":
		s.send(StatusMessage{Type: typeStatus, ID: req.ID, Status: "ok"})
		return
	case "set":
		s.handleSet(req)
		return
	case "attach":
		s.handleAttach(req, start)
		return
	case "":
		s.sendError(req.ID, "missing 'op'", 400)
		return
	}

	f, ok := s.field(req.Field)
	if !ok {
		s.sendError(req.ID, fmt.Sprintf("unknown field %d", req.Field), 404)
		return
	}

	f.busy.Store(true)
	handled, err := s.apply(f, req)
	f.busy.Store(false)
	if err != nil {
		s.sendError(req.ID, err.Error(), 400)
		return
	}

	if req.Op == "detach" {
		s.send(StatusMessage{Type: typeStatus, ID: req.ID, Status: "detached"})
		return
	}

	msg := viewMessage(typeView, f.id, f.ctrl.View())
	msg.ID = req.ID
	msg.Handled = handled
	msg.TimeTaken = time.Since(start).Microseconds()
	s.send(msg)
}

// apply runs one field op against the controller.
func (s *Server) apply(f *field, req Request) (bool, error) {
	c := f.ctrl
	switch req.Op {
	case "focus":
		c.Focus(req.Value, req.Cursor)
	case "input":
		c.Input(req.Value, req.Cursor)
	case "key":
		if req.Code == "" && req.Key == "" {
			return false, errors.New("missing 'code' or 'key'")
		}
		return c.KeyDown(autocomplete.KeyEvent{Code: req.Code, Key: req.Key, Ctrl: req.Ctrl, Shift: req.Shift}), nil
	case "click":
		c.Click(req.Index, req.Ctrl, req.Shift)
	case "submit":
		c.Submit()
	case "blur":
		c.Blur()
	case "view":
	case "detach":
		s.mu.Lock()
		delete(s.fields, f.id)
		s.mu.Unlock()
		c.Detach()
	default:
		return false, fmt.Errorf("unknown op: %s", req.Op)
	}
	return false, nil
}

func (s *Server) handleAttach(req Request, start time.Time) {
	var mode terms.Mode
	if req.Mode != "" {
		m, err := terms.ParseMode(req.Mode)
		if err != nil {
			s.sendError(req.ID, err.Error(), 400)
			return
		}
		mode = m
	}
	if req.Limit < 0 {
		s.sendError(req.ID, "'l' must not be negative", 400)
		return
	}

	ctrl := s.session.Attach(autocomplete.Field{
		Mode:           mode,
		Condition:      req.Condition,
		HistoryID:      req.HistoryID,
		MaxSuggestions: req.Limit,
	})

	s.mu.Lock()
	s.nextID++
	f := &field{id: s.nextID, ctrl: ctrl}
	s.fields[f.id] = f
	s.mu.Unlock()

	ctrl.OnChange(func(v autocomplete.View) {
		if f.busy.Load() {
			return
		}
		s.send(viewMessage(typeUpdate, f.id, v))
	})
	s.log.Debugf("Attached field %d (mode=%q, hist=%q)", f.id, req.Mode, req.HistoryID)

	msg := viewMessage(typeView, f.id, ctrl.View())
	msg.ID = req.ID
	msg.TimeTaken = time.Since(start).Microseconds()
	s.send(msg)
}

// handleSet writes a raw JSON value into the kv store. An empty value removes the key.
func (s *Server) handleSet(req Request) {
	if req.StoreKey == "" {
		s.sendError(req.ID, "missing 'k'", 400)
		return
	}

	var err error
	if req.Raw == "" {
		err = s.store.Remove(req.StoreKey)
	} else {
		var probe any
		if jerr := jsonx.Unmarshal([]byte(req.Raw), &probe); jerr != nil {
			s.sendError(req.ID, fmt.Sprintf("'raw' is not JSON: %v", jerr), 400)
			return
		}
		err = s.store.Set(req.StoreKey, []byte(req.Raw))
	}
	if err != nil {
		s.log.Warnf("Failed to write %s: %v", req.StoreKey, err)
		s.sendError(req.ID, err.Error(), 500)
		return
	}
	s.send(StatusMessage{Type: typeStatus, ID: req.ID, Status: "ok"})
}

func (s *Server) field(id uint32) (*field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[id]
	return f, ok
}

// send writes one message and flushes. Safe for concurrent use.
func (s *Server) send(msg any) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.enc.Encode(msg); err != nil {
		s.log.Errorf("Encoding response: %v", err)
		return
	}
	if err := s.w.Flush(); err != nil {
		s.log.Errorf("Writing response: %v", err)
	}
}

func (s *Server) sendError(id, message string, code int) {
	s.send(ErrorMessage{Type: typeError, ID: id, Error: message, Code: code})
}

func viewMessage(typ string, id uint32, v autocomplete.View) ViewMessage {
	suggestions := make([]Suggestion, 0, len(v.Items))
	for _, it := range v.Items {
		suggestions = append(suggestions, Suggestion{
			Label: it.Label(),
			Value: it.Value,
			Kind:  it.Kind.String(),
			Count: it.Count,
		})
	}
	return ViewMessage{
		Type:        typ,
		Field:       id,
		State:       v.State.String(),
		Value:       v.Value,
		Cursor:      v.Cursor,
		Suggestions: suggestions,
		Selected:    v.Selected,
	}
}
