// Package cli runs one autocompleted field in the terminal for DBG and testing the controller.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bastiangx/tagserve/pkg/autocomplete"
	"github.com/charmbracelet/log"
)

// InputHandler feeds stdin lines to a field controller. A plain line
// replaces the field value with the cursor at its end; lines starting with
// ':' are key commands.
type InputHandler struct {
	ctrl *autocomplete.Controller
	in   io.Reader
	out  io.Writer
	mu   sync.Mutex

	requestCount int
}

const help = `commands:
  :down :up      move the selection        :cdown :cup  jump to last / first
  :enter         accept the selection      :center      accept and submit
  :esc           close the popup           :submit      record the value in history
  :pick N        click the N-th item       :view        redraw
  :q             quit`

// NewInputHandler attaches field to session and reads from stdin.
func NewInputHandler(session *autocomplete.Session, field autocomplete.Field) *InputHandler {
	return newInputHandler(session, field, os.Stdin, os.Stdout)
}

func newInputHandler(session *autocomplete.Session, field autocomplete.Field, in io.Reader, out io.Writer) *InputHandler {
	h := &InputHandler{
		ctrl: session.Attach(field),
		in:   in,
		out:  out,
	}
	// server responses and index loads arrive asynchronously
	h.ctrl.OnChange(h.draw)
	return h
}

// Start begins the interface loop and returns when stdin is closed or :q is typed.
func (h *InputHandler) Start() error {
	defer h.ctrl.Detach()

	log.Print("TagServe CLI [BETA]")
	log.Print("type tags and press Enter to see the suggestions, :help for commands (Ctrl+C to exit):")

	reader := bufio.NewReader(h.in)
	h.ctrl.Focus("", 0)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			if quit := h.handleInput(line); quit {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// handleInput runs one line and reports whether the loop should stop.
func (h *InputHandler) handleInput(line string) bool {
	h.requestCount++
	start := time.Now()
	defer func() {
		log.Debugf("Took [ %v ] for request %d", time.Since(start), h.requestCount)
	}()

	if !strings.HasPrefix(line, ":") {
		h.ctrl.Input(line, len(line))
		return false
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	switch cmd {
	case "q", "quit":
		return true
	case "help":
		h.print(help)
	case "view":
		h.draw(h.ctrl.View())
	case "down":
		h.key(autocomplete.KeyEvent{Code: "ArrowDown"})
	case "up":
		h.key(autocomplete.KeyEvent{Code: "ArrowUp"})
	case "cdown":
		h.key(autocomplete.KeyEvent{Code: "ArrowDown", Ctrl: true})
	case "cup":
		h.key(autocomplete.KeyEvent{Code: "ArrowUp", Ctrl: true})
	case "enter":
		h.key(autocomplete.KeyEvent{Code: "Enter", Key: "Enter"})
	case "center":
		h.key(autocomplete.KeyEvent{Code: "Enter", Key: "Enter", Ctrl: true})
	case "esc":
		h.key(autocomplete.KeyEvent{Code: "Escape", Key: "Escape"})
	case "submit":
		h.ctrl.Submit()
		log.Info("Submitted", "value", h.ctrl.View().Value)
	case "pick":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 1 {
			log.Errorf("Usage: :pick N (got %q)", arg)
			return false
		}
		h.ctrl.Click(n-1, false, false)
	default:
		log.Errorf("Unknown command: %s", cmd)
	}
	return false
}

func (h *InputHandler) key(ev autocomplete.KeyEvent) {
	if !h.ctrl.KeyDown(ev) {
		log.Debug("Key not consumed", "key", ev.Code)
	}
}

func (h *InputHandler) draw(v autocomplete.View) {
	h.print(Render(v))
}

func (h *InputHandler) print(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.out, s)
}
