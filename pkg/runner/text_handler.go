package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/aretw0/callflow/pkg/domain"
)

// TextHandler is a terminal console for rehearsing a call: agent speech is
// printed and caller turns are read line by line.
type TextHandler struct {
	Reader *bufio.Reader
	Writer io.Writer

	out         *termenv.Output
	interactive bool

	inputChan chan inputResult
	startOnce sync.Once
	writeMu   sync.Mutex
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithColorProfile forces a termenv color profile, e.g. termenv.Ascii for plain output.
func WithColorProfile(p termenv.Profile) TextHandlerOption {
	return func(h *TextHandler) {
		h.out = termenv.NewOutput(h.Writer, termenv.WithProfile(p))
	}
}

// WithPrompt forces the input prompt on or off. By default it is shown only
// when reading from a terminal.
func WithPrompt(show bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.interactive = show
	}
}

// NewTextHandler creates a console over r and w, defaulting to stdin and stdout.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	source, interactive := resolveInputReader(r)
	h := &TextHandler{
		Reader:      bufio.NewReader(source),
		Writer:      w,
		out:         termenv.NewOutput(w),
		interactive: interactive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// resolveInputReader swaps a terminal for the platform console reader (CONIN$ on
// Windows) so Ctrl+C still arrives as a signal while a line is being read.
func resolveInputReader(r io.Reader) (io.Reader, bool) {
	if up, err := lifecycle.UpgradeTerminal(r); err == nil && up != r {
		return up, true
	}
	return r, isTerminal(r)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Say prints a literal agent line, or the instructions of a generated reply.
func (h *TextHandler) Say(_ context.Context, req domain.SpeakRequest) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if req.Text != "" {
		_, err := fmt.Fprintln(h.Writer, h.out.String("agent: "+req.Text).Foreground(h.out.Color("6")))
		return err
	}
	instructions := strings.Join(strings.Fields(req.Instructions), " ")
	_, err := fmt.Fprintln(h.Writer, h.out.String("[generate] "+instructions).Faint())
	return err
}

// Speaking is always false: console lines are written whole.
func (h *TextHandler) Speaking() bool { return false }

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			// Backoff for persistent read failures.
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// Input returns the next sanitized caller line. It returns io.EOF when the
// input is closed, which a rehearsal treats as the caller hanging up.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if h.interactive {
			h.writeMu.Lock()
			fmt.Fprint(h.Writer, "> ")
			h.writeMu.Unlock()
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				_ = h.SystemOutput(ctx, fmt.Sprintf("Error: %v. Please try again.", err))
				continue
			}
			return clean, nil
		}
	}
}

// SystemOutput prints a message that is not part of the conversation.
func (h *TextHandler) SystemOutput(_ context.Context, msg string) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err := fmt.Fprintln(h.Writer, h.out.String("[system] "+msg).Foreground(h.out.Color("3")))
	return err
}
