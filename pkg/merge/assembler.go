package merge

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/papercomputeco/streamrelay/pkg/sse"
)

// ErrFinalized is returned by Push and Apply once the assembler has been finalized.
var ErrFinalized = errors.New("assembler finalized")

// Assembler accumulates the fragments of one outgoing message as they are
// relayed. It is safe for concurrent use: the relay pump pushes frames while
// other goroutines may take snapshots.
type Assembler struct {
	mu        sync.Mutex
	current   Message
	history   []Message
	fragments int
	malformed int
	terminal  bool
	final     bool
	keep      bool
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithHistory keeps every intermediate accumulator so a message can be
// replayed step by step.
func WithHistory() AssemblerOption {
	return func(a *Assembler) {
		a.keep = true
	}
}

// NewAssembler creates an empty Assembler.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Push parses a chat-framed frame and applies it. Frames without a payload
// (keep-alives, blank separators) are ignored. Malformed frames are counted
// and reported but do not interrupt assembly.
func (a *Assembler) Push(frame sse.Frame) error {
	if frame.Payload == nil {
		if strings.TrimSpace(frame.Raw) == "" {
			return nil
		}
		a.mu.Lock()
		a.malformed++
		a.mu.Unlock()
		return fmt.Errorf("decoding fragment: %w", ErrEmptyFragment)
	}

	f, err := ParseFragment(frame.Payload)
	if err != nil {
		a.mu.Lock()
		a.malformed++
		a.mu.Unlock()
		return fmt.Errorf("decoding fragment: %w", err)
	}

	return a.Apply(f)
}

// Apply folds an already decoded fragment.
func (a *Assembler) Apply(f Fragment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final {
		return ErrFinalized
	}

	if a.keep {
		a.history = append(a.history, a.current)
	}
	a.current = Apply(a.current, f)
	a.fragments++
	if f.IsTerminal() {
		a.terminal = true
	}
	return nil
}

// Finalize closes the message. When cause is non-nil and no fragment has
// reported an error yet, the cause is recorded as the message error. Later
// calls return the already finalized message unchanged.
func (a *Assembler) Finalize(cause error) Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final {
		return a.current
	}
	a.final = true

	if cause != nil && a.current.ErrorMessage == nil {
		msg := cause.Error()
		a.current = Apply(a.current, Fragment{ErrorMessage: &msg})
	}
	return a.current
}

// Snapshot returns the current accumulator.
func (a *Assembler) Snapshot() Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// History returns the accumulators preceding each applied fragment, oldest
// first. It is empty unless the assembler was created WithHistory.
func (a *Assembler) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// Fragments returns the number of fragments applied.
func (a *Assembler) Fragments() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fragments
}

// Malformed returns the number of frames that could not be decoded.
func (a *Assembler) Malformed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.malformed
}

// SawTerminal reports whether a terminal fragment (definitive role, no
// deltas) has been applied.
func (a *Assembler) SawTerminal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.terminal
}

// Done reports whether Finalize has been called.
func (a *Assembler) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final
}

// Collect reads chat-framed fragments from src until it is exhausted and
// returns the finalized message. A read error finalizes the message with
// that error and is returned alongside it.
func Collect(src io.Reader) (Message, error) {
	a := NewAssembler()
	r := sse.NewReader(src, sse.ChatFraming)

	for {
		frame, err := r.Next()
		if err != nil {
			return a.Finalize(err), err
		}
		if frame == nil {
			return a.Finalize(nil), nil
		}
		// Malformed fragments are skipped; they are counted by the assembler.
		_ = a.Push(*frame)
	}
}
