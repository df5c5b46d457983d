package relay

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrShuttingDown is returned by Tracker.Go once Shutdown has started.
	ErrShuttingDown = errors.New("relay shutting down")

	// ErrServerShutdown is the abort reason given to sessions still running
	// when the tracker shuts down.
	ErrServerShutdown = errors.New("server shutdown")
)

// Tracker runs detached pump goroutines and keeps a registry of their
// sessions so they can be counted and aborted on shutdown.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
	closing  bool
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*Session)}
}

// Go runs fn on its own goroutine, registering s until fn returns. The task
// outlives the request handler that started it.
func (t *Tracker) Go(s *Session, fn func()) error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return ErrShuttingDown
	}
	t.sessions[s.ID] = s
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer t.remove(s.ID)
		fn()
	}()
	return nil
}

func (t *Tracker) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// Active returns the number of running sessions.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Lookup returns the running session with the given ID.
func (t *Tracker) Lookup(id string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Shutdown stops accepting sessions, aborts the running ones and waits for
// their pumps to return or ctx to be done.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closing = true
	running := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		running = append(running, s)
	}
	t.mu.Unlock()

	for _, s := range running {
		s.Abort(ErrServerShutdown)
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
