// Package progress carries per-session progress events from the build task
// to any number of observers.
//
// Each session has an append-only log. Subscribers replay the log from the
// first event and then follow live events; their channel closes right after
// the terminal (READY or ERROR) event. Timestamps within a session never go
// backwards, and nothing can be published after the terminal event.
package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
)

// Sink receives every published event after it is appended to the log.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// HistoryLoader serves the history of sessions no longer held in memory.
type HistoryLoader interface {
	Load(ctx context.Context, sessionID string) ([]Event, error)
}

type sessionLog struct {
	mu     sync.Mutex
	events []Event
	done   bool
	notify chan struct{} // closed and replaced on every append
}

// Bus is the in-process progress bus.
type Bus struct {
	mu      sync.RWMutex
	logs    map[string]*sessionLog
	clock   clockwork.Clock
	sinks   []Sink
	history HistoryLoader
	logger  *slog.Logger
	buffer  int
}

// Option configures a Bus.
type Option func(*Bus)

func WithClock(c clockwork.Clock) Option      { return func(b *Bus) { b.clock = c } }
func WithSinks(s ...Sink) Option              { return func(b *Bus) { b.sinks = append(b.sinks, s...) } }
func WithHistory(h HistoryLoader) Option      { return func(b *Bus) { b.history = h } }
func WithLogger(l *slog.Logger) Option        { return func(b *Bus) { b.logger = l } }
func WithSubscriberBuffer(n int) Option       { return func(b *Bus) { b.buffer = n } }

// NewBus creates a bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logs:   make(map[string]*sessionLog),
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		buffer: 16,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Open registers a session. Opening an existing session is a no-op.
func (b *Bus) Open(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.logs[sessionID]; !ok {
		b.logs[sessionID] = &sessionLog{notify: make(chan struct{})}
	}
}

func (b *Bus) log(sessionID string) (*sessionLog, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.logs[sessionID]
	return l, ok
}

// Publish appends e to the session log and returns it with Seq and TS
// assigned. It fails only for an unknown session or after the terminal event.
func (b *Bus) Publish(ctx context.Context, sessionID string, e Event) (Event, error) {
	l, ok := b.log(sessionID)
	if !ok {
		return Event{}, ErrUnknownSession.WithContext("session_id", sessionID)
	}

	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return Event{}, ErrClosed.WithContext("session_id", sessionID)
	}
	e.SessionID = sessionID
	e.Seq = int64(len(l.events)) + 1
	if e.TS.IsZero() {
		e.TS = b.clock.Now()
	}
	if n := len(l.events); n > 0 && e.TS.Before(l.events[n-1].TS) {
		e.TS = l.events[n-1].TS
	}
	l.events = append(l.events, e)
	if e.Terminal() {
		l.done = true
	}
	close(l.notify)
	l.notify = make(chan struct{})
	l.mu.Unlock()

	for _, s := range b.sinks {
		if err := s.Write(ctx, e); err != nil {
			b.logger.Warn("progress sink write failed",
				logfields.Component(s.Name()),
				logfields.SessionID(sessionID),
				logfields.Error(err))
		}
	}
	return e, nil
}

// Subscribe streams the session's events from the first one. The channel
// closes after the terminal event or when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, error) {
	l, ok := b.log(sessionID)
	if !ok {
		return b.replayStored(ctx, sessionID)
	}

	out := make(chan Event, b.buffer)
	go func() {
		defer close(out)
		next := 0
		for {
			l.mu.Lock()
			pending := l.events[next:len(l.events):len(l.events)]
			done, wait := l.done, l.notify
			l.mu.Unlock()

			for _, e := range pending {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
			next += len(pending)
			if len(pending) > 0 {
				continue
			}
			if done {
				return
			}
			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// replayStored serves a completed session from the history loader.
func (b *Bus) replayStored(ctx context.Context, sessionID string) (<-chan Event, error) {
	if b.history == nil {
		return nil, ErrUnknownSession.WithContext("session_id", sessionID)
	}
	events, err := b.history.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 || !events[len(events)-1].Terminal() {
		return nil, ErrUnknownSession.WithContext("session_id", sessionID)
	}
	out := make(chan Event, len(events))
	for _, e := range events {
		out <- e
	}
	close(out)
	return out, nil
}

// History returns a copy of the events published so far.
func (b *Bus) History(sessionID string) ([]Event, bool) {
	l, ok := b.log(sessionID)
	if !ok {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...), true
}

// Forget drops the in-memory log of a session. Existing subscribers finish
// with what they already hold.
func (b *Bus) Forget(sessionID string) {
	b.mu.Lock()
	delete(b.logs, sessionID)
	b.mu.Unlock()
}

// Sessions reports how many session logs are held in memory.
func (b *Bus) Sessions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.logs)
}
