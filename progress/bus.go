package progress

import (
	"context"
	"sync"
	"time"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/logging"
)

const (
	// DefaultSubscriberBuffer is the per-subscriber channel capacity.
	DefaultSubscriberBuffer = 64

	// DefaultDrainTimeout bounds how long a finished request waits for a
	// subscriber to read its remaining events.
	DefaultDrainTimeout = time.Minute
)

// eventLog is the ordered history of one request.
type eventLog struct {
	events      []Event
	finishedAt  time.Time
	subscribers int
	discarded   bool

	// changed is closed and replaced on every append.
	changed chan struct{}
}

func (l *eventLog) finished() bool {
	n := len(l.events)
	return n > 0 && l.events[n-1].Terminal()
}

// Bus holds the event logs of all live requests.
type Bus struct {
	mu     sync.Mutex
	logs   map[string]*eventLog
	closed chan struct{}
	once   sync.Once

	buffer int
	drain  time.Duration
	now    func() time.Time
	logger *logging.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithSubscriberBuffer sets the channel capacity of each subscription.
func WithSubscriberBuffer(n int) BusOption {
	return func(b *Bus) {
		if n >= 0 {
			b.buffer = n
		}
	}
}

// WithDrainTimeout sets how long a subscriber may leave events unread after
// the request has finished before it is dropped.
func WithDrainTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.drain = d
		}
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) BusOption {
	return func(b *Bus) {
		b.now = now
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *logging.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus returns an empty Bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		logs:   make(map[string]*eventLog),
		closed: make(chan struct{}),
		buffer: DefaultSubscriberBuffer,
		drain:  DefaultDrainTimeout,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open creates the log for request id. Each id may be opened once.
func (b *Bus) Open(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.logs[id]; ok {
		return errors.Newf(errors.CodeConflict, "request %s already has an event log", id)
	}
	b.logs[id] = &eventLog{changed: make(chan struct{})}
	return nil
}

// Publish appends e to the log of request id and wakes its subscribers. It
// stamps the request id, sequence number and time. Publishing to a finished
// log is an error.
func (b *Bus) Publish(id string, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.logs[id]
	if !ok {
		return errors.Newf(errors.CodeNotFound, "no event log for request %s", id)
	}
	if l.finished() {
		return errors.Newf(errors.CodeConflict, "event log for request %s is finished", id)
	}

	e.RequestID = id
	e.Seq = len(l.events)
	if e.Time.IsZero() {
		e.Time = b.now()
	}
	l.events = append(l.events, e)
	if e.Terminal() {
		l.finishedAt = e.Time
	}

	close(l.changed)
	l.changed = make(chan struct{})
	return nil
}

// Events returns a snapshot of the log of request id.
func (b *Bus) Events(id string) ([]Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.logs[id]
	if !ok {
		return nil, false
	}
	return append([]Event(nil), l.events...), true
}

// Subscribe replays the log of request id from its first event and then
// follows it. The subscription's channel closes after the terminal event,
// when ctx is done, when the subscription is closed, or when the bus
// closes.
//
// Callers should Close the subscription or cancel ctx when they stop
// reading. A subscriber that leaves events unread once the request has
// finished is dropped after the drain timeout, so the log can be swept.
func (b *Bus) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	b.mu.Lock()
	l, ok := b.logs[id]
	if !ok {
		b.mu.Unlock()
		return nil, errors.Newf(errors.CodeNotFound, "no event log for request %s", id)
	}
	l.subscribers++
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ch:     make(chan Event, b.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.pump(ctx, id, l, sub)
	return sub, nil
}

// pump copies events from l to sub, one cursor per subscriber.
func (b *Bus) pump(ctx context.Context, id string, l *eventLog, sub *Subscription) {
	defer func() {
		b.mu.Lock()
		l.subscribers--
		b.mu.Unlock()
		close(sub.ch)
		close(sub.done)
	}()

	var expired <-chan time.Time
	for cursor := 0; ; {
		b.mu.Lock()
		if cursor < len(l.events) {
			e := l.events[cursor]
			if expired == nil && l.finished() {
				timer := time.NewTimer(b.drain)
				defer timer.Stop()
				expired = timer.C
			}
			b.mu.Unlock()

			select {
			case sub.ch <- e:
			case <-ctx.Done():
				return
			case <-b.closed:
				return
			case <-expired:
				b.logger.Debug(ctx, "dropped idle subscriber", "request_id", id, "undelivered", len(l.events)-cursor)
				return
			}
			cursor++
			if e.Terminal() {
				return
			}
			continue
		}
		if l.discarded {
			b.mu.Unlock()
			return
		}
		changed := l.changed
		b.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return
		case <-b.closed:
			b.logger.Debug(ctx, "bus closed before request finished", "request_id", id)
			return
		}
	}
}

// Discard drops the log of request id. Active subscriptions end once they
// have delivered what was already published.
func (b *Bus) Discard(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.logs[id]
	if !ok {
		return
	}
	delete(b.logs, id)
	l.discarded = true
	close(l.changed)
	l.changed = make(chan struct{})
}

// Close ends every subscription. Publishing remains possible so producers
// can finish, but nothing is delivered.
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.closed)
	})
}

// Subscription is one consumer's view of a request's log.
type Subscription struct {
	ch     chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Events returns the channel events arrive on. It is closed after the
// terminal event or when the subscription ends early.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber and waits for delivery to stop. It is safe
// to call more than once and does not affect the request.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}
