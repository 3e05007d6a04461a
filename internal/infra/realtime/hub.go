package realtime

import (
	"context"
	"errors"
	"sync"

	walog "go.mau.fi/whatsmeow/util/log"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

var (
	// ErrLagged ends a subscription whose buffer overflowed. Events it missed
	// are not replayed.
	ErrLagged = errors.New("realtime: subscriber fell behind")
	// ErrHubClosed ends every subscription when the hub shuts down.
	ErrHubClosed = errors.New("realtime: hub closed")
)

const DefaultBuffer = 64

// Hub fans report changes out to in-process subscribers. Delivery is
// best effort: there is no replay and a slow subscriber is cut off.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	buffer int
	closed bool
	log    walog.Logger
}

func NewHub(buffer int, logger walog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = walog.Noop
	}
	return &Hub{
		subs:   make(map[*subscription]struct{}),
		buffer: buffer,
		log:    logger,
	}
}

func (h *Hub) Subscribe(ctx context.Context) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	s := &subscription{hub: h, ch: make(chan domain.ChangeEvent, h.buffer)}
	h.subs[s] = struct{}{}
	h.log.Debugf("Subscriber added (total %d)", len(h.subs))
	return s, nil
}

// Publish never blocks. Subscribers with a full buffer are ended with
// ErrLagged.
func (h *Hub) Publish(evt domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for s := range h.subs {
		select {
		case s.ch <- evt:
			sent++
		default:
			h.log.Warnf("Subscriber lagged, dropping it")
			h.endLocked(s, ErrLagged)
		}
	}
	h.log.Debugf("Published %s %s to %d subscribers", evt.Type, evt.ReportID, sent)
}

// Close ends all subscriptions; later Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		h.endLocked(s, ErrHubClosed)
	}
}

func (h *Hub) endLocked(s *subscription, err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	delete(h.subs, s)
	close(s.ch)
}

type subscription struct {
	hub *Hub
	ch  chan domain.ChangeEvent

	// guarded by hub.mu
	ended    bool
	released bool
	err      error
}

func (s *subscription) Events() <-chan domain.ChangeEvent { return s.ch }

func (s *subscription) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.released {
		return domain.ErrSubscriptionClosed
	}
	s.released = true
	s.hub.endLocked(s, nil)
	return nil
}
