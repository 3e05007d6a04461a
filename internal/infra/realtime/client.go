package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	walog "go.mau.fi/whatsmeow/util/log"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

// ErrGaveUp ends a remote subscription whose backoff policy ran out.
var ErrGaveUp = errors.New("realtime: gave up reconnecting")

// Dialer is a domain.ChangeFeed backed by a remote websocket endpoint. A
// dropped connection is re-dialed with exponential backoff and followed by a
// ChangeResync event, since anything sent in between is lost.
type Dialer struct {
	url        string
	ws         *websocket.Dialer
	buffer     int
	log        walog.Logger
	newBackOff func() backoff.BackOff
}

func NewDialer(url string, logger walog.Logger) *Dialer {
	if logger == nil {
		logger = walog.Noop
	}
	return &Dialer{
		url:    url,
		ws:     websocket.DefaultDialer,
		buffer: DefaultBuffer,
		log:    logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Subscribe dials once; ctx bounds only that first dial.
func (d *Dialer) Subscribe(ctx context.Context) (domain.Subscription, error) {
	conn, _, err := d.ws.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &remoteSubscription{
		d:      d,
		ch:     make(chan domain.ChangeEvent, d.buffer),
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(runCtx)
	return s, nil
}

type remoteSubscription struct {
	d      *Dialer
	ch     chan domain.ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	err    error
}

func (s *remoteSubscription) Events() <-chan domain.ChangeEvent { return s.ch }

func (s *remoteSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *remoteSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSubscriptionClosed
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-s.done
	return nil
}

func (s *remoteSubscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	for {
		err := s.read(ctx, s.current())
		if ctx.Err() != nil {
			return
		}
		s.d.log.Warnf("Realtime connection lost: %v", err)

		conn, err := s.redial(ctx)
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		if !s.swap(conn) {
			_ = conn.Close()
			return
		}
		if !s.emit(ctx, domain.ChangeEvent{Type: domain.ChangeResync, At: time.Now()}) {
			return
		}
	}
}

func (s *remoteSubscription) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// swap installs a fresh connection unless Close won the race.
func (s *remoteSubscription) swap(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *remoteSubscription) read(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		evt, ok := decodeEvent(msg)
		if !ok {
			s.d.log.Debugf("Ignoring realtime frame %s", msg)
			continue
		}
		if !s.emit(ctx, evt) {
			return ctx.Err()
		}
	}
}

func (s *remoteSubscription) emit(ctx context.Context, evt domain.ChangeEvent) bool {
	select {
	case s.ch <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *remoteSubscription) redial(ctx context.Context) (*websocket.Conn, error) {
	b := s.d.newBackOff()
	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, ErrGaveUp
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		conn, _, err := s.d.ws.DialContext(ctx, s.d.url, nil)
		if err == nil {
			s.d.log.Infof("Realtime connection re-established")
			return conn, nil
		}
		s.d.log.Warnf("Realtime redial failed: %v", err)
	}
}

// decodeEvent reads a change frame. Delete frames may carry the id under
// "old" instead of "row".
func decodeEvent(msg []byte) (domain.ChangeEvent, bool) {
	if !gjson.ValidBytes(msg) {
		return domain.ChangeEvent{}, false
	}
	res := gjson.ParseBytes(msg)

	evt := domain.ChangeEvent{Type: domain.ChangeType(res.Get("event").String())}
	evt.ReportID = res.Get("row.id").String()
	if evt.ReportID == "" {
		evt.ReportID = res.Get("old.id").String()
	}
	if at := res.Get("at"); at.Exists() {
		evt.At = at.Time()
	}

	switch evt.Type {
	case domain.ChangeInsert, domain.ChangeDelete, domain.ChangeUpdate:
		return evt, evt.ReportID != ""
	case domain.ChangeResync:
		return evt, true
	default:
		return domain.ChangeEvent{}, false
	}
}
