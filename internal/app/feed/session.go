package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	walog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/sync/errgroup"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

var ErrSessionClosed = errors.New("feed session closed")

// Session owns one feed screen: the store, its reconciler and exactly one
// change subscription. Open acquires the subscription, Close releases it once.
type Session struct {
	store      *Store
	reconciler *Reconciler
	changes    domain.ChangeFeed
	log        walog.Logger

	mu        sync.Mutex
	sub       domain.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
	opened    bool
	closed    bool
	active    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	newBackOff func() backoff.BackOff
}

func NewSession(changes domain.ChangeFeed, repo ReportReader, logger walog.Logger) *Session {
	if logger == nil {
		logger = walog.Noop
	}
	store := NewStore()
	s := &Session{
		store:   store,
		changes: changes,
		log:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
	s.reconciler = NewReconciler(store, repo, logger.Sub("Reconciler"))
	s.reconciler.interested = s.Active
	return s
}

func (s *Session) Store() *Store { return s.store }

func (s *Session) Reconciler() *Reconciler { return s.reconciler }

// Active reports whether the session is open. Work that settles after Close
// checks it and discards its result.
func (s *Session) Active() bool { return s.active.Load() }

// Open subscribes and loads the initial snapshot concurrently. Events that
// arrive during the load are queued and merged once it completes. On error
// nothing is left acquired.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return errors.New("feed session already opened")
	}
	s.opened = true
	s.mu.Unlock()

	var (
		sub  domain.Subscription
		rows []*domain.Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sub, err = s.changes.Subscribe(gctx)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rows, err = s.reconciler.repo.ListReports(gctx)
		if err != nil {
			return fmt.Errorf("initial load: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if sub != nil {
			_ = sub.Close()
		}
		return err
	}

	s.store.Load(rows)

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		_ = sub.Close()
		return ErrSessionClosed
	}
	s.sub = sub
	s.cancel = cancel
	s.done = make(chan struct{})
	s.active.Store(true)
	s.mu.Unlock()

	go s.run(runCtx, sub)
	s.log.Infof("Feed session opened with %d reports", len(rows))
	return nil
}

// Close releases the subscription. Only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.active.Store(false)

		s.mu.Lock()
		s.closed = true
		sub, cancel, done := s.sub, s.cancel, s.done
		s.sub = nil
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if sub != nil {
			s.closeErr = sub.Close()
		}
		if done != nil {
			<-done
		}
		s.log.Infof("Feed session closed")
	})
	return s.closeErr
}

func (s *Session) run(ctx context.Context, sub domain.Subscription) {
	defer close(s.done)

	for {
		for evt := range sub.Events() {
			if !s.Active() {
				return
			}
			s.reconciler.Handle(ctx, evt)
		}
		s.mu.Lock()
		if !s.Active() {
			s.mu.Unlock()
			return
		}
		if s.sub == sub {
			s.sub = nil
		}
		s.mu.Unlock()

		s.log.Warnf("Change subscription ended: %v", sub.Err())
		_ = sub.Close()
		next, err := s.resubscribe(ctx)
		if err != nil {
			return
		}
		sub = next
		if err := s.reconciler.Reload(ctx, true); err != nil {
			s.log.Errorf("Resync after resubscribe failed: %v", err)
		}
	}
}

// resubscribe replaces a subscription that ended while the session was still
// open. Missed events are not replayed; the caller reloads the snapshot.
func (s *Session) resubscribe(ctx context.Context) (domain.Subscription, error) {
	b := s.newBackOff()
	for {
		sub, err := s.changes.Subscribe(ctx)
		if err == nil {
			s.mu.Lock()
			if !s.Active() {
				s.mu.Unlock()
				_ = sub.Close()
				return nil, ErrSessionClosed
			}
			s.sub = sub
			s.mu.Unlock()
			s.log.Infof("Change subscription re-established")
			return sub, nil
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, err
		}
		s.log.Warnf("Resubscribe failed, retrying in %s: %v", wait, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}
