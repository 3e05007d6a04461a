package leaderboard

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	walog "go.mau.fi/whatsmeow/util/log"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

// View keeps the latest leaderboard in memory and refreshes it whenever a
// report changes. It satisfies domain.LeaderboardRepository so callers can
// read through it.
type View struct {
	repo     domain.LeaderboardRepository
	log      walog.Logger
	interval time.Duration

	mu      sync.RWMutex
	entries []*domain.LeaderboardEntry
	loaded  bool
}

// NewView creates a view over repo. A positive interval adds periodic
// refreshes on top of the change-driven ones.
func NewView(repo domain.LeaderboardRepository, interval time.Duration, logger walog.Logger) *View {
	if logger == nil {
		logger = walog.Noop
	}
	return &View{repo: repo, interval: interval, log: logger}
}

func (v *View) Refresh(ctx context.Context) error {
	entries, err := v.repo.GetLeaderboard(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.entries = entries
	v.loaded = true
	v.mu.Unlock()
	return nil
}

// Entries returns a copy of the cached leaderboard.
func (v *View) Entries() []*domain.LeaderboardEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*domain.LeaderboardEntry, len(v.entries))
	for i, e := range v.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}

// Ranking is always read from the repository; ranks shift with every report.
func (v *View) Ranking(ctx context.Context, userID string) (*domain.UserRanking, error) {
	return v.repo.GetUserRanking(ctx, userID)
}

func (v *View) GetLeaderboard(ctx context.Context) ([]*domain.LeaderboardEntry, error) {
	v.mu.RLock()
	loaded := v.loaded
	v.mu.RUnlock()
	if !loaded {
		if err := v.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return v.Entries(), nil
}

func (v *View) GetUserRanking(ctx context.Context, userID string) (*domain.UserRanking, error) {
	return v.Ranking(ctx, userID)
}

// Run refreshes the view on every report change until ctx is done. A
// subscription that ends is replaced with backoff, followed by a refresh to
// cover whatever was missed.
func (v *View) Run(ctx context.Context, changes domain.ChangeFeed) error {
	if err := v.Refresh(ctx); err != nil {
		v.log.Warnf("Initial leaderboard refresh failed: %v", err)
	}

	var tick <-chan time.Time
	if v.interval > 0 {
		t := time.NewTicker(v.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		sub, err := v.subscribe(ctx, changes)
		if err != nil {
			return err
		}
		err = v.consume(ctx, sub, tick)
		_ = sub.Close()
		if err != nil {
			return err
		}
		v.log.Warnf("Leaderboard subscription ended: %v", sub.Err())
		v.refresh(ctx)
	}
}

// consume returns nil when the subscription ends and ctx.Err() on cancel.
func (v *View) consume(ctx context.Context, sub domain.Subscription, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			v.refresh(ctx)
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if evt.Type == domain.ChangeUpdate {
				continue
			}
			v.refresh(ctx)
		}
	}
}

func (v *View) refresh(ctx context.Context) {
	if err := v.Refresh(ctx); err != nil {
		v.log.Warnf("Leaderboard refresh failed: %v", err)
	}
}

func (v *View) subscribe(ctx context.Context, changes domain.ChangeFeed) (domain.Subscription, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	for {
		sub, err := changes.Subscribe(ctx)
		if err == nil {
			return sub, nil
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, err
		}
		v.log.Warnf("Leaderboard subscribe failed, retrying in %s: %v", wait, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}
