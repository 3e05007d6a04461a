package realtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fardannozami/parking-reporter/internal/domain"
	"github.com/fardannozami/parking-reporter/internal/infra/realtime"
)

// =============================================================================
// HUB / NOTIFIER TESTS
// =============================================================================
//
// Rules:
// 1. Every subscriber sees every event published after it subscribed
// 2. Publish never blocks; an overflowing subscriber ends with ErrLagged
// 3. Close releases a subscription once; a second Close reports it
// 4. Successful writes publish; failed writes do not
//
// =============================================================================

func recv(t *testing.T, sub domain.Subscription) domain.ChangeEvent {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		if !ok {
			t.Fatal("Subscription ended unexpectedly")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
	return domain.ChangeEvent{}
}

func TestHub_FanOut(t *testing.T) {
	hub := realtime.NewHub(4, nil)
	a, _ := hub.Subscribe(context.Background())
	b, _ := hub.Subscribe(context.Background())

	hub.Publish(domain.ChangeEvent{Type: domain.ChangeInsert, ReportID: "r1"})

	for _, sub := range []domain.Subscription{a, b} {
		if evt := recv(t, sub); evt.ReportID != "r1" || evt.Type != domain.ChangeInsert {
			t.Errorf("Unexpected event %+v", evt)
		}
	}
}

func TestHub_NoReplay(t *testing.T) {
	hub := realtime.NewHub(4, nil)
	hub.Publish(domain.ChangeEvent{Type: domain.ChangeInsert, ReportID: "before"})
	sub, _ := hub.Subscribe(context.Background())
	hub.Publish(domain.ChangeEvent{Type: domain.ChangeInsert, ReportID: "after"})

	if evt := recv(t, sub); evt.ReportID != "after" {
		t.Errorf("Expected only events after subscribing, got %s", evt.ReportID)
	}
}

func TestHub_LaggedSubscriberEnds(t *testing.T) {
	hub := realtime.NewHub(2, nil)
	sub, _ := hub.Subscribe(context.Background())

	for i := 0; i < 3; i++ {
		hub.Publish(domain.ChangeEvent{Type: domain.ChangeInsert, ReportID: "r"})
	}

	n := 0
	for range sub.Events() {
		n++
	}
	if n != 2 {
		t.Errorf("Expected the 2 buffered events before the end, got %d", n)
	}
	if !errors.Is(sub.Err(), realtime.ErrLagged) {
		t.Errorf("Expected ErrLagged, got %v", sub.Err())
	}
	if hub.Subscribers() != 0 {
		t.Errorf("Lagged subscriber should be removed, %d left", hub.Subscribers())
	}
	if err := sub.Close(); err != nil {
		t.Errorf("First Close after lag should succeed, got %v", err)
	}
}

func TestHub_CloseOnce(t *testing.T) {
	hub := realtime.NewHub(2, nil)
	sub, _ := hub.Subscribe(context.Background())

	if err := sub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sub.Close(); !errors.Is(err, domain.ErrSubscriptionClosed) {
		t.Errorf("Expected ErrSubscriptionClosed, got %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("Events channel should be closed")
	}
	if sub.Err() != nil {
		t.Errorf("Voluntary close should not set an error, got %v", sub.Err())
	}
}

func TestHub_Close(t *testing.T) {
	hub := realtime.NewHub(2, nil)
	sub, _ := hub.Subscribe(context.Background())
	hub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("Subscriptions should end when the hub closes")
	}
	if !errors.Is(sub.Err(), realtime.ErrHubClosed) {
		t.Errorf("Expected ErrHubClosed, got %v", sub.Err())
	}
	if _, err := hub.Subscribe(context.Background()); !errors.Is(err, realtime.ErrHubClosed) {
		t.Errorf("Expected ErrHubClosed from Subscribe, got %v", err)
	}
}

type stubRepo struct {
	domain.ReportRepository
	insertErr error
	deleted   []*domain.Report
}

func (s *stubRepo) InsertReport(ctx context.Context, n domain.NewReport) (*domain.Report, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	return &domain.Report{ID: "new-id", UserID: n.UserID}, nil
}

func (s *stubRepo) DeleteReport(ctx context.Context, id, userID string) ([]*domain.Report, error) {
	return s.deleted, nil
}

func TestNotifyingRepository(t *testing.T) {
	hub := realtime.NewHub(8, nil)
	sub, _ := hub.Subscribe(context.Background())
	inner := &stubRepo{deleted: []*domain.Report{{ID: "old-id"}}}
	repo := realtime.NewNotifyingRepository(inner, hub)

	if _, err := repo.InsertReport(context.Background(), domain.NewReport{UserID: "u1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if evt := recv(t, sub); evt.Type != domain.ChangeInsert || evt.ReportID != "new-id" || evt.At.IsZero() {
		t.Errorf("Unexpected insert event %+v", evt)
	}

	if _, err := repo.DeleteReport(context.Background(), "old-id", "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if evt := recv(t, sub); evt.Type != domain.ChangeDelete || evt.ReportID != "old-id" {
		t.Errorf("Unexpected delete event %+v", evt)
	}

	inner.insertErr = errors.New("constraint")
	inner.deleted = nil
	_, _ = repo.InsertReport(context.Background(), domain.NewReport{UserID: "u1"})
	_, _ = repo.DeleteReport(context.Background(), "x", "u1")
	select {
	case evt := <-sub.Events():
		t.Errorf("Failed or empty writes must not publish, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
