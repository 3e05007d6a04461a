package wa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

type sharedLocation struct {
	coords domain.Coordinates
	at     time.Time
}

// LocationBook remembers the last location each user shared in chat. A
// shared location counts as location permission for ttl.
type LocationBook struct {
	mu   sync.Mutex
	byID map[string]sharedLocation
	ttl  time.Duration
	now  func() time.Time
}

func NewLocationBook(ttl time.Duration) *LocationBook {
	return &LocationBook{byID: make(map[string]sharedLocation), ttl: ttl, now: time.Now}
}

// WithClock replaces the clock used to judge freshness.
func (b *LocationBook) WithClock(now func() time.Time) *LocationBook {
	b.now = now
	return b
}

// Record stores c for userID. Invalid coordinates are ignored.
func (b *LocationBook) Record(userID string, c domain.Coordinates) bool {
	if c.Validate() != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[userID] = sharedLocation{coords: c, at: b.now()}
	return true
}

// RecordMessage records a location or live-location message and reports
// whether msg carried one.
func (b *LocationBook) RecordMessage(userID string, msg *waE2E.Message) bool {
	if loc := msg.GetLocationMessage(); loc != nil {
		return b.Record(userID, domain.Coordinates{Latitude: loc.GetDegreesLatitude(), Longitude: loc.GetDegreesLongitude()})
	}
	if live := msg.GetLiveLocationMessage(); live != nil {
		return b.Record(userID, domain.Coordinates{Latitude: live.GetDegreesLatitude(), Longitude: live.GetDegreesLongitude()})
	}
	return false
}

func (b *LocationBook) lookup(userID string) (domain.Coordinates, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.byID[userID]
	if !ok {
		return domain.Coordinates{}, false
	}
	if b.ttl > 0 && b.now().Sub(loc.at) > b.ttl {
		delete(b.byID, userID)
		return domain.Coordinates{}, false
	}
	return loc.coords, true
}

// Locator returns the location source of one user.
func (b *LocationBook) Locator(userID string) domain.Locator {
	return &userLocator{book: b, userID: userID}
}

type userLocator struct {
	book   *LocationBook
	userID string
}

func (l *userLocator) RequestPermission(ctx context.Context) (bool, error) {
	_, ok := l.book.lookup(l.userID)
	return ok, nil
}

func (l *userLocator) CurrentPosition(ctx context.Context) (domain.Coordinates, error) {
	c, ok := l.book.lookup(l.userID)
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("no recent location shared by %s", l.userID)
	}
	return c, nil
}
