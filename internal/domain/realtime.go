package domain

import (
	"context"
	"time"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
	// ChangeResync is emitted by a feed after it reconnected. Events published
	// while it was disconnected are lost.
	ChangeResync ChangeType = "RESYNC"
)

// ChangeEvent is a change notification on the reports table. Only the id is
// carried; consumers re-fetch the row when they need it.
type ChangeEvent struct {
	Type     ChangeType `json:"event"`
	ReportID string     `json:"id"`
	At       time.Time  `json:"at"`
}

// ChangeFeed delivers report changes from the moment of subscription on,
// without replay.
type ChangeFeed interface {
	// Subscribe starts a subscription. ctx bounds the subscribe call only;
	// the subscription lives until Close or until the feed ends it.
	Subscribe(ctx context.Context) (Subscription, error)
}

type Subscription interface {
	// Events is closed when the subscription ends; Err then reports why.
	Events() <-chan ChangeEvent
	Err() error
	// Close releases the subscription. A second call returns
	// ErrSubscriptionClosed.
	Close() error
}
