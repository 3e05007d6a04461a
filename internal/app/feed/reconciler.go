package feed

import (
	"context"
	"fmt"

	walog "go.mau.fi/whatsmeow/util/log"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

// ReportReader is the part of the report repository the feed reads from.
type ReportReader interface {
	ListReports(ctx context.Context) ([]*domain.Report, error)
	GetReport(ctx context.Context, id string) (*domain.Report, error)
}

// Reconciler turns change notifications into Store mutations.
type Reconciler struct {
	store      *Store
	repo       ReportReader
	log        walog.Logger
	interested func() bool
	onInsert   func(domain.Report)
}

func NewReconciler(store *Store, repo ReportReader, logger walog.Logger) *Reconciler {
	if logger == nil {
		logger = walog.Noop
	}
	return &Reconciler{
		store:      store,
		repo:       repo,
		log:        logger,
		interested: func() bool { return true },
	}
}

// OnInsert registers fn to be called for every row the feed actually gained
// from the change stream.
func (r *Reconciler) OnInsert(fn func(domain.Report)) {
	r.onInsert = fn
}

// Handle applies one event. Inserts are re-fetched so the denormalized profile
// is present; a failed or empty re-fetch drops the event.
func (r *Reconciler) Handle(ctx context.Context, evt domain.ChangeEvent) {
	switch evt.Type {
	case domain.ChangeInsert:
		row, err := r.repo.GetReport(ctx, evt.ReportID)
		if err != nil {
			r.log.Warnf("Dropping insert of %s: re-fetch failed: %v", evt.ReportID, err)
			return
		}
		if row == nil {
			r.log.Debugf("Dropping insert of %s: row no longer exists", evt.ReportID)
			return
		}
		if !r.interested() {
			return
		}
		if r.store.ApplyInsert(*row) && r.onInsert != nil {
			r.onInsert(*row)
		}
	case domain.ChangeDelete:
		if !r.interested() {
			return
		}
		r.store.ApplyDelete(evt.ReportID)
	case domain.ChangeResync:
		if err := r.Reload(ctx, true); err != nil {
			r.log.Errorf("Resync after reconnect failed: %v", err)
		}
	case domain.ChangeUpdate:
		// Status changes are not reflected in the feed.
	default:
		r.log.Warnf("Ignoring unknown change event %q", evt.Type)
	}
}

// Reload fetches a full snapshot and loads it. resync discards rows kept from
// before the snapshot was requested.
func (r *Reconciler) Reload(ctx context.Context, resync bool) error {
	if resync {
		r.store.ForgetLive()
	}
	rows, err := r.repo.ListReports(ctx)
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	if !r.interested() {
		return nil
	}
	r.store.Load(rows)
	r.log.Debugf("Loaded %d reports", len(rows))
	return nil
}
