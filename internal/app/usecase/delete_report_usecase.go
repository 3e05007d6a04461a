package usecase

import (
	"context"
	"fmt"

	walog "go.mau.fi/whatsmeow/util/log"

	"github.com/fardannozami/parking-reporter/internal/app/feed"
	"github.com/fardannozami/parking-reporter/internal/domain"
)

// DeleteReportUsecase removes a report in two phases: the feed drops it at
// once, the remote delete then either confirms or rolls the feed back.
type DeleteReportUsecase struct {
	repo   domain.ReportRepository
	photos domain.PhotoStore
	store  *feed.Store
	log    walog.Logger
}

func NewDeleteReportUsecase(repo domain.ReportRepository, photos domain.PhotoStore, store *feed.Store, logger walog.Logger) *DeleteReportUsecase {
	if logger == nil {
		logger = walog.Noop
	}
	return &DeleteReportUsecase{repo: repo, photos: photos, store: store, log: logger}
}

func (uc *DeleteReportUsecase) Execute(ctx context.Context, userID, reportID string) error {
	tok, optimistic := uc.store.OptimisticDelete(reportID)
	rollback := func() {
		if optimistic {
			uc.store.RollbackDelete(tok)
		}
	}
	confirm := func() {
		if optimistic {
			uc.store.ConfirmDelete(tok)
		}
	}

	deleted, err := uc.repo.DeleteReport(ctx, reportID, userID)
	if err != nil {
		rollback()
		return fmt.Errorf("%w: %w", domain.ErrDeleteFailed, err)
	}

	if len(deleted) == 0 {
		// Nothing deleted: either the row is not the caller's or it is gone.
		existing, err := uc.repo.GetReport(ctx, reportID)
		if err != nil {
			rollback()
			return fmt.Errorf("%w: verify: %w", domain.ErrDeleteFailed, err)
		}
		if existing != nil {
			rollback()
			uc.log.Warnf("Delete of %s by %s matched no rows, row still present", reportID, userID)
			return domain.ErrForbidden
		}
		confirm()
		return domain.ErrNotFound
	}

	confirm()
	for _, r := range deleted {
		uc.removePhoto(ctx, r)
	}
	return nil
}

// removePhoto deletes the stored object of a deleted report. Failures only
// leave an orphaned object behind.
func (uc *DeleteReportUsecase) removePhoto(ctx context.Context, r *domain.Report) {
	if uc.photos == nil || r == nil || r.PhotoURL == "" {
		return
	}
	if err := uc.photos.Remove(ctx, r.PhotoURL); err != nil {
		uc.log.Warnf("Failed to remove photo of report %s: %v", r.ID, err)
	}
}
