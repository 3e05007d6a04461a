package realtime

import (
	"context"
	"time"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

type Publisher interface {
	Publish(evt domain.ChangeEvent)
}

// NotifyingRepository publishes a change event after every successful write
// to the wrapped repository, the way a database change stream would.
type NotifyingRepository struct {
	domain.ReportRepository
	pub Publisher
	now func() time.Time
}

func NewNotifyingRepository(repo domain.ReportRepository, pub Publisher) *NotifyingRepository {
	return &NotifyingRepository{ReportRepository: repo, pub: pub, now: time.Now}
}

func (n *NotifyingRepository) InsertReport(ctx context.Context, report domain.NewReport) (*domain.Report, error) {
	created, err := n.ReportRepository.InsertReport(ctx, report)
	if err != nil {
		return nil, err
	}
	n.pub.Publish(domain.ChangeEvent{Type: domain.ChangeInsert, ReportID: created.ID, At: n.now()})
	return created, nil
}

func (n *NotifyingRepository) DeleteReport(ctx context.Context, id, userID string) ([]*domain.Report, error) {
	deleted, err := n.ReportRepository.DeleteReport(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	for _, r := range deleted {
		n.pub.Publish(domain.ChangeEvent{Type: domain.ChangeDelete, ReportID: r.ID, At: n.now()})
	}
	return deleted, nil
}
