package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/fardannozami/parking-reporter/internal/app/feed"
	"github.com/fardannozami/parking-reporter/internal/app/geo"
	"github.com/fardannozami/parking-reporter/internal/domain"
)

const reportTimeLayout = "02-01-2006 15:04"

// AnnounceReportUsecase renders a freshly arrived report for the group.
type AnnounceReportUsecase struct {
	resolver domain.AddressResolver
}

func NewAnnounceReportUsecase(resolver domain.AddressResolver) *AnnounceReportUsecase {
	return &AnnounceReportUsecase{resolver: resolver}
}

func (uc *AnnounceReportUsecase) Execute(ctx context.Context, r domain.Report) string {
	sb := strings.Builder{}
	sb.WriteString("🚨 Laporan parkir baru\n\n")
	writeReport(ctx, &sb, uc.resolver, r)
	return sb.String()
}

// ListFeedUsecase renders the newest reports held by the feed store.
type ListFeedUsecase struct {
	store    *feed.Store
	resolver domain.AddressResolver
	pageSize int
}

func NewListFeedUsecase(store *feed.Store, resolver domain.AddressResolver, pageSize int) *ListFeedUsecase {
	if pageSize <= 0 {
		pageSize = 5
	}
	return &ListFeedUsecase{store: store, resolver: resolver, pageSize: pageSize}
}

func (uc *ListFeedUsecase) Execute(ctx context.Context) (string, error) {
	latest := uc.store.Latest(uc.pageSize)
	if len(latest) == 0 {
		return "Belum ada laporan parkir.", nil
	}

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("📋 %d laporan terbaru (dari %d)\n", len(latest), uc.store.Len()))
	for i, r := range latest {
		sb.WriteString(fmt.Sprintf("\n%d.\n", i+1))
		writeReport(ctx, &sb, uc.resolver, r)
	}
	return sb.String(), nil
}

func writeReport(ctx context.Context, sb *strings.Builder, resolver domain.AddressResolver, r domain.Report) {
	plate := r.LicensePlate
	if plate == "" {
		plate = "tidak terbaca"
	}
	sb.WriteString(fmt.Sprintf("👤 %s\n", displayName(r.Username())))
	sb.WriteString(fmt.Sprintf("🚗 Plat: %s\n", plate))
	if desc := strings.TrimSpace(r.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("📝 %s\n", desc))
	}
	sb.WriteString(fmt.Sprintf("📍 %s\n", geo.DisplayAddress(ctx, resolver, r.Coordinates())))
	sb.WriteString(fmt.Sprintf("🕒 %s\n", r.CreatedAt.Local().Format(reportTimeLayout)))
	sb.WriteString(fmt.Sprintf("🆔 %s", r.ID))
	if r.PhotoURL != "" {
		sb.WriteString(fmt.Sprintf("\n🖼️ %s", r.PhotoURL))
	}
	sb.WriteString("\n")
}
