package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

type GetLeaderboardUsecase struct {
	repo domain.LeaderboardRepository
	now  func() time.Time
}

func NewGetLeaderboardUsecase(repo domain.LeaderboardRepository) *GetLeaderboardUsecase {
	return &GetLeaderboardUsecase{repo: repo, now: time.Now}
}

func (uc *GetLeaderboardUsecase) Execute(ctx context.Context) (string, error) {
	entries, err := uc.repo.GetLeaderboard(ctx)
	if err != nil {
		return "", err
	}

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("🏆 Leaderboard Pelapor Parkir (%s)\n\n", uc.now().Format("02-01-2006")))

	if len(entries) == 0 {
		sb.WriteString("Belum ada laporan.\n")
		sb.WriteString("\nKirim foto dengan caption #lapor untuk jadi yang pertama 🚗")
		return sb.String(), nil
	}

	total := 0
	for i, e := range entries {
		total += e.TotalReports
		sb.WriteString(fmt.Sprintf("%s %s - %d laporan\n", medal(i+1), displayName(e.Username), e.TotalReports))
	}
	sb.WriteString(fmt.Sprintf("\nTotal %d laporan dari %d pelapor.", total, len(entries)))

	return sb.String(), nil
}

// GetRankingUsecase reports the sender's own position.
type GetRankingUsecase struct {
	repo domain.LeaderboardRepository
}

func NewGetRankingUsecase(repo domain.LeaderboardRepository) *GetRankingUsecase {
	return &GetRankingUsecase{repo: repo}
}

func (uc *GetRankingUsecase) Execute(ctx context.Context, userID, name string) (string, error) {
	ranking, err := uc.repo.GetUserRanking(ctx, userID)
	if err != nil {
		return "", err
	}
	if ranking == nil || ranking.TotalReports == 0 {
		return fmt.Sprintf("%s belum punya laporan. Kirim foto dengan caption #lapor 📸", name), nil
	}
	return fmt.Sprintf("%s ada di peringkat #%d dengan %d laporan 🔥", name, ranking.Rank, ranking.TotalReports), nil
}

func medal(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}

func displayName(username string) string {
	if strings.TrimSpace(username) == "" {
		return "Anonim"
	}
	return username
}
