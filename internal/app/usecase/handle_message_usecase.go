package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	walog "go.mau.fi/whatsmeow/util/log"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

type ReportCapturer interface {
	Execute(ctx context.Context, req CaptureRequest) (*domain.Report, error)
}

type ReportDeleter interface {
	Execute(ctx context.Context, userID, reportID string) error
}

type LeaderboardRenderer interface {
	Execute(ctx context.Context) (string, error)
}

type RankingRenderer interface {
	Execute(ctx context.Context, userID, name string) (string, error)
}

type FeedRenderer interface {
	Execute(ctx context.Context) (string, error)
}

type ProfilePhotoUpdater interface {
	Execute(ctx context.Context, userID, name string, camera domain.Camera) (string, error)
}

// Handlers groups the use cases a chat command can reach. Nil members turn
// the matching command off.
type Handlers struct {
	Capture      ReportCapturer
	Delete       ReportDeleter
	Leaderboard  LeaderboardRenderer
	Ranking      RankingRenderer
	Feed         FeedRenderer
	ProfilePhoto ProfilePhotoUpdater
	Profiles     domain.ProfileRepository
}

// Message is one inbound chat message. Camera is set only when the message
// carries an image; Locator is the sender's location source.
type Message struct {
	UserID  string
	Name    string
	Text    string
	Camera  domain.Camera
	Locator domain.Locator
	OnStage func(Stage)
}

type HandleMessageUsecase struct {
	h   Handlers
	log walog.Logger
}

func NewHandleMessageUsecase(h Handlers, logger walog.Logger) *HandleMessageUsecase {
	if logger == nil {
		logger = walog.Noop
	}
	return &HandleMessageUsecase{h: h, log: logger}
}

// Execute routes a message to its command and returns the reply text. An
// empty reply means the message was not for the bot.
func (uc *HandleMessageUsecase) Execute(ctx context.Context, msg Message) (string, error) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	args := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Text), fields[0]))

	switch cmd {
	case "#lapor":
		if uc.h.Capture == nil {
			return "", nil
		}
		return uc.capture(ctx, msg, args)
	case "#feed":
		if uc.h.Feed == nil {
			return "", nil
		}
		return uc.h.Feed.Execute(ctx)
	case "#leaderboard":
		if uc.h.Leaderboard == nil {
			return "", nil
		}
		return uc.h.Leaderboard.Execute(ctx)
	case "#peringkat":
		if uc.h.Ranking == nil {
			return "", nil
		}
		return uc.h.Ranking.Execute(ctx, msg.UserID, msg.Name)
	case "#hapus":
		if uc.h.Delete == nil {
			return "", nil
		}
		return uc.delete(ctx, msg, args)
	case "#foto":
		if uc.h.ProfilePhoto == nil {
			return "", nil
		}
		return uc.profilePhoto(ctx, msg)
	}
	return "", nil
}

func (uc *HandleMessageUsecase) capture(ctx context.Context, msg Message, description string) (string, error) {
	if msg.Camera == nil {
		return "Kirim foto kendaraan dengan caption #lapor [deskripsi] 📸", nil
	}
	uc.ensureProfile(ctx, msg.UserID, msg.Name)

	report, err := uc.h.Capture.Execute(ctx, CaptureRequest{
		UserID:      msg.UserID,
		Description: description,
		Locator:     msg.Locator,
		Camera:      msg.Camera,
		OnStage:     msg.OnStage,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCaptureInProgress):
		return "Laporan sebelumnya masih diproses, tunggu sebentar ⏳", nil
	case errors.Is(err, domain.ErrPermissionDenied):
		return "Bagikan lokasi kamu dulu (Share Location), lalu kirim ulang foto dengan #lapor 📍", nil
	case errors.Is(err, domain.ErrLocationUnavailable):
		return "Lokasi tidak bisa dibaca. Coba bagikan lokasi lagi 📍", nil
	case errors.Is(err, domain.ErrCaptureFailed):
		return "Foto tidak bisa dibaca. Coba kirim ulang 📸", nil
	case errors.Is(err, domain.ErrUploadFailed):
		return "Gagal mengunggah foto. Coba lagi nanti.", nil
	case errors.Is(err, domain.ErrInsertFailed):
		return "Gagal menyimpan laporan. Coba lagi nanti.", nil
	default:
		return "", err
	}

	plate := report.LicensePlate
	if plate == "" {
		plate = "tidak terbaca"
	}
	return fmt.Sprintf("Laporan diterima, terima kasih %s ✅\nPlat: %s\nID: %s", msg.Name, plate, report.ID), nil
}

func (uc *HandleMessageUsecase) delete(ctx context.Context, msg Message, args string) (string, error) {
	id := strings.TrimSpace(args)
	if id == "" || strings.ContainsAny(id, " \t\n") {
		return "Format: #hapus <id laporan>", nil
	}

	err := uc.h.Delete.Execute(ctx, msg.UserID, id)
	switch {
	case err == nil:
		return fmt.Sprintf("Laporan %s dihapus 🗑️", id), nil
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Sprintf("Laporan %s tidak ditemukan.", id), nil
	case errors.Is(err, domain.ErrForbidden):
		return "Kamu hanya bisa menghapus laporanmu sendiri.", nil
	case errors.Is(err, domain.ErrDeleteFailed):
		uc.log.Warnf("Delete of %s by %s failed: %v", id, msg.UserID, err)
		return "Gagal menghapus laporan. Coba lagi nanti.", nil
	default:
		return "", err
	}
}

func (uc *HandleMessageUsecase) profilePhoto(ctx context.Context, msg Message) (string, error) {
	if msg.Camera == nil {
		return "Kirim foto dengan caption #foto untuk mengganti foto profil 📸", nil
	}
	if _, err := uc.h.ProfilePhoto.Execute(ctx, msg.UserID, msg.Name, msg.Camera); err != nil {
		if errors.Is(err, domain.ErrCaptureFailed) || errors.Is(err, domain.ErrUploadFailed) {
			return "Gagal mengganti foto profil. Coba lagi nanti.", nil
		}
		return "", err
	}
	return "Foto profil diperbarui ✅", nil
}

// ensureProfile makes sure the sender has a profile row so reports join to a
// username. Failures are logged; the report is still accepted.
func (uc *HandleMessageUsecase) ensureProfile(ctx context.Context, userID, name string) {
	if uc.h.Profiles == nil {
		return
	}
	p, err := uc.h.Profiles.GetProfile(ctx, userID)
	if err != nil {
		uc.log.Warnf("Failed to read profile of %s: %v", userID, err)
		return
	}
	if p != nil && p.Username != "" {
		return
	}
	next := domain.Profile{Username: name}
	if p != nil {
		next.ProfilePhotoURL = p.ProfilePhotoURL
	}
	if err := uc.h.Profiles.UpsertProfile(ctx, userID, next); err != nil {
		uc.log.Warnf("Failed to create profile of %s: %v", userID, err)
	}
}
