package usecase

import (
	"context"
	"fmt"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

type ProfilePhotoUploader interface {
	UploadProfilePhoto(ctx context.Context, userID string, photo domain.Photo) (string, error)
}

// UpdateProfilePhotoUsecase replaces a user's avatar. The object is stored
// under a fixed per-user key, overwriting the previous one.
type UpdateProfilePhotoUsecase struct {
	uploader ProfilePhotoUploader
	profiles domain.ProfileRepository
}

func NewUpdateProfilePhotoUsecase(uploader ProfilePhotoUploader, profiles domain.ProfileRepository) *UpdateProfilePhotoUsecase {
	return &UpdateProfilePhotoUsecase{uploader: uploader, profiles: profiles}
}

func (uc *UpdateProfilePhotoUsecase) Execute(ctx context.Context, userID, name string, camera domain.Camera) (string, error) {
	if camera == nil {
		return "", fmt.Errorf("%w: no camera", domain.ErrCaptureFailed)
	}
	photo, err := camera.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCaptureFailed, err)
	}

	url, err := uc.uploader.UploadProfilePhoto(ctx, userID, photo)
	if err != nil {
		return "", err
	}

	profile, err := uc.profiles.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile == nil {
		profile = &domain.Profile{Username: name}
	}
	profile.ProfilePhotoURL = url
	if err := uc.profiles.UpsertProfile(ctx, userID, *profile); err != nil {
		return "", err
	}
	return url, nil
}
