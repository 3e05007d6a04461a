package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/fardannozami/parking-reporter/internal/domain"
	"github.com/fardannozami/parking-reporter/internal/infra/storage"
)

type fakeAPI struct {
	uploadParams  uploader.UploadParams
	uploadResult  *uploader.UploadResult
	uploadErr     error
	destroyParams uploader.DestroyParams
	destroyResult *uploader.DestroyResult
	destroyErr    error
}

func (f *fakeAPI) Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	f.uploadParams = params
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadResult, nil
}

func (f *fakeAPI) Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error) {
	f.destroyParams = params
	if f.destroyErr != nil {
		return nil, f.destroyErr
	}
	return f.destroyResult, nil
}

func TestCloudinaryStore_Upload(t *testing.T) {
	api := &fakeAPI{uploadResult: &uploader.UploadResult{SecureURL: "https://res.cloudinary.com/demo/image/upload/v1/report-photos/reports/u1/1.jpg"}}
	store := storage.NewCloudinaryStoreWithAPI(api, "/report-photos/", nil)

	url, err := store.Upload(context.Background(), []byte{1, 2}, "reports/u1/1.jpg", domain.UploadOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if url != api.uploadResult.SecureURL {
		t.Errorf("Expected secure URL, got %s", url)
	}
	if api.uploadParams.PublicID != "reports/u1/1" || api.uploadParams.Folder != "report-photos" {
		t.Errorf("Unexpected params %+v", api.uploadParams)
	}
	if api.uploadParams.Overwrite == nil || *api.uploadParams.Overwrite {
		t.Error("Report uploads must not overwrite")
	}
}

func TestCloudinaryStore_UpsertOverwrites(t *testing.T) {
	api := &fakeAPI{uploadResult: &uploader.UploadResult{SecureURL: "https://x/upload/profiles/u1/avatar.jpg"}}
	store := storage.NewCloudinaryStoreWithAPI(api, "report-photos", nil)

	if _, err := store.Upload(context.Background(), []byte{1}, "profiles/u1/avatar", domain.UploadOptions{Upsert: true}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if api.uploadParams.Overwrite == nil || !*api.uploadParams.Overwrite {
		t.Error("Upsert must overwrite")
	}
}

func TestCloudinaryStore_UploadErrors(t *testing.T) {
	api := &fakeAPI{uploadErr: errors.New("timeout")}
	store := storage.NewCloudinaryStoreWithAPI(api, "", nil)
	if _, err := store.Upload(context.Background(), []byte{1}, "k", domain.UploadOptions{}); err == nil {
		t.Error("Expected transport error")
	}

	res := &uploader.UploadResult{}
	res.Error.Message = "Invalid image file"
	api = &fakeAPI{uploadResult: res}
	store = storage.NewCloudinaryStoreWithAPI(api, "", nil)
	if _, err := store.Upload(context.Background(), []byte{1}, "k", domain.UploadOptions{}); err == nil {
		t.Error("Expected API error")
	}
}

func TestCloudinaryStore_Remove(t *testing.T) {
	api := &fakeAPI{destroyResult: &uploader.DestroyResult{Result: "ok"}}
	store := storage.NewCloudinaryStoreWithAPI(api, "report-photos", nil)

	err := store.Remove(context.Background(), "https://res.cloudinary.com/demo/image/upload/v1712/report-photos/reports/u1/1.jpg")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if api.destroyParams.PublicID != "report-photos/reports/u1/1" {
		t.Errorf("Unexpected public id %q", api.destroyParams.PublicID)
	}

	api.destroyResult = &uploader.DestroyResult{Result: "not found"}
	if err := store.Remove(context.Background(), "https://x/upload/a.jpg"); err != nil {
		t.Errorf("Missing object should not be an error, got %v", err)
	}

	if err := store.Remove(context.Background(), "https://example.com/a.jpg"); err == nil {
		t.Error("Expected error for non-Cloudinary URL")
	}
	if err := store.Remove(context.Background(), ""); err != nil {
		t.Errorf("Empty URL should be a no-op, got %v", err)
	}
}

func TestPublicID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1712/report-photos/reports/u1/1.jpg", "report-photos/reports/u1/1"},
		{"https://res.cloudinary.com/demo/image/upload/report-photos/profiles/u1/avatar.png", "report-photos/profiles/u1/avatar"},
		{"https://res.cloudinary.com/demo/image/upload/v3/x.jpg?cache=1", "x"},
		{"https://example.com/nothing.jpg", ""},
	}
	for _, tt := range tests {
		if got := storage.PublicID(tt.url); got != tt.want {
			t.Errorf("PublicID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
