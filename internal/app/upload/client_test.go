package upload_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fardannozami/parking-reporter/internal/app/upload"
	"github.com/fardannozami/parking-reporter/internal/domain"
)

type uploadCall struct {
	key  string
	opts domain.UploadOptions
	size int
}

type mockStore struct {
	calls []uploadCall
	url   string
	err   error
}

func (m *mockStore) Upload(ctx context.Context, data []byte, key string, opts domain.UploadOptions) (string, error) {
	m.calls = append(m.calls, uploadCall{key: key, opts: opts, size: len(data)})
	if m.err != nil {
		return "", m.err
	}
	return m.url + key, nil
}

func (m *mockStore) Remove(ctx context.Context, publicURL string) error {
	return nil
}

func TestUploadReportPhoto_NamespacedKey(t *testing.T) {
	store := &mockStore{url: "https://cdn.example/"}
	at := time.UnixMilli(1760000000123)
	client := upload.NewClient(store).WithClock(func() time.Time { return at })

	url, err := client.UploadReportPhoto(context.Background(), "user-1", domain.Photo{Data: []byte{1, 2, 3}, Ext: "JPG"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := "reports/user-1/1760000000123.jpg"
	if len(store.calls) != 1 || store.calls[0].key != want {
		t.Fatalf("Expected one upload to %s, got %+v", want, store.calls)
	}
	if store.calls[0].opts.Upsert {
		t.Error("Report uploads must not overwrite")
	}
	if store.calls[0].opts.ContentType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", store.calls[0].opts.ContentType)
	}
	if url != "https://cdn.example/"+want {
		t.Errorf("Unexpected url %s", url)
	}
}

func TestUploadReportPhoto_DistinctKeysPerCapture(t *testing.T) {
	store := &mockStore{url: "u/"}
	tick := time.UnixMilli(1000)
	client := upload.NewClient(store).WithClock(func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.UploadReportPhoto(ctx, "u1", domain.Photo{Data: []byte{1}}); err != nil {
			t.Fatalf("Upload %d failed: %v", i, err)
		}
	}
	seen := map[string]bool{}
	for _, c := range store.calls {
		if seen[c.key] {
			t.Fatalf("Duplicate key %s", c.key)
		}
		seen[c.key] = true
	}
}

func TestUploadProfilePhoto_Upserts(t *testing.T) {
	store := &mockStore{url: "u/"}
	client := upload.NewClient(store)

	for i := 0; i < 2; i++ {
		if _, err := client.UploadProfilePhoto(context.Background(), "u1", domain.Photo{Data: []byte{1}, ContentType: "image/png"}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	for _, c := range store.calls {
		if c.key != "profiles/u1/avatar" {
			t.Errorf("Expected fixed avatar key, got %s", c.key)
		}
		if !c.opts.Upsert {
			t.Error("Profile uploads must upsert")
		}
	}
}

func TestUpload_FailureWrapped(t *testing.T) {
	store := &mockStore{err: errors.New("quota exceeded")}
	client := upload.NewClient(store)

	_, err := client.UploadReportPhoto(context.Background(), "u1", domain.Photo{Data: []byte{1}})
	if !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("Expected ErrUploadFailed, got %v", err)
	}
	if len(store.calls) != 1 {
		t.Errorf("Expected a single attempt without retry, got %d", len(store.calls))
	}
}

func TestUpload_RejectsBadInput(t *testing.T) {
	store := &mockStore{url: "u/"}
	client := upload.NewClient(store)
	ctx := context.Background()

	if _, err := client.UploadReportPhoto(ctx, "u1", domain.Photo{}); !errors.Is(err, domain.ErrUploadFailed) {
		t.Errorf("Empty image: expected ErrUploadFailed, got %v", err)
	}
	if _, err := client.UploadReportPhoto(ctx, "../other", domain.Photo{Data: []byte{1}}); !errors.Is(err, domain.ErrUploadFailed) {
		t.Errorf("Escaping namespace: expected ErrUploadFailed, got %v", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("Store must not be called for invalid input, got %d calls", len(store.calls))
	}
}
