// Package upload sends captured photos to the object store under per-user keys.
package upload

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

const (
	reportPrefix  = "reports"
	profilePrefix = "profiles"
	avatarName    = "avatar"
)

type Client struct {
	store domain.PhotoStore
	now   func() time.Time
}

func NewClient(store domain.PhotoStore) *Client {
	return &Client{store: store, now: time.Now}
}

// WithClock replaces the clock used for report keys.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Upload stores data under key and returns the public URL. It does not retry.
func (c *Client) Upload(ctx context.Context, data []byte, key string, opts domain.UploadOptions) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", domain.ErrUploadFailed)
	}
	if key == "" {
		return "", fmt.Errorf("%w: empty destination key", domain.ErrUploadFailed)
	}

	url, err := c.store.Upload(ctx, data, key, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	if url == "" {
		return "", fmt.Errorf("%w: store returned no url for %s", domain.ErrUploadFailed, key)
	}
	return url, nil
}

// UploadReportPhoto stores a capture under reports/<user>/<unix millis>.<ext>,
// so repeated captures never overwrite each other.
func (c *Client) UploadReportPhoto(ctx context.Context, userID string, photo domain.Photo) (string, error) {
	key, err := ReportKey(userID, c.now(), photo.Ext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	return c.Upload(ctx, photo.Data, key, domain.UploadOptions{ContentType: contentType(photo)})
}

// UploadProfilePhoto overwrites the user's fixed avatar key.
func (c *Client) UploadProfilePhoto(ctx context.Context, userID string, photo domain.Photo) (string, error) {
	key, err := ProfileKey(userID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	return c.Upload(ctx, photo.Data, key, domain.UploadOptions{ContentType: contentType(photo), Upsert: true})
}

func ReportKey(userID string, at time.Time, ext string) (string, error) {
	user, err := namespace(userID)
	if err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}
	return path.Join(reportPrefix, user, fmt.Sprintf("%d.%s", at.UnixMilli(), ext)), nil
}

func ProfileKey(userID string) (string, error) {
	user, err := namespace(userID)
	if err != nil {
		return "", err
	}
	return path.Join(profilePrefix, user, avatarName), nil
}

func namespace(userID string) (string, error) {
	user := strings.TrimSpace(userID)
	if user == "" || strings.ContainsAny(user, "/\\") || user == "." || user == ".." {
		return "", fmt.Errorf("invalid user namespace %q", userID)
	}
	return user, nil
}

func contentType(photo domain.Photo) string {
	if photo.ContentType != "" {
		return photo.ContentType
	}
	ext := strings.TrimPrefix(strings.ToLower(photo.Ext), ".")
	if ext == "" || ext == "jpg" {
		ext = "jpeg"
	}
	return "image/" + ext
}
