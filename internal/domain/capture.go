package domain

import (
	"context"
	"fmt"
	"math"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return fmt.Errorf("%w: NaN", ErrInvalidCoordinates)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinates, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinates, c.Longitude)
	}
	return nil
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Latitude, c.Longitude)
}

// Locator is the device location source.
type Locator interface {
	// RequestPermission asks for location access; it may prompt the user.
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (Coordinates, error)
}

type Photo struct {
	Data        []byte
	ContentType string
	Ext         string
}

type Camera interface {
	Capture(ctx context.Context) (Photo, error)
}

// TextRecognizer is the OCR collaborator.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, photo Photo) (string, error)
}

type UploadOptions struct {
	ContentType string
	// Upsert overwrites an existing object stored under the same key.
	Upsert bool
}

// PhotoStore is the remote object store.
type PhotoStore interface {
	Upload(ctx context.Context, data []byte, key string, opts UploadOptions) (string, error)
	Remove(ctx context.Context, publicURL string) error
}

type AddressResolver interface {
	ReverseGeocode(ctx context.Context, c Coordinates) (string, error)
}
