// Package geo guards access to the device position.
package geo

import (
	"context"
	"fmt"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

type Gate struct {
	locator domain.Locator
}

func NewGate(locator domain.Locator) *Gate {
	return &Gate{locator: locator}
}

// AcquireLocation asks for permission once and then fetches a single fix.
// It never returns zero coordinates on failure: callers get either a valid
// fix or ErrPermissionDenied / ErrLocationUnavailable.
func (g *Gate) AcquireLocation(ctx context.Context) (domain.Coordinates, error) {
	if g.locator == nil {
		return domain.Coordinates{}, domain.ErrLocationUnavailable
	}

	granted, err := g.locator.RequestPermission(ctx)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	}
	if !granted {
		return domain.Coordinates{}, domain.ErrPermissionDenied
	}

	pos, err := g.locator.CurrentPosition(ctx)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, err)
	}
	if err := pos.Validate(); err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, err)
	}
	return pos, nil
}

// DisplayAddress resolves a human-readable address for c. Resolution is best
// effort; on any failure the formatted coordinates are returned instead.
func DisplayAddress(ctx context.Context, resolver domain.AddressResolver, c domain.Coordinates) string {
	if resolver == nil {
		return c.String()
	}
	addr, err := resolver.ReverseGeocode(ctx, c)
	if err != nil || addr == "" {
		return c.String()
	}
	return addr
}
