package geocode_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fardannozami/parking-reporter/internal/domain"
	"github.com/fardannozami/parking-reporter/internal/infra/geocode"
)

func TestNominatim_ReverseGeocode(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "parking-reporter-test" {
			t.Errorf("Expected User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Query().Get("lat") != "-6.200000" || r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"display_name":"long","address":{"road":"Jalan Sudirman","house_number":"1","city":"Jakarta"}}`)
	}))
	defer srv.Close()

	n := geocode.NewNominatim(srv.URL, "parking-reporter-test", time.Second)
	c := domain.Coordinates{Latitude: -6.2, Longitude: 106.8}

	addr, err := n.ReverseGeocode(context.Background(), c)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if addr != "Jalan Sudirman 1, Jakarta" {
		t.Errorf("Unexpected address %q", addr)
	}

	if _, err := n.ReverseGeocode(context.Background(), c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected cached second lookup, got %d requests", hits.Load())
	}
}

func TestNominatim_FallsBackToDisplayName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"display_name":"Monas, Jakarta","address":{}}`)
	}))
	defer srv.Close()

	addr, err := geocode.NewNominatim(srv.URL, "ua", time.Second).ReverseGeocode(context.Background(), domain.Coordinates{Latitude: 1, Longitude: 2})
	if err != nil || addr != "Monas, Jakarta" {
		t.Errorf("Expected display_name fallback, got %q (%v)", addr, err)
	}
}

func TestNominatim_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"Unable to geocode"}`)
	}))
	defer srv.Close()

	n := geocode.NewNominatim(srv.URL, "ua", time.Second)
	if _, err := n.ReverseGeocode(context.Background(), domain.Coordinates{Latitude: 1, Longitude: 2}); err == nil {
		t.Error("Expected error for unresolvable coordinates")
	}
	if _, err := n.ReverseGeocode(context.Background(), domain.Coordinates{Latitude: 100, Longitude: 2}); err == nil {
		t.Error("Expected error for invalid coordinates")
	}
}
