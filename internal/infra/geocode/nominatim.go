package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

const DefaultURL = "https://nominatim.openstreetmap.org/reverse"

var ErrNoAddress = errors.New("geocode: no address for coordinates")

// Nominatim resolves coordinates to a short street address. Results are
// cached per coordinate rounded to four decimals (about 11 m).
type Nominatim struct {
	url       string
	userAgent string
	http      *http.Client

	mu    sync.Mutex
	cache map[string]string
}

func NewNominatim(endpoint, userAgent string, timeout time.Duration) *Nominatim {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	return &Nominatim{
		url:       endpoint,
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
		cache:     make(map[string]string),
	}
}

func (n *Nominatim) ReverseGeocode(ctx context.Context, c domain.Coordinates) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	key := c.String()
	n.mu.Lock()
	cached, ok := n.cache[key]
	n.mu.Unlock()
	if ok {
		return cached, nil
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(c.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(c.Longitude, 'f', 6, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.url+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	// Nominatim's usage policy requires an identifying User-Agent.
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept-Language", "id,en")

	resp, err := n.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("geocode service returned %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("geocode service returned invalid JSON")
	}

	addr := format(gjson.ParseBytes(raw))
	if addr == "" {
		return "", ErrNoAddress
	}
	n.mu.Lock()
	n.cache[key] = addr
	n.mu.Unlock()
	return addr, nil
}

// format prefers "road house_number, city" and falls back to display_name.
func format(res gjson.Result) string {
	if res.Get("error").Exists() {
		return ""
	}
	a := res.Get("address")
	street := strings.TrimSpace(a.Get("road").String() + " " + a.Get("house_number").String())
	city := ""
	for _, k := range []string{"city", "town", "village", "suburb", "county"} {
		if v := a.Get(k).String(); v != "" {
			city = v
			break
		}
	}
	switch {
	case street != "" && city != "":
		return street + ", " + city
	case street != "":
		return street
	}
	return res.Get("display_name").String()
}
