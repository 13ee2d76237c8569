package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGeocoderBaseURL       = "https://nominatim.openstreetmap.org"
	geocoderUserAgent            = "taskcreator/1.0"
	responseBodyReadLimit  int64 = 1024
)

// Geocoder resolves coordinates to a locality/country string through a
// Nominatim-compatible reverse geocoding API.
type Geocoder struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional geocoder behavior.
type Option func(*Geocoder)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Geocoder) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithBaseURL overrides the reverse geocoding endpoint.
func WithBaseURL(baseURL string) Option {
	return func(g *Geocoder) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			g.baseURL = trimmed
		}
	}
}

func NewGeocoder(opts ...Option) *Geocoder {
	g := &Geocoder{
		baseURL:    defaultGeocoderBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Reverse looks up the locality and country for a coordinate pair. It
// returns an error for transport failures and for responses that carry
// neither a locality nor a country.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (city, country string, err error) {
	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s",
		strings.TrimRight(g.baseURL, "/"),
		url.QueryEscape(fmt.Sprintf("%.6f", lat)),
		url.QueryEscape(fmt.Sprintf("%.6f", lon)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("build reverse geocode request: %w", err)
	}
	req.Header.Set("User-Agent", geocoderUserAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("execute reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return "", "", fmt.Errorf("reverse geocode failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var apiResp struct {
		Address struct {
			City    string `json:"city"`
			Town    string `json:"town"`
			Village string `json:"village"`
			Country string `json:"country"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", "", fmt.Errorf("decode reverse geocode response: %w", err)
	}

	city = apiResp.Address.City
	if city == "" {
		city = apiResp.Address.Town
	}
	if city == "" {
		city = apiResp.Address.Village
	}
	country = apiResp.Address.Country

	if city == "" && country == "" {
		return "", "", fmt.Errorf("reverse geocode returned no usable address")
	}
	return city, country, nil
}

// Resolver combines EXIF extraction with best-effort reverse geocoding.
type Resolver struct {
	geocoder *Geocoder
}

func NewResolver(geocoder *Geocoder) *Resolver {
	return &Resolver{geocoder: geocoder}
}

// FromImage extracts GPS coordinates from image bytes; nil when absent.
func (r *Resolver) FromImage(data []byte) *Location {
	return ExtractFromImage(data)
}

// Resolve fills in the address for a location, best-effort. Geocoding
// failure leaves the coordinates untouched so Format falls back to the
// "lat, lon" form.
func (r *Resolver) Resolve(ctx context.Context, loc *Location) {
	if loc == nil || r.geocoder == nil {
		return
	}

	city, country, err := r.geocoder.Reverse(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return
	}

	loc.City = city
	loc.Country = country
	switch {
	case city != "" && country != "":
		loc.Address = city + ", " + country
	case country != "":
		loc.Address = country
	case city != "":
		loc.Address = city
	}
}
