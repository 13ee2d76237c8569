package location

import (
	"bytes"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

// Location is a point extracted from image metadata, optionally resolved to
// a human-readable address by reverse geocoding.
type Location struct {
	Latitude  float64
	Longitude float64
	Address   string
	City      string
	Country   string
}

// ExtractFromImage reads embedded GPS coordinates from image bytes. Images
// without EXIF data or without GPS tags yield nil, never an error — most
// uploads simply have no location.
func ExtractFromImage(data []byte) *Location {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	lat, lon, err := x.LatLong()
	if err != nil {
		return nil
	}

	return &Location{Latitude: lat, Longitude: lon}
}

// Format renders a location for display: resolved address when available,
// otherwise raw coordinates with six decimal places.
func Format(loc *Location) string {
	if loc == nil {
		return "Location unknown"
	}
	if loc.Address != "" {
		return loc.Address
	}
	if loc.Latitude != 0 || loc.Longitude != 0 {
		return fmt.Sprintf("%.6f, %.6f", loc.Latitude, loc.Longitude)
	}
	return "Location unknown"
}
