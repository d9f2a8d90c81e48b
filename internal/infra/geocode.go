// README: Google Maps geocoder for free-text locations.
package infra

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"hemolink/internal/types"
)

// Geocoder resolves a free-text location to coordinates. Implementations
// return ok=false when the location cannot be resolved; that is not an error.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (types.Point, bool, error)
}

// MapsGeocoder is the production Geocoder backed by the Google Maps
// Geocoding API.
type MapsGeocoder struct {
	client *maps.Client
}

func NewMapsGeocoder(apiKey string) (*MapsGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &MapsGeocoder{client: client}, nil
}

func (g *MapsGeocoder) Geocode(ctx context.Context, location string) (types.Point, bool, error) {
	if location == "" {
		return types.Point{}, false, nil
	}
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: location})
	if err != nil {
		return types.Point{}, false, fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(results) == 0 {
		return types.Point{}, false, nil
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}
