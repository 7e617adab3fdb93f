// Package geo measures distances on the sphere and picks an agent's reference zone.
package geo

import (
	"time"

	"github.com/umahmood/haversine"

	"fieldline/internal/domain"
)

// DistanceMeters is the haversine great-circle distance on a mean Earth
// radius of 6,371 km.
func DistanceMeters(a, b domain.Coordinate) float64 {
	p := haversine.Coord{Lat: a.Lat, Lon: a.Lon}
	q := haversine.Coord{Lat: b.Lat, Lon: b.Lon}
	_, km := haversine.Distance(p, q)
	return km * 1000
}

// IsWithinRadius is an inclusive comparison. A non-positive radius never matches.
func IsWithinRadius(distance, radiusMeters float64) bool {
	if radiusMeters <= 0 {
		return false
	}
	return distance <= radiusMeters
}

// ValidCoordinate checks latitude/longitude ranges.
func ValidCoordinate(c domain.Coordinate) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// ResolveZone picks the zone a check-in is validated against. It never
// guesses: several zones and no selector resolve to nil.
func ResolveZone(agent domain.Agent, selector string) *domain.Zone {
	return pick(agent.Zones, selector)
}

// ResolveZoneAt is ResolveZone restricted to zones whose validity window
// contains t.
func ResolveZoneAt(agent domain.Agent, selector string, t time.Time) *domain.Zone {
	var active []domain.Zone
	for _, z := range agent.Zones {
		if z.ActiveAt(t) {
			active = append(active, z)
		}
	}
	return pick(active, selector)
}

func pick(zones []domain.Zone, selector string) *domain.Zone {
	if len(zones) == 0 {
		return nil
	}
	if selector != "" {
		for i := range zones {
			if zones[i].ID == selector {
				z := zones[i]
				return &z
			}
		}
		return nil
	}
	if len(zones) == 1 {
		z := zones[0]
		return &z
	}
	return nil
}
