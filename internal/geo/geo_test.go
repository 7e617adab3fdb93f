package geo_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/domain"
	"fieldline/internal/geo"
)

var cotonou = domain.Coordinate{Lat: 6.3725, Lon: 2.3544}

func TestDistanceIdentityAndSymmetry(t *testing.T) {
	points := []domain.Coordinate{
		cotonou,
		{Lat: 0, Lon: 0},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 89.9, Lon: -179.9},
	}
	for _, p := range points {
		assert.Zero(t, geo.DistanceMeters(p, p))
		for _, q := range points {
			assert.Equal(t, geo.DistanceMeters(p, q), geo.DistanceMeters(q, p))
		}
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// One degree of latitude on a 6,371 km sphere.
	d := geo.DistanceMeters(domain.Coordinate{Lat: 0, Lon: 0}, domain.Coordinate{Lat: 1, Lon: 0})
	assert.InDelta(t, 6371000*math.Pi/180, d, 1)
}

func TestIsWithinRadius(t *testing.T) {
	assert.True(t, geo.IsWithinRadius(0, 100))
	assert.True(t, geo.IsWithinRadius(100, 100))
	assert.False(t, geo.IsWithinRadius(101, 100))
	assert.False(t, geo.IsWithinRadius(0, 0))
	assert.False(t, geo.IsWithinRadius(0, -5))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, geo.ValidCoordinate(cotonou))
	assert.True(t, geo.ValidCoordinate(domain.Coordinate{Lat: -90, Lon: 180}))
	assert.False(t, geo.ValidCoordinate(domain.Coordinate{Lat: 91, Lon: 0}))
	assert.False(t, geo.ValidCoordinate(domain.Coordinate{Lat: 0, Lon: -181}))
}

func TestResolveZone(t *testing.T) {
	office := domain.Zone{ID: "office", Center: cotonou, RadiusMeters: 100}
	site := domain.Zone{ID: "site", Center: domain.Coordinate{Lat: 6.4, Lon: 2.4}, RadiusMeters: 50}

	assert.Nil(t, geo.ResolveZone(domain.Agent{ID: "a"}, ""))
	assert.Nil(t, geo.ResolveZone(domain.Agent{ID: "a"}, "office"))

	single := domain.Agent{ID: "a", Zones: []domain.Zone{office}}
	z := geo.ResolveZone(single, "")
	require.NotNil(t, z)
	assert.Equal(t, "office", z.ID)
	assert.Nil(t, geo.ResolveZone(single, "missing"))

	multi := domain.Agent{ID: "a", Zones: []domain.Zone{office, site}}
	assert.Nil(t, geo.ResolveZone(multi, ""), "ambiguous zones must not be guessed")
	z = geo.ResolveZone(multi, "site")
	require.NotNil(t, z)
	assert.Equal(t, "site", z.ID)
}

func TestResolveZoneAtValidityWindow(t *testing.T) {
	from := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 11, 30, 23, 59, 59, 0, time.UTC)
	office := domain.Zone{ID: "office", Center: cotonou, RadiusMeters: 100, ValidFrom: &from, ValidTo: &to}
	old := domain.Zone{ID: "old", Center: cotonou, RadiusMeters: 100, ValidTo: &from}
	agent := domain.Agent{ID: "a", Zones: []domain.Zone{office, old}}

	z := geo.ResolveZoneAt(agent, "", time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC))
	require.NotNil(t, z)
	assert.Equal(t, "office", z.ID)

	assert.Nil(t, geo.ResolveZoneAt(agent, "office", time.Date(2025, 12, 5, 9, 0, 0, 0, time.UTC)))
	z = geo.ResolveZoneAt(agent, "", time.Date(2025, 10, 31, 23, 0, 0, 0, time.UTC))
	require.NotNil(t, z)
	assert.Equal(t, "old", z.ID)
}
