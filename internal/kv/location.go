package kv

import (
	"context"
	"strings"
)

// Location is a resolved (country, province, city) triple.
type Location struct {
	Country  string
	Province string
	City     string
}

// Complete reports whether all three parts are non-empty. Only complete
// locations may be cached.
func (l Location) Complete() bool {
	return l.Country != "" && l.Province != "" && l.City != ""
}

// String joins the parts with commas, the stored representation.
func (l Location) String() string {
	return l.Country + "," + l.Province + "," + l.City
}

// ParseLocation reads the stored representation. ok is false for any value
// that does not have exactly three parts.
func ParseLocation(s string) (Location, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Location{}, false
	}
	return Location{Country: parts[0], Province: parts[1], City: parts[2]}, true
}

const geoPrefix = "ip_location/"

// GeoCache is the badger-backed IP resolution cache.
type GeoCache struct {
	s *Store
}

func NewGeoCache(s *Store) *GeoCache {
	return &GeoCache{s: s}
}

func (c *GeoCache) Get(_ context.Context, ip string) (Location, bool, error) {
	v, ok, err := c.s.get(geoPrefix + ip)
	if err != nil || !ok {
		return Location{}, false, err
	}
	loc, ok := ParseLocation(v)
	return loc, ok, nil
}

// Set stores loc under ip. Incomplete locations are ignored.
func (c *GeoCache) Set(_ context.Context, ip string, loc Location) error {
	if !loc.Complete() {
		return nil
	}
	return c.s.set(geoPrefix+ip, loc.String(), 0)
}
