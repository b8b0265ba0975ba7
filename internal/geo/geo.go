// Package geo resolves a visitor's (country, province, city) from the
// provider's free-text area name and the visitor IP.
//
// Resolution walks a fixed chain of tiers and stops at the first one that
// answers: municipality/SAR shortcut, local division tables, the IP cache,
// then external providers. Failures degrade to the next tier and are never
// returned to the caller.
package geo

import (
	"context"

	"tongjisync/internal/kv"
)

// Country is the domestic country name, the only country the division
// tables know about.
const Country = "中国"

// Division is one row of a division table.
type Division struct {
	Name string
	Code string
}

// Divisions is the local administrative-division lookup.
type Divisions interface {
	// CitiesLike returns prefecture-level cities whose name contains name.
	// Implementations may stop after two rows.
	CitiesLike(ctx context.Context, name string) ([]Division, error)
	// AreasLike is CitiesLike over county-level areas.
	AreasLike(ctx context.Context, name string) ([]Division, error)
	ProvinceName(ctx context.Context, code string) (string, bool, error)
	CityName(ctx context.Context, code string) (string, bool, error)
	AreaInProvince(ctx context.Context, name, provinceCode string) (string, bool, error)
}

// Cache is the IP-keyed resolution cache. Set must ignore incomplete locations.
type Cache interface {
	Get(ctx context.Context, ip string) (kv.Location, bool, error)
	Set(ctx context.Context, ip string, loc kv.Location) error
}

// Tier names the tier that produced a Resolution.
type Tier string

const (
	TierNone         Tier = "none"
	TierMunicipality Tier = "municipality"
	TierLocal        Tier = "local"
	TierCache        Tier = "cache"
	TierProvider     Tier = "provider"
)

// Status grades a Resolution.
type Status string

const (
	// Resolved means all three parts are known.
	Resolved Status = "resolved"
	// Degraded means some parts are known.
	Degraded Status = "degraded"
	// Failed means nothing is known.
	Failed Status = "failed"
)

// Resolution is the typed outcome of Resolver.Resolve.
type Resolution struct {
	kv.Location
	Tier   Tier
	Status Status
	// Cached reports whether this call wrote the location to the cache.
	Cached bool
}

func statusOf(loc kv.Location) Status {
	switch {
	case loc.Complete():
		return Resolved
	case loc.Country != "" || loc.Province != "" || loc.City != "":
		return Degraded
	default:
		return Failed
	}
}
