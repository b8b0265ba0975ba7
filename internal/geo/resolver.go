package geo

import (
	"context"
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"tongjisync/internal/kv"
	"tongjisync/internal/metrics"
)

var (
	municipalities = map[string]struct{}{"北京": {}, "上海": {}, "天津": {}, "重庆": {}}
	sars           = map[string]struct{}{"香港": {}, "澳门": {}, "台湾": {}}
	ipv4           = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// codes the providers use for "unknown"
var unknownCodes = map[string]struct{}{"xx": {}, "0": {}, "999999": {}}

// Resolver is safe for concurrent use. Concurrent provider lookups of the
// same IP and area name share one call.
type Resolver struct {
	divisions Divisions
	cache     Cache
	providers []Provider
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	log       *zap.Logger
	group     singleflight.Group
}

type Option func(*Resolver)

// WithProviders sets the external fallback chain, tried in order.
func WithProviders(p ...Provider) Option {
	return func(r *Resolver) { r.providers = p }
}

// WithRateLimit bounds provider calls. A nil limiter means unlimited.
func WithRateLimit(l *rate.Limiter) Option {
	return func(r *Resolver) { r.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver builds a resolver. divisions and cache may be nil to skip
// their tiers.
func NewResolver(divisions Divisions, cache Cache, opts ...Option) *Resolver {
	r := &Resolver{divisions: divisions, cache: cache, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve maps an area name and IP to a location. It never fails; an
// unresolvable input yields an empty location with Status Failed.
func (r *Resolver) Resolve(ctx context.Context, name, ip string) Resolution {
	res := r.resolve(ctx, name, ip)
	res.Status = statusOf(res.Location)
	r.metrics.GeoResolution(string(res.Tier), string(res.Status))
	return res
}

func (r *Resolver) resolve(ctx context.Context, name, ip string) Resolution {
	if _, ok := municipalities[name]; ok {
		p := name + "市"
		return Resolution{Location: kv.Location{Country: Country, Province: p, City: p}, Tier: TierMunicipality}
	}
	if _, ok := sars[name]; ok {
		return Resolution{Location: kv.Location{Country: Country, Province: name, City: name}, Tier: TierMunicipality}
	}

	if loc, ok := r.local(ctx, name); ok {
		return r.store(ctx, ip, Resolution{Location: loc, Tier: TierLocal})
	}

	if r.cache != nil && ip != "" {
		loc, ok, err := r.cache.Get(ctx, ip)
		if err != nil {
			r.log.Warn("geo cache read failed", zap.String("ip", ip), zap.Error(err))
		} else if ok {
			return Resolution{Location: loc, Tier: TierCache}
		}
	}

	if !ipv4.MatchString(ip) || len(r.providers) == 0 {
		return Resolution{Tier: TierNone}
	}

	// name feeds county-level renormalisation, so it is part of the key
	v, _, _ := r.group.Do(ip+"\x00"+name, func() (interface{}, error) {
		return r.external(ctx, name, ip), nil
	})
	loc := v.(kv.Location)
	if loc == (kv.Location{}) {
		return Resolution{Tier: TierNone}
	}
	return r.store(ctx, ip, Resolution{Location: loc, Tier: TierProvider})
}

// local resolves name against the division tables. ok is true only for a
// unique match.
func (r *Resolver) local(ctx context.Context, name string) (kv.Location, bool) {
	if r.divisions == nil || name == "" {
		return kv.Location{}, false
	}

	rows, err := r.divisions.CitiesLike(ctx, name)
	if err == nil && len(rows) == 0 {
		rows, err = r.divisions.AreasLike(ctx, name)
	}
	if err != nil {
		r.log.Warn("division lookup failed", zap.String("name", name), zap.Error(err))
		return kv.Location{}, false
	}
	if len(rows) != 1 {
		return kv.Location{}, false
	}

	province, ok, err := r.divisions.ProvinceName(ctx, prefix(rows[0].Code, 2))
	if err != nil || !ok {
		if err != nil {
			r.log.Warn("province lookup failed", zap.String("code", rows[0].Code), zap.Error(err))
		}
		return kv.Location{}, false
	}
	return kv.Location{Country: Country, Province: province, City: rows[0].Name}, true
}

// external walks the provider chain and renormalises domestic names
// against the division tables.
func (r *Resolver) external(ctx context.Context, name, ip string) kv.Location {
	for _, p := range r.providers {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.log.Warn("geo provider rate wait aborted", zap.String("provider", p.Name()), zap.Error(err))
				return kv.Location{}
			}
		}

		l, err := p.Lookup(ctx, ip)
		if err != nil {
			r.metrics.GeoProviderError(p.Name())
			r.log.Debug("geo provider failed", zap.String("provider", p.Name()), zap.String("ip", ip), zap.Error(err))
			continue
		}
		return r.renormalise(ctx, name, l)
	}
	return kv.Location{}
}

func (r *Resolver) renormalise(ctx context.Context, name string, l Lookup) kv.Location {
	loc := l.Location
	if r.divisions == nil || l.Country != Country || l.ProvinceCode == "" || l.CityCode == "" {
		return loc
	}
	if _, ok := sars[loc.Province]; ok {
		return loc
	}

	var city string
	var err error
	if _, unknown := unknownCodes[l.CityCode]; !unknown {
		city, _, err = r.divisions.CityName(ctx, l.CityCode)
	} else if _, unknown := unknownCodes[l.ProvinceCode]; !unknown {
		city, _, err = r.divisions.AreaInProvince(ctx, name, l.ProvinceCode)
	}
	if err != nil {
		r.log.Warn("city renormalisation failed", zap.String("code", l.CityCode), zap.Error(err))
	}
	loc.City = city

	province, _, err := r.divisions.ProvinceName(ctx, l.ProvinceCode)
	if err != nil {
		r.log.Warn("province renormalisation failed", zap.String("code", l.ProvinceCode), zap.Error(err))
	}
	loc.Province = province
	return loc
}

// store writes a complete location to the cache.
func (r *Resolver) store(ctx context.Context, ip string, res Resolution) Resolution {
	if r.cache == nil || ip == "" || !res.Complete() {
		return res
	}
	if err := r.cache.Set(ctx, ip, res.Location); err != nil {
		r.log.Warn("geo cache write failed", zap.String("ip", ip), zap.Error(err))
		return res
	}
	res.Cached = true
	return res
}
