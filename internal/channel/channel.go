// Package channel assigns the marketing channel group of a session or event.
package channel

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"tongjisync/internal/source"
	"tongjisync/internal/urlparse"
)

// NotSet is returned for any group outside the configured allowed set.
const NotSet = "not_set"

// Source categories understood by the rules.
const (
	CategorySearch   = "search"
	CategoryShopping = "shopping"
	CategorySocial   = "social"
	CategoryVideo    = "video"
)

// DefaultGroups is the full set of groups the rules can produce.
var DefaultGroups = []string{
	"affiliates", "audio", "cross-network", "direct", "display", "email",
	"mobile_push_notifications", "organic_search", "organic_shopping",
	"organic_social", "organic_video", "paid_search", "paid_shopping",
	"paid_social", "paid_video", "paid_other", "referral", "sms",
	"internal", "other",
}

// CategoryLookup maps a source token (host, SLD or brand) to its category.
// ok is false when the token is unknown.
type CategoryLookup interface {
	Category(ctx context.Context, token string) (category string, ok bool, err error)
}

// Input carries the classification inputs. Case does not matter.
type Input struct {
	TrafficSourceType string
	ReferrerHost      string
	UTMSource         string
	UTMMedium         string
	UTMCampaign       string
}

var (
	paidMedium       = regexp.MustCompile(`^(.*cp.*|ppc|retargeting|paid.*)$`)
	emailToken       = regexp.MustCompile(`email|e-mail|e_mail|mail|newsletter`)
	pushMedium       = regexp.MustCompile(`push$|mobile|notification`)
	shoppingCampaign = regexp.MustCompile(`^(.*(([^a-df-z]|^)shop|shopping).*)$`)
	videoMedium      = regexp.MustCompile(`^(.*video.*)$`)
	linkPrefix       = regexp.MustCompile(`^links?\.`)
)

var (
	displayMedia  = set("display", "banner", "expandable", "interstitial", "cpm")
	socialMedia   = set("social", "social-network", "social-media", "sm", "social network", "social media", "social_network", "social_media")
	referralMedia = set("referral", "app", "link")
)

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

func inSet(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

type Classifier struct {
	lookup  CategoryLookup
	allowed map[string]struct{}
	log     *zap.Logger
}

// NewClassifier builds a classifier. An empty allowed list means DefaultGroups.
// lookup may be nil, in which case every source has no category.
func NewClassifier(lookup CategoryLookup, allowed []string, log *zap.Logger) *Classifier {
	if len(allowed) == 0 {
		allowed = DefaultGroups
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{lookup: lookup, allowed: set(allowed...), log: log}
}

// Category resolves the source category of referrerHost, trying the host
// itself, then its SLD, then the SLD's leading brand label.
func (c *Classifier) Category(ctx context.Context, referrerHost string) string {
	host := linkPrefix.ReplaceAllString(strings.ToLower(referrerHost), "")
	if host == "" || c.lookup == nil {
		return ""
	}
	sld := urlparse.SLD(host)
	brand, _, _ := strings.Cut(sld, ".")

	for _, token := range []string{host, sld, brand} {
		if token == "" {
			continue
		}
		cat, ok, err := c.lookup.Category(ctx, token)
		if err != nil {
			c.log.Warn("source category lookup failed", zap.String("token", token), zap.Error(err))
			return ""
		}
		if ok {
			return cat
		}
	}
	return ""
}

// Classify returns the channel group for in. Rules are evaluated in a fixed
// order and a later matching rule overwrites an earlier one.
func (c *Classifier) Classify(ctx context.Context, in Input) string {
	typ := in.TrafficSourceType
	utmSource := strings.ToLower(in.UTMSource)
	medium := strings.ToLower(in.UTMMedium)
	campaign := strings.ToLower(in.UTMCampaign)
	category := c.Category(ctx, in.ReferrerHost)
	paid := paidMedium.MatchString(medium) || strings.Contains(typ, source.PaidPrefix)

	group := ""
	if medium == "affiliate" {
		group = "affiliates"
	}
	if medium == "audio" {
		group = "audio"
	}
	if strings.Contains(campaign, "cross-network") {
		group = "cross-network"
	}
	if typ == source.Direct && medium == "" {
		group = "direct"
	}
	if inSet(displayMedia, medium) {
		group = "display"
	}
	if emailToken.MatchString(utmSource) || emailToken.MatchString(medium) {
		group = "email"
	}
	if pushMedium.MatchString(medium) || utmSource == "firebase" {
		group = "mobile_push_notifications"
	}

	shopping := category == CategoryShopping || shoppingCampaign.MatchString(campaign)
	if !paid {
		// an email medium or source outranks any organic match
		switch {
		case group == "email":
		case category == CategorySearch || typ == source.SearchEngine:
			group = "organic_search"
		case shopping:
			group = "organic_shopping"
		case category == CategorySocial || inSet(socialMedia, medium):
			group = "organic_social"
		case category == CategoryVideo || videoMedium.MatchString(medium):
			group = "organic_video"
		}
	} else {
		switch {
		case category == CategorySearch:
			group = "paid_search"
		case shopping:
			group = "paid_shopping"
		case category == CategorySocial:
			group = "paid_social"
		case category == CategoryVideo:
			group = "paid_video"
		default:
			group = "paid_other"
		}
	}

	if inSet(referralMedia, medium) {
		group = "referral"
	}
	if utmSource == "sms" || medium == "sms" {
		group = "sms"
	}

	if group == "" {
		group = fallback(typ)
	}
	if !inSet(c.allowed, group) {
		return NotSet
	}
	return group
}

// fallback maps the traffic source type alone when no rule matched.
func fallback(typ string) string {
	switch {
	case typ == source.Direct:
		return "direct"
	case strings.Contains(typ, "百度搜索推广"):
		return "paid_search"
	case strings.Contains(typ, "百度信息流推广"), strings.Contains(typ, "百度品牌植入"):
		return "paid_other"
	case typ == source.SearchEngine:
		return "organic_search"
	case typ == source.ExternalLink:
		return "referral"
	case typ == source.CustomSource:
		return "direct"
	case typ == source.Internal:
		return "internal"
	default:
		return "other"
	}
}
