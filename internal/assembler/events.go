package assembler

import (
	"context"
	"fmt"
	"sort"

	"tongjisync/internal/channel"
	"tongjisync/internal/normalize"
	"tongjisync/internal/record"
	"tongjisync/internal/source"
	"tongjisync/internal/tongji"
	"tongjisync/internal/urlparse"
)

// Enhanced event tags.
const (
	TagPageView          = "page_view"
	TagUserEngagement    = "user_engagement"
	TagFirstVisit        = "first_visit"
	TagSessionStart      = "session_start"
	TagViewSearchResults = "view_search_results"
)

// engagementSeconds is the duration a page view must exceed to count as
// engagement.
const engagementSeconds = 1

type timedPath struct {
	tongji.Path
	at normalize.Time
}

// orderPaths parses every path start and sorts ascending, keeping the
// response order for equal starts.
func (a *Assembler) orderPaths(paths []tongji.Path) ([]timedPath, error) {
	out := make([]timedPath, len(paths))
	for i, p := range paths {
		t, err := a.times.Time(p.StartTime)
		if err != nil {
			return nil, fmt.Errorf("path %d start time: %w", i, err)
		}
		out[i] = timedPath{Path: p, at: t}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Unix < out[j].at.Unix })
	return out, nil
}

// walkEvents emits one event per path. The first event takes the session's
// referrer, every later one the previous page. An event on the same SLD as
// the session referrer is internal traffic.
func (a *Assembler) walkEvents(ctx context.Context, v *visit) ([]record.Event, error) {
	paths, err := a.orderPaths(v.paths)
	if err != nil {
		return nil, err
	}

	s := &v.session
	events := make([]record.Event, 0, len(paths))
	for idx, p := range paths {
		duration, err := normalize.CorrectDuration(p.Duration)
		if err != nil {
			return nil, fmt.Errorf("path %d duration: %w", idx, err)
		}

		first := idx == 0
		last := idx == len(paths)-1

		referrer, referrerHost := s.Referrer, s.ReferrerHost
		if !first {
			referrer = paths[idx-1].URL
			referrerHost = urlparse.Host(referrer)
		}

		urlHost := urlparse.Host(p.URL)
		urlSLD := urlparse.SLD(urlHost)
		typ := s.TrafficSourceType
		if urlSLD != "" && urlSLD == s.ReferrerHostSLD {
			typ = source.Internal
		}

		path, fullPath := urlparse.ParsePath(p.URL)
		tr := a.params.TrackingParams(p.URL)

		e := record.Event{
			EventID:          EventID(s.SessionID, p.at.Unix, p.URL),
			SessionID:        s.SessionID,
			VisitorID:        s.VisitorID,
			ReceiveTime:      p.at.Canonical,
			DateTime:         p.at.Date,
			UnixTimestamp:    p.at.Unix,
			Event:            TagPageView,
			Browser:          s.Browser,
			BrowserLanguage:  s.BrowserLanguage,
			BrowserType:      s.BrowserType,
			City:             s.City,
			Country:          s.Country,
			DeviceType:       s.DeviceType,
			Duration:         duration,
			EnhancedEvents:   a.tags(p.URL, duration, first, v.isFirstTime),
			HMCI:             tr.HMCI,
			HMCU:             tr.HMCU,
			HMKW:             tr.HMKW,
			HMPL:             tr.HMPL,
			HMSR:             tr.HMSR,
			IP:               s.IP,
			IsFirstDay:       s.IsFirstDay,
			IsFirstTime:      first && v.isFirstTime,
			IsSessionEnd:     last && s.Duration > 0 && p.URL == s.EndPage,
			IsSessionStart:   first,
			OnsiteSearchTerm: a.params.OnSiteSearchTerm(p.URL),
			OS:               s.OS,
			OSType:           s.OSType,
			Province:         s.Province,
			Referrer:         referrer,
			ReferrerHost:     referrerHost,
			ReferrerHostSLD:  urlparse.SLD(referrerHost),
			Resolution:       s.Resolution,
			ScreenHeight:     s.ScreenHeight,
			ScreenWidth:      s.ScreenWidth,
			SessionStartTime: s.StartTime,

			TrafficSourceType: typ,
			URL:               p.URL,
			URLFullPath:       fullPath,
			URLHost:           urlHost,
			URLHostSLD:        urlSLD,
			URLPath:           path,
			URLQuery:          urlparse.RawQuery(p.URL),
			UTMCampaign:       tr.UTMCampaign,
			UTMContent:        tr.UTMContent,
			UTMMedium:         tr.UTMMedium,
			UTMSource:         tr.UTMSource,
			UTMTerm:           tr.UTMTerm,
			VisitorType:       s.VisitorType,
			WXShareFrom:       source.WeChatShareFrom(s.BrowserType, referrerHost, p.URL),
			Custom:            tr.Custom,
		}
		withLatest(&e, s)
		e.EnhancedTrafficGroup = a.channels.Classify(ctx, channel.Input{
			TrafficSourceType: e.TrafficSourceType,
			ReferrerHost:      e.ReferrerHost,
			UTMSource:         e.UTMSource,
			UTMMedium:         e.UTMMedium,
			UTMCampaign:       e.UTMCampaign,
		})
		events = append(events, e)
	}
	return events, nil
}

// withLatest threads the session's acquisition context into e.
func withLatest(e *record.Event, s *record.Session) {
	e.LatestLandingPage = s.LandingPage
	e.LatestReferrer = s.Referrer
	e.LatestReferrerHost = s.ReferrerHost
	e.LatestReferrerHostSLD = s.ReferrerHostSLD
	e.LatestSearchEngine = s.SearchEngine
	e.LatestSearchKeyword = s.SearchKeyword
	e.LatestTrafficSourceType = s.TrafficSourceType
	e.LatestUTMCampaign = s.UTMCampaign
	e.LatestUTMContent = s.UTMContent
	e.LatestUTMMedium = s.UTMMedium
	e.LatestUTMSource = s.UTMSource
	e.LatestUTMTerm = s.UTMTerm
}

// tags derives the sorted enhanced event list of a page view.
func (a *Assembler) tags(url string, duration int, sessionStart, firstTime bool) []string {
	tags := []string{TagPageView}
	if duration > engagementSeconds {
		tags = append(tags, TagUserEngagement)
	}
	if firstTime && sessionStart {
		tags = append(tags, TagFirstVisit)
	}
	if sessionStart {
		tags = append(tags, TagSessionStart)
	}
	if a.params.HasSearchParam(url) {
		tags = append(tags, TagViewSearchResults)
	}
	sort.Strings(tags)
	return tags
}
