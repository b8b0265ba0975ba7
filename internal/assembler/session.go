package assembler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tongjisync/internal/channel"
	"tongjisync/internal/kv"
	"tongjisync/internal/normalize"
	"tongjisync/internal/record"
	"tongjisync/internal/source"
	"tongjisync/internal/tongji"
	"tongjisync/internal/urlparse"
)

const (
	placeholder    = "--"
	firstVisitMark = "首次访问"
	returningMark  = "老访客"
	supportedMark  = "支持"
)

// visit is the state carried from SESSION_BUILT into the event walk.
type visit struct {
	session     record.Session
	visitor     record.Visitor
	paths       []tongji.Path
	isFirstTime bool
}

// clean decodes a provider text field and maps the placeholder to empty.
func clean(s string) string {
	s = urlparse.Unquote(s)
	if s == placeholder {
		return ""
	}
	return s
}

func (a *Assembler) buildSession(ctx context.Context, o tongji.Outline, d tongji.Detail) (*visit, error) {
	start, err := a.times.Time(o.StartTime)
	if err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}
	duration, err := normalize.CorrectDuration(o.Duration)
	if err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	visitPages, err := tongji.Text(o.VisitPages).Int()
	if err != nil {
		return nil, fmt.Errorf("visit pages: %w", err)
	}
	frequency, err := d.VisitorFrequency.Int()
	if err != nil {
		return nil, fmt.Errorf("visitor frequency: %w", err)
	}

	isFirstTime := d.LastVisitTime.String() == firstVisitMark
	lastVisit := start.Canonical
	if !isFirstTime {
		if lastVisit, err = a.lastVisitTime(d.LastVisitTime.String()); err != nil {
			return nil, fmt.Errorf("last visit time: %w", err)
		}
	}

	loc := a.resolveGeo(ctx, o.Area, o.IP)
	src := source.Classify(d.FromType.FromType.String(), d.FromType.URL.String())

	landing := o.AccessPage
	path, fullPath := urlparse.ParsePath(landing)
	tr := a.params.TrackingParams(landing)

	keyword := clean(o.SearchWord)
	if keyword == "" {
		keyword = src.Keyword
	}
	fromWord := clean(d.FromWord.String())
	if fromWord != "" && tr.UTMTerm == "" {
		tr.UTMTerm = fromWord
	}

	visitorType := 0
	if d.VisitorType.String() == returningMark {
		visitorType = 1
	}
	width, height := normalize.ScreenSize(d.Resolution.String())
	browserType := d.BrowserType.String()

	s := record.Session{
		SessionID:       SessionID(o.VisitorID, start.Unix, landing),
		VisitorID:       o.VisitorID,
		StartTime:       start.Canonical,
		DateTime:        start.Date,
		UnixTimestamp:   start.Unix,
		AccessFullPath:  fullPath,
		AccessHost:      urlparse.Host(landing),
		AccessPage:      landing,
		AccessPageQuery: urlparse.RawQuery(landing),
		AccessPath:      path,
		AntiCode:        clean(d.AntiCode.String()),
		BaiduUserID:     d.UserID.String(),
		Browser:         d.Browser.String(),
		BrowserLanguage: d.Language.String(),
		BrowserType:     browserType,
		City:            loc.City,
		ColorDepth:      d.Color.String(),
		CookieEnable:    d.Cookie.String() == supportedMark,
		Country:         loc.Country,
		DeviceType:      d.DeviceType.String(),
		Duration:        duration,
		EndPage:         d.EndPage.String(),
		FlashVersion:    d.Flash.String(),
		FromWord:        fromWord,
		HMCI:            tr.HMCI,
		HMCU:            tr.HMCU,
		HMKW:            tr.HMKW,
		HMPL:            tr.HMPL,
		HMSR:            tr.HMSR,
		IP:              o.IP,
		IPISP:           d.ISP.String(),
		IPStatus:        d.IPStatus.String(),
		IsFirstDay:      a.firstDay(ctx, o.VisitorID, start.Date, isFirstTime),
		IsFirstTime:     isFirstTime,
		JavaEnable:      d.Java.String() == supportedMark,
		LandingPage:     landing,
		LastVisitTime:   lastVisit,
		OS:              d.OS.String(),
		OSType:          d.OSType.String(),
		Province:        loc.Province,
		RawArea:         o.Area,
		Referrer:        src.Referrer,
		ReferrerHost:    src.ReferrerHost,
		ReferrerHostSLD: urlparse.SLD(src.ReferrerHost),
		Resolution:      d.Resolution.String(),
		ScreenHeight:    height,
		ScreenWidth:     width,
		SearchEngine:    src.SearchEngine,
		SearchKeyword:   keyword,
		SourceFromType:  d.FromType.FromType.String(),
		SourceTip:       d.FromType.Tip.String(),
		SourceURL:       d.FromType.URL.String(),

		TrafficSourceType: src.Type,
		UTMCampaign:       tr.UTMCampaign,
		UTMContent:        tr.UTMContent,
		UTMMedium:         tr.UTMMedium,
		UTMSource:         tr.UTMSource,
		UTMTerm:           tr.UTMTerm,
		VisitPages:        visitPages,
		VisitorFrequency:  frequency,
		VisitorStatus:     d.VisitorStatus.String(),
		VisitorType:       visitorType,
		WXShareFrom:       source.WeChatShareFrom(browserType, src.ReferrerHost, landing),
		Custom:            tr.Custom,
	}
	s.EnhancedTrafficGroup = a.channels.Classify(ctx, channel.Input{
		TrafficSourceType: s.TrafficSourceType,
		ReferrerHost:      s.ReferrerHost,
		UTMSource:         s.UTMSource,
		UTMMedium:         s.UTMMedium,
		UTMCampaign:       s.UTMCampaign,
	})

	return &visit{
		session:     s,
		visitor:     visitorOf(s),
		paths:       d.Paths,
		isFirstTime: isFirstTime,
	}, nil
}

// visitorOf snapshots the visitor. Acquisition fields are only known on a
// new visitor's visit.
func visitorOf(s record.Session) record.Visitor {
	v := record.Visitor{
		VisitorID:      s.VisitorID,
		FirstVisitTime: record.NoFirstVisit,
		LastVisitTime:  s.StartTime,
	}
	if s.VisitorType != 0 {
		return v
	}
	v.FirstVisitTime = s.StartTime
	v.FirstLandingPage = s.LandingPage
	v.FirstReferrer = s.Referrer
	v.FirstReferrerHost = s.ReferrerHost
	v.FirstSearchEngine = s.SearchEngine
	v.FirstSearchKeyword = s.SearchKeyword
	v.FirstTrafficSourceType = s.TrafficSourceType
	v.UTMCampaign = s.UTMCampaign
	v.UTMContent = s.UTMContent
	v.UTMMedium = s.UTMMedium
	v.UTMSource = s.UTMSource
	v.UTMTerm = s.UTMTerm
	return v
}

func (a *Assembler) lastVisitTime(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == placeholder {
		return "", nil
	}
	t, err := a.times.Time(raw)
	if err != nil {
		return "", err
	}
	return t.Canonical, nil
}

func (a *Assembler) resolveGeo(ctx context.Context, area, ip string) kv.Location {
	if a.geo == nil {
		return kv.Location{}
	}
	return a.geo.Resolve(ctx, area, ip).Location
}

// firstDay records the first visit's date and reports whether date is the
// visitor's first day. Store failures are logged and treated as unknown.
func (a *Assembler) firstDay(ctx context.Context, visitorID, date string, isFirstTime bool) bool {
	if a.firstVisits == nil {
		return isFirstTime
	}
	if isFirstTime {
		if err := a.firstVisits.SetFirstVisitDay(ctx, visitorID, date); err != nil {
			a.log.Warn("first visit day write failed", zap.String("visitor_id", visitorID), zap.Error(err))
			return true
		}
	}
	day, ok, err := a.firstVisits.FirstVisitDay(ctx, visitorID)
	if err != nil {
		a.log.Warn("first visit day read failed", zap.String("visitor_id", visitorID), zap.Error(err))
		return isFirstTime
	}
	return ok && day == date
}
