// Package record defines the assembled visitor, session and event entities.
//
// Known columns are struct fields tagged with their stored name. Configured
// custom tracking parameters live in Custom and only reach the flat
// representation through Fields, where they never shadow a known column.
package record

import (
	"encoding/json"
	"reflect"
	"sync"
)

// NoFirstVisit is the first_visit_time stored for returning visitors.
const NoFirstVisit = "1970-01-01 00:00:01"

// Visitor is a standalone snapshot of one visitor's first-touch acquisition.
type Visitor struct {
	VisitorID              string `json:"visitor_id"`
	FirstVisitTime         string `json:"first_visit_time"`
	LastVisitTime          string `json:"last_visit_time"`
	FirstLandingPage       string `json:"first_landing_page"`
	FirstReferrer          string `json:"first_referrer"`
	FirstReferrerHost      string `json:"first_referrer_host"`
	FirstSearchEngine      string `json:"first_search_engine"`
	FirstSearchKeyword     string `json:"first_search_keyword"`
	FirstTrafficSourceType string `json:"first_traffic_source_type"`
	UTMCampaign            string `json:"utm_campaign"`
	UTMContent             string `json:"utm_content"`
	UTMMedium              string `json:"utm_medium"`
	UTMSource              string `json:"utm_source"`
	UTMTerm                string `json:"utm_term"`
}

// Session is one visit.
type Session struct {
	SessionID            string `json:"session_id"`
	VisitorID            string `json:"visitor_id"`
	SiteID               string `json:"site_id"`
	StartTime            string `json:"start_time"`
	DateTime             string `json:"date_time"`
	UnixTimestamp        int64  `json:"unix_timestamp"`
	AccessFullPath       string `json:"access_full_path"`
	AccessHost           string `json:"access_host"`
	AccessPage           string `json:"access_page"`
	AccessPageQuery      string `json:"access_page_query"`
	AccessPath           string `json:"access_path"`
	AntiCode             string `json:"anti_code"`
	BaiduUserID          string `json:"b_user_id"`
	Browser              string `json:"browser"`
	BrowserLanguage      string `json:"browser_language"`
	BrowserType          string `json:"browser_type"`
	City                 string `json:"city"`
	ColorDepth           string `json:"color_depth"`
	CookieEnable         bool   `json:"cookie_enable"`
	Country              string `json:"country"`
	DeviceType           string `json:"device_type"`
	Duration             int    `json:"duration"`
	EndPage              string `json:"end_page"`
	EnhancedTrafficGroup string `json:"enhanced_traffic_group"`
	FirstEventID         string `json:"first_event_id"`
	FlashVersion         string `json:"flash_version"`
	FromWord             string `json:"from_word"`
	HMCI                 string `json:"hmci"`
	HMCU                 string `json:"hmcu"`
	HMKW                 string `json:"hmkw"`
	HMPL                 string `json:"hmpl"`
	HMSR                 string `json:"hmsr"`
	IP                   string `json:"ip"`
	IPISP                string `json:"ip_isp"`
	IPStatus             string `json:"ip_status"`
	IsFirstDay           bool   `json:"is_first_day"`
	IsFirstTime          bool   `json:"is_first_time"`
	JavaEnable           bool   `json:"java_enable"`
	LandingPage          string `json:"landing_page"`
	LastEventID          string `json:"last_event_id"`
	LastVisitTime        string `json:"last_visit_time"`
	OS                   string `json:"os"`
	OSType               string `json:"os_type"`
	Province             string `json:"province"`
	RawArea              string `json:"raw_area"`
	Referrer             string `json:"referrer"`
	ReferrerHost         string `json:"referrer_host"`
	ReferrerHostSLD      string `json:"referrer_host_sld"`
	Resolution           string `json:"resolution"`
	ScreenHeight         int    `json:"screen_height"`
	ScreenWidth          int    `json:"screen_width"`
	SearchEngine         string `json:"search_engine"`
	SearchKeyword        string `json:"search_keyword"`
	SourceFromType       string `json:"source_from_type"`
	SourceTip            string `json:"source_tip"`
	SourceURL            string `json:"source_url"`
	TrafficSourceType    string `json:"traffic_source_type"`
	UTMCampaign          string `json:"utm_campaign"`
	UTMContent           string `json:"utm_content"`
	UTMMedium            string `json:"utm_medium"`
	UTMSource            string `json:"utm_source"`
	UTMTerm              string `json:"utm_term"`
	VisitPages           int    `json:"visit_pages"`
	VisitorFrequency     int    `json:"visitor_frequency"`
	VisitorStatus        string `json:"visitor_status"`
	VisitorType          int    `json:"visitor_type"`
	WXShareFrom          string `json:"wx_share_from"`

	Custom map[string]string `json:"-"`
}

// Event is one page view.
type Event struct {
	EventID                 string   `json:"event_id"`
	SessionID               string   `json:"session_id"`
	VisitorID               string   `json:"visitor_id"`
	SiteID                  string   `json:"site_id"`
	ReceiveTime             string   `json:"receive_time"`
	DateTime                string   `json:"date_time"`
	UnixTimestamp           int64    `json:"unix_timestamp"`
	Event                   string   `json:"event"`
	Browser                 string   `json:"browser"`
	BrowserLanguage         string   `json:"browser_language"`
	BrowserType             string   `json:"browser_type"`
	City                    string   `json:"city"`
	Country                 string   `json:"country"`
	DeviceType              string   `json:"device_type"`
	Duration                int      `json:"duration"`
	EnhancedEvents          []string `json:"enhanced_event_list"`
	EnhancedTrafficGroup    string   `json:"enhanced_traffic_group"`
	HMCI                    string   `json:"hmci"`
	HMCU                    string   `json:"hmcu"`
	HMKW                    string   `json:"hmkw"`
	HMPL                    string   `json:"hmpl"`
	HMSR                    string   `json:"hmsr"`
	IP                      string   `json:"ip"`
	IsFirstDay              bool     `json:"is_first_day"`
	IsFirstTime             bool     `json:"is_first_time"`
	IsSessionEnd            bool     `json:"is_session_end"`
	IsSessionStart          bool     `json:"is_session_start"`
	LatestLandingPage       string   `json:"latest_landing_page"`
	LatestReferrer          string   `json:"latest_referrer"`
	LatestReferrerHost      string   `json:"latest_referrer_host"`
	LatestReferrerHostSLD   string   `json:"latest_referrer_host_sld"`
	LatestSearchEngine      string   `json:"latest_search_engine"`
	LatestSearchKeyword     string   `json:"latest_search_keyword"`
	LatestTrafficSourceType string   `json:"latest_traffic_source_type"`
	LatestUTMCampaign       string   `json:"latest_utm_campaign"`
	LatestUTMContent        string   `json:"latest_utm_content"`
	LatestUTMMedium         string   `json:"latest_utm_medium"`
	LatestUTMSource         string   `json:"latest_utm_source"`
	LatestUTMTerm           string   `json:"latest_utm_term"`
	OnsiteSearchTerm        string   `json:"onsite_search_term"`
	OS                      string   `json:"os"`
	OSType                  string   `json:"os_type"`
	Province                string   `json:"province"`
	Referrer                string   `json:"referrer"`
	ReferrerHost            string   `json:"referrer_host"`
	ReferrerHostSLD         string   `json:"referrer_host_sld"`
	Resolution              string   `json:"resolution"`
	ScreenHeight            int      `json:"screen_height"`
	ScreenWidth             int      `json:"screen_width"`
	SessionStartTime        string   `json:"session_start_time"`
	TrafficSourceType       string   `json:"traffic_source_type"`
	URL                     string   `json:"url"`
	URLFullPath             string   `json:"url_full_path"`
	URLHost                 string   `json:"url_host"`
	URLHostSLD              string   `json:"url_host_sld"`
	URLPath                 string   `json:"url_path"`
	URLQuery                string   `json:"url_query"`
	UTMCampaign             string   `json:"utm_campaign"`
	UTMContent              string   `json:"utm_content"`
	UTMMedium               string   `json:"utm_medium"`
	UTMSource               string   `json:"utm_source"`
	UTMTerm                 string   `json:"utm_term"`
	VisitorType             int      `json:"visitor_type"`
	WXShareFrom             string   `json:"wx_share_from"`

	Custom map[string]string `json:"-"`
}

// Record is the unit handed to a sink.
type Record struct {
	Visitor Visitor `json:"visitor"`
	Session Session `json:"session"`
	Events  []Event `json:"event_list"`
}

// Fields flattens v into its stored column names.
func (v Visitor) Fields() map[string]any { return flatten(v, nil) }

// Fields flattens s, merging custom parameters at the top level.
func (s Session) Fields() map[string]any { return flatten(s, s.Custom) }

// Fields flattens e, merging custom parameters at the top level.
func (e Event) Fields() map[string]any { return flatten(e, e.Custom) }

func (s Session) MarshalJSON() ([]byte, error) { return json.Marshal(s.Fields()) }

func (e Event) MarshalJSON() ([]byte, error) { return json.Marshal(e.Fields()) }

// Columns returns the known column names of the struct behind v, in
// declaration order.
func Columns(v any) []string {
	idx := columnIndex(reflect.TypeOf(v))
	out := make([]string, len(idx))
	for i, c := range idx {
		out[i] = c.name
	}
	return out
}

type column struct {
	name  string
	field int
}

var columnCache sync.Map // reflect.Type -> []column

func columnIndex(t reflect.Type) []column {
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, column{name: tag, field: i})
	}
	columnCache.Store(t, cols)
	return cols
}

func flatten(v any, custom map[string]string) map[string]any {
	rv := reflect.ValueOf(v)
	cols := columnIndex(rv.Type())
	m := make(map[string]any, len(cols)+len(custom))
	for _, c := range cols {
		m[c.name] = rv.Field(c.field).Interface()
	}
	for k, val := range custom {
		if _, known := m[k]; !known {
			m[k] = val
		}
	}
	return m
}
