package db

import (
	"time"

	"gorm.io/datatypes"
)

// Visitor is the stored visitor profile. The acquisition columns come from
// the assembled record; the hf_* and total_* columns are filled by the
// correction job.
type Visitor struct {
	VisitorID string `gorm:"primaryKey;size:64"`

	FirstVisitTime         string `gorm:"size:19;index"`
	LastVisitTime          string `gorm:"size:19;index"`
	FirstLandingPage       string
	FirstReferrer          string
	FirstReferrerHost      string
	FirstSearchEngine      string
	FirstSearchKeyword     string
	FirstTrafficSourceType string
	UTMCampaign            string `gorm:"column:utm_campaign"`
	UTMContent             string `gorm:"column:utm_content"`
	UTMMedium              string `gorm:"column:utm_medium"`
	UTMSource              string `gorm:"column:utm_source"`
	UTMTerm                string `gorm:"column:utm_term"`

	HfIP            string `gorm:"column:hf_ip"`
	HfCountry       string
	HfProvince      string
	HfCity          string
	Frequency       int64
	TotalDuration   int64
	TotalVisitPages int64

	UpdatedAt time.Time
}

// Session is one stored visit. Custom tracking columns are added at
// runtime and are not part of the struct.
type Session struct {
	SessionID            string `gorm:"primaryKey;size:66"`
	VisitorID            string `gorm:"size:64;index"`
	SiteID               string `gorm:"size:32;index"`
	StartTime            string `gorm:"size:19;index"`
	DateTime             string `gorm:"size:10;index"`
	UnixTimestamp        int64
	AccessFullPath       string
	AccessHost           string
	AccessPage           string
	AccessPageQuery      string
	AccessPath           string
	AntiCode             string
	BUserID              string `gorm:"column:b_user_id"`
	Browser              string
	BrowserLanguage      string
	BrowserType          string
	City                 string
	ColorDepth           string
	CookieEnable         bool
	Country              string
	DeviceType           string
	Duration             int64 `gorm:"index"`
	EndPage              string
	EnhancedTrafficGroup string
	FirstEventID         string `gorm:"size:66"`
	FlashVersion         string
	FromWord             string
	HMCI                 string `gorm:"column:hmci"`
	HMCU                 string `gorm:"column:hmcu"`
	HMKW                 string `gorm:"column:hmkw"`
	HMPL                 string `gorm:"column:hmpl"`
	HMSR                 string `gorm:"column:hmsr"`
	IP                   string `gorm:"column:ip"`
	IPISP                string `gorm:"column:ip_isp"`
	IPStatus             string `gorm:"column:ip_status"`
	IsFirstDay           bool
	IsFirstTime          bool
	JavaEnable           bool
	LandingPage          string
	LastEventID          string `gorm:"size:66"`
	LastVisitTime        string `gorm:"size:19"`
	OS                   string `gorm:"column:os"`
	OSType               string `gorm:"column:os_type"`
	Province             string
	RawArea              string
	Referrer             string
	ReferrerHost         string
	ReferrerHostSLD      string `gorm:"column:referrer_host_sld"`
	Resolution           string
	ScreenHeight         int64
	ScreenWidth          int64
	SearchEngine         string
	SearchKeyword        string
	SourceFromType       string
	SourceTip            string
	SourceURL            string `gorm:"column:source_url"`
	TrafficSourceType    string
	UTMCampaign          string `gorm:"column:utm_campaign"`
	UTMContent           string `gorm:"column:utm_content"`
	UTMMedium            string `gorm:"column:utm_medium"`
	UTMSource            string `gorm:"column:utm_source"`
	UTMTerm              string `gorm:"column:utm_term"`
	VisitPages           int64
	VisitorFrequency     int64
	VisitorStatus        string
	VisitorType          int64
	WXShareFrom          string `gorm:"column:wx_share_from"`
}

// Event is one stored page view.
type Event struct {
	EventID                 string `gorm:"primaryKey;size:66"`
	SessionID               string `gorm:"size:66;index"`
	VisitorID               string `gorm:"size:64;index"`
	SiteID                  string `gorm:"size:32;index"`
	ReceiveTime             string `gorm:"size:19;index"`
	DateTime                string `gorm:"size:10"`
	UnixTimestamp           int64
	Event                   string
	Browser                 string
	BrowserLanguage         string
	BrowserType             string
	City                    string
	Country                 string
	DeviceType              string
	Duration                int64 `gorm:"index"`
	EnhancedEventList       datatypes.JSON
	EnhancedTrafficGroup    string
	HMCI                    string `gorm:"column:hmci"`
	HMCU                    string `gorm:"column:hmcu"`
	HMKW                    string `gorm:"column:hmkw"`
	HMPL                    string `gorm:"column:hmpl"`
	HMSR                    string `gorm:"column:hmsr"`
	IP                      string `gorm:"column:ip"`
	IsFirstDay              bool
	IsFirstTime             bool
	IsSessionEnd            bool
	IsSessionStart          bool
	LatestLandingPage       string
	LatestReferrer          string
	LatestReferrerHost      string
	LatestReferrerHostSLD   string `gorm:"column:latest_referrer_host_sld"`
	LatestSearchEngine      string
	LatestSearchKeyword     string
	LatestTrafficSourceType string
	LatestUTMCampaign       string `gorm:"column:latest_utm_campaign"`
	LatestUTMContent        string `gorm:"column:latest_utm_content"`
	LatestUTMMedium         string `gorm:"column:latest_utm_medium"`
	LatestUTMSource         string `gorm:"column:latest_utm_source"`
	LatestUTMTerm           string `gorm:"column:latest_utm_term"`
	OnsiteSearchTerm        string
	OS                      string `gorm:"column:os"`
	OSType                  string `gorm:"column:os_type"`
	Province                string
	Referrer                string
	ReferrerHost            string
	ReferrerHostSLD         string `gorm:"column:referrer_host_sld"`
	Resolution              string
	ScreenHeight            int64
	ScreenWidth             int64
	SessionStartTime        string `gorm:"size:19"`
	TrafficSourceType       string
	URL                     string `gorm:"column:url"`
	URLFullPath             string `gorm:"column:url_full_path"`
	URLHost                 string `gorm:"column:url_host"`
	URLHostSLD              string `gorm:"column:url_host_sld"`
	URLPath                 string `gorm:"column:url_path"`
	URLQuery                string `gorm:"column:url_query"`
	UTMCampaign             string `gorm:"column:utm_campaign"`
	UTMContent              string `gorm:"column:utm_content"`
	UTMMedium               string `gorm:"column:utm_medium"`
	UTMSource               string `gorm:"column:utm_source"`
	UTMTerm                 string `gorm:"column:utm_term"`
	VisitorType             int64
	WXShareFrom             string `gorm:"column:wx_share_from"`
}

// RawPayload archives a fetched realtime response for replay. Rows are
// deleted by the retention worker once ExpiresAt has passed.
type RawPayload struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	ExpiresAt *time.Time `gorm:"index"`

	SiteID string `gorm:"index;size:32"`
	RunID  string `gorm:"index;size:36"`
	Body   datatypes.JSON
}
