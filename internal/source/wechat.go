package source

import "strings"

// WeChat share origins.
const (
	ShareOfficialAccount = "公众号"
	ShareMoments         = "朋友圈"
	ShareGroupChat       = "群聊"
	SharePrivateChat     = "单聊"
	ShareOther           = "其他"
)

// WeChatShareFrom reports where a page opened in the WeChat browser was shared
// from. It is empty for every other browser type.
func WeChatShareFrom(browserType, referrerHost, pageURL string) string {
	if browserType != "weixin" {
		return ""
	}
	switch {
	case referrerHost == "mp.weixin.qq.com", referrerHost == "mp.weixinbridge.com":
		return ShareOfficialAccount
	case strings.Contains(pageURL, "from=timeline"):
		return ShareMoments
	case strings.Contains(pageURL, "from=groupmessage"):
		return ShareGroupChat
	case strings.Contains(pageURL, "from=singlemessage"):
		return SharePrivateChat
	default:
		return ShareOther
	}
}
