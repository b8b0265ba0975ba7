package assembler

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	sessionPrefix = "s_"
	eventPrefix   = "p_"
)

func digest(prefix string, parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "_")))
	return prefix + hex.EncodeToString(sum[:])
}

// SessionID derives the session key from the visitor, the visit start and
// the landing page. The same inputs always give the same id.
func SessionID(visitorID string, unix int64, landingPage string) string {
	return digest(sessionPrefix, visitorID, strconv.FormatInt(unix, 10), landingPage)
}

// EventID derives the page view key from its session, start and URL.
func EventID(sessionID string, unix int64, url string) string {
	return digest(eventPrefix, sessionID, strconv.FormatInt(unix, 10), url)
}
