package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Layout is the canonical timestamp layout used by every record (YYYY-MM-DD HH:mm:ss).
	Layout = "2006-01-02 15:04:05"
	// DateLayout is the date-only layout (YYYY-MM-DD).
	DateLayout = "2006-01-02"
)

// ErrUnparseableTime is returned when a timestamp cannot be parsed even after
// the current date has been injected in front of it.
var ErrUnparseableTime = errors.New("unparseable time")

var dateTimeLayouts = []string{
	Layout,
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	DateLayout,
	"2006/01/02",
}

// Time is a normalized timestamp.
type Time struct {
	Canonical string // YYYY-MM-DD HH:mm:ss in the normalizer's zone
	Date      string // YYYY-MM-DD
	Unix      int64
}

// Normalizer parses raw analytics timestamps. Naive timestamps are read in
// loc; timestamps without a date get today's date (per now) injected.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

func NewNormalizer(loc *time.Location, now func() time.Time) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{loc: loc, now: now}
}

// Time normalizes raw into canonical form. A value such as "10:04:31" has
// today's date prepended before parsing; both branches produce the same layout.
func (n *Normalizer) Time(raw string) (Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Time{}, fmt.Errorf("%w: empty value", ErrUnparseableTime)
	}

	t, ok := n.parse(raw)
	if !ok {
		today := n.now().In(n.loc).Format(DateLayout)
		t, ok = n.parse(today + " " + raw)
		if !ok {
			return Time{}, fmt.Errorf("%w: %q", ErrUnparseableTime, raw)
		}
	}

	t = t.In(n.loc)
	return Time{
		Canonical: t.Format(Layout),
		Date:      t.Format(DateLayout),
		Unix:      t.Unix(),
	}, nil
}

func (n *Normalizer) parse(raw string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, n.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
