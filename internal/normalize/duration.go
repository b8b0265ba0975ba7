package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Duration sentinels. Re-poll schedulers and the correction job key off these
// exact values, so they must never change.
const (
	DurationVisiting = -10000 // visit still in progress
	DurationUnknown  = -20000 // duration not reported
)

const (
	markerVisiting = "正在访问"
	markerUnknown  = "未知"
)

var ErrInvalidDuration = errors.New("invalid duration")

// CorrectDuration maps the provider's duration text to seconds or a sentinel.
func CorrectDuration(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case markerVisiting:
		return DurationVisiting, nil
	case markerUnknown:
		return DurationUnknown, nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, raw)
	}
	return d, nil
}

// ScreenSize splits a "WxH" resolution. Unparsable input yields 0, 0.
func ScreenSize(resolution string) (width, height int) {
	w, h, ok := strings.Cut(strings.TrimSpace(resolution), "x")
	if !ok {
		return 0, 0
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil {
		return 0, 0
	}
	return width, height
}
