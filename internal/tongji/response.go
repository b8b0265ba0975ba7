package tongji

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed means a response does not have the outline/detail shape.
// The whole response must be discarded.
var ErrMalformed = errors.New("malformed realtime response")

// Text is a scalar that the API sends as a string, a number or null.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case len(b) > 0 && (b[0] == '{' || b[0] == '['):
		return fmt.Errorf("%w: expected scalar, got %s", ErrMalformed, b)
	default:
		*t = Text(b)
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Outline is the visit summary row.
type Outline struct {
	StartTime  string
	Area       string
	Source     string
	AccessPage string
	SearchWord string
	IP         string
	VisitorID  string
	Duration   string
	VisitPages string
}

const outlineArity = 9

func (o *Outline) UnmarshalJSON(b []byte) error {
	var cols []Text
	if err := json.Unmarshal(b, &cols); err != nil {
		return fmt.Errorf("%w: outline row: %v", ErrMalformed, err)
	}
	if len(cols) < outlineArity {
		return fmt.Errorf("%w: outline row has %d columns, want %d", ErrMalformed, len(cols), outlineArity)
	}
	*o = Outline{
		StartTime:  string(cols[0]),
		Area:       string(cols[1]),
		Source:     string(cols[2]),
		AccessPage: string(cols[3]),
		SearchWord: string(cols[4]),
		IP:         string(cols[5]),
		VisitorID:  string(cols[6]),
		Duration:   string(cols[7]),
		VisitPages: string(cols[8]),
	}
	return nil
}

// FromType is the source descriptor of a visit.
type FromType struct {
	FromType Text `json:"fromType"`
	Tip      Text `json:"tip"`
	URL      Text `json:"url"`
}

// Path is one page view: [start time, duration, url].
type Path struct {
	StartTime string
	Duration  string
	URL       string
}

func (p *Path) UnmarshalJSON(b []byte) error {
	var cols []Text
	if err := json.Unmarshal(b, &cols); err != nil {
		return fmt.Errorf("%w: path: %v", ErrMalformed, err)
	}
	if len(cols) < 3 {
		return fmt.Errorf("%w: path has %d columns", ErrMalformed, len(cols))
	}
	*p = Path{StartTime: string(cols[0]), Duration: string(cols[1]), URL: string(cols[2])}
	return nil
}

// Detail is the per-visit device, browser and path detail.
type Detail struct {
	FromType         FromType `json:"fromType"`
	AntiCode         Text     `json:"antiCode"`
	Browser          Text     `json:"browser"`
	BrowserType      Text     `json:"browserType"`
	Color            Text     `json:"color"`
	Cookie           Text     `json:"cookie"`
	DeviceType       Text     `json:"deviceType"`
	EndPage          Text     `json:"endPage"`
	Flash            Text     `json:"flash"`
	FromWord         Text     `json:"from_word"`
	IPStatus         Text     `json:"ipStatus"`
	ISP              Text     `json:"isp"`
	Java             Text     `json:"java"`
	Language         Text     `json:"language"`
	LastVisitTime    Text     `json:"lastVisitTime"`
	OS               Text     `json:"os"`
	OSType           Text     `json:"osType"`
	Resolution       Text     `json:"resolution"`
	UserID           Text     `json:"userId"`
	VisitorFrequency Text     `json:"visitorFrequency"`
	VisitorStatus    Text     `json:"visitorStatus"`
	VisitorType      Text     `json:"visitorType"`
	Paths            []Path   `json:"paths"`
}

// detailCell is the wrapper the API puts around each Detail:
// [{"detail": {...}}, ...].
type detailCell []struct {
	Detail *Detail `json:"detail"`
}

// RawResponse is one realtime fetch: index-aligned outline and detail rows.
type RawResponse struct {
	Outline []Outline
	Detail  []Detail
	// Body is the undecoded response, kept for archiving.
	Body []byte
}

// Validate checks the index alignment of the two arrays.
func (r *RawResponse) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil response", ErrMalformed)
	}
	if len(r.Outline) != len(r.Detail) {
		return fmt.Errorf("%w: %d outline rows but %d detail rows", ErrMalformed, len(r.Outline), len(r.Detail))
	}
	return nil
}

// DecodeItems parses the "items" array of a realtime report:
// items[0] holds the detail cells, items[1] the outline rows.
func DecodeItems(items json.RawMessage) (*RawResponse, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(items, &parts); err != nil {
		return nil, fmt.Errorf("%w: items: %v", ErrMalformed, err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: items has %d parts", ErrMalformed, len(parts))
	}

	var cells []detailCell
	if err := json.Unmarshal(parts[0], &cells); err != nil {
		return nil, fmt.Errorf("%w: detail: %v", ErrMalformed, err)
	}
	var outline []Outline
	if err := json.Unmarshal(parts[1], &outline); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: outline: %v", ErrMalformed, err)
	}

	r := &RawResponse{Outline: outline, Detail: make([]Detail, 0, len(cells))}
	for i, c := range cells {
		if len(c) == 0 || c[0].Detail == nil {
			return nil, fmt.Errorf("%w: detail %d has no body", ErrMalformed, i)
		}
		r.Detail = append(r.Detail, *c[0].Detail)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Int parses t as an integer, treating empty as zero.
func (t Text) Int() (int, error) {
	if t == "" {
		return 0, nil
	}
	return strconv.Atoi(string(t))
}
