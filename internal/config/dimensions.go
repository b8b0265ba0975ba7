package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"tongjisync/internal/channel"
)

// Dimensions are the configurable record dimensions.
type Dimensions struct {
	// CustomTrackingParams are query parameters copied verbatim onto sessions
	// and events, e.g. bd_vid.
	CustomTrackingParams []string `yaml:"custom_tracking_params"`
	// OnsiteSearchParams name the query parameters of on-site search pages.
	OnsiteSearchParams []string `yaml:"onsite_search_params"`
	// TrafficChannelGroups is the allowed channel group set.
	TrafficChannelGroups []string `yaml:"traffic_channel_group"`
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// DefaultDimensions is used when no dimensions file exists.
func DefaultDimensions() *Dimensions {
	return &Dimensions{
		OnsiteSearchParams:   []string{"q", "s", "search", "query", "keyword", "keywords"},
		TrafficChannelGroups: append([]string(nil), channel.DefaultGroups...),
	}
}

// LoadDimensions reads path. A missing file yields DefaultDimensions.
func LoadDimensions(path string) (*Dimensions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDimensions(), nil
		}
		return nil, fmt.Errorf("read dimensions: %w", err)
	}

	d := DefaultDimensions()
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse dimensions: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks that custom parameters can be used as column names.
func (d *Dimensions) Validate() error {
	for _, p := range d.CustomTrackingParams {
		if !identifier.MatchString(p) {
			return fmt.Errorf("invalid custom tracking param %q", p)
		}
	}
	return nil
}
