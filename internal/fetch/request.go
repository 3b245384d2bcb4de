// SPDX-License-Identifier: MIT

// Package fetch implements the fetch orchestrator: it turns a structured
// request into one grabber invocation inside an isolated workspace and returns
// the path of the published XMLTV artifact.
package fetch

import (
	"github.com/ManuGH/epgd/internal/epg"
)

// Default tunables applied by Options.withDefaults. The API handler passes a
// higher connection default than library callers, mirroring the grabber's own
// conventions.
const (
	DefaultDays           = 3
	DefaultTimeoutMS      = 30000
	DefaultDelayMS        = 0
	DefaultMaxConnections = 1
)

// Source is the discriminated origin of a fetch: exactly one of a site name or
// a channel list. Construct via SiteSource or ChannelSource; the zero value is
// invalid and rejected by Request.Validate.
type Source struct {
	site     string
	channels []epg.Channel
}

// SiteSource fetches every channel the grabber knows for one site.
func SiteSource(site string) Source {
	return Source{site: site}
}

// ChannelSource fetches exactly the listed channels.
func ChannelSource(channels []epg.Channel) Source {
	return Source{channels: channels}
}

// Site returns the site name, or "" for channel-list sources.
func (s Source) Site() string { return s.site }

// Channels returns the channel list, or nil for site sources.
func (s Source) Channels() []epg.Channel { return s.channels }

// Options are the shared tunables translated onto the grabber invocation.
type Options struct {
	Days           int
	Lang           string
	MaxConnections int
	TimeoutMS      int
	DelayMS        int
	Gzip           bool
}

func (o Options) withDefaults() Options {
	if o.Days <= 0 {
		o.Days = DefaultDays
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.TimeoutMS <= 0 {
		o.TimeoutMS = DefaultTimeoutMS
	}
	if o.DelayMS < 0 {
		o.DelayMS = DefaultDelayMS
	}
	return o
}

// Request describes one fetch operation.
type Request struct {
	Source  Source
	Options Options
}

// Validate enforces the request invariants before any workspace is created.
func (r Request) Validate() error {
	hasSite := r.Source.site != ""
	hasChannels := len(r.Source.channels) > 0

	switch {
	case !hasSite && !hasChannels:
		return &ValidationError{Reason: "either site or channels must be provided"}
	case hasSite && hasChannels:
		return &ValidationError{Reason: "site and channels are mutually exclusive"}
	}

	if hasChannels {
		if err := epg.ValidateChannels(r.Source.channels); err != nil {
			return &ValidationError{Reason: err.Error()}
		}
	}

	if r.Options.Days < 0 {
		return &ValidationError{Reason: "days must be positive"}
	}
	if r.Options.MaxConnections < 0 {
		return &ValidationError{Reason: "max connections must be positive"}
	}
	return nil
}
