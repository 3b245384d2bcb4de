// SPDX-License-Identifier: MIT

// Package epg provides the channel model and the channel-list document codec
// consumed by the grabber toolkit.
package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Channel describes one EPG channel for the grabber. Equality is structural;
// a channel carries no identity beyond its fields.
type Channel struct {
	Site        string `json:"site" xml:"site,attr"`
	Lang        string `json:"lang" xml:"lang,attr"`
	XMLTVID     string `json:"xmltv_id" xml:"xmltv_id,attr"`
	SiteID      string `json:"site_id" xml:"site_id,attr"`
	DisplayName string `json:"name" xml:",chardata"`
}

// ChannelList is the root element of the channel-list document. Element order
// follows insertion order.
type ChannelList struct {
	XMLName  xml.Name  `xml:"channels"`
	Channels []Channel `xml:"channel"`
}

// Validate checks that every field required by the grabber is present.
func (c Channel) Validate() error {
	switch {
	case strings.TrimSpace(c.Site) == "":
		return errors.New("channel is missing site")
	case strings.TrimSpace(c.Lang) == "":
		return errors.New("channel is missing lang")
	case strings.TrimSpace(c.XMLTVID) == "":
		return errors.New("channel is missing xmltv_id")
	case strings.TrimSpace(c.SiteID) == "":
		return errors.New("channel is missing site_id")
	case strings.TrimSpace(c.DisplayName) == "":
		return errors.New("channel is missing display name")
	}
	return nil
}

// ValidateChannels validates every entry and reports the first offender by index.
func ValidateChannels(channels []Channel) error {
	if len(channels) == 0 {
		return errors.New("channel list is empty")
	}
	for i, ch := range channels {
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return nil
}

// MarshalChannelList renders the channel-list document with an XML declaration.
// Callers must validate the channels first; serialization does not re-check.
func MarshalChannelList(channels []Channel) ([]byte, error) {
	doc := ChannelList{Channels: channels}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal channel list: %w", err)
	}
	header := `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	return append([]byte(header), out...), nil
}

// maxChannelListSize bounds channel-list documents accepted from callers.
const maxChannelListSize = 10 * 1024 * 1024

// ParseChannelList decodes a channel-list document. Parsing is strict and
// entity expansion is disabled.
func ParseChannelList(r io.Reader) (*ChannelList, error) {
	dec := xml.NewDecoder(io.LimitReader(r, maxChannelListSize))
	dec.Strict = true
	dec.Entity = make(map[string]string)

	var doc ChannelList
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decode channel list: document has no channels element")
		}
		return nil, fmt.Errorf("decode channel list: %w", err)
	}
	return &doc, nil
}
