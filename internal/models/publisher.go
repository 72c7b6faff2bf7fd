package models

import "strings"

// UserEnabled is the tri-state subscription choice a user made for a publisher
type UserEnabled string

const (
	UserEnabledNotModified UserEnabled = "not_modified"
	UserEnabledEnabled     UserEnabled = "enabled"
	UserEnabledDisabled    UserEnabled = "disabled"
)

// PublisherType separates publishers from the combined feed and user-added RSS sources
type PublisherType string

const (
	PublisherCombinedSource PublisherType = "combined_source"
	PublisherDirectSource   PublisherType = "direct_source"
)

// Publisher is an entry of the publisher directory
type Publisher struct {
	ID                 string              `json:"publisher_id"`
	Name               string              `json:"publisher_name"`
	Type               PublisherType       `json:"type"`
	CategoryName       string              `json:"category"`
	SiteURL            string              `json:"site_url"`
	FeedURL            string              `json:"feed_url,omitempty"`
	Locales            []string            `json:"locales"`
	Channels           map[string][]string `json:"channels,omitempty"` // locale -> channel names
	UserEnabledStatus  UserEnabled         `json:"user_enabled_status"`
	IsEnabledByDefault bool                `json:"is_enabled"`
}

// Publishers maps publisher ids to directory entries
type Publishers map[string]*Publisher

// IsSubscribed reports whether content from the publisher should be shown
func (p *Publisher) IsSubscribed() bool {
	switch p.UserEnabledStatus {
	case UserEnabledEnabled:
		return true
	case UserEnabledDisabled:
		return false
	default:
		return p.IsEnabledByDefault
	}
}

// HasLocale reports whether the publisher is listed for locale
func (p *Publisher) HasLocale(locale string) bool {
	for _, l := range p.Locales {
		if strings.EqualFold(l, locale) {
			return true
		}
	}
	return false
}

// HasChannel reports whether the publisher lists channel for locale
func (p *Publisher) HasChannel(locale, channel string) bool {
	for _, c := range p.Channels[locale] {
		if c == channel {
			return true
		}
	}
	return false
}

// Clone returns a copy the caller may mutate
func (p *Publisher) Clone() *Publisher {
	c := *p
	c.Locales = append([]string(nil), p.Locales...)
	if p.Channels != nil {
		c.Channels = make(map[string][]string, len(p.Channels))
		for locale, channels := range p.Channels {
			c.Channels[locale] = append([]string(nil), channels...)
		}
	}
	return &c
}

// Clone copies the directory so callers can apply overrides without touching the source
func (ps Publishers) Clone() Publishers {
	out := make(Publishers, len(ps))
	for id, p := range ps {
		out[id] = p.Clone()
	}
	return out
}
