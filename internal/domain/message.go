package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ChannelMessage is one post delivered by a watched channel.
type ChannelMessage struct {
	ChannelID  string    `json:"channelId"`
	MessageID  int64     `json:"messageId"`
	Text       string    `json:"text"`
	EntityURLs []string  `json:"entityUrls,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key returns the dedup key of the message.
func (m ChannelMessage) Key() MessageKey {
	return MessageKey{ChannelID: m.ChannelID, MessageID: m.MessageID}
}

// MessageKey is the (channel, message) pair every record is keyed on.
type MessageKey struct {
	ChannelID string
	MessageID int64
}

func (k MessageKey) String() string {
	return fmt.Sprintf("%s/%d", k.ChannelID, k.MessageID)
}

// ExtractedURL is a product link found in message text.
type ExtractedURL struct {
	Raw   string
	Start int
	End   int
}

// ResolvedURL is the outcome of following redirects for an extracted link.
type ResolvedURL struct {
	Original        string
	Final           string
	ShortenerDomain string
	Hops            int
	Resolved        bool
}

// Host returns the lowercase host of the final URL without a www prefix.
func (r ResolvedURL) Host() string {
	return HostOf(r.Final)
}

// HostOf extracts a bare lowercase host from raw.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
