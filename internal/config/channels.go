package config

import (
	"slices"
	"strings"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

// ChannelTable is the immutable routing table built from configuration.
type ChannelTable struct {
	byID map[string]domain.Channel
	ids  []string
}

var _ ports.ChannelDirectory = (*ChannelTable)(nil)

// NewChannelTable copies the configured rows into a lookup table.
func NewChannelTable(rows []ChannelConfig) *ChannelTable {
	t := &ChannelTable{byID: make(map[string]domain.Channel, len(rows))}
	for _, r := range rows {
		ch := domain.Channel{
			ID:          r.ID,
			Name:        r.Name,
			PageSlug:    r.PageSlug,
			Network:     strings.ToLower(r.Network),
			TagValue:    r.TagValue,
			ContentType: domain.ContentType(r.ContentType),
			Currency:    strings.ToUpper(r.Currency),
			Featured:    r.Featured,
			TimerHours:  r.TimerHours,
		}
		if ch.Name == "" {
			ch.Name = r.PageSlug
		}
		if _, dup := t.byID[ch.ID]; !dup {
			t.ids = append(t.ids, ch.ID)
		}
		t.byID[ch.ID] = ch
	}
	slices.Sort(t.ids)
	return t
}

func (t *ChannelTable) Lookup(channelID string) (domain.Channel, bool) {
	ch, ok := t.byID[channelID]
	return ch, ok
}

func (t *ChannelTable) IDs() []string {
	return slices.Clone(t.ids)
}
