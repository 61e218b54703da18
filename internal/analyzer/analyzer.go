// Package analyzer classifies a guild's channels by scrape freshness,
// so a caller can pre-select which channels are worth re-scraping
// without re-traversing the whole guild.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/junglemonkey/wumpus-archiver/internal/discord"
	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

// Status is a channel's freshness classification, per spec.md §4.5.
type Status string

const (
	StatusNeverScraped    Status = "never_scraped"
	StatusUpToDate        Status = "up_to_date"
	StatusHasNewMessages  Status = "has_new_messages"
	StatusNew             Status = "new"
)

// ChannelReport is one row of the Analyzer's output.
type ChannelReport struct {
	ChannelID            model.Snowflake   `json:"channel_id"`
	Name                 string            `json:"name"`
	Kind                 model.ChannelKind `json:"kind"`
	ParentName           string            `json:"parent_name,omitempty"`
	Position             int               `json:"position"`
	Status               Status            `json:"status"`
	ArchivedMessageCount int               `json:"archived_message_count"`
	LastScrapedAt        *int64            `json:"last_scraped_at,omitempty"`
}

// Summary is the histogram accompanying a Report.
type Summary struct {
	New            int `json:"new"`
	HasNewMessages int `json:"has_new_messages"`
	UpToDate       int `json:"up_to_date"`
	NeverScraped   int `json:"never_scraped"`
}

// Report is the Analyzer's full output for one guild.
type Report struct {
	Channels []ChannelReport `json:"channels"`
	Summary  Summary         `json:"summary"`
}

// Analyze classifies guildID's channels. liveChannels is optional (nil
// when the caller's live-listing attempt degraded); its absence falls
// back to a persisted-only classification per spec.md §4.5 step 3.
func Analyze(ctx context.Context, st store.Store, guildID model.Snowflake, liveChannels []discord.ChannelInfo) (Report, error) {
	persisted, err := st.ListChannelsByGuild(ctx, guildID)
	if err != nil {
		return Report{}, fmt.Errorf("analyzer: list channels: %w", err)
	}

	byID := make(map[model.Snowflake]model.Channel, len(persisted))
	for _, c := range persisted {
		byID[c.ID] = c
	}

	parentNames := make(map[model.Snowflake]string, len(persisted))
	for _, c := range persisted {
		parentNames[c.ID] = c.Name
	}
	if liveChannels != nil {
		for _, c := range liveChannels {
			parentNames[c.ID] = c.Name
		}
	}

	var rep Report
	seen := make(map[model.Snowflake]bool, len(persisted))

	if liveChannels != nil {
		for _, live := range liveChannels {
			if !live.Kind.Traversable() {
				continue
			}
			seen[live.ID] = true
			rep.Channels = append(rep.Channels, classifyLive(live, byID[live.ID], parentNames))
		}
		for _, c := range persisted {
			if seen[c.ID] {
				continue
			}
			rep.Channels = append(rep.Channels, classifyPersistedOnly(c, parentNames))
		}
	} else {
		for _, c := range persisted {
			rep.Channels = append(rep.Channels, classifyPersistedOnly(c, parentNames))
		}
	}

	sort.Slice(rep.Channels, func(i, j int) bool {
		return rep.Channels[i].Position < rep.Channels[j].Position
	})

	for _, c := range rep.Channels {
		switch c.Status {
		case StatusNew:
			rep.Summary.New++
		case StatusHasNewMessages:
			rep.Summary.HasNewMessages++
		case StatusUpToDate:
			rep.Summary.UpToDate++
		case StatusNeverScraped:
			rep.Summary.NeverScraped++
		}
	}

	return rep, nil
}

// classifyLive classifies a channel observed in the live listing,
// using its persisted row (if any) for the last_message_id comparison.
func classifyLive(live discord.ChannelInfo, persisted model.Channel, parentNames map[model.Snowflake]string) ChannelReport {
	rep := ChannelReport{
		ChannelID:  live.ID,
		Name:       live.Name,
		Kind:       live.Kind,
		Position:   live.Position,
		ParentName: parentName(live.ParentID, parentNames),
	}

	if persisted.ID == 0 {
		rep.Status = StatusNew
		return rep
	}

	rep.ArchivedMessageCount = persisted.MessageCount
	rep.LastScrapedAt = millisOf(persisted.LastScrapedAt)

	switch {
	case persisted.LastScrapedAt == nil:
		rep.Status = StatusNeverScraped
	case persisted.LastMessageID == nil && live.LastMessageID == nil:
		rep.Status = StatusUpToDate
	case persisted.LastMessageID == nil:
		rep.Status = StatusHasNewMessages
	case live.LastMessageID == nil:
		rep.Status = StatusUpToDate
	case *persisted.LastMessageID < *live.LastMessageID:
		rep.Status = StatusHasNewMessages
	default:
		rep.Status = StatusUpToDate
	}
	return rep
}

// classifyPersistedOnly classifies a channel with no live observation:
// either the live list is wholly unavailable, or this channel was not
// reported in it. Per spec.md §4.5 step 2/3, last_scraped_at alone
// decides between never_scraped and up_to_date.
func classifyPersistedOnly(c model.Channel, parentNames map[model.Snowflake]string) ChannelReport {
	rep := ChannelReport{
		ChannelID:            c.ID,
		Name:                 c.Name,
		Kind:                 c.Kind,
		Position:             c.Position,
		ParentName:           parentName(c.ParentID, parentNames),
		ArchivedMessageCount: c.MessageCount,
		LastScrapedAt:        millisOf(c.LastScrapedAt),
	}
	if c.LastScrapedAt == nil {
		rep.Status = StatusNeverScraped
	} else {
		rep.Status = StatusUpToDate
	}
	return rep
}

func parentName(parentID *model.Snowflake, names map[model.Snowflake]string) string {
	if parentID == nil {
		return ""
	}
	return names[*parentID]
}

func millisOf(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
