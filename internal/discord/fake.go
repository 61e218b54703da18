package discord

import (
	"context"
	"sort"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
)

// Fake is a scripted, in-memory Client for tests. Callers populate Guild,
// Channels, Messages, and Threads directly; Login always succeeds unless
// LoginErr is set.
type Fake struct {
	LoginErr error
	Guild    GuildInfo
	Channels []ChannelInfo
	// Messages is keyed by channel ID, stored oldest-first.
	Messages map[model.Snowflake][]MessageInfo
	// Threads is keyed by parent channel ID.
	Threads map[model.Snowflake][]ChannelInfo

	loggedIn bool
	closed   bool
}

// NewFake constructs an empty scripted client.
func NewFake() *Fake {
	return &Fake{
		Messages: make(map[model.Snowflake][]MessageInfo),
		Threads:  make(map[model.Snowflake][]ChannelInfo),
	}
}

func (f *Fake) Login(ctx context.Context, token string) error {
	if f.LoginErr != nil {
		return f.LoginErr
	}
	f.loggedIn = true
	return nil
}

func (f *Fake) GetGuild(ctx context.Context, guildID model.Snowflake) (GuildInfo, error) {
	return f.Guild, nil
}

func (f *Fake) GetGuildChannels(ctx context.Context, guildID model.Snowflake) ([]ChannelInfo, error) {
	out := make([]ChannelInfo, 0, len(f.Channels))
	for _, ch := range f.Channels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *Fake) GetChannelHistory(ctx context.Context, channelID model.Snowflake, cursor model.Snowflake, direction Direction, pageSize int) ([]MessageInfo, error) {
	all := f.Messages[channelID]
	sorted := make([]MessageInfo, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var page []MessageInfo
	if direction == Oldest {
		for _, m := range sorted {
			if m.ID > cursor {
				page = append(page, m)
				if len(page) >= pageSize {
					break
				}
			}
		}
	} else {
		// Newest-first page, bounded by cursor when set; return in
		// ascending order as Discord delivers a message list would
		// be reversed by the caller if it needs strict recency order.
		var candidates []MessageInfo
		for i := len(sorted) - 1; i >= 0; i-- {
			m := sorted[i]
			if cursor == 0 || m.ID < cursor {
				candidates = append(candidates, m)
				if len(candidates) >= pageSize {
					break
				}
			}
		}
		for i := len(candidates) - 1; i >= 0; i-- {
			page = append(page, candidates[i])
		}
	}
	return page, nil
}

func (f *Fake) GetThreads(ctx context.Context, channelID model.Snowflake, kind model.ChannelKind) ([]ChannelInfo, error) {
	out := make([]ChannelInfo, 0)
	for _, th := range f.Threads[channelID] {
		if th.Kind == kind {
			out = append(out, th)
		}
	}
	return out, nil
}

func (f *Fake) Close() error {
	f.closed = true
	return nil
}

// AddMessage is a test helper that appends a message to a channel's
// scripted history.
func (f *Fake) AddMessage(m MessageInfo) {
	f.Messages[m.ChannelID] = append(f.Messages[m.ChannelID], m)
}

// AddThread registers a thread under a parent channel, discoverable via
// GetThreads. It does not add the thread to the flat Channels list, so
// GetGuildChannels does not return it.
func (f *Fake) AddThread(parentID model.Snowflake, thread ChannelInfo) {
	f.Threads[parentID] = append(f.Threads[parentID], thread)
}
