package scraper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/junglemonkey/wumpus-archiver/internal/discord"
	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

var errUpsertReactionRejected = errors.New("scraper test: reaction rejected")

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s
}

func newTestScraper() *Scraper {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return New(DefaultConfig(), log.WithField("component", "scraper_test"))
}

// scenario 1: fresh scrape of a guild with one channel and three messages.
func TestRunFreshScrapeSingleChannel(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScraper()

	f := discord.NewFake()
	f.Guild = discord.GuildInfo{ID: 1, Name: "wumpus land", OwnerID: 9}
	f.Channels = []discord.ChannelInfo{{ID: 2, GuildID: 1, Name: "general", Kind: model.ChannelKindText}}
	for _, id := range []model.Snowflake{3, 4, 5} {
		f.AddMessage(discord.MessageInfo{ID: id, ChannelID: 2, Author: discord.AuthorInfo{ID: 99, Username: "wumpus"}})
	}

	sum, err := s.Run(ctx, f, st, 1, nil, nil, func() bool { return false })
	require.NoError(t, err)
	require.Equal(t, 1, sum.ChannelsScraped)
	require.Equal(t, 3, sum.MessagesAdded)

	g, ok, err := st.GetGuild(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, g.ScrapeCount)

	ch, ok, err := st.GetChannel(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, ch.LastMessageID)
	require.Equal(t, model.Snowflake(5), *ch.LastMessageID)

	msgs, err := st.ListMessagesByChannel(ctx, 2, store.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

// scenario 2: an incremental scrape picks up only the new messages.
func TestRunIncrementalScrapeAddsOnlyNewMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScraper()

	f := discord.NewFake()
	f.Guild = discord.GuildInfo{ID: 1, Name: "wumpus land"}
	f.Channels = []discord.ChannelInfo{{ID: 2, GuildID: 1, Name: "general", Kind: model.ChannelKindText}}
	for _, id := range []model.Snowflake{3, 4, 5} {
		f.AddMessage(discord.MessageInfo{ID: id, ChannelID: 2, Author: discord.AuthorInfo{ID: 99}})
	}

	_, err := s.Run(ctx, f, st, 1, nil, nil, func() bool { return false })
	require.NoError(t, err)

	f.AddMessage(discord.MessageInfo{ID: 6, ChannelID: 2, Author: discord.AuthorInfo{ID: 99}})
	f.AddMessage(discord.MessageInfo{ID: 7, ChannelID: 2, Author: discord.AuthorInfo{ID: 99}})

	sum, err := s.Run(ctx, f, st, 1, nil, nil, func() bool { return false })
	require.NoError(t, err)
	require.Equal(t, 2, sum.MessagesAdded)

	ch, ok, err := st.GetChannel(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Snowflake(7), *ch.LastMessageID)
	require.Equal(t, 5, ch.MessageCount)
}

// scenario 3: selective scrape only traverses the requested channels.
func TestRunSelectiveScrapeOnlyTraversesRequestedChannels(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScraper()

	f := discord.NewFake()
	f.Guild = discord.GuildInfo{ID: 1, Name: "wumpus land"}
	f.Channels = []discord.ChannelInfo{
		{ID: 10, GuildID: 1, Name: "a", Kind: model.ChannelKindText},
		{ID: 11, GuildID: 1, Name: "b", Kind: model.ChannelKindText},
		{ID: 12, GuildID: 1, Name: "c", Kind: model.ChannelKindText},
	}
	f.AddMessage(discord.MessageInfo{ID: 100, ChannelID: 10, Author: discord.AuthorInfo{ID: 99}})
	f.AddMessage(discord.MessageInfo{ID: 101, ChannelID: 12, Author: discord.AuthorInfo{ID: 99}})

	sum, err := s.Run(ctx, f, st, 1, []model.Snowflake{10, 11}, nil, func() bool { return false })
	require.NoError(t, err)
	require.Equal(t, 2, sum.ChannelsScraped)

	_, ok, err := st.GetChannel(ctx, 12)
	require.NoError(t, err)
	require.False(t, ok, "unselected channel must not be traversed")
}

// scenario: a channel with zero messages completes without moving last_message_id.
func TestRunChannelWithZeroMessagesStaysNil(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScraper()

	f := discord.NewFake()
	f.Guild = discord.GuildInfo{ID: 1, Name: "wumpus land"}
	f.Channels = []discord.ChannelInfo{{ID: 2, GuildID: 1, Name: "empty", Kind: model.ChannelKindText}}

	_, err := s.Run(ctx, f, st, 1, nil, nil, func() bool { return false })
	require.NoError(t, err)

	ch, ok, err := st.GetChannel(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, ch.LastMessageID)
	require.NotNil(t, ch.LastScrapedAt)
}

// scenario: a thread reachable via both active and archived listings is
// scraped exactly once.
func TestRunDeduplicatesThreadsSeenTwice(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := newTestScraper()

	f := discord.NewFake()
	f.Guild = discord.GuildInfo{ID: 1, Name: "wumpus land"}
	f.Channels = []discord.ChannelInfo{{ID: 2, GuildID: 1, Name: "general", Kind: model.ChannelKindText}}
	f.AddThread(2, discord.ChannelInfo{ID: 20, GuildID: 1, Name: "thread-a", Kind: model.ChannelKindPublicThread})
	f.AddThread(2, discord.ChannelInfo{ID: 20, GuildID: 1, Name: "thread-a", Kind: model.ChannelKindPrivateThread})

	sum, err := s.Run(ctx, f, st, 1, nil, nil, func() bool { return false })
	require.NoError(t, err)
	require.Equal(t, 2, sum.ChannelsScraped, "parent channel + thread, scraped exactly once each")
}

// checkpointCountingStore wraps a real Store and counts calls to
// SetChannelLastMessageID, so tests can observe commit cadence without
// needing to inspect sqlite directly.
type checkpointCountingStore struct {
	store.Store
	checkpoints int
}

func (c *checkpointCountingStore) SetChannelLastMessageID(ctx context.Context, id model.Snowflake, lastMessageID model.Snowflake, messageCountDelta int) error {
	c.checkpoints++
	return c.Store.SetChannelLastMessageID(ctx, id, lastMessageID, messageCountDelta)
}

// scenario: PageSize smaller than the channel's message count forces an
// intermediate checkpoint partway through traversal, not just one at
// the very end.
func TestRunChecksPointsEveryPageSizeMessages(t *testing.T) {
	ctx := context.Background()
	inner := newTestStore(t)
	st := &checkpointCountingStore{Store: inner}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	s := New(Config{PageSize: 100, RequestDelay: 0}, log.WithField("component", "scraper_test"))

	f := discord.NewFake()
	f.Guild = discord.GuildInfo{ID: 1, Name: "wumpus land"}
	f.Channels = []discord.ChannelInfo{{ID: 2, GuildID: 1, Name: "general", Kind: model.ChannelKindText}}
	for id := model.Snowflake(1); id <= 250; id++ {
		f.AddMessage(discord.MessageInfo{ID: id, ChannelID: 2, Author: discord.AuthorInfo{ID: 99}})
	}

	sum, err := s.Run(ctx, f, st, 1, nil, nil, func() bool { return false })
	require.NoError(t, err)
	require.Equal(t, 250, sum.MessagesAdded)
	require.Greater(t, st.checkpoints, 1, "a 250-message channel with PageSize 100 must checkpoint more than once")

	ch, ok, err := st.GetChannel(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Snowflake(250), *ch.LastMessageID)
	require.Equal(t, 250, ch.MessageCount)
}

// failingReactionStore wraps a real Store and fails UpsertReaction for
// one specific emoji name, simulating the composite-key conflict
// spec.md §7/§8 describes without needing a real concurrent writer.
type failingReactionStore struct {
	store.Store
	failEmojiName string
}

func (f *failingReactionStore) UpsertReaction(ctx context.Context, r model.Reaction) error {
	if r.EmojiKey.EmojiName == f.failEmojiName {
		return errUpsertReactionRejected
	}
	return f.Store.UpsertReaction(ctx, r)
}

// scenario 5: a malformed reaction is skipped without losing the
// message, the message's other reactions, or failing the job.
func TestRunMalformedReactionIsIsolatedFromTheRest(t *testing.T) {
	ctx := context.Background()
	inner := newTestStore(t)
	st := &failingReactionStore{Store: inner, failEmojiName: "bad-emoji"}
	s := newTestScraper()

	f := discord.NewFake()
	f.Guild = discord.GuildInfo{ID: 1, Name: "wumpus land"}
	f.Channels = []discord.ChannelInfo{{ID: 2, GuildID: 1, Name: "general", Kind: model.ChannelKindText}}
	f.AddMessage(discord.MessageInfo{
		ID: 100, ChannelID: 2, Author: discord.AuthorInfo{ID: 99},
		Reactions: []discord.ReactionInfo{
			{EmojiName: "👍", Count: 1},
			{EmojiName: "bad-emoji", Count: 1},
			{EmojiName: "👎", Count: 1},
		},
	})

	sum, err := s.Run(ctx, f, st, 1, nil, nil, func() bool { return false })
	require.NoError(t, err)
	require.Len(t, sum.Errors, 1, "the malformed reaction surfaces as a warning")
	require.Equal(t, 1, sum.ReactionsRejected, "the rejection is also tracked as a plain count")

	msg, ok, err := st.GetMessage(ctx, 100)
	require.NoError(t, err)
	require.True(t, ok, "the message itself must survive")

	reactions, err := st.ListReactionsByMessage(ctx, 100)
	require.NoError(t, err)
	require.Len(t, reactions, 2, "exactly K-1 of 3 reactions persist")
	_ = msg
}
