// Package scraper implements the incremental Discord traversal: guild
// metadata, channel and thread enumeration, and cursor-paged message
// history, writing every entity through the store.Store repository
// contract.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/junglemonkey/wumpus-archiver/internal/discord"
	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

// ErrCancelled is returned by Run when the cancellation signal fired
// between pages or between channels. Whatever was written up to that
// point remains; a later Run resumes correctly.
var ErrCancelled = errors.New("scraper: cancelled")

// discordPageLimit is Discord's own per-request cap; Config.PageSize is
// only the commit granularity above it.
const discordPageLimit = 100

// Config tunes traversal pacing. Both fields default to the values
// spec.md names.
type Config struct {
	// PageSize is the commit granularity; requests themselves are
	// always capped at discordPageLimit regardless of this value.
	PageSize int
	// RequestDelay is slept between history requests to smooth rate
	// limits; Discord's own 429 handling remains the authority.
	RequestDelay time.Duration
}

// DefaultConfig returns spec.md's defaults: batch 1000, 500ms delay.
func DefaultConfig() Config {
	return Config{PageSize: 1000, RequestDelay: 500 * time.Millisecond}
}

// Progress is reported to the caller's callback at the end of each
// channel traversal, carrying cumulative totals for the whole run.
type Progress struct {
	CurrentChannel   model.Snowflake
	ChannelsDone     int
	MessagesScraped  int
	AttachmentsFound int
}

// Summary is the Scraper's terminal result. Errors are non-fatal,
// string-encoded warnings (malformed reactions, an unreachable
// channel) — never the cause of a failed job. ReactionsRejected
// duplicates the malformed-reaction subset of Errors as a plain count,
// for metrics that need a number rather than a warning log.
type Summary struct {
	ChannelsScraped   int
	MessagesAdded     int
	AttachmentsAdded  int
	ReactionsRejected int
	Errors            []string
}

// Scraper drives one guild traversal at a time; it holds no
// per-traversal state between calls to Run.
type Scraper struct {
	cfg     Config
	limiter *rate.Limiter
	log     *logrus.Entry
}

func New(cfg Config, log *logrus.Entry) *Scraper {
	every := cfg.RequestDelay
	if every <= 0 {
		every = time.Millisecond
	}
	return &Scraper{cfg: cfg, limiter: rate.NewLimiter(rate.Every(every), 1), log: log}
}

// Run traverses guildID: full-guild when channelIDs is empty, selective
// otherwise. client must already be logged in. cancelled is polled
// between pages and between channels; onProgress, if non-nil, is called
// once per completed channel.
func (s *Scraper) Run(ctx context.Context, client discord.Client, st store.Store, guildID model.Snowflake, channelIDs []model.Snowflake, onProgress func(Progress), cancelled func() bool) (Summary, error) {
	var sum Summary
	var progress Progress

	guildInfo, err := client.GetGuild(ctx, guildID)
	if err != nil {
		return sum, fmt.Errorf("scraper: get guild: %w", err)
	}
	if _, err := st.UpsertGuild(ctx, model.Guild{
		ID: guildInfo.ID, Name: guildInfo.Name, OwnerID: guildInfo.OwnerID, MemberCount: guildInfo.MemberCount,
	}); err != nil {
		return sum, fmt.Errorf("scraper: upsert guild: %w", err)
	}

	allChannels, err := client.GetGuildChannels(ctx, guildID)
	if err != nil {
		return sum, fmt.Errorf("scraper: list channels: %w", err)
	}

	queue := selectChannels(allChannels, channelIDs)
	seenThreads := make(map[model.Snowflake]bool, len(queue))

	for i := 0; i < len(queue); i++ {
		if cancelled() {
			return sum, ErrCancelled
		}
		ch := queue[i]

		if ch.Kind.ThreadBearing() {
			for _, kind := range [...]model.ChannelKind{model.ChannelKindPublicThread, model.ChannelKindPrivateThread} {
				threads, err := client.GetThreads(ctx, ch.ID, kind)
				if err != nil {
					sum.Errors = append(sum.Errors, fmt.Sprintf("channel %d: list %s threads: %v", ch.ID, kind, err))
					continue
				}
				for _, t := range threads {
					if seenThreads[t.ID] {
						continue
					}
					seenThreads[t.ID] = true
					queue = append(queue, t)
				}
			}
		}

		msgsAdded, attAdded, err := s.scrapeChannel(ctx, client, st, ch, cancelled, &sum.Errors, &sum.ReactionsRejected)
		if errors.Is(err, ErrCancelled) {
			sum.MessagesAdded += msgsAdded
			sum.AttachmentsAdded += attAdded
			return sum, ErrCancelled
		}
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("channel %d: %v", ch.ID, err))
		} else {
			sum.ChannelsScraped++
		}
		sum.MessagesAdded += msgsAdded
		sum.AttachmentsAdded += attAdded

		progress.ChannelsDone++
		progress.CurrentChannel = ch.ID
		progress.MessagesScraped = sum.MessagesAdded
		progress.AttachmentsFound = sum.AttachmentsAdded
		if onProgress != nil {
			onProgress(progress)
		}
	}

	if _, err := st.RecordGuildScrape(ctx, guildID); err != nil {
		return sum, fmt.Errorf("scraper: record guild scrape: %w", err)
	}

	return sum, nil
}

// selectChannels returns the traversable channels to scrape: all
// non-category channels in full-guild mode, or the caller-supplied
// subset in selective mode.
func selectChannels(all []discord.ChannelInfo, want []model.Snowflake) []discord.ChannelInfo {
	if len(want) == 0 {
		out := make([]discord.ChannelInfo, 0, len(all))
		for _, c := range all {
			if c.Kind.Traversable() {
				out = append(out, c)
			}
		}
		return out
	}
	wantSet := make(map[model.Snowflake]bool, len(want))
	for _, id := range want {
		wantSet[id] = true
	}
	out := make([]discord.ChannelInfo, 0, len(want))
	for _, c := range all {
		if wantSet[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// scrapeChannel upserts the channel row, then — if the channel is
// traversable — pages its message history forward from the persisted
// last_message_id (or backward, unbounded, on a first scrape).
func (s *Scraper) scrapeChannel(ctx context.Context, client discord.Client, st store.Store, ch discord.ChannelInfo, cancelled func() bool, warnings *[]string, rejectedReactions *int) (messagesAdded, attachmentsAdded int, err error) {
	if _, err := st.UpsertChannel(ctx, model.Channel{
		ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name, Kind: ch.Kind, Topic: ch.Topic,
		Position: ch.Position, ParentID: ch.ParentID,
	}); err != nil {
		return 0, 0, fmt.Errorf("upsert channel: %w", err)
	}

	if !ch.Kind.Traversable() {
		return 0, 0, nil
	}

	existing, ok, err := st.GetChannel(ctx, ch.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("get channel: %w", err)
	}

	var cursor model.Snowflake
	direction := discord.Newest
	if ok && existing.LastMessageID != nil {
		cursor = *existing.LastMessageID
		direction = discord.Oldest
	}

	var maxID model.Snowflake
	sawAny := false
	uncommitted := 0

	commit := func() error {
		if uncommitted == 0 {
			return nil
		}
		if err := st.SetChannelLastMessageID(ctx, ch.ID, maxID, uncommitted); err != nil {
			return err
		}
		uncommitted = 0
		return nil
	}

	for {
		if cancelled() {
			if err := commit(); err != nil {
				return messagesAdded, attachmentsAdded, fmt.Errorf("checkpoint channel: %w", err)
			}
			return messagesAdded, attachmentsAdded, ErrCancelled
		}

		page, err := client.GetChannelHistory(ctx, ch.ID, cursor, direction, discordPageLimit)
		if err != nil {
			return messagesAdded, attachmentsAdded, fmt.Errorf("get channel history: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, info := range page {
			n, a, err := s.flushMessage(ctx, st, ch.ID, info, warnings, rejectedReactions)
			if err != nil {
				return messagesAdded, attachmentsAdded, fmt.Errorf("flush message %d: %w", info.ID, err)
			}
			messagesAdded += n
			attachmentsAdded += a
			uncommitted += n
			sawAny = true
			if info.ID > maxID {
				maxID = info.ID
			}
			// Oldest continues after the highest ID seen and Newest
			// before the lowest, whatever order the page arrived in.
			if direction == discord.Oldest {
				cursor = maxID
			} else if cursor == 0 || info.ID < cursor {
				cursor = info.ID
			}
		}

		if s.cfg.PageSize > 0 && uncommitted >= s.cfg.PageSize {
			if err := commit(); err != nil {
				return messagesAdded, attachmentsAdded, fmt.Errorf("checkpoint channel: %w", err)
			}
		}

		if len(page) < discordPageLimit {
			break
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return messagesAdded, attachmentsAdded, err
		}
	}

	if sawAny {
		if err := commit(); err != nil {
			return messagesAdded, attachmentsAdded, fmt.Errorf("set channel last message id: %w", err)
		}
	} else {
		if err := st.MarkChannelScraped(ctx, ch.ID); err != nil {
			return messagesAdded, attachmentsAdded, fmt.Errorf("mark channel scraped: %w", err)
		}
	}

	return messagesAdded, attachmentsAdded, nil
}

// flushMessage is the scraper's per-message work unit: the author, the
// message, and its attachments are written together; each reaction is
// then upserted in isolation so one malformed reaction does not poison
// the rest (spec.md §7).
func (s *Scraper) flushMessage(ctx context.Context, st store.Store, channelID model.Snowflake, info discord.MessageInfo, warnings *[]string, rejectedReactions *int) (messagesAdded, attachmentsAdded int, err error) {
	if _, err := st.UpsertUser(ctx, model.User{
		ID: info.Author.ID, Username: info.Author.Username, Discriminator: info.Author.Discriminator,
		DisplayName: info.Author.DisplayName, AvatarURL: info.Author.AvatarURL, Bot: info.Author.Bot,
	}); err != nil {
		return 0, 0, fmt.Errorf("upsert author: %w", err)
	}

	encodedEmbeds, err := model.EncodeEmbeds(info.Embeds)
	if err != nil {
		return 0, 0, fmt.Errorf("encode embeds: %w", err)
	}

	if _, err := st.UpsertMessage(ctx, model.Message{
		ID: info.ID, ChannelID: channelID, AuthorID: info.Author.ID,
		Content: info.Content, CleanContent: info.CleanContent,
		SentAt: time.UnixMilli(info.SentAt).UTC(), EditedAt: toTimePtr(info.EditedAt),
		Pinned: info.Pinned, TTS: info.TTS, MentionEveryone: info.MentionEveryone,
		EmbedsEncoded: encodedEmbeds, ReferenceID: info.ReferenceID,
	}); err != nil {
		return 0, 0, fmt.Errorf("upsert message: %w", err)
	}

	for _, att := range info.Attachments {
		if _, err := st.UpsertAttachment(ctx, model.Attachment{
			ID: att.ID, MessageID: info.ID, Filename: att.Filename, ContentType: att.ContentType,
			Size: att.Size, RemoteURL: att.RemoteURL, ProxyURL: att.ProxyURL,
			Width: att.Width, Height: att.Height, DownloadState: model.DownloadPending,
		}); err != nil {
			return 1, attachmentsAdded, fmt.Errorf("upsert attachment %d: %w", att.ID, err)
		}
		attachmentsAdded++
	}

	for _, r := range info.Reactions {
		if err := st.UpsertReaction(ctx, model.Reaction{
			MessageID:     info.ID,
			EmojiKey:      model.EmojiKey{EmojiID: r.EmojiID, EmojiName: r.EmojiName},
			EmojiAnimated: r.EmojiAnimated,
			Count:         r.Count,
		}); err != nil {
			s.log.WithError(err).WithField("message_id", info.ID).Warn("malformed reaction skipped")
			*warnings = append(*warnings, fmt.Sprintf("message %d: malformed reaction %q: %v", info.ID, r.EmojiName, err))
			*rejectedReactions++
		}
	}

	return 1, attachmentsAdded, nil
}

func toTimePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
