// Package discord abstracts the Discord capability the scraper depends
// on: login, guild channel listing, paged channel history, and thread
// discovery. It is kept as a single-responsibility interface so tests
// can substitute a deterministic fake that produces scripted pages,
// threads, and rate-limit delays, per spec.md §9.
package discord

import (
	"context"
	"errors"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
)

// Direction selects which end of a channel's message history a page
// request continues from.
type Direction int

const (
	// Oldest pages forward from a cursor (after=last seen id).
	Oldest Direction = iota
	// Newest pages backward from the newest message (no cursor) or from a
	// cursor (before=last seen id), used for a channel's first scrape.
	Newest
)

// ErrUnauthorized is returned by Login when the supplied token is
// rejected by Discord. It is a fatal error per spec.md §7 — job tasks
// translate it into status=failed, never retry it.
var ErrUnauthorized = errors.New("discord: unauthorized")

// ChannelInfo is the subset of Discord's channel object the scraper and
// analyzer need, independent of storage.
type ChannelInfo struct {
	ID            model.Snowflake
	GuildID       model.Snowflake
	Name          string
	Kind          model.ChannelKind
	Topic         string
	Position      int
	ParentID      *model.Snowflake
	LastMessageID *model.Snowflake
}

// GuildInfo is the subset of Discord's guild object the scraper needs.
type GuildInfo struct {
	ID          model.Snowflake
	Name        string
	OwnerID     model.Snowflake
	MemberCount int
}

// AuthorInfo is the author embedded in a fetched message.
type AuthorInfo struct {
	ID            model.Snowflake
	Username      string
	Discriminator string
	DisplayName   string
	AvatarURL     string
	Bot           bool
}

// AttachmentInfo is an attachment embedded in a fetched message.
type AttachmentInfo struct {
	ID          model.Snowflake
	Filename    string
	ContentType string
	Size        int64
	RemoteURL   string
	ProxyURL    string
	Width       int
	Height      int
}

// ReactionInfo is a reaction tally embedded in a fetched message.
type ReactionInfo struct {
	EmojiID       model.Snowflake
	EmojiName     string
	EmojiAnimated bool
	Count         int
}

// MessageInfo is the subset of Discord's message object the scraper
// needs, pre-split into its entity components.
type MessageInfo struct {
	ID              model.Snowflake
	ChannelID       model.Snowflake
	Author          AuthorInfo
	Content         string
	CleanContent    string
	SentAt          int64 // unix millis
	EditedAt        *int64
	Pinned          bool
	TTS             bool
	MentionEveryone bool
	Embeds          []model.Embed
	ReferenceID     *model.Snowflake
	Attachments     []AttachmentInfo
	Reactions       []ReactionInfo
}

// Client is the archiver's entire dependency on Discord. An
// implementation may wrap an off-the-shelf client or speak REST
// directly; the scraper and analyzer only ever see this interface.
type Client interface {
	// Login authenticates the client with a bot or user token.
	Login(ctx context.Context, token string) error

	// GetGuild fetches a guild's metadata.
	GetGuild(ctx context.Context, guildID model.Snowflake) (GuildInfo, error)

	// GetGuildChannels enumerates all channels in a guild, including categories.
	GetGuildChannels(ctx context.Context, guildID model.Snowflake) ([]ChannelInfo, error)

	// GetChannelHistory pages a channel's message history. cursor is the
	// boundary snowflake (0 means unbounded); direction selects which
	// end of history it bounds. pageSize is capped at 100 by Discord's
	// own API regardless of the caller's request.
	GetChannelHistory(ctx context.Context, channelID model.Snowflake, cursor model.Snowflake, direction Direction, pageSize int) ([]MessageInfo, error)

	// GetThreads enumerates a channel's threads, active first then
	// archived. kind (public or private) selects the archived threads;
	// HTTPClient returns the active threads of every kind.
	GetThreads(ctx context.Context, channelID model.Snowflake, kind model.ChannelKind) ([]ChannelInfo, error)

	// Close releases any underlying connection.
	Close() error
}
