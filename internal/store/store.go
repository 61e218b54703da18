// Package store defines the repository contract the scraper, job
// managers, and analyzer write and read through, plus the two relational
// backends (file-backed SQLite, server-backed Postgres) and the registry
// that lets callers switch between them at runtime.
package store

import (
	"context"
	"errors"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
)

// ErrNotFound names a missing row. The single-entity Get methods of
// this package do not return it: they report a primary key that names
// no row as a nil entity with ok=false and a nil error.
var ErrNotFound = errors.New("store: not found")

// Pagination bounds a per-channel message listing. Exactly one of Before
// or After may be set; Limit is clamped to [1, 200].
type Pagination struct {
	Before *model.Snowflake
	After  *model.Snowflake
	Limit  int
}

// Clamped returns a copy with Limit forced into [1, 200].
func (p Pagination) Clamped() Pagination {
	if p.Limit <= 0 {
		p.Limit = 200
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	return p
}

// Table names the six core tables, in the foreign-key-safe order the
// Transfer Manager copies them: Guild -> User -> Channel -> Message ->
// Attachment -> Reaction.
type Table string

const (
	TableGuild      Table = "guild"
	TableUser       Table = "discord_user"
	TableChannel    Table = "channel"
	TableMessage    Table = "message"
	TableAttachment Table = "attachment"
	TableReaction   Table = "reaction"
)

// Tables is the fixed transfer order.
var Tables = []Table{TableGuild, TableUser, TableChannel, TableMessage, TableAttachment, TableReaction}

// PendingAttachment pairs an Attachment with the channel it was posted
// in, since the Download Manager's local path is keyed by channel.
type PendingAttachment struct {
	Attachment model.Attachment
	ChannelID  model.Snowflake
}

// GuildRepo is the Guild entity's repository surface.
type GuildRepo interface {
	GetGuild(ctx context.Context, id model.Snowflake) (*model.Guild, bool, error)
	UpsertGuild(ctx context.Context, g model.Guild) (model.Guild, error)
	// RecordGuildScrape advances scrape_count and last_scraped_at (and
	// first_scraped_at, the first time) for a completed traversal.
	RecordGuildScrape(ctx context.Context, id model.Snowflake) (model.Guild, error)
}

// ChannelRepo is the Channel entity's repository surface.
type ChannelRepo interface {
	GetChannel(ctx context.Context, id model.Snowflake) (*model.Channel, bool, error)
	UpsertChannel(ctx context.Context, c model.Channel) (model.Channel, error)
	ListChannelsByGuild(ctx context.Context, guildID model.Snowflake) ([]model.Channel, error)
	// MarkChannelScraped advances last_scraped_at to now without
	// changing last_message_id, for a traversal that found no new messages.
	MarkChannelScraped(ctx context.Context, id model.Snowflake) error
	// SetChannelLastMessageID advances last_scraped_at and last_message_id together.
	SetChannelLastMessageID(ctx context.Context, id model.Snowflake, lastMessageID model.Snowflake, messageCountDelta int) error
}

// UserRepo is the User entity's repository surface.
type UserRepo interface {
	GetUser(ctx context.Context, id model.Snowflake) (*model.User, bool, error)
	UpsertUser(ctx context.Context, u model.User) (model.User, error)
}

// MessageRepo is the Message entity's repository surface.
type MessageRepo interface {
	GetMessage(ctx context.Context, id model.Snowflake) (*model.Message, bool, error)
	UpsertMessage(ctx context.Context, m model.Message) (model.Message, error)
	ListMessagesByChannel(ctx context.Context, channelID model.Snowflake, page Pagination) ([]model.Message, error)
}

// AttachmentRepo is the Attachment entity's repository surface.
type AttachmentRepo interface {
	GetAttachment(ctx context.Context, id model.Snowflake) (*model.Attachment, bool, error)
	UpsertAttachment(ctx context.Context, a model.Attachment) (model.Attachment, error)
	ListAttachmentsByMessage(ctx context.Context, messageID model.Snowflake) ([]model.Attachment, error)
	// ListPendingImageAttachments pages through attachments with
	// download_state=pending, for the Download Manager. It does not
	// filter by content type or filename; the caller decides which rows
	// are images.
	ListPendingImageAttachments(ctx context.Context, offset, limit int) ([]PendingAttachment, int, error)
	SetAttachmentDownloadState(ctx context.Context, id model.Snowflake, state model.DownloadState, localPath *string) error
}

// ReactionRepo is the Reaction entity's repository surface. UpsertReaction
// is called once per reaction so a malformed row can be rolled back in
// isolation per spec.md §7.
type ReactionRepo interface {
	UpsertReaction(ctx context.Context, r model.Reaction) error
	ListReactionsByMessage(ctx context.Context, messageID model.Snowflake) ([]model.Reaction, error)
}

// BulkRepo batches entity writes. A correct implementation only needs to
// be semantically equivalent to sequential single-row upserts; it may
// use a native multi-row upsert primitive when the dialect offers one.
type BulkRepo interface {
	BulkUpsertGuilds(ctx context.Context, rows []model.Guild) (int, error)
	BulkUpsertUsers(ctx context.Context, rows []model.User) (int, error)
	BulkUpsertChannels(ctx context.Context, rows []model.Channel) (int, error)
	BulkUpsertMessages(ctx context.Context, rows []model.Message) (int, error)
	BulkUpsertAttachments(ctx context.Context, rows []model.Attachment) (int, error)
	BulkUpsertReactions(ctx context.Context, rows []model.Reaction) (int, error)
}

// TransferRepo exposes the generic, table-name-indexed count/page
// primitives the Transfer Manager needs without hand-rolling per-table
// switches at the call site.
type TransferRepo interface {
	CountTable(ctx context.Context, table Table) (int64, error)
	PageTable(ctx context.Context, table Table, offset, limit int) (TablePage, error)
	MergeTablePage(ctx context.Context, table Table, page TablePage) (int, error)
	// ResetSequences repairs database-managed auto-increment sequences
	// on integer primary keys after a transfer lands rows with explicit
	// PKs. A no-op for dialects with no such sequences (e.g. SQLite's
	// snowflake-keyed tables here).
	ResetSequences(ctx context.Context) error
}

// TablePage is a dialect-agnostic carrier for one page of rows from
// PageTable, detached from the source session (spec.md §4.3.3 step 2)
// and ready to merge into a target session.
type TablePage struct {
	Table  Table
	Guilds []model.Guild
	Users       []model.User
	Channels    []model.Channel
	Messages    []model.Message
	Attachments []model.Attachment
	Reactions   []model.Reaction
}

// Len reports the row count in this page regardless of table.
func (p TablePage) Len() int {
	switch p.Table {
	case TableGuild:
		return len(p.Guilds)
	case TableUser:
		return len(p.Users)
	case TableChannel:
		return len(p.Channels)
	case TableMessage:
		return len(p.Messages)
	case TableAttachment:
		return len(p.Attachments)
	case TableReaction:
		return len(p.Reactions)
	default:
		return 0
	}
}

// Store is one relational backend: a connected session plus every
// repository operation bound to it.
type Store interface {
	GuildRepo
	ChannelRepo
	UserRepo
	MessageRepo
	AttachmentRepo
	ReactionRepo
	BulkRepo
	TransferRepo

	// Dialect names the SQL dialect ("sqlite" or "postgres"), used by
	// callers that must special-case one backend (sequence resets,
	// dialect-specific DDL).
	Dialect() string
	// Connect opens the underlying connection and ensures the schema exists.
	Connect(ctx context.Context) error
	// Disconnect releases the underlying connection.
	Disconnect(ctx context.Context) error
}
