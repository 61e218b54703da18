package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

// sqlStore is the dialect-generic implementation of Store, grounded on
// the teacher's direct database/sql usage in pkg/database (no ORM).
// SQLite and Postgres share every query below; dialect only changes
// the bind-variable syntax and the write-concurrency shape.
//
// Mirroring the teacher's split between a read pool and a single
// dedicated write connection (WAL mode tolerates many concurrent
// readers but only one writer), SQLite's writeDB is capped at one
// connection. On Postgres, readDB and writeDB are the same pool.
type sqlStore struct {
	dialect  string
	readDB   *sql.DB
	writeDB  *sql.DB
	dsn      string
	migFiles embed.FS
	migDir   string
}

func (s *sqlStore) Dialect() string { return s.dialect }

// rebind rewrites '?' placeholders into the dialect's native form.
// Every query in this file is written with '?' regardless of dialect;
// Postgres queries get rewritten to '$1', '$2', ... just before
// execution, the way sqlx's Rebind helper does for lib/pq callers.
func (s *sqlStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.writeDB.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.readDB.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.readDB.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) Disconnect(ctx context.Context) error {
	var errs []error
	if s.writeDB != nil {
		if err := s.writeDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.readDB != nil {
		if err := s.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: disconnect: %v", errs)
	}
	return nil
}

func nullableSnowflake(p *model.Snowflake) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func scanNullableSnowflake(v sql.NullInt64) *model.Snowflake {
	if !v.Valid {
		return nil
	}
	sf := model.Snowflake(v.Int64)
	return &sf
}

func scanNullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func boolParam(dialect string, b bool) any {
	if dialect == "postgres" {
		return b
	}
	if b {
		return 1
	}
	return 0
}

// ---- Guild ----

func (s *sqlStore) GetGuild(ctx context.Context, id model.Snowflake) (*model.Guild, bool, error) {
	row := s.queryRow(ctx, `SELECT id, name, owner_id, member_count, first_scraped_at, last_scraped_at, scrape_count, created_at, updated_at FROM guild WHERE id = ?`, int64(id))
	var g model.Guild
	var gid, ownerID int64
	var firstScraped, lastScraped sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&gid, &g.Name, &ownerID, &g.MemberCount, &firstScraped, &lastScraped, &g.ScrapeCount, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get guild: %w", err)
	}
	g.ID = model.Snowflake(gid)
	g.OwnerID = model.Snowflake(ownerID)
	g.FirstScrapedAt = scanNullableTime(firstScraped)
	g.LastScrapedAt = scanNullableTime(lastScraped)
	g.CreatedAt = time.UnixMilli(createdAt).UTC()
	g.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &g, true, nil
}

func (s *sqlStore) UpsertGuild(ctx context.Context, g model.Guild) (model.Guild, error) {
	now := nowMillis()
	_, err := s.exec(ctx, `
		INSERT INTO guild (id, name, owner_id, member_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id,
			member_count = excluded.member_count,
			updated_at = excluded.updated_at
	`, int64(g.ID), g.Name, int64(g.OwnerID), g.MemberCount, now, now)
	if err != nil {
		return model.Guild{}, fmt.Errorf("store: upsert guild: %w", err)
	}
	got, ok, err := s.GetGuild(ctx, g.ID)
	if err != nil || !ok {
		return model.Guild{}, fmt.Errorf("store: upsert guild reload: %w", err)
	}
	return *got, nil
}

func (s *sqlStore) RecordGuildScrape(ctx context.Context, id model.Snowflake) (model.Guild, error) {
	now := nowMillis()
	_, err := s.exec(ctx, `
		UPDATE guild SET
			scrape_count = scrape_count + 1,
			last_scraped_at = ?,
			first_scraped_at = COALESCE(first_scraped_at, ?),
			updated_at = ?
		WHERE id = ?
	`, now, now, now, int64(id))
	if err != nil {
		return model.Guild{}, fmt.Errorf("store: record guild scrape: %w", err)
	}
	got, ok, err := s.GetGuild(ctx, id)
	if err != nil || !ok {
		return model.Guild{}, fmt.Errorf("store: record guild scrape reload: %w", err)
	}
	return *got, nil
}

// ---- User ----

func (s *sqlStore) GetUser(ctx context.Context, id model.Snowflake) (*model.User, bool, error) {
	row := s.queryRow(ctx, `SELECT id, username, discriminator, display_name, avatar_url, bot, created_at, updated_at FROM discord_user WHERE id = ?`, int64(id))
	var u model.User
	var uid int64
	var createdAt, updatedAt int64
	if err := row.Scan(&uid, &u.Username, &u.Discriminator, &u.DisplayName, &u.AvatarURL, &u.Bot, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get user: %w", err)
	}
	u.ID = model.Snowflake(uid)
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	u.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &u, true, nil
}

func (s *sqlStore) UpsertUser(ctx context.Context, u model.User) (model.User, error) {
	now := nowMillis()
	_, err := s.exec(ctx, `
		INSERT INTO discord_user (id, username, discriminator, display_name, avatar_url, bot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			discriminator = excluded.discriminator,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			bot = excluded.bot,
			updated_at = excluded.updated_at
	`, int64(u.ID), u.Username, u.Discriminator, u.DisplayName, u.AvatarURL, boolParam(s.dialect, u.Bot), now, now)
	if err != nil {
		return model.User{}, fmt.Errorf("store: upsert user: %w", err)
	}
	got, ok, err := s.GetUser(ctx, u.ID)
	if err != nil || !ok {
		return model.User{}, fmt.Errorf("store: upsert user reload: %w", err)
	}
	return *got, nil
}

// ---- Channel ----

func (s *sqlStore) scanChannel(row interface {
	Scan(dest ...any) error
}) (model.Channel, error) {
	var c model.Channel
	var cid, guildID int64
	var parentID, lastMessageID, lastScraped sql.NullInt64
	var createdAt, updatedAt int64
	var kind string
	if err := row.Scan(&cid, &guildID, &c.Name, &kind, &c.Topic, &c.Position, &parentID, &c.MessageCount, &lastScraped, &lastMessageID, &createdAt, &updatedAt); err != nil {
		return model.Channel{}, err
	}
	c.ID = model.Snowflake(cid)
	c.GuildID = model.Snowflake(guildID)
	c.Kind = model.ChannelKind(kind)
	c.ParentID = scanNullableSnowflake(parentID)
	c.LastMessageID = scanNullableSnowflake(lastMessageID)
	c.LastScrapedAt = scanNullableTime(lastScraped)
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return c, nil
}

const channelColumns = `id, guild_id, name, kind, topic, position, parent_id, message_count, last_scraped_at, last_message_id, created_at, updated_at`

func (s *sqlStore) GetChannel(ctx context.Context, id model.Snowflake) (*model.Channel, bool, error) {
	row := s.queryRow(ctx, `SELECT `+channelColumns+` FROM channel WHERE id = ?`, int64(id))
	c, err := s.scanChannel(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get channel: %w", err)
	}
	return &c, true, nil
}

func (s *sqlStore) UpsertChannel(ctx context.Context, c model.Channel) (model.Channel, error) {
	now := nowMillis()
	_, err := s.exec(ctx, `
		INSERT INTO channel (id, guild_id, name, kind, topic, position, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			topic = excluded.topic,
			position = excluded.position,
			parent_id = excluded.parent_id,
			updated_at = excluded.updated_at
	`, int64(c.ID), int64(c.GuildID), c.Name, string(c.Kind), c.Topic, c.Position, nullableSnowflake(c.ParentID), now, now)
	if err != nil {
		return model.Channel{}, fmt.Errorf("store: upsert channel: %w", err)
	}
	got, ok, err := s.GetChannel(ctx, c.ID)
	if err != nil || !ok {
		return model.Channel{}, fmt.Errorf("store: upsert channel reload: %w", err)
	}
	return *got, nil
}

func (s *sqlStore) ListChannelsByGuild(ctx context.Context, guildID model.Snowflake) ([]model.Channel, error) {
	rows, err := s.query(ctx, `SELECT `+channelColumns+` FROM channel WHERE guild_id = ? ORDER BY position, id`, int64(guildID))
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer rows.Close()
	var out []model.Channel
	for rows.Next() {
		c, err := s.scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkChannelScraped(ctx context.Context, id model.Snowflake) error {
	now := nowMillis()
	_, err := s.exec(ctx, `UPDATE channel SET last_scraped_at = ?, updated_at = ? WHERE id = ?`, now, now, int64(id))
	if err != nil {
		return fmt.Errorf("store: mark channel scraped: %w", err)
	}
	return nil
}

func (s *sqlStore) SetChannelLastMessageID(ctx context.Context, id model.Snowflake, lastMessageID model.Snowflake, messageCountDelta int) error {
	now := nowMillis()
	_, err := s.exec(ctx, `
		UPDATE channel SET
			last_scraped_at = ?,
			last_message_id = ?,
			message_count = message_count + ?,
			updated_at = ?
		WHERE id = ?
	`, now, int64(lastMessageID), messageCountDelta, now, int64(id))
	if err != nil {
		return fmt.Errorf("store: set channel last message id: %w", err)
	}
	return nil
}

// ---- Message ----

const messageColumns = `id, channel_id, author_id, content, clean_content, sent_at, edited_at, pinned, tts, mention_everyone, embeds_encoded, reference_id, created_at, updated_at`

func (s *sqlStore) scanMessage(row interface {
	Scan(dest ...any) error
}) (model.Message, error) {
	var m model.Message
	var mid, channelID, authorID int64
	var editedAt, referenceID sql.NullInt64
	var sentAt, createdAt, updatedAt int64
	if err := row.Scan(&mid, &channelID, &authorID, &m.Content, &m.CleanContent, &sentAt, &editedAt, &m.Pinned, &m.TTS, &m.MentionEveryone, &m.EmbedsEncoded, &referenceID, &createdAt, &updatedAt); err != nil {
		return model.Message{}, err
	}
	m.ID = model.Snowflake(mid)
	m.ChannelID = model.Snowflake(channelID)
	m.AuthorID = model.Snowflake(authorID)
	m.SentAt = time.UnixMilli(sentAt).UTC()
	m.EditedAt = scanNullableTime(editedAt)
	m.ReferenceID = scanNullableSnowflake(referenceID)
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return m, nil
}

func (s *sqlStore) GetMessage(ctx context.Context, id model.Snowflake) (*model.Message, bool, error) {
	row := s.queryRow(ctx, `SELECT `+messageColumns+` FROM message WHERE id = ?`, int64(id))
	m, err := s.scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get message: %w", err)
	}
	return &m, true, nil
}

func (s *sqlStore) UpsertMessage(ctx context.Context, m model.Message) (model.Message, error) {
	now := nowMillis()
	var editedAt any
	if m.EditedAt != nil {
		editedAt = m.EditedAt.UnixMilli()
	}
	_, err := s.exec(ctx, `
		INSERT INTO message (id, channel_id, author_id, content, clean_content, sent_at, edited_at, pinned, tts, mention_everyone, embeds_encoded, reference_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			clean_content = excluded.clean_content,
			edited_at = excluded.edited_at,
			pinned = excluded.pinned,
			tts = excluded.tts,
			mention_everyone = excluded.mention_everyone,
			embeds_encoded = excluded.embeds_encoded,
			updated_at = excluded.updated_at
	`, int64(m.ID), int64(m.ChannelID), int64(m.AuthorID), m.Content, m.CleanContent, m.SentAt.UnixMilli(), editedAt,
		boolParam(s.dialect, m.Pinned), boolParam(s.dialect, m.TTS), boolParam(s.dialect, m.MentionEveryone),
		m.EmbedsEncoded, nullableSnowflake(m.ReferenceID), now, now)
	if err != nil {
		return model.Message{}, fmt.Errorf("store: upsert message: %w", err)
	}
	got, ok, err := s.GetMessage(ctx, m.ID)
	if err != nil || !ok {
		return model.Message{}, fmt.Errorf("store: upsert message reload: %w", err)
	}
	return *got, nil
}

func (s *sqlStore) ListMessagesByChannel(ctx context.Context, channelID model.Snowflake, page Pagination) ([]model.Message, error) {
	page = page.Clamped()
	query := `SELECT ` + messageColumns + ` FROM message WHERE channel_id = ?`
	args := []any{int64(channelID)}
	switch {
	case page.After != nil:
		query += ` AND id > ? ORDER BY id ASC LIMIT ?`
		args = append(args, int64(*page.After), page.Limit)
	case page.Before != nil:
		query += ` AND id < ? ORDER BY id DESC LIMIT ?`
		args = append(args, int64(*page.Before), page.Limit)
	default:
		query += ` ORDER BY id DESC LIMIT ?`
		args = append(args, page.Limit)
	}
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		m, err := s.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- Attachment ----

const attachmentColumns = `id, message_id, filename, content_type, size, remote_url, proxy_url, width, height, local_path, download_state, created_at, updated_at`

func (s *sqlStore) scanAttachment(row interface {
	Scan(dest ...any) error
}) (model.Attachment, error) {
	var a model.Attachment
	var aid, messageID int64
	var localPath sql.NullString
	var state string
	var createdAt, updatedAt int64
	if err := row.Scan(&aid, &messageID, &a.Filename, &a.ContentType, &a.Size, &a.RemoteURL, &a.ProxyURL, &a.Width, &a.Height, &localPath, &state, &createdAt, &updatedAt); err != nil {
		return model.Attachment{}, err
	}
	a.ID = model.Snowflake(aid)
	a.MessageID = model.Snowflake(messageID)
	if localPath.Valid {
		a.LocalPath = &localPath.String
	}
	a.DownloadState = model.DownloadState(state)
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	a.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return a, nil
}

func (s *sqlStore) GetAttachment(ctx context.Context, id model.Snowflake) (*model.Attachment, bool, error) {
	row := s.queryRow(ctx, `SELECT `+attachmentColumns+` FROM attachment WHERE id = ?`, int64(id))
	a, err := s.scanAttachment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get attachment: %w", err)
	}
	return &a, true, nil
}

func (s *sqlStore) UpsertAttachment(ctx context.Context, a model.Attachment) (model.Attachment, error) {
	now := nowMillis()
	state := a.DownloadState
	if state == "" {
		state = model.DownloadPending
	}
	_, err := s.exec(ctx, `
		INSERT INTO attachment (id, message_id, filename, content_type, size, remote_url, proxy_url, width, height, local_path, download_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			filename = excluded.filename,
			content_type = excluded.content_type,
			size = excluded.size,
			remote_url = excluded.remote_url,
			proxy_url = excluded.proxy_url,
			width = excluded.width,
			height = excluded.height,
			updated_at = excluded.updated_at
	`, int64(a.ID), int64(a.MessageID), a.Filename, a.ContentType, a.Size, a.RemoteURL, a.ProxyURL, a.Width, a.Height, a.LocalPath, string(state), now, now)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("store: upsert attachment: %w", err)
	}
	got, ok, err := s.GetAttachment(ctx, a.ID)
	if err != nil || !ok {
		return model.Attachment{}, fmt.Errorf("store: upsert attachment reload: %w", err)
	}
	return *got, nil
}

func (s *sqlStore) ListAttachmentsByMessage(ctx context.Context, messageID model.Snowflake) ([]model.Attachment, error) {
	rows, err := s.query(ctx, `SELECT `+attachmentColumns+` FROM attachment WHERE message_id = ? ORDER BY id`, int64(messageID))
	if err != nil {
		return nil, fmt.Errorf("store: list attachments: %w", err)
	}
	defer rows.Close()
	var out []model.Attachment
	for rows.Next() {
		a, err := s.scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlStore) ListPendingImageAttachments(ctx context.Context, offset, limit int) ([]PendingAttachment, int, error) {
	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM attachment WHERE download_state = ?`, string(model.DownloadPending)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count pending attachments: %w", err)
	}
	rows, err := s.query(ctx, `
		SELECT a.id, a.message_id, a.filename, a.content_type, a.size, a.remote_url, a.proxy_url, a.width, a.height, a.local_path, a.download_state, a.created_at, a.updated_at, m.channel_id
		FROM attachment a JOIN message m ON m.id = a.message_id
		WHERE a.download_state = ?
		ORDER BY a.id
		LIMIT ? OFFSET ?
	`, string(model.DownloadPending), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list pending attachments: %w", err)
	}
	defer rows.Close()
	var out []PendingAttachment
	for rows.Next() {
		var a model.Attachment
		var aid, messageID, channelID int64
		var localPath sql.NullString
		var state string
		var createdAt, updatedAt int64
		if err := rows.Scan(&aid, &messageID, &a.Filename, &a.ContentType, &a.Size, &a.RemoteURL, &a.ProxyURL, &a.Width, &a.Height, &localPath, &state, &createdAt, &updatedAt, &channelID); err != nil {
			return nil, 0, fmt.Errorf("store: scan pending attachment: %w", err)
		}
		a.ID = model.Snowflake(aid)
		a.MessageID = model.Snowflake(messageID)
		if localPath.Valid {
			a.LocalPath = &localPath.String
		}
		a.DownloadState = model.DownloadState(state)
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		a.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, PendingAttachment{Attachment: a, ChannelID: model.Snowflake(channelID)})
	}
	return out, total, rows.Err()
}

func (s *sqlStore) SetAttachmentDownloadState(ctx context.Context, id model.Snowflake, state model.DownloadState, localPath *string) error {
	now := nowMillis()
	_, err := s.exec(ctx, `UPDATE attachment SET download_state = ?, local_path = ?, updated_at = ? WHERE id = ?`, string(state), localPath, now, int64(id))
	if err != nil {
		return fmt.Errorf("store: set attachment download state: %w", err)
	}
	return nil
}

// ---- Reaction ----

func (s *sqlStore) scanReaction(row interface {
	Scan(dest ...any) error
}) (model.Reaction, error) {
	var r model.Reaction
	var messageID, emojiID int64
	var createdAt, updatedAt int64
	if err := row.Scan(&messageID, &emojiID, &r.EmojiKey.EmojiName, &r.EmojiAnimated, &r.Count, &createdAt, &updatedAt); err != nil {
		return model.Reaction{}, err
	}
	r.MessageID = model.Snowflake(messageID)
	r.EmojiKey.EmojiID = model.Snowflake(emojiID)
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return r, nil
}

func (s *sqlStore) UpsertReaction(ctx context.Context, r model.Reaction) error {
	now := nowMillis()
	_, err := s.exec(ctx, `
		INSERT INTO reaction (message_id, emoji_id, emoji_name, emoji_animated, count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id, emoji_id, emoji_name) DO UPDATE SET
			emoji_animated = excluded.emoji_animated,
			count = excluded.count,
			updated_at = excluded.updated_at
	`, int64(r.MessageID), int64(r.EmojiKey.EmojiID), r.EmojiKey.EmojiName, boolParam(s.dialect, r.EmojiAnimated), r.Count, now, now)
	if err != nil {
		return fmt.Errorf("store: upsert reaction: %w", err)
	}
	return nil
}

func (s *sqlStore) ListReactionsByMessage(ctx context.Context, messageID model.Snowflake) ([]model.Reaction, error) {
	rows, err := s.query(ctx, `SELECT message_id, emoji_id, emoji_name, emoji_animated, count, created_at, updated_at FROM reaction WHERE message_id = ? ORDER BY emoji_id, emoji_name`, int64(messageID))
	if err != nil {
		return nil, fmt.Errorf("store: list reactions: %w", err)
	}
	defer rows.Close()
	var out []model.Reaction
	for rows.Next() {
		r, err := s.scanReaction(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan reaction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- Bulk ----
// Each bulk method loops over the single-row upserts above and stops at
// the first error. The rows are not wrapped in a transaction: a failure
// part-way leaves the earlier rows of the batch written, and the
// returned count says how many.

func (s *sqlStore) BulkUpsertGuilds(ctx context.Context, rows []model.Guild) (int, error) {
	n := 0
	for _, g := range rows {
		if _, err := s.UpsertGuild(ctx, g); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *sqlStore) BulkUpsertUsers(ctx context.Context, rows []model.User) (int, error) {
	n := 0
	for _, u := range rows {
		if _, err := s.UpsertUser(ctx, u); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *sqlStore) BulkUpsertChannels(ctx context.Context, rows []model.Channel) (int, error) {
	n := 0
	for _, c := range rows {
		if _, err := s.UpsertChannel(ctx, c); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *sqlStore) BulkUpsertMessages(ctx context.Context, rows []model.Message) (int, error) {
	n := 0
	for _, m := range rows {
		if _, err := s.UpsertMessage(ctx, m); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *sqlStore) BulkUpsertAttachments(ctx context.Context, rows []model.Attachment) (int, error) {
	n := 0
	for _, a := range rows {
		if _, err := s.UpsertAttachment(ctx, a); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *sqlStore) BulkUpsertReactions(ctx context.Context, rows []model.Reaction) (int, error) {
	n := 0
	for _, r := range rows {
		if err := s.UpsertReaction(ctx, r); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ---- Transfer ----

func (s *sqlStore) CountTable(ctx context.Context, table Table) (int64, error) {
	var n int64
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM `+string(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count table %s: %w", table, err)
	}
	return n, nil
}

func (s *sqlStore) PageTable(ctx context.Context, table Table, offset, limit int) (TablePage, error) {
	page := TablePage{Table: table}
	switch table {
	case TableGuild:
		rows, err := s.query(ctx, `SELECT id, name, owner_id, member_count, first_scraped_at, last_scraped_at, scrape_count, created_at, updated_at FROM guild ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
		if err != nil {
			return page, err
		}
		defer rows.Close()
		for rows.Next() {
			var g model.Guild
			var gid, ownerID int64
			var firstScraped, lastScraped sql.NullInt64
			var createdAt, updatedAt int64
			if err := rows.Scan(&gid, &g.Name, &ownerID, &g.MemberCount, &firstScraped, &lastScraped, &g.ScrapeCount, &createdAt, &updatedAt); err != nil {
				return page, err
			}
			g.ID = model.Snowflake(gid)
			g.OwnerID = model.Snowflake(ownerID)
			g.FirstScrapedAt = scanNullableTime(firstScraped)
			g.LastScrapedAt = scanNullableTime(lastScraped)
			g.CreatedAt = time.UnixMilli(createdAt).UTC()
			g.UpdatedAt = time.UnixMilli(updatedAt).UTC()
			page.Guilds = append(page.Guilds, g)
		}
		return page, rows.Err()
	case TableUser:
		rows, err := s.query(ctx, `SELECT id, username, discriminator, display_name, avatar_url, bot, created_at, updated_at FROM discord_user ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
		if err != nil {
			return page, err
		}
		defer rows.Close()
		for rows.Next() {
			var u model.User
			var uid int64
			var createdAt, updatedAt int64
			if err := rows.Scan(&uid, &u.Username, &u.Discriminator, &u.DisplayName, &u.AvatarURL, &u.Bot, &createdAt, &updatedAt); err != nil {
				return page, err
			}
			u.ID = model.Snowflake(uid)
			u.CreatedAt = time.UnixMilli(createdAt).UTC()
			u.UpdatedAt = time.UnixMilli(updatedAt).UTC()
			page.Users = append(page.Users, u)
		}
		return page, rows.Err()
	case TableChannel:
		rows, err := s.query(ctx, `SELECT `+channelColumns+` FROM channel ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
		if err != nil {
			return page, err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := s.scanChannel(rows)
			if err != nil {
				return page, err
			}
			page.Channels = append(page.Channels, c)
		}
		return page, rows.Err()
	case TableMessage:
		rows, err := s.query(ctx, `SELECT `+messageColumns+` FROM message ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
		if err != nil {
			return page, err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := s.scanMessage(rows)
			if err != nil {
				return page, err
			}
			page.Messages = append(page.Messages, m)
		}
		return page, rows.Err()
	case TableAttachment:
		rows, err := s.query(ctx, `SELECT `+attachmentColumns+` FROM attachment ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
		if err != nil {
			return page, err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := s.scanAttachment(rows)
			if err != nil {
				return page, err
			}
			page.Attachments = append(page.Attachments, a)
		}
		return page, rows.Err()
	case TableReaction:
		rows, err := s.query(ctx, `SELECT message_id, emoji_id, emoji_name, emoji_animated, count, created_at, updated_at FROM reaction ORDER BY message_id, emoji_id, emoji_name LIMIT ? OFFSET ?`, limit, offset)
		if err != nil {
			return page, err
		}
		defer rows.Close()
		for rows.Next() {
			r, err := s.scanReaction(rows)
			if err != nil {
				return page, err
			}
			page.Reactions = append(page.Reactions, r)
		}
		return page, rows.Err()
	default:
		return page, fmt.Errorf("store: unknown table %s", table)
	}
}

func (s *sqlStore) MergeTablePage(ctx context.Context, table Table, page TablePage) (int, error) {
	switch table {
	case TableGuild:
		return s.BulkUpsertGuilds(ctx, page.Guilds)
	case TableUser:
		return s.BulkUpsertUsers(ctx, page.Users)
	case TableChannel:
		return s.BulkUpsertChannels(ctx, page.Channels)
	case TableMessage:
		return s.BulkUpsertMessages(ctx, page.Messages)
	case TableAttachment:
		return s.BulkUpsertAttachments(ctx, page.Attachments)
	case TableReaction:
		return s.BulkUpsertReactions(ctx, page.Reactions)
	default:
		return 0, fmt.Errorf("store: unknown table %s", table)
	}
}
