package discord

import (
	"time"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
)

// wireChannelKind maps Discord's numeric channel type to our ChannelKind.
// Unmapped types (voice-adjacent stage variants not listed here, DMs,
// group DMs) return ok=false and the caller skips the channel.
var wireChannelKind = map[int]model.ChannelKind{
	0:  model.ChannelKindText,
	2:  model.ChannelKindVoice,
	4:  model.ChannelKindCategory,
	5:  model.ChannelKindAnnouncement,
	10: model.ChannelKindAnnouncement, // announcement thread surfaces under the parent
	11: model.ChannelKindPublicThread,
	12: model.ChannelKindPrivateThread,
	13: model.ChannelKindStageVoice,
	15: model.ChannelKindForum,
}

type wireChannel struct {
	ID            string `json:"id"`
	GuildID       string `json:"guild_id"`
	Name          string `json:"name"`
	Type          int    `json:"type"`
	Topic         string `json:"topic"`
	Position      int    `json:"position"`
	ParentID      string `json:"parent_id"`
	LastMessageID string `json:"last_message_id"`
}

func (w wireChannel) toChannelInfo(fallbackGuildID model.Snowflake) (ChannelInfo, bool) {
	kind, ok := wireChannelKind[w.Type]
	if !ok {
		return ChannelInfo{}, false
	}
	id, err := parseSnowflake(w.ID)
	if err != nil {
		return ChannelInfo{}, false
	}
	guildID := fallbackGuildID
	if w.GuildID != "" {
		if g, err := parseSnowflake(w.GuildID); err == nil {
			guildID = g
		}
	}

	var parentID *model.Snowflake
	if w.ParentID != "" {
		if p, err := parseSnowflake(w.ParentID); err == nil {
			parentID = &p
		}
	}

	var lastMessageID *model.Snowflake
	if w.LastMessageID != "" {
		if m, err := parseSnowflake(w.LastMessageID); err == nil {
			lastMessageID = &m
		}
	}

	return ChannelInfo{
		ID:            id,
		GuildID:       guildID,
		Name:          w.Name,
		Kind:          kind,
		Topic:         w.Topic,
		Position:      w.Position,
		ParentID:      parentID,
		LastMessageID: lastMessageID,
	}, true
}

type wireThreadList struct {
	Threads []wireChannel `json:"threads"`
	HasMore bool          `json:"has_more"`
}

type wireUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name"`
	Avatar        string `json:"avatar"`
	Bot           bool   `json:"bot"`
}

func (w wireUser) toAuthorInfo() AuthorInfo {
	id, _ := parseSnowflake(w.ID)
	displayName := w.GlobalName
	if displayName == "" {
		displayName = w.Username
	}
	var avatarURL string
	if w.Avatar != "" {
		avatarURL = "https://cdn.discordapp.com/avatars/" + w.ID + "/" + w.Avatar + ".png"
	}
	return AuthorInfo{
		ID:            id,
		Username:      w.Username,
		Discriminator: w.Discriminator,
		DisplayName:   displayName,
		AvatarURL:     avatarURL,
		Bot:           w.Bot,
	}
}

type wireAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	ProxyURL    string `json:"proxy_url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

func (w wireAttachment) toAttachmentInfo() AttachmentInfo {
	id, _ := parseSnowflake(w.ID)
	return AttachmentInfo{
		ID:          id,
		Filename:    w.Filename,
		ContentType: w.ContentType,
		Size:        w.Size,
		RemoteURL:   w.URL,
		ProxyURL:    w.ProxyURL,
		Width:       w.Width,
		Height:      w.Height,
	}
}

type wireEmoji struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Animated bool   `json:"animated"`
}

type wireReaction struct {
	Count int       `json:"count"`
	Emoji wireEmoji `json:"emoji"`
}

func (w wireReaction) toReactionInfo() ReactionInfo {
	emojiID, _ := parseSnowflake(w.Emoji.ID)
	return ReactionInfo{
		EmojiID:       emojiID,
		EmojiName:     w.Emoji.Name,
		EmojiAnimated: w.Emoji.Animated,
		Count:         w.Count,
	}
}

type wireEmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url"`
}

type wireEmbedMedia struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type wireEmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	IconURL string `json:"icon_url"`
}

type wireEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type wireEmbed struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	URL         string           `json:"url"`
	Color       int              `json:"color"`
	Timestamp   string           `json:"timestamp"`
	Footer      *wireEmbedFooter `json:"footer"`
	Image       *wireEmbedMedia  `json:"image"`
	Thumbnail   *wireEmbedMedia  `json:"thumbnail"`
	Author      *wireEmbedAuthor `json:"author"`
	Fields      []wireEmbedField `json:"fields"`
}

func (w wireEmbed) toEmbed() model.Embed {
	e := model.Embed{
		Title:       w.Title,
		Description: w.Description,
		URL:         w.URL,
		Color:       w.Color,
	}
	if w.Footer != nil {
		e.Footer = &model.EmbedFooter{Text: w.Footer.Text, IconURL: w.Footer.IconURL}
	}
	if w.Image != nil {
		e.Image = &model.EmbedMedia{URL: w.Image.URL, Width: w.Image.Width, Height: w.Image.Height}
	}
	if w.Thumbnail != nil {
		e.Thumbnail = &model.EmbedMedia{URL: w.Thumbnail.URL, Width: w.Thumbnail.Width, Height: w.Thumbnail.Height}
	}
	if w.Author != nil {
		e.Author = &model.EmbedAuthor{Name: w.Author.Name, URL: w.Author.URL, IconURL: w.Author.IconURL}
	}
	for _, f := range w.Fields {
		e.Fields = append(e.Fields, model.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return e
}

type wireMessageReference struct {
	MessageID string `json:"message_id"`
}

type wireMessage struct {
	ID              string                 `json:"id"`
	ChannelID       string                 `json:"channel_id"`
	Author          wireUser               `json:"author"`
	Content         string                 `json:"content"`
	Timestamp       string                 `json:"timestamp"`
	EditedTimestamp string                 `json:"edited_timestamp"`
	Pinned          bool                   `json:"pinned"`
	TTS             bool                   `json:"tts"`
	MentionEveryone bool                   `json:"mention_everyone"`
	Embeds          []wireEmbed            `json:"embeds"`
	MessageRef      *wireMessageReference  `json:"message_reference"`
	Attachments     []wireAttachment       `json:"attachments"`
	Reactions       []wireReaction         `json:"reactions"`
}

func (w wireMessage) toMessageInfo(fallbackChannelID model.Snowflake) (MessageInfo, error) {
	id, err := parseSnowflake(w.ID)
	if err != nil {
		return MessageInfo{}, err
	}

	channelID := fallbackChannelID
	if w.ChannelID != "" {
		if c, err := parseSnowflake(w.ChannelID); err == nil {
			channelID = c
		}
	}

	sentAt := parseDiscordTimestamp(w.Timestamp)

	var editedAt *int64
	if w.EditedTimestamp != "" {
		t := parseDiscordTimestamp(w.EditedTimestamp)
		editedAt = &t
	}

	var refID *model.Snowflake
	if w.MessageRef != nil && w.MessageRef.MessageID != "" {
		if r, err := parseSnowflake(w.MessageRef.MessageID); err == nil {
			refID = &r
		}
	}

	embeds := make([]model.Embed, 0, len(w.Embeds))
	for _, e := range w.Embeds {
		embeds = append(embeds, e.toEmbed())
	}

	attachments := make([]AttachmentInfo, 0, len(w.Attachments))
	for _, a := range w.Attachments {
		attachments = append(attachments, a.toAttachmentInfo())
	}

	reactions := make([]ReactionInfo, 0, len(w.Reactions))
	for _, r := range w.Reactions {
		reactions = append(reactions, r.toReactionInfo())
	}

	return MessageInfo{
		ID:              id,
		ChannelID:       channelID,
		Author:          w.Author.toAuthorInfo(),
		Content:         w.Content,
		CleanContent:    w.Content,
		SentAt:          sentAt,
		EditedAt:        editedAt,
		Pinned:          w.Pinned,
		TTS:             w.TTS,
		MentionEveryone: w.MentionEveryone,
		Embeds:          embeds,
		ReferenceID:     refID,
		Attachments:     attachments,
		Reactions:       reactions,
	}, nil
}

// parseDiscordTimestamp parses Discord's ISO8601 timestamps, which
// time.RFC3339 handles directly, into unix millis.
func parseDiscordTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
