// Package model defines the six entity types archived from Discord and
// the small closed enums that classify them.
package model

import "time"

// Snowflake is a 64-bit identifier assigned by Discord. Larger values
// correspond to later creation times; the zero value never names a real
// entity.
type Snowflake uint64

// ChannelKind classifies a Channel. Categories are never scraped for
// messages; they exist only as parents. Threads are discovered from
// their parent text or forum channel.
type ChannelKind string

const (
	ChannelKindText          ChannelKind = "text"
	ChannelKindVoice         ChannelKind = "voice"
	ChannelKindAnnouncement  ChannelKind = "announcement"
	ChannelKindCategory      ChannelKind = "category"
	ChannelKindPublicThread  ChannelKind = "public_thread"
	ChannelKindPrivateThread ChannelKind = "private_thread"
	ChannelKindStageVoice    ChannelKind = "stage_voice"
	ChannelKindForum         ChannelKind = "forum"
)

// Traversable reports whether the scraper pulls message history for
// channels of this kind. Categories are parents only.
func (k ChannelKind) Traversable() bool {
	return k != ChannelKindCategory
}

// ThreadBearing reports whether a channel of this kind can have threads
// enumerated under it.
func (k ChannelKind) ThreadBearing() bool {
	return k == ChannelKindText || k == ChannelKindForum
}

// IsThread reports whether a channel of this kind is itself a thread.
func (k ChannelKind) IsThread() bool {
	return k == ChannelKindPublicThread || k == ChannelKindPrivateThread
}

// DownloadState tracks an Attachment's local-copy lifecycle.
type DownloadState string

const (
	DownloadPending    DownloadState = "pending"
	DownloadDownloaded DownloadState = "downloaded"
	DownloadFailed     DownloadState = "failed"
	DownloadSkipped    DownloadState = "skipped"
)

// Guild is a Discord server.
type Guild struct {
	ID              Snowflake
	Name            string
	OwnerID         Snowflake
	MemberCount     int
	FirstScrapedAt  *time.Time
	LastScrapedAt   *time.Time
	ScrapeCount     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Channel is a named container for messages, or a category/parent.
type Channel struct {
	ID             Snowflake
	GuildID        Snowflake
	Name           string
	Kind           ChannelKind
	Topic          string
	Position       int
	ParentID       *Snowflake
	MessageCount   int
	LastScrapedAt  *time.Time
	LastMessageID  *Snowflake
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// User is a Discord account, human or bot.
type User struct {
	ID            Snowflake
	Username      string
	Discriminator string
	DisplayName   string
	AvatarURL     string
	Bot           bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is a single chat message posted in a Channel.
type Message struct {
	ID               Snowflake
	ChannelID        Snowflake
	AuthorID         Snowflake
	Content          string
	CleanContent     string
	SentAt           time.Time
	EditedAt         *time.Time
	Pinned           bool
	TTS              bool
	MentionEveryone  bool
	EmbedsEncoded    string // JSON-encoded []Embed, see embed.go
	ReferenceID      *Snowflake
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Attachment is a file attached to a Message.
type Attachment struct {
	ID            Snowflake
	MessageID     Snowflake
	Filename      string
	ContentType   string
	Size          int64
	RemoteURL     string
	ProxyURL      string
	Width         int
	Height        int
	LocalPath     *string
	DownloadState DownloadState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EmojiKey identifies a Reaction's emoji: EmojiID is 0 for Unicode emoji.
type EmojiKey struct {
	EmojiID   Snowflake
	EmojiName string
}

// Reaction is one emoji's reaction tally on a Message. Its key is the
// composite (MessageID, EmojiKey).
type Reaction struct {
	MessageID     Snowflake
	EmojiKey      EmojiKey
	EmojiAnimated bool
	Count         int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// recognizedImageTypes is the set of content-type / extension values the
// Download Manager treats as image attachments worth fetching.
var recognizedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/avif": true,
	"image/bmp":  true,
	"image/tiff": true,
}

var recognizedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".avif": true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// IsRecognizedImage reports whether contentType or filename's extension
// names an image type the Download Manager will fetch.
func IsRecognizedImage(contentType, filename string) bool {
	if recognizedImageTypes[contentType] {
		return true
	}
	ext := extOf(filename)
	return recognizedImageExtensions[ext]
}

func extOf(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[i:]
		}
		if filename[i] == '/' {
			break
		}
	}
	return ""
}
