package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
)

const apiBase = "https://discord.com/api/v10"

// HTTPClient speaks the Discord REST API directly over net/http. Its own
// 429 handling is the authority on rate limits per spec.md §4.2 — the
// scraper's inter-request delay only smooths steady-state pacing.
type HTTPClient struct {
	http  *http.Client
	token string
	log   *logrus.Entry
}

// NewHTTPClient constructs a client with the default HTTP client timeout
// behavior (spec.md §5: no bespoke per-request timeout).
func NewHTTPClient(log *logrus.Entry) *HTTPClient {
	return &HTTPClient{
		http: &http.Client{},
		log:  log,
	}
}

func (c *HTTPClient) Login(ctx context.Context, token string) error {
	c.token = token
	// Confirm the token by fetching the calling application's own user.
	req, err := c.newRequest(ctx, http.MethodGet, "/users/@me", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord: login request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord: login failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) GetGuild(ctx context.Context, guildID model.Snowflake) (GuildInfo, error) {
	var wire struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		OwnerID     string `json:"owner_id"`
		MemberCount int    `json:"approximate_member_count"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/guilds/%d?with_counts=true", guildID), &wire); err != nil {
		return GuildInfo{}, err
	}
	owner, _ := parseSnowflake(wire.OwnerID)
	return GuildInfo{
		ID:          guildID,
		Name:        wire.Name,
		OwnerID:     owner,
		MemberCount: wire.MemberCount,
	}, nil
}

func (c *HTTPClient) GetGuildChannels(ctx context.Context, guildID model.Snowflake) ([]ChannelInfo, error) {
	var wire []wireChannel
	if err := c.getJSON(ctx, fmt.Sprintf("/guilds/%d/channels", guildID), &wire); err != nil {
		return nil, err
	}
	channels := make([]ChannelInfo, 0, len(wire))
	for _, w := range wire {
		ch, ok := w.toChannelInfo(guildID)
		if ok {
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

func (c *HTTPClient) GetChannelHistory(ctx context.Context, channelID model.Snowflake, cursor model.Snowflake, direction Direction, pageSize int) ([]MessageInfo, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	path := fmt.Sprintf("/channels/%d/messages?limit=%d", channelID, pageSize)
	if cursor != 0 {
		if direction == Oldest {
			path += fmt.Sprintf("&after=%d", cursor)
		} else {
			path += fmt.Sprintf("&before=%d", cursor)
		}
	}

	var wire []wireMessage
	if err := c.getJSON(ctx, path, &wire); err != nil {
		return nil, err
	}

	messages := make([]MessageInfo, 0, len(wire))
	for _, w := range wire {
		msg, err := w.toMessageInfo(channelID)
		if err != nil {
			c.log.WithError(err).Warn("discord: skipping malformed message")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *HTTPClient) GetThreads(ctx context.Context, channelID model.Snowflake, kind model.ChannelKind) ([]ChannelInfo, error) {
	var active wireThreadList
	if err := c.getJSON(ctx, fmt.Sprintf("/channels/%d/threads/active", channelID), &active); err != nil {
		return nil, err
	}

	archivedPath := fmt.Sprintf("/channels/%d/threads/archived/public", channelID)
	if kind == model.ChannelKindPrivateThread {
		archivedPath = fmt.Sprintf("/channels/%d/threads/archived/private", channelID)
	}
	var archived wireThreadList
	if err := c.getJSON(ctx, archivedPath, &archived); err != nil {
		return nil, err
	}

	out := make([]ChannelInfo, 0, len(active.Threads)+len(archived.Threads))
	for _, w := range append(active.Threads, archived.Threads...) {
		ch, ok := w.toChannelInfo(0)
		if ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "wumpus-archiver (https://github.com/junglemonkey/wumpus-archiver, 1.0)")
	return req, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord: request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord: %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseSnowflake(s string) (model.Snowflake, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return model.Snowflake(v), err
}
