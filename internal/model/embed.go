package model

import (
	"encoding/json"
	"time"
)

// Embed is a structured, JSON-round-trippable representation of a
// Discord message embed. The source stored embeds via a textual
// conversion that does not round-trip to a queryable form; this type
// replaces it per spec.md's structured-encoding requirement. No attempt
// is made to parse legacy source-produced strings — that conversion is
// lossy and out of scope.
type Embed struct {
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
	Color       int           `json:"color,omitempty"`
	Timestamp   *time.Time    `json:"timestamp,omitempty"`
	Footer      *EmbedFooter  `json:"footer,omitempty"`
	Image       *EmbedMedia   `json:"image,omitempty"`
	Thumbnail   *EmbedMedia   `json:"thumbnail,omitempty"`
	Author      *EmbedAuthor  `json:"author,omitempty"`
	Fields      []EmbedField  `json:"fields,omitempty"`
}

type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedMedia struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EncodeEmbeds serializes a message's embeds into the TEXT form stored
// on Message.EmbedsEncoded. A nil or empty slice encodes as "[]" rather
// than the empty string, so DecodeEmbeds never needs to special-case an
// unset column versus a message with no embeds.
func EncodeEmbeds(embeds []Embed) (string, error) {
	if embeds == nil {
		embeds = []Embed{}
	}
	data, err := json.Marshal(embeds)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeEmbeds parses the TEXT form back into embeds. An empty string
// (unset column, e.g. from a pre-migration row) decodes as no embeds.
func DecodeEmbeds(encoded string) ([]Embed, error) {
	if encoded == "" {
		return nil, nil
	}
	var embeds []Embed
	if err := json.Unmarshal([]byte(encoded), &embeds); err != nil {
		return nil, err
	}
	return embeds, nil
}
