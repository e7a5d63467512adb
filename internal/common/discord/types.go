// Package discord exposes the slice of the Discord workspace session the
// worker consumes: guild and channel lookup, channel creation and message
// posting. The concrete implementation wraps discordgo.
package discord

import "context"

type ChannelKind int

const (
	KindOther ChannelKind = iota
	KindText
	KindCategory
)

type Guild struct {
	ID   string
	Name string
}

// Channel is referenced by the worker, never owned: the workspace is the
// source of truth. Channels are keyed by (GuildID, Name).
type Channel struct {
	ID       string
	GuildID  string
	ParentID string
	Name     string
	Kind     ChannelKind
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich summary message.
type Embed struct {
	Title        string
	URL          string
	Description  string
	ThumbnailURL string
	Fields       []EmbedField
}

// Message is either plain Content or an Embed.
type Message struct {
	Content string
	Embed   *Embed
}

// Session is the capability set of a connected workspace session. It must
// be safe for concurrent use.
type Session interface {
	Guild(ctx context.Context, guildID string) (*Guild, error)
	Channel(ctx context.Context, channelID string) (*Channel, error)
	ListChannels(ctx context.Context, guildID string) ([]Channel, error)
	CreateChannel(ctx context.Context, guildID, name, parentID string) (*Channel, error)
	SendMessage(ctx context.Context, channelID string, msg Message) error
}
