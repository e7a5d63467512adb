package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// GoSession adapts a discordgo session to Session.
type GoSession struct {
	s *discordgo.Session
}

// NewSession creates a bot session for token. Call Open before use.
func NewSession(token string) (*GoSession, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return &GoSession{s: s}, nil
}

// Open connects the gateway websocket.
func (g *GoSession) Open() error {
	return g.s.Open()
}

func (g *GoSession) Close() error {
	return g.s.Close()
}

func (g *GoSession) Guild(ctx context.Context, guildID string) (*Guild, error) {
	guild, err := g.s.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return &Guild{ID: guild.ID, Name: guild.Name}, nil
}

func (g *GoSession) Channel(ctx context.Context, channelID string) (*Channel, error) {
	ch, err := g.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	out := fromDiscordChannel(ch)
	return &out, nil
}

func (g *GoSession) ListChannels(ctx context.Context, guildID string) ([]Channel, error) {
	chs, err := g.s.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list channels of guild %s: %w", guildID, err)
	}
	out := make([]Channel, 0, len(chs))
	for _, ch := range chs {
		out = append(out, fromDiscordChannel(ch))
	}
	return out, nil
}

func (g *GoSession) CreateChannel(ctx context.Context, guildID, name, parentID string) (*Channel, error) {
	ch, err := g.s.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: parentID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create channel %q: %w", name, err)
	}
	out := fromDiscordChannel(ch)
	return &out, nil
}

func (g *GoSession) SendMessage(ctx context.Context, channelID string, msg Message) error {
	if _, err := g.s.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return nil
}

func fromDiscordChannel(ch *discordgo.Channel) Channel {
	kind := KindOther
	switch ch.Type {
	case discordgo.ChannelTypeGuildText:
		kind = KindText
	case discordgo.ChannelTypeGuildCategory:
		kind = KindCategory
	}
	return Channel{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		ParentID: ch.ParentID,
		Name:     ch.Name,
		Kind:     kind,
	}
}

func toMessageSend(msg Message) *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.Embed == nil {
		return send
	}

	embed := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       msg.Embed.Title,
		URL:         msg.Embed.URL,
		Description: msg.Embed.Description,
	}
	if msg.Embed.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: msg.Embed.ThumbnailURL}
	}
	for _, f := range msg.Embed.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	send.Embeds = []*discordgo.MessageEmbed{embed}
	return send
}
