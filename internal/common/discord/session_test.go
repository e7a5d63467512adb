package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMessageSend_Plain(t *testing.T) {
	send := toMessageSend(Message{Content: "**__Why?__**\nBecause."})
	assert.Equal(t, "**__Why?__**\nBecause.", send.Content)
	assert.Empty(t, send.Embeds)
}

func TestToMessageSend_Embed(t *testing.T) {
	send := toMessageSend(Message{Embed: &Embed{
		Title:        "Astrocamp",
		URL:          "https://worldofwarcraft.com/en-us/character/us/malganis/astrocamp",
		Description:  "Mal'Ganis",
		ThumbnailURL: "https://render.worldofwarcraft.com/avatar.jpg",
		Fields: []EmbedField{
			{Name: "Class", Value: "Priest", Inline: true},
			{Name: "Spec", Value: "Shadow", Inline: true},
		},
	}})

	require.Len(t, send.Embeds, 1)
	embed := send.Embeds[0]
	assert.Equal(t, discordgo.EmbedTypeRich, embed.Type)
	assert.Equal(t, "Astrocamp", embed.Title)
	assert.Equal(t, "Mal'Ganis", embed.Description)
	require.NotNil(t, embed.Thumbnail)
	assert.Equal(t, "https://render.worldofwarcraft.com/avatar.jpg", embed.Thumbnail.URL)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Spec", embed.Fields[1].Name)
	assert.True(t, embed.Fields[1].Inline)
}

func TestToMessageSend_EmbedWithoutThumbnail(t *testing.T) {
	send := toMessageSend(Message{Embed: &Embed{Title: "x"}})
	require.Len(t, send.Embeds, 1)
	assert.Nil(t, send.Embeds[0].Thumbnail)
}

func TestFromDiscordChannel(t *testing.T) {
	tests := []struct {
		typ  discordgo.ChannelType
		want ChannelKind
	}{
		{discordgo.ChannelTypeGuildText, KindText},
		{discordgo.ChannelTypeGuildCategory, KindCategory},
		{discordgo.ChannelTypeGuildVoice, KindOther},
	}
	for _, tt := range tests {
		ch := fromDiscordChannel(&discordgo.Channel{ID: "1", GuildID: "g", ParentID: "p", Name: "n", Type: tt.typ})
		assert.Equal(t, tt.want, ch.Kind)
		assert.Equal(t, "p", ch.ParentID)
	}
}
