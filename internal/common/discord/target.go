package discord

import (
	"context"
	"fmt"
	"strings"
)

// Target is where applicant channels live. It is resolved once when the
// session becomes ready and treated as immutable afterwards.
type Target struct {
	GuildID      string
	GuildName    string
	CategoryID   string
	CategoryName string
}

// ResolveTarget verifies the guild and locates the applicant category,
// either by id or, when categoryID is empty, by case-insensitive name.
func ResolveTarget(ctx context.Context, sess Session, guildID, categoryID, categoryName string) (*Target, error) {
	guild, err := sess.Guild(ctx, guildID)
	if err != nil {
		return nil, err
	}

	target := &Target{GuildID: guild.ID, GuildName: guild.Name}

	if categoryID != "" {
		ch, err := sess.Channel(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		if ch.Kind != KindCategory {
			return nil, fmt.Errorf("channel %s is not a category", categoryID)
		}
		if ch.GuildID != "" && ch.GuildID != guild.ID {
			return nil, fmt.Errorf("category %s belongs to guild %s, not %s", categoryID, ch.GuildID, guild.ID)
		}
		target.CategoryID = ch.ID
		target.CategoryName = ch.Name
		return target, nil
	}

	channels, err := sess.ListChannels(ctx, guild.ID)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		if ch.Kind == KindCategory && strings.EqualFold(ch.Name, categoryName) {
			target.CategoryID = ch.ID
			target.CategoryName = ch.Name
			return target, nil
		}
	}
	return nil, fmt.Errorf("category %q not found in guild %s", categoryName, guild.ID)
}
