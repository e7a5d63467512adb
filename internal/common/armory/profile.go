// Package armory resolves a character's display image from its public
// armory profile URL via the Battle.net profile API.
package armory

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "guild-intake/internal/common/errors"
)

// ProfileRef is the routing data carried by a profile URL such as
// https://worldofwarcraft.com/en-us/character/us/malganis/astrocamp.
type ProfileRef struct {
	Locale    string
	Kind      string
	Region    string
	RealmSlug string
	Character string
}

// ParseProfileURL requires exactly five non-empty path segments:
// locale, object kind, region, realm slug and character name. The
// character name is lowercased.
func ParseProfileURL(raw string) (ProfileRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ProfileRef{}, apperrors.NewMalformedInputError("armory", fmt.Sprintf("unparseable url: %v", err))
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 5 {
		return ProfileRef{}, apperrors.NewMalformedInputError("armory",
			fmt.Sprintf("expected 5 path segments, got %d in %q", len(parts), u.Path))
	}
	for i, p := range parts {
		if p == "" {
			return ProfileRef{}, apperrors.NewMalformedInputError("armory",
				fmt.Sprintf("path segment %d is empty in %q", i+1, u.Path))
		}
	}

	return ProfileRef{
		Locale:    parts[0],
		Kind:      parts[1],
		Region:    strings.ToLower(parts[2]),
		RealmSlug: parts[3],
		Character: strings.ToLower(parts[4]),
	}, nil
}

// APILocale converts "en-us" style locales to the "en_US" form the API
// expects.
func (p ProfileRef) APILocale() string {
	lang, region, ok := strings.Cut(strings.ReplaceAll(p.Locale, "-", "_"), "_")
	if !ok {
		return p.Locale
	}
	return strings.ToLower(lang) + "_" + strings.ToUpper(region)
}
