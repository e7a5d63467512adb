package armory

import (
	"context"
	"fmt"
	"time"

	apperrors "guild-intake/internal/common/errors"
)

// Resolver turns a profile URL into a display image URL.
type Resolver struct {
	client  MediaClient
	timeout time.Duration
}

// NewResolver bounds every lookup by timeout; zero disables the bound.
func NewResolver(client MediaClient, timeout time.Duration) *Resolver {
	return &Resolver{client: client, timeout: timeout}
}

// ResolveImage returns the first media asset of the character. A malformed
// URL yields MALFORMED_INPUT; anything the lookup reports, including an
// empty asset list, yields RESOLUTION_FAILED.
func (r *Resolver) ResolveImage(ctx context.Context, profileURL string) (string, error) {
	ref, err := ParseProfileURL(profileURL)
	if err != nil {
		return "", err
	}
	return r.ResolveRef(ctx, ref, profileURL)
}

// ResolveRef is ResolveImage for an already parsed reference.
func (r *Resolver) ResolveRef(ctx context.Context, ref ProfileRef, profileURL string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	media, err := r.client.GetCharacterMedia(ctx, ref.Region, ref.APILocale(), ref.RealmSlug, ref.Character)
	if err != nil {
		return "", apperrors.NewResolutionFailedError(profileURL, err)
	}
	if len(media.Assets) == 0 || media.Assets[0].Value == "" {
		return "", apperrors.NewResolutionFailedError(profileURL, fmt.Errorf("no media assets"))
	}
	return media.Assets[0].Value, nil
}
