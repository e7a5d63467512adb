// Package provisioner finds or creates the per-applicant text channel.
package provisioner

import (
	"context"
	"fmt"
	"time"

	"guild-intake/internal/common/discord"
	apperrors "guild-intake/internal/common/errors"
	"guild-intake/internal/common/logger"

	"golang.org/x/sync/singleflight"
)

// defaultFlightTimeout bounds one shared find-or-create, independent of
// any single caller.
const defaultFlightTimeout = 30 * time.Second

// Provisioner guarantees at most one channel per name under a target, even
// when submissions for the same applicant arrive concurrently.
type Provisioner struct {
	session discord.Session
	locker  Locker
	group   singleflight.Group
	log     logger.Logger

	flightTimeout time.Duration
}

// New uses a LocalLocker when locker is nil.
func New(session discord.Session, locker Locker, log logger.Logger) *Provisioner {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Provisioner{
		session:       session,
		locker:        locker,
		log:           log,
		flightTimeout: defaultFlightTimeout,
	}
}

type ensureResult struct {
	channel *discord.Channel
	created bool
}

// EnsureChannel returns the text channel called name in the target guild,
// creating it under the target category when absent. created is true only
// for the caller whose request performed the creation.
//
// Concurrent callers share one find-or-create. It runs detached from every
// caller's context, so one caller giving up does not fail the others; each
// caller still stops waiting when its own ctx is done.
func (p *Provisioner) EnsureChannel(ctx context.Context, target discord.Target, name string) (*discord.Channel, bool, error) {
	if name == "" {
		return nil, false, apperrors.NewMalformedInputError("name", "channel name is empty")
	}

	key := target.GuildID + "/" + name
	leader := false

	ch := p.group.DoChan(key, func() (interface{}, error) {
		leader = true
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flightTimeout)
		defer cancel()
		return p.ensure(fctx, target, name, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(ensureResult)
		return r.channel, r.created && leader, nil
	case <-ctx.Done():
		return nil, false, apperrors.NewProvisioningFailedError(name, ctx.Err())
	}
}

func (p *Provisioner) ensure(ctx context.Context, target discord.Target, name, key string) (ensureResult, error) {
	unlock, err := p.locker.Lock(ctx, key)
	if err != nil {
		return ensureResult{}, apperrors.NewProvisioningFailedError(name, fmt.Errorf("lock: %w", err))
	}
	defer func() {
		if err := unlock(); err != nil {
			p.log.Warn("Channel lock release failed", map[string]interface{}{
				"channel": name,
				"error":   err,
			})
		}
	}()

	existing, err := p.find(ctx, target.GuildID, name)
	if err != nil {
		return ensureResult{}, apperrors.NewProvisioningFailedError(name, err)
	}
	if existing != nil {
		p.log.Debug("Reusing applicant channel", map[string]interface{}{
			"channel":   existing.Name,
			"channelId": existing.ID,
		})
		return ensureResult{channel: existing}, nil
	}

	created, err := p.session.CreateChannel(ctx, target.GuildID, name, target.CategoryID)
	if err != nil {
		return ensureResult{}, apperrors.NewProvisioningFailedError(name, err)
	}

	p.log.Info("Created applicant channel", map[string]interface{}{
		"channel":   created.Name,
		"channelId": created.ID,
		"category":  target.CategoryName,
	})
	return ensureResult{channel: created, created: true}, nil
}

// find matches by exact name and skips categories and voice channels.
func (p *Provisioner) find(ctx context.Context, guildID, name string) (*discord.Channel, error) {
	channels, err := p.session.ListChannels(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	for i := range channels {
		if channels[i].Kind == discord.KindText && channels[i].Name == name {
			return &channels[i], nil
		}
	}
	return nil, nil
}
