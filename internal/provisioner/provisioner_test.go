package provisioner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"guild-intake/internal/common/discord"
	"guild-intake/internal/common/discord/discordtest"
	apperrors "guild-intake/internal/common/errors"
	"guild-intake/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ==========================
// Test Helper Functions
// ==========================

func setupSession(t *testing.T) (*discordtest.Session, discord.Target) {
	t.Helper()
	sess := discordtest.New("g1", "Guild One")
	cat := sess.AddChannel("g1", "Applicants", "", discord.KindCategory)
	return sess, discord.Target{
		GuildID:      "g1",
		GuildName:    "Guild One",
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestEnsureChannel_CreatesUnderCategory(t *testing.T) {
	sess, target := setupSession(t)
	p := New(sess, nil, logger.NewTestLogger(t))

	ch, created, err := p.EnsureChannel(context.Background(), target, "astrocamp")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "astrocamp", ch.Name)
	assert.Equal(t, target.CategoryID, ch.ParentID)
	assert.Equal(t, discord.KindText, ch.Kind)
}

func TestEnsureChannel_Idempotent(t *testing.T) {
	sess, target := setupSession(t)
	p := New(sess, nil, logger.NewTestLogger(t))

	first, created, err := p.EnsureChannel(context.Background(), target, "astrocamp")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := p.EnsureChannel(context.Background(), target, "astrocamp")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, sess.ChannelsNamed("g1", "astrocamp"), 1)
	assert.Equal(t, 1, sess.CreateCalls)
}

func TestEnsureChannel_ReusesExistingTextChannel(t *testing.T) {
	sess, target := setupSession(t)
	existing := sess.AddChannel("g1", "astrocamp", target.CategoryID, discord.KindText)
	p := New(sess, nil, logger.NewTestLogger(t))

	ch, created, err := p.EnsureChannel(context.Background(), target, "astrocamp")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, ch.ID)
	assert.Equal(t, 0, sess.CreateCalls)
}

func TestEnsureChannel_IgnoresCategoryWithSameName(t *testing.T) {
	sess, target := setupSession(t)
	sess.AddChannel("g1", "astrocamp", "", discord.KindCategory)
	p := New(sess, nil, logger.NewTestLogger(t))

	ch, created, err := p.EnsureChannel(context.Background(), target, "astrocamp")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, discord.KindText, ch.Kind)
}

func TestEnsureChannel_ConcurrentSingleCreate(t *testing.T) {
	sess, target := setupSession(t)
	sess.ListDelay = 20 * time.Millisecond
	p := New(sess, nil, logger.NewTestLogger(t))

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		creates int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, created, err := p.EnsureChannel(context.Background(), target, "astrocamp")
			assert.NoError(t, err)
			if ch == nil {
				return
			}
			mu.Lock()
			ids[ch.ID] = true
			if created {
				creates++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, creates)
	assert.Len(t, sess.ChannelsNamed("g1", "astrocamp"), 1)
}

// Two provisioners stand in for two worker processes sharing one lock.
func TestEnsureChannel_SharedLockerAcrossProvisioners(t *testing.T) {
	sess, target := setupSession(t)
	sess.ListDelay = 20 * time.Millisecond
	client, _ := setupRedis(t)
	locker := NewRedisLocker(client, time.Second)

	a := New(sess, locker, logger.NewTestLogger(t))
	b := New(sess, locker, logger.NewTestLogger(t))

	var wg sync.WaitGroup
	for _, p := range []*Provisioner{a, b, a, b} {
		wg.Add(1)
		go func(p *Provisioner) {
			defer wg.Done()
			_, _, err := p.EnsureChannel(context.Background(), target, "astrocamp")
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	assert.Len(t, sess.ChannelsNamed("g1", "astrocamp"), 1)
	assert.Equal(t, 1, sess.CreateCalls)
}

// ==========================
// Failure Tests
// ==========================

func TestEnsureChannel_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *discordtest.Session)
	}{
		{"list fails", func(s *discordtest.Session) { s.FailList = errors.New("missing access") }},
		{"create fails", func(s *discordtest.Session) { s.FailCreate = errors.New("missing permissions") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, target := setupSession(t)
			tt.setup(sess)
			p := New(sess, nil, logger.NewTestLogger(t))

			ch, _, err := p.EnsureChannel(context.Background(), target, "astrocamp")
			require.Error(t, err)
			assert.Nil(t, ch)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeProvisioningFailed))
		})
	}
}

func TestEnsureChannel_EmptyName(t *testing.T) {
	sess, target := setupSession(t)
	p := New(sess, nil, logger.NewTestLogger(t))

	_, _, err := p.EnsureChannel(context.Background(), target, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeMalformedInput))
	assert.Equal(t, 0, sess.ListCalls)
}

func TestEnsureChannel_ContextCancelled(t *testing.T) {
	sess, target := setupSession(t)
	sess.ListDelay = 300 * time.Millisecond
	p := New(sess, nil, logger.NewTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := p.EnsureChannel(ctx, target, "astrocamp")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeProvisioningFailed))
	_, creates := sess.Calls()
	assert.Equal(t, 0, creates)

	// The shared find-or-create keeps running; a later caller sees its result.
	ch, _, err := p.EnsureChannel(context.Background(), target, "astrocamp")
	require.NoError(t, err)
	assert.Equal(t, "astrocamp", ch.Name)
	assert.Len(t, sess.ChannelsNamed("g1", "astrocamp"), 1)
}

func TestEnsureChannel_WaiterSurvivesFirstCallerCancel(t *testing.T) {
	sess, target := setupSession(t)
	sess.ListDelay = 150 * time.Millisecond
	p := New(sess, nil, logger.NewTestLogger(t))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, _, err := p.EnsureChannel(firstCtx, target, "astrocamp")
		firstDone <- err
	}()

	require.Eventually(t, func() bool {
		lists, _ := sess.Calls()
		return lists == 1
	}, time.Second, 5*time.Millisecond)

	type result struct {
		ch  *discord.Channel
		err error
	}
	waiterDone := make(chan result, 1)
	go func() {
		ch, _, err := p.EnsureChannel(context.Background(), target, "astrocamp")
		waiterDone <- result{ch, err}
	}()

	cancelFirst()

	err := <-firstDone
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeProvisioningFailed))

	res := <-waiterDone
	require.NoError(t, res.err)
	require.NotNil(t, res.ch)
	assert.Equal(t, "astrocamp", res.ch.Name)

	_, creates := sess.Calls()
	assert.Equal(t, 1, creates)
	assert.Len(t, sess.ChannelsNamed("g1", "astrocamp"), 1)
}

func TestEnsureChannel_FlightTimeout(t *testing.T) {
	sess, target := setupSession(t)
	sess.ListDelay = time.Second
	p := New(sess, nil, logger.NewTestLogger(t))
	p.flightTimeout = 30 * time.Millisecond

	_, _, err := p.EnsureChannel(context.Background(), target, "astrocamp")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeProvisioningFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingReleaseLocker struct{}

func (failingReleaseLocker) Lock(context.Context, string) (func() error, error) {
	return func() error { return ErrLeaseLost }, nil
}

func TestEnsureChannel_ReleaseFailureIsLogged(t *testing.T) {
	sess, target := setupSession(t)
	core, logs := observer.New(zapcore.WarnLevel)
	p := New(sess, failingReleaseLocker{}, logger.NewZapAdapter(zap.New(core)))

	ch, created, err := p.EnsureChannel(context.Background(), target, "astrocamp")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "astrocamp", ch.Name)

	warnings := logs.FilterMessage("Channel lock release failed").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "astrocamp", warnings[0].ContextMap()["channel"])
}
