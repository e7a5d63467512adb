// Package discordtest provides an in-memory discord.Session for tests.
package discordtest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"guild-intake/internal/common/discord"
)

// Post is one message observed by the fake, in send order.
type Post struct {
	ChannelID string
	Message   discord.Message
}

// Session is a concurrency-safe fake workspace. Failure hooks let tests
// inject errors into individual operations.
type Session struct {
	mu       sync.Mutex
	guilds   map[string]discord.Guild
	channels []discord.Channel
	posts    []Post
	nextID   int

	ListDelay   time.Duration
	ListCalls   int
	CreateCalls int

	FailList   error
	FailCreate error
	// FailSendAt makes the n-th SendMessage call (1-based) fail.
	FailSendAt int
	FailSend   error
	sendCalls  int
}

func New(guildID, guildName string) *Session {
	return &Session{
		guilds: map[string]discord.Guild{guildID: {ID: guildID, Name: guildName}},
		nextID: 1000,
	}
}

// AddChannel seeds an existing channel and returns it.
func (s *Session) AddChannel(guildID, name, parentID string, kind discord.ChannelKind) discord.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := discord.Channel{ID: s.newID(), GuildID: guildID, ParentID: parentID, Name: name, Kind: kind}
	s.channels = append(s.channels, ch)
	return ch
}

func (s *Session) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func (s *Session) Guild(_ context.Context, guildID string) (*discord.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("unknown guild %s", guildID)
	}
	return &g, nil
}

func (s *Session) Channel(_ context.Context, channelID string) (*discord.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if ch.ID == channelID {
			c := ch
			return &c, nil
		}
	}
	return nil, fmt.Errorf("unknown channel %s", channelID)
}

func (s *Session) ListChannels(ctx context.Context, guildID string) ([]discord.Channel, error) {
	s.mu.Lock()
	s.ListCalls++
	delay := s.ListDelay
	failList := s.FailList
	var out []discord.Channel
	for _, ch := range s.channels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failList != nil {
		return nil, failList
	}
	return out, nil
}

func (s *Session) CreateChannel(_ context.Context, guildID, name, parentID string) (*discord.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++
	if s.FailCreate != nil {
		return nil, s.FailCreate
	}
	ch := discord.Channel{ID: s.newID(), GuildID: guildID, ParentID: parentID, Name: name, Kind: discord.KindText}
	s.channels = append(s.channels, ch)
	return &ch, nil
}

func (s *Session) SendMessage(_ context.Context, channelID string, msg discord.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCalls++
	if s.FailSendAt > 0 && s.sendCalls == s.FailSendAt {
		if s.FailSend != nil {
			return s.FailSend
		}
		return fmt.Errorf("send %d rejected", s.sendCalls)
	}
	s.posts = append(s.posts, Post{ChannelID: channelID, Message: msg})
	return nil
}

// Calls returns the ListChannels and CreateChannel counters under the lock.
func (s *Session) Calls() (lists, creates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ListCalls, s.CreateCalls
}

// Posts returns a copy of every successful post in order.
func (s *Session) Posts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Post(nil), s.posts...)
}

// ChannelsNamed returns every channel in guildID called name.
func (s *Session) ChannelsNamed(guildID, name string) []discord.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []discord.Channel
	for _, ch := range s.channels {
		if ch.GuildID == guildID && ch.Name == name {
			out = append(out, ch)
		}
	}
	return out
}
