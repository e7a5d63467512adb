// internal/workers/application/submit-application/handler_test.go
package submitapplication

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"guild-intake/internal/common/armory"
	"guild-intake/internal/common/discord"
	"guild-intake/internal/common/discord/discordtest"
	apperrors "guild-intake/internal/common/errors"
	"guild-intake/internal/common/logger"
	"guild-intake/internal/models"
	"guild-intake/internal/provisioner"
	"guild-intake/internal/relay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const avatarURL = "https://render.worldofwarcraft.com/us/character/malganis/avatar.jpg"

type stubResolver struct {
	mu    sync.Mutex
	image string
	err   error
	refs  []armory.ProfileRef
}

func (s *stubResolver) ResolveRef(_ context.Context, ref armory.ProfileRef, profileURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = append(s.refs, ref)
	if s.err != nil {
		return "", apperrors.NewResolutionFailedError(profileURL, s.err)
	}
	return s.image, nil
}

type testEnv struct {
	sess     *discordtest.Session
	resolver *stubResolver
	handler  *Handler
	target   discord.Target
}

func createTestConfig() *Config {
	return LoadConfig()
}

func createTestEnv(t *testing.T, ready bool) *testEnv {
	t.Helper()
	sess := discordtest.New("g1", "Guild One")
	cat := sess.AddChannel("g1", "Applicants", "", discord.KindCategory)
	target := discord.Target{GuildID: "g1", GuildName: "Guild One", CategoryID: cat.ID, CategoryName: cat.Name}

	log := logger.NewTestLogger(t)
	resolver := &stubResolver{image: avatarURL}
	h := NewHandler(createTestConfig(), provisioner.New(sess, nil, log), resolver, sess, nil, log)
	if ready {
		h.Ready(target)
	}
	return &testEnv{sess: sess, resolver: resolver, handler: h, target: target}
}

func createAstrocamp() *models.SubmissionPayload {
	return &models.SubmissionPayload{
		ApplicantName: "Astrocamp",
		ServerName:    "Mal'Ganis",
		ClassName:     "Priest",
		SpecName:      "Shadow",
		CovenantName:  "Venthyr",
		ProfileURL:    "https://worldofwarcraft.com/en-us/character/us/malganis/astrocamp",
		LogsURL:       "https://www.warcraftlogs.com/character/us/malganis/astrocamp",
		Questions: []models.Question{
			{Question: "Why do you want to join?", Answer: "Progression."},
			{Question: "Availability?", Answer: "Tue/Thu raids."},
		},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Astrocamp(t *testing.T) {
	env := createTestEnv(t, true)

	ack, err := env.handler.Execute(context.Background(), createAstrocamp())
	require.NoError(t, err)

	assert.Equal(t, "OK", ack.Acknowledgement)
	assert.Equal(t, "astrocamp", ack.Channel)
	assert.True(t, ack.ChannelCreated)
	assert.Equal(t, 3, ack.Posted)
	assert.Equal(t, 3, ack.Total)

	channels := env.sess.ChannelsNamed("g1", "astrocamp")
	require.Len(t, channels, 1)
	assert.Equal(t, env.target.CategoryID, channels[0].ParentID)

	posts := env.sess.Posts()
	require.Len(t, posts, 3)
	for _, p := range posts {
		assert.Equal(t, channels[0].ID, p.ChannelID)
	}

	summary := posts[0].Message.Embed
	require.NotNil(t, summary)
	assert.Equal(t, "Astrocamp", summary.Title)
	assert.Equal(t, "https://worldofwarcraft.com/en-us/character/us/malganis/astrocamp", summary.URL)
	assert.Equal(t, "Mal'Ganis", summary.Description)
	assert.Equal(t, avatarURL, summary.ThumbnailURL)
	require.Len(t, summary.Fields, 3)
	assert.Equal(t, discord.EmbedField{Name: "Class", Value: "Priest", Inline: true}, summary.Fields[0])
	assert.Equal(t, discord.EmbedField{Name: "Spec", Value: "Shadow", Inline: true}, summary.Fields[1])
	assert.Equal(t, discord.EmbedField{Name: "Covenant", Value: "Venthyr", Inline: true}, summary.Fields[2])

	assert.Equal(t, "**__Why do you want to join?__**\nProgression.", posts[1].Message.Content)
	assert.Equal(t, "**__Availability?__**\nTue/Thu raids.", posts[2].Message.Content)

	require.Len(t, env.resolver.refs, 1)
	assert.Equal(t, "astrocamp", env.resolver.refs[0].Character)
	assert.Equal(t, "malganis", env.resolver.refs[0].RealmSlug)
}

func TestHandler_Execute_ReusesChannel(t *testing.T) {
	env := createTestEnv(t, true)

	_, err := env.handler.Execute(context.Background(), createAstrocamp())
	require.NoError(t, err)

	ack, err := env.handler.Execute(context.Background(), createAstrocamp())
	require.NoError(t, err)
	assert.False(t, ack.ChannelCreated)

	assert.Len(t, env.sess.ChannelsNamed("g1", "astrocamp"), 1)
	assert.Len(t, env.sess.Posts(), 6, "both submissions are posted")
}

func TestHandler_Execute_NameIsSlugged(t *testing.T) {
	env := createTestEnv(t, true)
	input := createAstrocamp()
	input.ApplicantName = "  Big   Tank "

	ack, err := env.handler.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "big-tank", ack.Channel)
	assert.Len(t, env.sess.ChannelsNamed("g1", "big-tank"), 1)
	assert.Equal(t, "  Big   Tank ", env.sess.Posts()[0].Message.Embed.Title, "title keeps the submitted name")
}

func TestHandler_Execute_NoQuestions(t *testing.T) {
	env := createTestEnv(t, true)
	input := createAstrocamp()
	input.Questions = nil

	ack, err := env.handler.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Posted)
	assert.Len(t, env.sess.Posts(), 1)
}

func TestHandler_Execute_ResolutionFailureIsTolerated(t *testing.T) {
	env := createTestEnv(t, true)
	env.resolver.err = errors.New("character not found")

	ack, err := env.handler.Execute(context.Background(), createAstrocamp())
	require.NoError(t, err)
	assert.Equal(t, 3, ack.Posted)

	posts := env.sess.Posts()
	require.Len(t, posts, 3)
	require.NotNil(t, posts[0].Message.Embed)
	assert.Empty(t, posts[0].Message.Embed.ThumbnailURL)
}

func TestHandler_Execute_QuestionOrderPreserved(t *testing.T) {
	env := createTestEnv(t, true)
	input := createAstrocamp()
	input.Questions = nil
	for _, q := range []string{"one", "two", "three", "four", "five"} {
		input.Questions = append(input.Questions, models.Question{Question: q, Answer: q + "!"})
	}

	_, err := env.handler.Execute(context.Background(), input)
	require.NoError(t, err)

	posts := env.sess.Posts()
	require.Len(t, posts, 6)
	for i, q := range input.Questions {
		assert.Equal(t, FormatAnswer(q), posts[i+1].Message.Content)
	}
}

func TestHandler_Handle_DecodesRelayPayload(t *testing.T) {
	env := createTestEnv(t, true)

	raw, err := relay.Marshal(createAstrocamp())
	require.NoError(t, err)

	result, err := env.handler.Handle(context.Background(), raw)
	require.NoError(t, err)
	ack, ok := result.(*models.Ack)
	require.True(t, ok)
	assert.Equal(t, "astrocamp", ack.Channel)
}

// ==========================
// Failure Tests
// ==========================

func TestHandler_Execute_NotReady(t *testing.T) {
	env := createTestEnv(t, false)
	assert.False(t, env.handler.IsReady())

	_, err := env.handler.Execute(context.Background(), createAstrocamp())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeSessionNotReady))
	assert.Equal(t, 0, env.sess.ListCalls)
	assert.Empty(t, env.sess.Posts())

	env.handler.Ready(env.target)
	assert.True(t, env.handler.IsReady())
	_, err = env.handler.Execute(context.Background(), createAstrocamp())
	assert.NoError(t, err)
}

func TestHandler_Execute_MalformedProfileURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"four segments", "https://worldofwarcraft.com/en-us/character/us/malganis"},
		{"six segments", "https://worldofwarcraft.com/en-us/character/us/malganis/astrocamp/extra"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestEnv(t, true)
			input := createAstrocamp()
			input.ProfileURL = tt.url

			_, err := env.handler.Execute(context.Background(), input)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeMalformedInput))

			assert.Empty(t, env.sess.Posts(), "nothing posted")
			assert.Equal(t, 0, env.sess.CreateCalls, "no channel created")
			assert.Empty(t, env.resolver.refs)
		})
	}
}

func TestHandler_Execute_BlankName(t *testing.T) {
	env := createTestEnv(t, true)
	input := createAstrocamp()
	input.ApplicantName = " \t "

	_, err := env.handler.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeMalformedInput))
	assert.Equal(t, 0, env.sess.CreateCalls)
}

func TestHandler_Execute_ProvisioningFailure(t *testing.T) {
	env := createTestEnv(t, true)
	env.sess.FailCreate = errors.New("missing permissions")

	_, err := env.handler.Execute(context.Background(), createAstrocamp())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeProvisioningFailed))
	assert.Empty(t, env.sess.Posts())
}

func TestHandler_Execute_PartialPostFailure(t *testing.T) {
	env := createTestEnv(t, true)
	env.sess.FailSendAt = 3

	_, err := env.handler.Execute(context.Background(), createAstrocamp())
	require.Error(t, err)

	var postErr *PostError
	require.True(t, errors.As(err, &postErr))
	assert.Equal(t, 2, postErr.Posted)
	assert.Equal(t, 3, postErr.Total)

	assert.Equal(t, apperrors.ErrCodePostFailed, apperrors.CodeOf(err))
	assert.Len(t, env.sess.Posts(), 2, "earlier posts are kept")
}

func TestHandler_Execute_SummaryPostFailure(t *testing.T) {
	env := createTestEnv(t, true)
	env.sess.FailSendAt = 1

	_, err := env.handler.Execute(context.Background(), createAstrocamp())
	require.Error(t, err)

	var postErr *PostError
	require.True(t, errors.As(err, &postErr))
	assert.Equal(t, 0, postErr.Posted)
	assert.Empty(t, env.sess.Posts())
}

func TestHandler_Handle_BadPayload(t *testing.T) {
	env := createTestEnv(t, true)

	_, err := env.handler.Handle(context.Background(), relay.RawMessage{0xff})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeMalformedInput))
}

// ==========================
// Formatter Tests
// ==========================

func TestBuildMessages_SplitsLongAnswers(t *testing.T) {
	p := *createAstrocamp()
	p.Questions = []models.Question{{Question: "Tell us about yourself", Answer: strings.Repeat("é", 4500)}}

	msgs := BuildMessages(p, "", 2000)
	require.Len(t, msgs, 4, "summary plus three chunks")

	var joined strings.Builder
	for _, m := range msgs[1:] {
		assert.LessOrEqual(t, len([]rune(m.Content)), 2000)
		joined.WriteString(m.Content)
	}
	assert.Equal(t, FormatAnswer(p.Questions[0]), joined.String())
}

func TestBuildMessages_LongQuestionKeepsMarkup(t *testing.T) {
	p := *createAstrocamp()
	p.Questions = []models.Question{{Question: strings.Repeat("q", 2100), Answer: "Yes."}}

	msgs := BuildMessages(p, "", 2000)
	require.Len(t, msgs, 3, "summary plus two question pieces")

	var title strings.Builder
	for _, m := range msgs[1:] {
		assert.LessOrEqual(t, len([]rune(m.Content)), 2000)
		require.True(t, strings.HasPrefix(m.Content, "**__"), "piece opens markup")
		end := strings.Index(m.Content, "__**")
		require.Greater(t, end, 0, "piece closes markup")
		title.WriteString(m.Content[len("**__"):end])
	}
	assert.Equal(t, p.Questions[0].Question, title.String())
	assert.True(t, strings.HasSuffix(msgs[2].Content, "__**\nYes."))
}

func TestBuildMessages_LongQuestionAndAnswer(t *testing.T) {
	p := *createAstrocamp()
	p.Questions = []models.Question{{Question: strings.Repeat("q", 2100), Answer: strings.Repeat("a", 2500)}}

	msgs := BuildMessages(p, "", 2000)

	var answer strings.Builder
	for i, m := range msgs[1:] {
		assert.LessOrEqual(t, len([]rune(m.Content)), 2000)
		if i < 2 {
			assert.True(t, strings.HasPrefix(m.Content, "**__"))
		}
		if _, rest, ok := strings.Cut(m.Content, "__**\n"); ok {
			answer.WriteString(rest)
		} else if !strings.HasPrefix(m.Content, "**__") {
			answer.WriteString(m.Content)
		}
	}
	assert.Equal(t, p.Questions[0].Answer, answer.String())
}

func TestBuildSummary_EmptyFields(t *testing.T) {
	embed := BuildSummary(models.SubmissionPayload{ApplicantName: "x"}, "")
	for _, f := range embed.Fields {
		assert.Equal(t, "n/a", f.Value)
		assert.True(t, f.Inline)
	}
	assert.Empty(t, embed.ThumbnailURL)
}
