// internal/workers/application/submit-application/formatter.go
package submitapplication

import (
	"fmt"
	"unicode/utf8"

	"guild-intake/internal/common/discord"
	"guild-intake/internal/models"
)

// emptyFieldValue stands in for blank embed values, which the workspace
// rejects.
const emptyFieldValue = "n/a"

const titleMarkup = "**__%s__**"

// titleOverhead is the markup around a question plus the newline before
// its answer.
const titleOverhead = 9

// BuildSummary renders the first message: the applicant's name linked to
// the profile, the server as description, the character image when known
// and the class, spec and covenant as inline fields.
func BuildSummary(p models.SubmissionPayload, imageURL string) *discord.Embed {
	return &discord.Embed{
		Title:        p.ApplicantName,
		URL:          p.ProfileURL,
		Description:  p.ServerName,
		ThumbnailURL: imageURL,
		Fields: []discord.EmbedField{
			{Name: FieldClass, Value: orPlaceholder(p.ClassName), Inline: true},
			{Name: FieldSpec, Value: orPlaceholder(p.SpecName), Inline: true},
			{Name: FieldCovenant, Value: orPlaceholder(p.CovenantName), Inline: true},
		},
	}
}

// FormatAnswer renders a question in bold underline with the answer on the
// next line.
func FormatAnswer(q models.Question) string {
	return fmt.Sprintf(titleMarkup+"\n%s", q.Question, q.Answer)
}

// BuildMessages returns every message of a submission in posting order:
// the summary, then one message per question in input order. A question
// longer than maxRunes continues in the following message(s).
func BuildMessages(p models.SubmissionPayload, imageURL string, maxRunes int) []discord.Message {
	msgs := make([]discord.Message, 0, 1+len(p.Questions))
	msgs = append(msgs, discord.Message{Embed: BuildSummary(p, imageURL)})

	for _, q := range p.Questions {
		for _, chunk := range answerMessages(q, maxRunes) {
			msgs = append(msgs, discord.Message{Content: chunk})
		}
	}
	return msgs
}

// answerMessages splits one formatted answer into messages of at most
// maxRunes. Every piece of the question keeps its own complete markup; the
// answer continues as plain text after the last piece.
func answerMessages(q models.Question, maxRunes int) []string {
	full := FormatAnswer(q)
	if maxRunes <= titleOverhead || utf8.RuneCountInString(full) <= maxRunes {
		return splitRunes(full, maxRunes)
	}

	titles := splitRunes(q.Question, maxRunes-titleOverhead)
	last := len(titles) - 1

	out := make([]string, 0, len(titles)+1)
	for _, t := range titles[:last] {
		out = append(out, fmt.Sprintf(titleMarkup, t))
	}

	head := fmt.Sprintf(titleMarkup, titles[last]) + "\n"
	answer := []rune(q.Answer)
	room := maxRunes - utf8.RuneCountInString(head)
	if room > len(answer) {
		room = len(answer)
	}
	out = append(out, head+string(answer[:room]))

	if len(answer) > room {
		out = append(out, splitRunes(string(answer[room:]), maxRunes)...)
	}
	return out
}

func splitRunes(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	if len(runes) <= max {
		return []string{s}
	}
	var out []string
	for len(runes) > max {
		out = append(out, string(runes[:max]))
		runes = runes[max:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func orPlaceholder(s string) string {
	if s == "" {
		return emptyFieldValue
	}
	return s
}
