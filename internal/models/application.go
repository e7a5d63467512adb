// internal/models/application.go
package models

import (
	"strings"
	"unicode"
)

// CommandSubmitApplication is the only command the worker accepts.
const CommandSubmitApplication = "submit_application"

// AcknowledgementOK is the literal acknowledgement returned on success.
const AcknowledgementOK = "OK"

// Question is one question/answer pair of an application. Order within
// SubmissionPayload.Questions is significant.
type Question struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
}

// SubmissionPayload is the unit of work relayed to the worker. It is
// passed by value and never mutated after ingress.
type SubmissionPayload struct {
	ApplicantName string     `json:"name"`
	ServerName    string     `json:"server"`
	ClassName     string     `json:"class"`
	SpecName      string     `json:"spec"`
	CovenantName  string     `json:"covenant"`
	ProfileURL    string     `json:"armory"`
	LogsURL       string     `json:"logs"`
	Questions     []Question `json:"questions"`
}

// SubmissionRequest is the HTTP body: the payload plus the caller's key.
type SubmissionRequest struct {
	Key string `json:"key"`
	SubmissionPayload
}

// ChannelName is the applicant name collapsed to a Discord text-channel
// slug: lowercased, whitespace runs replaced by a single hyphen.
func (p SubmissionPayload) ChannelName() string {
	return Slug(p.ApplicantName)
}

// Slug lowercases s and joins its whitespace-separated words with "-".
func Slug(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), "-")
}

// Ack is the worker's reply to a successful submit_application call.
type Ack struct {
	Acknowledgement string `json:"ack"`
	Channel         string `json:"channel"`
	ChannelCreated  bool   `json:"channelCreated"`
	Posted          int    `json:"posted"`
	Total           int    `json:"total"`
}
