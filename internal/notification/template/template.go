// Package template holds the registered notification templates, keyed by
// event type and channel. Lookups are fail-closed: an unregistered pair is an
// error, never a silently empty message.
package template

import (
	"fmt"

	"booking-notifications/internal/common/errors"
	"booking-notifications/internal/notification/render"
)

// Template channels. Email fans out into an HTML and a plain-text body; SMS
// has a single short body and no subject.
const (
	ChannelEmailHTML = "email-html"
	ChannelEmailText = "email-text"
	ChannelSMS       = "sms"
)

var knownChannels = map[string]bool{
	ChannelEmailHTML: true,
	ChannelEmailText: true,
	ChannelSMS:       true,
}

// Template is an immutable registered template. RequiredVariables is
// extracted from the body and subject at registration; loop-local variables
// are excluded, and variables only referenced inside a conditional still
// appear here because the extraction is static.
type Template struct {
	ID                string
	EventType         string
	Channel           string
	Subject           string
	Body              string
	RequiredVariables []string

	subjectProg *render.Program
	bodyProg    *render.Program
}

// New compiles a template and rejects it with TEMPLATE_INVALID when the body
// or subject uses anything outside the supported grammar.
func New(id, eventType, channel, subject, body string) (*Template, error) {
	if id == "" || eventType == "" {
		return nil, errors.NewTemplateInvalidError(id, "id and event_type are required")
	}
	if !knownChannels[channel] {
		return nil, errors.NewTemplateInvalidError(id, fmt.Sprintf("unknown channel %q", channel))
	}
	if channel == ChannelSMS && subject != "" {
		return nil, errors.NewTemplateInvalidError(id, "sms templates have no subject")
	}
	if body == "" {
		return nil, errors.NewTemplateInvalidError(id, "body is required")
	}

	bodyProg, err := render.Parse(body)
	if err != nil {
		return nil, errors.NewTemplateInvalidError(id, fmt.Sprintf("body: %s", err))
	}
	var subjectProg *render.Program
	if subject != "" {
		subjectProg, err = render.Parse(subject)
		if err != nil {
			return nil, errors.NewTemplateInvalidError(id, fmt.Sprintf("subject: %s", err))
		}
	}

	required := bodyProg.Vars()
	if subjectProg != nil {
		required = mergeSorted(required, subjectProg.Vars())
	}

	return &Template{
		ID:                id,
		EventType:         eventType,
		Channel:           channel,
		Subject:           subject,
		Body:              body,
		RequiredVariables: required,
		subjectProg:       subjectProg,
		bodyProg:          bodyProg,
	}, nil
}

// EscapeMode returns the output escaping for this template's channel. Only
// HTML email bodies are escaped; escaping plain text or SMS would corrupt
// legitimate characters in recipient-facing copy.
func (t *Template) EscapeMode() render.EscapeMode {
	if t.Channel == ChannelEmailHTML {
		return render.EscapeHTML
	}
	return render.EscapeNone
}

// Render evaluates subject and body against vars. The subject always renders
// unescaped since it is never interpreted as markup.
func (t *Template) Render(vars map[string]interface{}) (subject, body string, err error) {
	if t.subjectProg != nil {
		subject, err = t.subjectProg.Render(vars, render.EscapeNone)
		if err != nil {
			return "", "", err
		}
	}
	body, err = t.bodyProg.Render(vars, t.EscapeMode())
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func mergeSorted(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, lists := range [][]string{a, b} {
		for _, v := range lists {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	// Both inputs are sorted; re-sort the union.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
