// Package notify delivers contact-submission notifications by email.
//
// A Sender performs one delivery (SMTP or the Resend HTTP API). The
// Dispatcher runs senders on a bounded worker pool so HTTP handlers never
// wait on a mail server.
package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/tbourn/contact-backend/internal/domain"
)

const notProvided = "Not provided"

// Payload is a fully rendered notification message.
type Payload struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

type payloadView struct {
	FullName         string
	Email            string
	Phone            string
	PreferredReading string
	Referral         string
	Message          string
}

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<h2>New Contact Form Submission</h2>
<p><strong>Name:</strong> {{.FullName}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Phone:</strong> {{.Phone}}</p>
<p><strong>Preferred Reading:</strong> {{.PreferredReading}}</p>
<p><strong>Referral:</strong> {{.Referral}}</p>
<p><strong>Message:</strong></p>
<p>{{.Message}}</p>
`))

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`New Contact Form Submission

Name: {{.FullName}}
Email: {{.Email}}
Phone: {{.Phone}}
Preferred Reading: {{.PreferredReading}}
Referral: {{.Referral}}
Message: {{.Message}}`))

// BuildPayload renders the notification for s. The submitter's address is
// used as Reply-To so the recipient can answer directly.
func BuildPayload(s *domain.Submission, from, to string) (Payload, error) {
	v := payloadView{
		FullName:         s.FullName(),
		Email:            s.Email,
		Phone:            orNotProvided(s.Phone),
		PreferredReading: s.PreferredReading,
		Referral:         orNotProvided(s.Referral),
		Message:          s.Message,
	}

	var h, t bytes.Buffer
	if err := htmlBody.Execute(&h, v); err != nil {
		return Payload{}, fmt.Errorf("render html body: %w", err)
	}
	if err := textBody.Execute(&t, v); err != nil {
		return Payload{}, fmt.Errorf("render text body: %w", err)
	}

	return Payload{
		From:    from,
		To:      to,
		ReplyTo: s.Email,
		Subject: "New Contact Form Submission from " + v.FullName,
		HTML:    h.String(),
		Text:    strings.TrimSpace(t.String()),
	}, nil
}

func orNotProvided(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return notProvided
	}
	return *s
}
