package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTPSender delivers payloads over an authenticated SMTP session.
type SMTPSender struct {
	Settings SMTPSettings

	// TLSConfig overrides the client TLS configuration. ServerName defaults
	// to Settings.Host.
	TLSConfig *tls.Config

	// LocalName is announced in EHLO. Empty keeps the go-smtp default.
	LocalName string
}

// NewSMTPSender returns a sender for the resolved settings.
func NewSMTPSender(s SMTPSettings) *SMTPSender {
	return &SMTPSender{Settings: s}
}

// Send dials, secures, authenticates and submits one message. The context
// deadline, when present, bounds the whole session.
func (s *SMTPSender) Send(ctx context.Context, p Payload) error {
	if strings.TrimSpace(p.To) == "" {
		return errors.New("smtp: empty recipient")
	}
	msg, err := buildMessage(p, time.Now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.Settings.Host, strconv.Itoa(s.Settings.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := s.newClient(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if s.LocalName != "" {
		if err := c.Hello(s.LocalName); err != nil {
			return fmt.Errorf("smtp: hello: %w", err)
		}
	}

	if s.Settings.User != "" {
		if !c.SupportsAuth(sasl.Plain) {
			return errors.New("smtp: server does not support AUTH PLAIN")
		}
		if err := c.Auth(sasl.NewPlainClient("", s.Settings.User, s.Settings.Pass)); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}

	if err := c.SendMail(envelopeAddress(p.From), []string{envelopeAddress(p.To)}, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return c.Quit()
}

func (s *SMTPSender) newClient(conn net.Conn) (*gosmtp.Client, error) {
	switch s.Settings.Security {
	case SecurityImplicitTLS:
		return gosmtp.NewClient(tls.Client(conn, s.tlsConfig())), nil
	case SecurityNone:
		return gosmtp.NewClient(conn), nil
	default:
		c, err := gosmtp.NewClientStartTLS(conn, s.tlsConfig())
		if err != nil {
			return nil, fmt.Errorf("smtp: starttls: %w", err)
		}
		return c, nil
	}
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	if s.TLSConfig != nil {
		cfg := s.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = s.Settings.Host
		}
		return cfg
	}
	return &tls.Config{ServerName: s.Settings.Host, MinVersion: tls.VersionTLS12}
}

// envelopeAddress extracts the bare address from "Name <addr>" forms.
func envelopeAddress(a string) string {
	a = strings.TrimSpace(a)
	if i := strings.LastIndex(a, "<"); i >= 0 {
		if j := strings.LastIndex(a, ">"); j > i {
			return a[i+1 : j]
		}
	}
	return a
}

// buildMessage renders p as a multipart/alternative RFC 5322 message with a
// quoted-printable text part followed by the HTML part.
func buildMessage(p Payload, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := []struct{ k, v string }{
		{"From", p.From},
		{"To", p.To},
		{"Reply-To", p.ReplyTo},
		{"Subject", mime.QEncoding.Encode("utf-8", p.Subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", "<" + uuid.NewString() + "@" + messageIDHost(p.From) + ">"},
		{"MIME-Version", "1.0"},
		{"Content-Type", `multipart/alternative; boundary="` + mw.Boundary() + `"`},
	}
	var head bytes.Buffer
	for _, kv := range h {
		if kv.v == "" {
			continue
		}
		if strings.ContainsAny(kv.v, "\r\n") {
			return nil, fmt.Errorf("smtp: header %s contains a line break", kv.k)
		}
		head.WriteString(kv.k + ": " + kv.v + "\r\n")
	}
	head.WriteString("\r\n")

	for _, part := range []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", p.Text},
		{"text/html; charset=utf-8", p.HTML},
	} {
		ph := textproto.MIMEHeader{}
		ph.Set("Content-Type", part.ctype)
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := mw.CreatePart(ph)
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return append(head.Bytes(), buf.Bytes()...), nil
}

func messageIDHost(from string) string {
	addr := envelopeAddress(from)
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
