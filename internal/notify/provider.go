package notify

import (
	"fmt"
	"strings"

	"github.com/tbourn/contact-backend/internal/config"
)

// Security selects how an SMTP session is protected.
type Security int

const (
	// SecurityStartTLS upgrades a plaintext connection with STARTTLS. The
	// upgrade is mandatory.
	SecurityStartTLS Security = iota
	// SecurityImplicitTLS speaks TLS from the first byte (SMTPS).
	SecurityImplicitTLS
	// SecurityNone sends in the clear. Only reachable programmatically, for
	// local relays.
	SecurityNone
)

func (s Security) String() string {
	switch s {
	case SecurityImplicitTLS:
		return "tls"
	case SecurityNone:
		return "none"
	default:
		return "starttls"
	}
}

// SMTPSettings is the resolved connection profile for an SMTP provider.
type SMTPSettings struct {
	Host     string
	Port     int
	Security Security
	User     string
	Pass     string
}

type smtpDefaults struct {
	host string
	port int
	user string
}

// smtpProviders is the canonical SMTP table. All providers use submission
// port 587 with STARTTLS.
var smtpProviders = map[string]smtpDefaults{
	config.ProviderGmail:    {host: "smtp.gmail.com", port: 587},
	config.ProviderSendGrid: {host: "smtp.sendgrid.net", port: 587, user: "apikey"},
	config.ProviderMailgun:  {host: "smtp.mailgun.org", port: 587},
}

// implicitTLSPort is used when SMTP_SECURE=true and no port is configured.
const implicitTLSPort = 465

// ResolveSMTP merges cfg overrides onto the provider table.
func ResolveSMTP(cfg config.MailConfig) (SMTPSettings, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = config.ProviderGmail
	}
	def, ok := smtpProviders[name]
	if !ok {
		return SMTPSettings{}, fmt.Errorf("provider %q has no SMTP profile", name)
	}

	s := SMTPSettings{
		Host:     def.host,
		Port:     def.port,
		Security: SecurityStartTLS,
		User:     def.user,
		Pass:     cfg.SMTPPass,
	}
	if cfg.SMTPSecure != nil && *cfg.SMTPSecure {
		s.Security = SecurityImplicitTLS
		s.Port = implicitTLSPort
	}
	if h := strings.TrimSpace(cfg.SMTPHost); h != "" {
		s.Host = h
	}
	if cfg.SMTPPort > 0 {
		s.Port = cfg.SMTPPort
	}
	if u := strings.TrimSpace(cfg.SMTPUser); u != "" {
		s.User = u
	}
	return s, nil
}
