package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbourn/contact-backend/internal/config"
)

// Sender performs one notification delivery.
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// NewSender picks the transport for cfg.Provider: the Resend HTTP API for
// "resend", SMTP with the provider profile otherwise.
func NewSender(cfg config.MailConfig) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderResend:
		if strings.TrimSpace(cfg.ResendAPIKey) == "" {
			return nil, fmt.Errorf("resend: missing API key (RESEND_API_KEY or SMTP_PASS)")
		}
		return NewResendSender(cfg.ResendAPIKey, cfg.ResendAPIURL), nil
	default:
		s, err := ResolveSMTP(cfg)
		if err != nil {
			return nil, err
		}
		return NewSMTPSender(s), nil
	}
}
