package relay

import (
	"fmt"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// Secrets carries the credentials a relay needs; they never live in the
// config file.
type Secrets struct {
	APIKey       string
	SMTPPassword string
}

// FromConfig builds the relay cfg selects. Kind "none" yields a nil Relay,
// which limits sending to wallet recipients.
func FromConfig(cfg model.RelayConfig, sec Secrets) (Relay, error) {
	switch cfg.Kind {
	case model.RelayNone, "":
		return nil, nil
	case model.RelayHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("relay kind %q needs url", cfg.Kind)
		}
		return NewHTTPRelay(cfg.URL, sec.APIKey), nil
	case model.RelaySMTP:
		if cfg.SMTPHost == "" || cfg.FromAddress == "" {
			return nil, fmt.Errorf("relay kind %q needs smtp_host and from_address", cfg.Kind)
		}
		return NewSMTPRelay(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: sec.SMTPPassword,
			From:     cfg.FromAddress,
			Security: cfg.SMTPSecurity,
		}), nil
	}
	return nil, fmt.Errorf("unknown relay kind %q", cfg.Kind)
}
