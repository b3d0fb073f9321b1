package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

func TestFromConfig(t *testing.T) {
	r, err := FromConfig(model.RelayConfig{Kind: model.RelayNone}, Secrets{})
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = FromConfig(model.RelayConfig{Kind: model.RelayHTTP, URL: "https://relay.example/send"}, Secrets{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPRelay{}, r)

	r, err = FromConfig(model.RelayConfig{
		Kind:        model.RelaySMTP,
		SMTPHost:    "smtp.example.com",
		FromAddress: "relay@example.com",
	}, Secrets{SMTPPassword: "pw"})
	require.NoError(t, err)
	smtpRelay, ok := r.(*SMTPRelay)
	require.True(t, ok)
	assert.Equal(t, 587, smtpRelay.cfg.Port)
	assert.Equal(t, "pw", smtpRelay.cfg.Password)
	assert.Equal(t, SecurityStartTLS, smtpRelay.cfg.Security)
}

func TestFromConfigErrors(t *testing.T) {
	_, err := FromConfig(model.RelayConfig{Kind: model.RelayHTTP}, Secrets{})
	assert.Error(t, err)

	_, err = FromConfig(model.RelayConfig{Kind: model.RelaySMTP, SMTPHost: "smtp.example.com"}, Secrets{})
	assert.Error(t, err)

	_, err = FromConfig(model.RelayConfig{Kind: "carrier-pigeon"}, Secrets{})
	assert.ErrorContains(t, err, "unknown relay kind")
}
