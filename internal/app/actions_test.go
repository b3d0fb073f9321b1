package app

import (
	"context"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/credential"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/keys"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/session"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/testutil"
	helpview "github.com/mrzeku2000XTTT/FluxKmail/internal/ui/help"
)

func newTrustModel(t *testing.T) (*Model, *session.Manager) {
	t.Helper()
	creds := credential.New(keyring.NewArrayKeyring(nil))
	mgr := session.NewManager(testutil.NewTestStore(t), creds, nil, session.Options{HashCost: 4})
	m := &Model{
		deps:     Deps{Sessions: mgr},
		helpView: helpview.New(keys.DefaultKeyMap(), 200, 60),
	}
	return m, mgr
}

func runTrust(t *testing.T, m *Model, line string) trustedMsg {
	t.Helper()
	cmd := m.executeCommand(line)
	require.NotNil(t, cmd)
	msg, ok := cmd().(trustedMsg)
	require.True(t, ok)
	m.afterTrust(msg)
	return msg
}

func TestTrustCommandAddsAddress(t *testing.T) {
	m, mgr := newTrustModel(t)
	_, err := mgr.RegisterAccount(context.Background(), "alice", "hunter22", "kaspa:qalice")
	require.NoError(t, err)
	m.helpView.SetIdentity("kaspa:qalice", "alice")

	msg := runTrust(t, m, "trust kaspa:qphone")
	require.NoError(t, msg.err)

	assert.Equal(t, []string{"kaspa:qphone"}, mgr.Session().Account.TrustedAddresses)
	assert.Contains(t, m.status, "Trusted")
	assert.Contains(t, m.helpView.View(), "kaspa:qphone")
}

func TestTrustCommandNeedsAccount(t *testing.T) {
	m, _ := newTrustModel(t)

	msg := runTrust(t, m, "trust kaspa:qphone")
	assert.ErrorIs(t, msg.err, session.ErrNoIdentity)
	assert.Contains(t, m.status, "Error")
}
