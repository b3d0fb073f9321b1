package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringRoundTrip(t *testing.T) {
	k := New(keyring.NewArrayKeyring(nil))

	_, err := k.Get(KeyWallet)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, k.Set(KeyWallet, "kaspa:qalice"))
	got, err := k.Get(KeyWallet)
	require.NoError(t, err)
	assert.Equal(t, "kaspa:qalice", got)

	require.NoError(t, k.Delete(KeyWallet))
	_, err = k.Get(KeyWallet)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	k := New(keyring.NewArrayKeyring(nil))
	assert.NoError(t, k.Delete("never-set"))
}

func TestLookupPrefersEnvironment(t *testing.T) {
	k := New(keyring.NewArrayKeyring(nil))
	require.NoError(t, k.Set(KeyRelayAPI, "from-keyring"))

	assert.Equal(t, "from-keyring", Lookup(k, "KMAIL_TEST_RELAY_KEY", KeyRelayAPI))

	t.Setenv("KMAIL_TEST_RELAY_KEY", "from-env")
	assert.Equal(t, "from-env", Lookup(k, "KMAIL_TEST_RELAY_KEY", KeyRelayAPI))

	assert.Equal(t, "", Lookup(nil, "KMAIL_TEST_UNSET", KeyRelayAPI))
}
