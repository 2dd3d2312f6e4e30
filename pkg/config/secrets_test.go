package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadEncryptedCredentials(t *testing.T) {
	dir := t.TempDir()
	creds := map[Provider]string{
		ProviderAnthropic: "sk-ant-test",
		ProviderOpenAI:    "sk-oai-test",
	}
	require.NoError(t, SaveEncryptedCredentials(dir, "correct-passphrase", creds))

	credentialsMu.Lock()
	credentials = map[Provider]string{}
	credentialsMu.Unlock()

	require.NoError(t, LoadEncryptedCredentials(dir, "correct-passphrase"))

	v, err := Credential(ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", v)

	v, err = Credential(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-oai-test", v)
}

func TestLoadEncryptedCredentialsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveEncryptedCredentials(dir, "right", map[Provider]string{
		ProviderAnthropic: "secret",
	}))

	err := LoadEncryptedCredentials(dir, "wrong")
	assert.Error(t, err)
}

func TestLoadEncryptedCredentialsMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadEncryptedCredentials(dir, "whatever"))
}
