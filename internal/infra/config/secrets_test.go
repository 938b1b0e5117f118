package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "AIza-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	a, err := EncryptValue("same", "pass")
	require.NoError(t, err)
	b, err := EncryptValue("same", "pass")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "salt and nonce are random")
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecryptValue(encrypted, "wrong-pass")
	if err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestDecryptValueInvalidInputs(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no separator", "deadbeef"},
		{"bad salt hex", "zz:aabb"},
		{"bad ciphertext hex", "aabb:zz"},
		{"too short", "aabbccddee112233aabbccddee112233:aabb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptValue(tt.input, "passphrase")
			assert.Error(t, err)
		})
	}
}

func TestDecryptSecrets(t *testing.T) {
	passphrase := "config-pass"
	encAPIKey, err := EncryptValue("real-key", passphrase)
	require.NoError(t, err)
	encToken, err := EncryptValue("gw-token", passphrase)
	require.NoError(t, err)

	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "gemini", APIKey: "enc:" + encAPIKey},
		{Name: "openai", APIKey: "sk-plain-key"},
	}
	cfg.Gateway.Auth.Tokens = []TokenConfig{{Name: "ui", Token: "enc:" + encToken}}

	require.NoError(t, decryptSecrets(cfg, passphrase))
	assert.Equal(t, "real-key", cfg.LLM.Providers[0].APIKey)
	assert.Equal(t, "sk-plain-key", cfg.LLM.Providers[1].APIKey, "plain values are left alone")
	assert.Equal(t, "gw-token", cfg.Gateway.Auth.Tokens[0].Token)
}

func TestDecryptSecretsInvalidCiphertext(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{{Name: "gemini", APIKey: "enc:bad"}}
	err := decryptSecrets(cfg, "pass")
	assert.ErrorContains(t, err, "provider gemini api_key")
}
