package walletconnect

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	jwt "github.com/gbrlsnchs/jwt/v3"
	"github.com/stretchr/testify/require"
)

func TestKeyAgreement(t *testing.T) {
	dapp, err := generateKeyPair()
	require.NoError(t, err)
	wallet, err := generateKeyPair()
	require.NoError(t, err)

	k1, err := deriveSymKey(dapp.private, wallet.public)
	require.NoError(t, err)
	k2, err := deriveSymKey(wallet.private, dapp.public)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Equal(t, topicFromKey(k1), topicFromKey(k2))
	require.Len(t, topicFromKey(k1), 64)

	envelope, err := encrypt(k1, []byte(`{"id":1}`))
	require.NoError(t, err)
	plain, err := decrypt(k2, envelope)
	require.NoError(t, err)
	require.Equal(t, `{"id":1}`, string(plain))

	other, err := generateSymKey()
	require.NoError(t, err)
	_, err = decrypt(other, envelope)
	require.Error(t, err)

	_, err = decrypt(k1, "AQ==")
	require.EqualError(t, err, "envelope too short")
	_, err = decrypt(k1, "not base64!")
	require.Error(t, err)
}

func TestPairingURI(t *testing.T) {
	key, err := generateSymKey()
	require.NoError(t, err)
	topic := topicFromKey(key)

	uri := pairingURI(topic, key)
	require.True(t, strings.HasPrefix(uri, "wc:"+topic+"@2?"))

	gotTopic, gotKey, err := parsePairingURI(uri)
	require.NoError(t, err)
	require.Equal(t, topic, gotTopic)
	require.Equal(t, key, gotKey)

	for _, bad := range []string{
		"https://example.com",
		"wc:topic",
		"wc:topic@2?relay-protocol=irn",
		"wc:topic@2?symKey=zz",
	} {
		_, _, err := parsePairingURI(bad)
		require.Error(t, err, bad)
	}
}

func TestRelayAuthToken(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	now := time.Now()
	token, err := signRelayJWT(priv, DefaultRelayURL, now)
	require.NoError(t, err)

	var payload jwt.Payload
	_, err = jwt.Verify([]byte(token), edDSA{jwt.NewEd25519(jwt.Ed25519PublicKey(pub))}, &payload)
	require.NoError(t, err)
	require.Equal(t, jwt.Audience{DefaultRelayURL}, payload.Audience)
	require.Len(t, payload.Subject, 32)
	require.True(t, payload.ExpirationTime.After(now))

	issuer, err := publicKeyFromDID(payload.Issuer)
	require.NoError(t, err)
	require.Equal(t, pub, issuer)

	other, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, err = jwt.Verify([]byte(token), edDSA{jwt.NewEd25519(jwt.Ed25519PublicKey(other))}, &payload)
	require.Error(t, err)

	_, err = publicKeyFromDID("did:web:example.com")
	require.Error(t, err)
}

func TestRelayURL(t *testing.T) {
	u, err := relayURL("wss://relay.example.com", "project", "token")
	require.NoError(t, err)
	require.Equal(t, "wss://relay.example.com?auth=token&projectId=project", u)

	u, err = relayURL("ws://127.0.0.1:1234/", "", "")
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:1234/", u)
}
