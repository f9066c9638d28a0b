package walletconnect

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/url"
	"strings"
	"time"

	jwt "github.com/gbrlsnchs/jwt/v3"
	"github.com/google/uuid"
	"github.com/multiformats/go-multibase"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	envelopeType0 byte = 0

	relayAuthTTL = 24 * time.Hour
)

// ed25519 public key multicodec, varint encoded
var ed25519PubCodec = []byte{0xed, 0x01}

type keyPair struct {
	private []byte
	public  []byte
}

func generateKeyPair() (*keyPair, error) {
	private := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(private); err != nil {
		return nil, err
	}
	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return &keyPair{private: private, public: public}, nil
}

func generateSymKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// deriveSymKey runs HKDF-SHA256 over the x25519 shared secret.
func deriveSymKey(private, peerPublic []byte) ([]byte, error) {
	shared, err := curve25519.X25519(private, peerPublic)
	if err != nil {
		return nil, errors.Wrap(err, "x25519")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, nil), key); err != nil {
		return nil, err
	}
	return key, nil
}

// topicFromKey is the hex sha256 of a symmetric key.
func topicFromKey(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// encrypt seals plaintext into a type 0 envelope: type byte, nonce, sealed box.
func encrypt(key, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	buf := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	buf = append(buf, envelopeType0)
	buf = append(buf, nonce...)
	buf = aead.Seal(buf, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(buf), nil
}

func decrypt(key []byte, message string) ([]byte, error) {
	buf, err := base64.StdEncoding.DecodeString(message)
	if err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if len(buf) < 1+chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return nil, errors.New("envelope too short")
	}
	if buf[0] != envelopeType0 {
		return nil, errors.Errorf("unsupported envelope type %d", buf[0])
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := buf[1 : 1+chacha20poly1305.NonceSize]
	plaintext, err := aead.Open(nil, nonce, buf[1+chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "open envelope")
	}
	return plaintext, nil
}

// payloadID follows the millisecond timestamp plus three random digits
// scheme wallets expect.
func payloadID() int64 {
	return time.Now().UnixMilli()*1000 + int64(uuid.New().ID()%1000)
}

// edDSA renames the ed25519 algorithm to the JOSE name the relay checks.
type edDSA struct {
	*jwt.Ed25519
}

func (edDSA) Name() string {
	return "EdDSA"
}

func didKey(pub ed25519.PublicKey) (string, error) {
	encoded, err := multibase.Encode(multibase.Base58BTC, append(append([]byte(nil), ed25519PubCodec...), pub...))
	if err != nil {
		return "", err
	}
	return "did:key:" + encoded, nil
}

func publicKeyFromDID(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, "did:key:") {
		return nil, errors.Errorf("not a did:key %q", did)
	}
	_, data, err := multibase.Decode(strings.TrimPrefix(did, "did:key:"))
	if err != nil {
		return nil, err
	}
	if len(data) != len(ed25519PubCodec)+ed25519.PublicKeySize || data[0] != ed25519PubCodec[0] || data[1] != ed25519PubCodec[1] {
		return nil, errors.New("did:key is not an ed25519 key")
	}
	return ed25519.PublicKey(data[len(ed25519PubCodec):]), nil
}

// signRelayJWT issues the token the relay authenticates clients with.
func signRelayJWT(priv ed25519.PrivateKey, audience string, now time.Time) (string, error) {
	iss, err := didKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return "", err
	}
	payload := jwt.Payload{
		Issuer:         iss,
		Subject:        strings.ReplaceAll(uuid.NewString(), "-", ""),
		Audience:       jwt.Audience{audience},
		IssuedAt:       jwt.NumericDate(now),
		ExpirationTime: jwt.NumericDate(now.Add(relayAuthTTL)),
	}
	token, err := jwt.Sign(payload, edDSA{jwt.NewEd25519(jwt.Ed25519PrivateKey(priv))})
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// relayURL appends the project id and auth token to the relay endpoint.
func relayURL(base, projectID, auth string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if projectID != "" {
		q.Set("projectId", projectID)
	}
	if auth != "" {
		q.Set("auth", auth)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// pairingURI is the wc: uri a wallet scans to join the pairing topic.
func pairingURI(topic string, symKey []byte) string {
	return "wc:" + topic + "@2?relay-protocol=irn&symKey=" + hex.EncodeToString(symKey)
}

// parsePairingURI returns the topic and symmetric key of a wc: uri.
func parsePairingURI(uri string) (string, []byte, error) {
	rest := strings.TrimPrefix(uri, "wc:")
	if rest == uri {
		return "", nil, errors.Errorf("not a walletconnect uri %q", uri)
	}
	at := strings.Index(rest, "@")
	q := strings.Index(rest, "?")
	if at <= 0 || q < at {
		return "", nil, errors.Errorf("malformed walletconnect uri %q", uri)
	}
	values, err := url.ParseQuery(rest[q+1:])
	if err != nil {
		return "", nil, err
	}
	key, err := hex.DecodeString(values.Get("symKey"))
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return "", nil, errors.Errorf("malformed symKey in %q", uri)
	}
	return rest[:at], key, nil
}
