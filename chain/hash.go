package chain

import (
	"encoding/base64"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// HashCommand returns the Pact request key of a command: unpadded base64url
// of its blake2b-256 digest.
func HashCommand(cmd string) string {
	sum := blake2b.Sum256([]byte(cmd))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// PactString renders s as a Pact string literal.
func PactString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
