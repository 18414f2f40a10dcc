// Package token mints, verifies, revokes and tracks opaque bearer tokens.
//
// A token travels as hex(id) "_" hex(secret). The id is the storage key and
// carries no authority on its own; the 72-byte secret is only ever stored as a
// bcrypt hash.
package token

import (
	"encoding/hex"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrMalformedToken means the string is not two lowercase hex halves joined by "_".
	ErrMalformedToken = errors.New("token: malformed token")
	// ErrStorageExhausted means every generated id collided with an existing row.
	ErrStorageExhausted = errors.New("token: no unique token id after retries")
)

const (
	idBytes     = 32
	secretBytes = 72

	// ResourceServerPassword is the fixed Basic password resource servers
	// present when introspecting; the username is the token's client_id.
	ResourceServerPassword = "_"
)

var tokenPattern = regexp.MustCompile(`^[0-9a-f]+_[0-9a-f]+$`)

// Token is the structured form of a bearer token string.
type Token struct {
	ID     string
	Secret []byte
}

// Parse splits a bearer token string into its id and secret.
func Parse(s string) (Token, error) {
	if !tokenPattern.MatchString(s) {
		return Token{}, ErrMalformedToken
	}
	id, secretHex, _ := strings.Cut(s, "_")
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return Token{}, ErrMalformedToken
	}
	return Token{ID: id, Secret: secret}, nil
}

func (t Token) String() string {
	return t.ID + "_" + hex.EncodeToString(t.Secret)
}

// AuthenticateResourceServer checks introspection Basic credentials against
// the token's client_id. Client ids are URLs and usually contain a colon, so
// the credentials are compared joined, in raw and percent-encoded form.
func AuthenticateResourceServer(clientID, user, pass string) bool {
	given := user + ":" + pass
	return given == clientID+":"+ResourceServerPassword ||
		given == url.QueryEscape(clientID)+":"+ResourceServerPassword
}
