package authorize

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/selfauth/selfauth/internal/store"
)

const appKeyBytes = 32

var schemePrefix = regexp.MustCompile(`^https?://`)

// NormalizeUserURL strips the scheme and surrounding slashes so that
// "https://alice.example/" and "alice.example" digest the same way.
func NormalizeUserURL(userURL string) string {
	return strings.Trim(schemePrefix.ReplaceAllString(userURL, ""), "/")
}

// PasswordDigest is the hex HMAC-SHA256 of the normalized user URL and the
// password, keyed by the deployment's app key.
func PasswordDigest(userURL, password, appKey string) (string, error) {
	sig, err := jwt.SigningMethodHS256.Sign(NormalizeUserURL(userURL)+password, []byte(appKey))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

func checkPassword(l *store.Login, password string) bool {
	digest, err := PasswordDigest(l.UserURL, password, l.AppKey)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digest), []byte(l.UserHash)) == 1
}

// NewLogin generates a fresh app key and returns the login row for userURL
// at the authorization endpoint appURL.
func NewLogin(appURL, userURL, password string) (*store.Login, error) {
	key := make([]byte, appKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	l := &store.Login{AppURL: appURL, UserURL: userURL, AppKey: hex.EncodeToString(key)}
	digest, err := PasswordDigest(userURL, password, l.AppKey)
	if err != nil {
		return nil, err
	}
	l.UserHash = digest
	return l, nil
}
