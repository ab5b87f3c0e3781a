// Package auth issues and verifies signed launch tokens. A token binds a
// registration ID to an expiry so the player frame can call the runtime
// endpoints without cookies or an API key.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
)

// DefaultTTL is how long a launch token stays valid when the caller does
// not specify a lifetime.
const DefaultTTL = 2 * time.Hour

// Issuer mints and verifies HMAC-SHA256 launch tokens
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer creates a token issuer with the given signing secret. An empty
// secret gets replaced by a random ephemeral one, so tokens then survive
// only as long as the process.
func NewIssuer(secret []byte) *Issuer {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("generate token secret: %v", err))
		}
	}
	return &Issuer{secret: secret, now: time.Now}
}

// Issue mints a token for a registration, valid for ttl. A zero ttl uses
// DefaultTTL.
func (i *Issuer) Issue(registrationID string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expiry := i.now().Add(ttl).Unix()
	payload := registrationID + ":" + strconv.FormatInt(expiry, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + i.sign(payload)
}

// Verify checks a token's signature and expiry and returns the registration
// ID it was issued for.
func (i *Issuer) Verify(token string) (string, error) {
	encoded, sig, found := strings.Cut(token, ".")
	if !found {
		return "", domain.ErrTokenInvalid
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", domain.ErrTokenInvalid
	}
	payload := string(raw)

	if !hmac.Equal([]byte(sig), []byte(i.sign(payload))) {
		return "", domain.ErrTokenInvalid
	}

	registrationID, expiryStr, found := cutLast(payload, ':')
	if !found {
		return "", domain.ErrTokenInvalid
	}
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", domain.ErrTokenInvalid
	}
	if i.now().Unix() > expiry {
		return "", domain.ErrTokenExpired
	}

	return registrationID, nil
}

func (i *Issuer) sign(payload string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// cutLast splits s at the last occurrence of sep
func cutLast(s string, sep byte) (before, after string, found bool) {
	idx := strings.LastIndexByte(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}
