package modegate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenIssuer mints and verifies the anti-forgery tokens required for a
// PAPER to LIVE switch. A token is bound to one user and expires, so a
// replayed or cross-user token never verifies.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) sign(payload string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Issue returns a token valid for the configured TTL.
func (t *TokenIssuer) Issue(userID string) string {
	payload := userID + "." + strconv.FormatInt(t.now().Add(t.ttl).Unix(), 10)
	return payload + "." + t.sign(payload)
}

// Verify checks the token's signature, binding, and expiry.
func (t *TokenIssuer) Verify(userID, token string) error {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 {
		return fmt.Errorf("malformed token")
	}
	payload, sig := token[:idx], token[idx+1:]
	if !hmac.Equal([]byte(t.sign(payload)), []byte(sig)) {
		return fmt.Errorf("bad signature")
	}
	parts := strings.Split(payload, ".")
	if len(parts) != 2 {
		return fmt.Errorf("malformed token")
	}
	if parts[0] != userID {
		return fmt.Errorf("token bound to another session")
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed expiry")
	}
	if t.now().Unix() > exp {
		return fmt.Errorf("token expired")
	}
	return nil
}
