package auth

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// Token error classification for logging and monitoring.
type tokenErrorType int

const (
	tokenErrUnknown   tokenErrorType = iota
	tokenErrExpired                  // timestamp expired - normal
	tokenErrTampered                 // MAC invalid - potential attack
	tokenErrCorrupted                // decode failed - corruption or key rotation
	tokenErrBackend                  // encoder misuse
)

const defaultTokenName = "stratawiki-session"

// TokenCodec signs session secrets into opaque bearer tokens and verifies
// them. A token carries an HMAC and a timestamp; tokens older than the TTL
// fail to decode without touching the database.
type TokenCodec struct {
	sc   *securecookie.SecureCookie
	name string
	ttl  time.Duration
}

type tokenClaims struct {
	Secret string `json:"s"`
}

// TokenConfigError is returned when token signing configuration is invalid.
type TokenConfigError struct {
	Message string
}

func (e *TokenConfigError) Error() string {
	return e.Message
}

// NewTokenCodec creates a codec signing with key.
//
// Parameters:
//   - key: HMAC signing key (must be ≥32 chars in production)
//   - ttl: token lifetime, also the session lifetime
//   - production: if true, weak or placeholder keys are rejected
//   - logger: zap logger for key warnings
func NewTokenCodec(key string, ttl time.Duration, production bool, logger *zap.Logger) (*TokenCodec, error) {
	if key == "" {
		return nil, &TokenConfigError{Message: "session key is empty; provide ≥32 random chars"}
	}
	if ttl <= 0 {
		return nil, &TokenConfigError{Message: "session ttl must be positive"}
	}

	isWeak := len(key) < 32 || isDefaultKey(key)
	if production {
		if isWeak {
			return nil, &TokenConfigError{
				Message: "session key is too weak for production; provide ≥32 random chars (not the default dev key)",
			}
		}
	} else if isWeak {
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(key)),
			zap.Bool("is_default", isDefaultKey(key)))
	}

	sc := securecookie.New([]byte(key), nil).
		MaxAge(int(ttl.Seconds())).
		SetSerializer(securecookie.JSONEncoder{})

	return &TokenCodec{sc: sc, name: defaultTokenName, ttl: ttl}, nil
}

// TTL returns the token lifetime.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Encode wraps secret into a signed token.
func (c *TokenCodec) Encode(secret string) (string, error) {
	return c.sc.Encode(c.name, tokenClaims{Secret: secret})
}

// Decode verifies token and returns the secret inside it.
func (c *TokenCodec) Decode(token string) (string, error) {
	var claims tokenClaims
	if err := c.sc.Decode(c.name, token, &claims); err != nil {
		return "", err
	}
	if claims.Secret == "" {
		return "", securecookie.ErrMacInvalid
	}
	return claims.Secret, nil
}

// NewSecret generates a random URL-safe session secret.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// isDefaultKey checks if the key appears to be a default/placeholder value.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	patterns := []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// classifyTokenError categorizes a decode error for logging.
func classifyTokenError(err error) (tokenErrorType, string) {
	if err == nil {
		return tokenErrUnknown, "none"
	}

	errStr := strings.ToLower(err.Error())

	if scErr, ok := err.(securecookie.Error); ok {
		if !scErr.IsDecode() {
			return tokenErrBackend, "backend"
		}

		switch {
		case strings.Contains(errStr, "expired timestamp"):
			return tokenErrExpired, "expired"
		case strings.Contains(errStr, "mac") || strings.Contains(errStr, "hash"):
			return tokenErrTampered, "mac_invalid"
		case strings.Contains(errStr, "base64") || strings.Contains(errStr, "decode"):
			return tokenErrCorrupted, "decode_failed"
		default:
			return tokenErrCorrupted, "decode_other"
		}
	}

	return tokenErrBackend, "unknown"
}
