package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arborhq/arbor/pkg/model"
)

// TokenPrefix identifies arbor tokens
const TokenPrefix = "arbor_"

var (
	// ErrTokenMissing means no token was presented.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenInvalid means the token is malformed or its signature does
	// not verify.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired means the token verified but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Identity is the verified caller of an API request.
type Identity struct {
	UserID model.UserID
}

// TokenService signs and verifies API bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service. The secret must be shared by
// every instance that verifies tokens.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token for a user.
// Format: arbor_<base64url(userID:expiryUnix)>.<base64url(hmac-sha256)>
func (s *TokenService) Issue(userID model.UserID) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}

	expiry := time.Now().Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s:%d", userID, expiry)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))

	return TokenPrefix + encoded + "." + s.sign(encoded), nil
}

// Verify checks a token's signature and expiry and returns the caller
// identity. Returns ErrTokenMissing, ErrTokenInvalid, or ErrTokenExpired.
func (s *TokenService) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrTokenInvalid
	}

	rest := strings.TrimPrefix(token, TokenPrefix)
	encoded, signature, ok := strings.Cut(rest, ".")
	if !ok || encoded == "" || signature == "" {
		return nil, ErrTokenInvalid
	}

	if !hmac.Equal([]byte(s.sign(encoded)), []byte(signature)) {
		return nil, ErrTokenInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	userID, expiryStr, ok := strings.Cut(string(payload), ":")
	if !ok || userID == "" {
		return nil, ErrTokenInvalid
	}
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if time.Now().Unix() >= expiry {
		return nil, ErrTokenExpired
	}

	return &Identity{UserID: model.UserID(userID)}, nil
}

// FromAuthorizationHeader extracts the bearer token from an
// Authorization header value. Returns "" when the header is absent or
// not a bearer scheme.
func FromAuthorizationHeader(header string) string {
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, scheme))
}

func (s *TokenService) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
