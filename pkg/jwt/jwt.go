package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JWT header constants required by RFC 7519.
const (
	HeaderType      = "JWT"
	HeaderAlgorithm = "HS256"
)

// Header represents the JWT header as defined in RFC 7515.
type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// StandardClaims represents the registered JWT claims defined in RFC 7519
// Section 4.1. Temporal claims use Unix timestamps.
type StandardClaims struct {
	ID        string `json:"jti,omitempty"` // JWT ID - unique per issued token
	Subject   string `json:"sub,omitempty"` // Subject - user identifier
	Issuer    string `json:"iss,omitempty"` // Issuer
	Audience  string `json:"aud,omitempty"` // Audience - distinguishes access from refresh tokens
	ExpiresAt int64  `json:"exp,omitempty"` // Expiration time
	NotBefore int64  `json:"nbf,omitempty"` // Not before
	IssuedAt  int64  `json:"iat,omitempty"` // Issued at
}

// Valid validates the temporal claims against current time.
// Zero values are treated as unset per RFC 7519 and are ignored.
func (c StandardClaims) Valid() error {
	now := time.Now().Unix()

	if c.ExpiresAt > 0 && now > c.ExpiresAt {
		return ErrExpiredToken
	}

	if c.NotBefore > 0 && now < c.NotBefore {
		return ErrInvalidToken
	}

	return nil
}

// Service signs and verifies tokens using HMAC-SHA256. It is stateless and
// does no I/O; the signing key lives in memory only.
type Service struct {
	signingKey []byte
}

// New creates a JWT service with the provided signing key.
// The key should be at least 32 bytes for HMAC-SHA256.
func New(signingKey []byte) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	return &Service{signingKey: signingKey}, nil
}

// NewFromString is a convenience wrapper around New for string keys.
func NewFromString(signingKey string) (*Service, error) {
	return New([]byte(signingKey))
}

// Generate creates a signed token with the given claims.
func (s *Service) Generate(claims any) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	headerJSON, err := json.Marshal(Header{Type: HeaderType, Algorithm: HeaderAlgorithm})
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	payload := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	return payload + "." + s.sign(payload), nil
}

// Parse verifies a token and unmarshals its claims into the provided
// structure. Signature and algorithm checks run first; temporal claims
// are validated last so an expired-but-authentic token is reported as
// ErrExpiredToken rather than a generic failure.
func (s *Service) Parse(tokenString string, claims any) error {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}

	// Constant-time comparison prevents signature timing attacks.
	payload := parts[0] + "." + parts[1]
	expected := s.sign(payload)
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return ErrInvalidToken
	}

	// Reject unexpected algorithms to prevent algorithm confusion attacks.
	if header.Algorithm != HeaderAlgorithm {
		return ErrUnexpectedSigningMethod
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrInvalidToken
	}

	if err := json.Unmarshal(claimsJSON, claims); err != nil {
		return ErrInvalidToken
	}

	if validator, ok := claims.(interface{ Valid() error }); ok {
		if err := validator.Valid(); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) sign(payload string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
