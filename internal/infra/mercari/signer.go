package mercari

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidKey is returned when a signing key is missing or not a P-256 key
var ErrInvalidKey = errors.New("mercari: invalid signing key")

// SigningKey is the DPoP keypair plus the session id it is bound to
type SigningKey struct {
	PrivateKey *ecdsa.PrivateKey
	SessionID  string
}

// GenerateSigningKey creates a fresh P-256 keypair and session id
func GenerateSigningKey() (*SigningKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &SigningKey{
		PrivateKey: priv,
		SessionID:  uuid.NewString(),
	}, nil
}

// Sign produces a DPoP proof for one request.
//
// The token header carries the public key as a JWK so the server can verify
// the proof; the claims bind method, URL (without query), session and time.
func Sign(method, url string, key *SigningKey, issuedAt time.Time) (string, error) {
	if key == nil || key.PrivateKey == nil || key.PrivateKey.Curve != elliptic.P256() {
		return "", ErrInvalidKey
	}

	jwk, err := publicJWK(&key.PrivateKey.PublicKey)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"htm": method,
		"htu": url,
		"jti": key.SessionID,
		"iat": issuedAt.Unix(),
	})
	token.Header["typ"] = "dpop+jwt"
	token.Header["jwk"] = jwk

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return signed, nil
}

// publicJWK encodes an EC public key as a JWK object
func publicJWK(pub *ecdsa.PublicKey) (map[string]any, error) {
	ecdhPub, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	// Uncompressed point: 0x04 || X || Y
	point := ecdhPub.Bytes()
	if len(point) != 65 {
		return nil, ErrInvalidKey
	}

	return map[string]any{
		"kty": "EC",
		"crv": "P-256",
		"x":   base64.RawURLEncoding.EncodeToString(point[1:33]),
		"y":   base64.RawURLEncoding.EncodeToString(point[33:]),
	}, nil
}
