package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields the development server puts in a player token.
type Claims struct {
	PlayerID string
	Kind     Kind
}

// Signer issues and verifies player tokens with an ed25519 key pair.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TTL is how long issued tokens stay valid (0 => never expire).
	TTL time.Duration
}

// NewSigner generates a fresh key pair.
func NewSigner(ttl time.Duration) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Signer{privateKey: priv, publicKey: pub, TTL: ttl}, nil
}

// Issue creates a signed token with "id" = "sub" = playerID.
func (s *Signer) Issue(playerID string, kind Kind) (string, error) {
	claims := jwt.MapClaims{
		"id":   playerID,
		"sub":  playerID,
		"type": string(kind),
		"iat":  time.Now().Unix(),
	}
	if s.TTL > 0 {
		claims["exp"] = time.Now().Add(s.TTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// Verify checks the signature and expiry and returns the token's claims.
func (s *Signer) Verify(tokenString string) (Claims, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}

	mc, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("invalid jwt claims")
	}
	playerID, ok := mc["sub"].(string)
	if !ok || playerID == "" {
		return Claims{}, fmt.Errorf("missing sub in jwt")
	}
	kind, _ := mc["type"].(string)
	if !Kind(kind).Valid() {
		kind = string(KindAnonymous)
	}
	return Claims{PlayerID: playerID, Kind: Kind(kind)}, nil
}
