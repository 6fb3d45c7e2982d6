package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Kind is how a player token was obtained.
type Kind string

const (
	KindAnonymous Kind = "anonymous"
	KindGoogle    Kind = "google"
)

// Valid reports whether k is a known token kind.
func (k Kind) Valid() bool {
	return k == KindAnonymous || k == KindGoogle
}

// Token is an opaque bearer credential. It does not change for the lifetime
// of a session.
type Token struct {
	Kind  Kind   `json:"type"`
	Value string `json:"value"`
}

func (t Token) IsGoogle() bool    { return t.Kind == KindGoogle }
func (t Token) IsAnonymous() bool { return t.Kind == KindAnonymous }

var errNoPlayerID = errors.New("token carries no player id")

// PlayerID reads the player id out of the token's claims. The signature is
// not checked: the game server is the one that verifies tokens.
func (t Token) PlayerID() (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.Value, claims); err != nil {
		return "", fmt.Errorf("parse player token: %w", err)
	}
	for _, key := range []string{"id", "sub"} {
		if id, ok := claims[key].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", errNoPlayerID
}
