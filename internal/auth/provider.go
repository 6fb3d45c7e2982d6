package auth

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Authenticator issues player tokens.
type Authenticator interface {
	LoginAnonymous(ctx context.Context) (string, error)
	LoginGoogle(ctx context.Context, idToken string) (string, error)
}

// Provider hands out the player's token, logging in only when the session
// store has nothing usable.
type Provider struct {
	client Authenticator
	store  Store
	logger *logrus.Logger
}

func NewProvider(client Authenticator, store Store, logger *logrus.Logger) *Provider {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Provider{client: client, store: store, logger: logger}
}

// Token returns the session's token. A stored token is reused unless a
// Google id token is supplied and the stored one is anonymous, in which case
// the player is upgraded to a Google login.
func (p *Provider) Token(ctx context.Context, googleIDToken string) (Token, error) {
	stored, ok, err := p.store.Load(ctx)
	if err != nil {
		p.logger.Warnf("session store load failed, logging in again: %v", err)
	}
	if ok && (googleIDToken == "" || stored.IsGoogle()) {
		return stored, nil
	}

	var token Token
	if googleIDToken == "" {
		value, err := p.client.LoginAnonymous(ctx)
		if err != nil {
			return Token{}, fmt.Errorf("anonymous login: %w", err)
		}
		token = Token{Kind: KindAnonymous, Value: value}
	} else {
		value, err := p.client.LoginGoogle(ctx, googleIDToken)
		if err != nil {
			return Token{}, fmt.Errorf("google login: %w", err)
		}
		token = Token{Kind: KindGoogle, Value: value}
	}

	if err := p.store.Save(ctx, token); err != nil {
		p.logger.Warnf("session store save failed: %v", err)
	}
	p.logger.Infof("logged in (%s)", token.Kind)
	return token, nil
}

// Logout forgets the stored token.
func (p *Provider) Logout(ctx context.Context) error {
	return p.store.Clear(ctx)
}
