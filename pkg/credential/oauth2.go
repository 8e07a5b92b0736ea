package credential

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2ClientCredentials builds a Refresher that performs an OAuth2
// client-credentials exchange against tokenURL. This is the shape every
// provider/channel that does "POST /auth/token" with a client id/secret
// uses (Naver Commerce, most eSIM suppliers).
func OAuth2ClientCredentials(clientID, clientSecret, tokenURL string, scopes []string) Refresher {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}

	return func(ctx context.Context) (Token, error) {
		tok, err := cfg.Token(ctx)
		if err != nil {
			return Token{}, err
		}
		return tokenFromOAuth2(tok), nil
	}
}

// StaticBearer builds a Refresher for providers that use a long-lived API
// key instead of a token exchange: the "token" never expires, so the cache
// fetches it once and never refreshes.
func StaticBearer(apiKey string) Refresher {
	return func(ctx context.Context) (Token, error) {
		return Token{AccessToken: apiKey, Expiry: time.Now().AddDate(10, 0, 0)}, nil
	}
}

func tokenFromOAuth2(t *oauth2.Token) Token {
	expiry := t.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	return Token{AccessToken: t.AccessToken, Expiry: expiry}
}
