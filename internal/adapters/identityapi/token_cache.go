package identityapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// FetchFunc obtains a new access token.
type FetchFunc func(ctx context.Context) (string, error)

// TokenCache shares one access token between all outbound calls. Readers
// load it without locking; fetching and invalidation are serialized so that
// concurrent callers reuse the token produced by a single refresher.
type TokenCache struct {
	fetch   FetchFunc
	mu      sync.Mutex
	current atomic.Pointer[string]
}

func NewTokenCache(fetch FetchFunc) *TokenCache {
	return &TokenCache{fetch: fetch}
}

// Token returns the cached token, fetching one if there is none. fresh is
// true when this call performed the fetch.
func (c *TokenCache) Token(ctx context.Context) (token string, fresh bool, err error) {
	if p := c.current.Load(); p != nil {
		return *p, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.current.Load(); p != nil {
		return *p, false, nil
	}
	token, err = c.fetch(ctx)
	if err != nil {
		return "", false, fmt.Errorf("fetch access token: %w", err)
	}
	if token == "" {
		return "", false, errors.New("fetch access token: empty token")
	}
	c.current.Store(&token)
	return token, true, nil
}

// Invalidate drops token if it is still the cached one. A token that was
// already replaced by another caller is left alone.
func (c *TokenCache) Invalidate(token string) {
	if p := c.current.Load(); p == nil || *p != token {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.current.Load(); p != nil && *p == token {
		c.current.Store(nil)
	}
}

// ClientCredentials fetches tokens with the OAuth2 client credentials grant,
// authenticating the client with HTTP basic auth.
func ClientCredentials(clientID, clientSecret, tokenURL string, scopes []string, httpClient *http.Client) FetchFunc {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return func(ctx context.Context) (string, error) {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		tok, err := cfg.Token(ctx)
		if err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}
}
